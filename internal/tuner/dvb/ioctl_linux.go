//go:build linux

package dvb

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux DVB v5 API constants, from include/uapi/linux/dvb/frontend.h and
// dmx.h.
const (
	dtvTune           = 1
	dtvFrequency      = 3
	dtvModulation     = 4
	dtvInversion      = 6
	dtvSymbolRate     = 8
	dtvInnerFEC       = 9
	dtvDeliverySystem = 17

	sysDVBCAnnexA = 1
	qam64         = 3
	qam256        = 5
	inversionOff  = 0
	fecAuto       = 9

	feHasLock = 0x10

	dmxInFrontend     = 0
	dmxOutTSTap       = 2
	dmxPESOther       = 20
	dmxImmediateStart = 4
)

// dtvProperty mirrors struct dtv_property, which is declared packed. The
// union is represented as a raw 56-byte area; tuning commands only ever
// use the leading u32.
type dtvProperty struct {
	cmd      uint32
	reserved [3]uint32
	data     [56]byte
	result   int32
}

func (p *dtvProperty) set(cmd, value uint32) {
	p.cmd = cmd
	*(*uint32)(unsafe.Pointer(&p.data[0])) = value
}

// dtvProperties mirrors struct dtv_properties.
type dtvProperties struct {
	num   uint32
	_     uint32
	props *dtvProperty
}

// dmxPESFilterParams mirrors struct dmx_pes_filter_params.
type dmxPESFilterParams struct {
	pid     uint16
	_       uint16
	input   uint32
	output  uint32
	pesType uint32
	flags   uint32
}

// _IOC encoding, as in include/uapi/asm-generic/ioctl.h.
const (
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | size<<iocSizeShift | typ<<iocTypeShift | nr<<iocNrShift
}

func _IO(typ, nr uintptr) uintptr        { return ioc(0, typ, nr, 0) }
func _IOR(typ, nr, size uintptr) uintptr { return ioc(iocRead, typ, nr, size) }
func _IOW(typ, nr, size uintptr) uintptr { return ioc(iocWrite, typ, nr, size) }

var (
	feSetProperty = _IOW('o', 82, unsafe.Sizeof(dtvProperties{}))
	feReadStatus  = _IOR('o', 69, unsafe.Sizeof(uint32(0)))
	feReadSNR     = _IOR('o', 72, unsafe.Sizeof(uint16(0)))

	dmxStop          = _IO('o', 42)
	dmxSetPESFilter  = _IOW('o', 44, unsafe.Sizeof(dmxPESFilterParams{}))
	dmxSetBufferSize = _IO('o', 45)
)

func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlInt(fd int, req uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg)
	if errno != 0 {
		return errno
	}
	return nil
}
