//go:build linux

package dvb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cabletools/dtm/internal/docsis"
	"github.com/cabletools/dtm/internal/tuner"
)

// lockSettle is the wait between tuning and the first lock check; some
// frontends report stale status immediately after FE_SET_PROPERTY.
const lockSettle = 250 * time.Millisecond

// handle is one tuning session. It owns its device descriptors and the
// cumulative packet counter for the channel it serves.
type handle struct {
	adapter *Adapter

	fefd  int
	dmxfd int
	dvrfd int

	buf       []byte
	bytesRead uint64
	observed  time.Duration
	filtering bool
	released  bool

	logger *slog.Logger
}

// Tune issues the DVB-C tuning sequence and waits for carrier lock within
// the adapter's lock timeout.
func (h *handle) Tune(ctx context.Context, ch docsis.Channel) error {
	if h.released {
		return tuner.ErrReleased
	}

	var modulation uint32
	switch ch.Modulation {
	case docsis.QAM64:
		modulation = qam64
	case docsis.QAM256:
		modulation = qam256
	default:
		return tuner.NewDeviceError(fmt.Errorf("unsupported modulation %q", ch.Modulation))
	}

	// DOCSIS profiles fix inversion off and autodetect FEC.
	var props [7]dtvProperty
	props[0].set(dtvDeliverySystem, sysDVBCAnnexA)
	props[1].set(dtvModulation, modulation)
	props[2].set(dtvSymbolRate, uint32(ch.SymbolRate))
	props[3].set(dtvInversion, inversionOff)
	props[4].set(dtvInnerFEC, fecAuto)
	props[5].set(dtvFrequency, uint32(ch.FrequencyHz))
	props[6].set(dtvTune, 0)

	request := dtvProperties{
		num:   uint32(len(props)),
		props: &props[0],
	}
	if err := ioctlPtr(h.fefd, feSetProperty, unsafe.Pointer(&request)); err != nil {
		return tuner.NewDeviceError(fmt.Errorf("FE_SET_PROPERTY: %w", err))
	}

	h.logger.Debug("tuning", slog.Int64("frequency", ch.FrequencyHz), slog.String("modulation", ch.Modulation.String()))

	deadline := time.Now().Add(h.adapter.lockTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockSettle):
		}

		locked, err := h.readLock()
		if err != nil {
			return fmt.Errorf("verifying carrier lock: %w", err)
		}
		if locked {
			h.logger.Debug("carrier lock acquired")
			return nil
		}
		if time.Now().After(deadline) {
			return &tuner.LockTimeoutError{
				FrequencyHz: ch.FrequencyHz,
				Timeout:     h.adapter.lockTimeout,
			}
		}
	}
}

// ReadStats runs one bounded observation window on the dvr device and
// returns the updated cumulative packet count together with the current
// lock state and SNR. A frontend that stops answering is reported as
// unlocked, not as an error.
func (h *handle) ReadStats(ctx context.Context) (tuner.Status, error) {
	if h.released {
		return tuner.Status{}, tuner.ErrReleased
	}

	if err := h.startFilter(); err != nil {
		return tuner.Status{}, err
	}
	observeErr := h.observe(ctx)
	h.stopFilter()
	if observeErr != nil {
		return tuner.Status{}, observeErr
	}

	status := tuner.Status{
		Packets:   h.bytesRead / docsis.TSPacketSize,
		Observed:  h.observed,
		Timestamp: time.Now(),
	}

	locked, err := h.readLock()
	if err != nil {
		// Treat a failed or timed out status query as transient signal
		// loss; the next cycle retries.
		h.logger.Warn("FE_READ_STATUS failed, reporting unlocked", slog.String("error", err.Error()))
		return status, nil
	}
	status.Locked = locked
	status.SNR = h.readSNR()

	return status, nil
}

// Release closes all device descriptors. Safe to call more than once.
func (h *handle) Release() error {
	if h.released {
		return nil
	}
	h.released = true

	h.stopFilter()

	var errs []error
	for _, fd := range []int{h.dvrfd, h.dmxfd, h.fefd} {
		if err := unix.Close(fd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// startFilter arms the PES filter for the DOCSIS PID, directing the
// transport stream to the dvr device.
func (h *handle) startFilter() error {
	if h.filtering {
		return nil
	}

	params := dmxPESFilterParams{
		pid:     docsis.PID,
		input:   dmxInFrontend,
		output:  dmxOutTSTap,
		pesType: dmxPESOther,
		flags:   dmxImmediateStart,
	}
	if err := ioctlPtr(h.dmxfd, dmxSetPESFilter, unsafe.Pointer(&params)); err != nil {
		return tuner.NewDeviceError(fmt.Errorf("DMX_SET_PES_FILTER: %w", err))
	}

	h.filtering = true
	return nil
}

func (h *handle) stopFilter() {
	if !h.filtering {
		return
	}
	if err := ioctlInt(h.dmxfd, dmxStop, 0); err != nil {
		h.logger.Warn("DMX_STOP failed", slog.String("error", err.Error()))
	}
	h.filtering = false
}

// observe drains the dvr device for the adapter's dwell, accumulating the
// byte count and the window length into the handle's cumulative counters.
func (h *handle) observe(ctx context.Context) error {
	start := time.Now()
	deadline := start.Add(h.adapter.dwell)
	defer func() {
		h.observed += time.Since(start)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		timeout := h.adapter.pollTimeout
		if remaining < timeout {
			timeout = remaining
		}

		fds := []unix.PollFd{{Fd: int32(h.dvrfd), Events: unix.POLLIN | unix.POLLPRI}}
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return tuner.NewDeviceError(fmt.Errorf("polling dvr: %w", err))
		}
		if n == 0 {
			continue // no data within the poll timeout; the channel may be idle
		}

		read, err := unix.Read(h.dvrfd, h.buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return tuner.NewDeviceError(fmt.Errorf("reading dvr: %w", err))
		}
		h.bytesRead += uint64(read)
	}
}

func (h *handle) readLock() (bool, error) {
	var status uint32
	if err := ioctlPtr(h.fefd, feReadStatus, unsafe.Pointer(&status)); err != nil {
		return false, err
	}
	return status&feHasLock != 0, nil
}

// readSNR returns the driver-reported SNR. The DVBv3 query reports
// tenths of a dB on most cable frontends; a failing query yields 0,
// which is informational only and never gates a sample.
func (h *handle) readSNR() float64 {
	var snr uint16
	if err := ioctlPtr(h.fefd, feReadSNR, unsafe.Pointer(&snr)); err != nil {
		return 0
	}
	return float64(snr) / 10
}
