//go:build linux

package dvb

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cabletools/dtm/internal/docsis"
	"github.com/cabletools/dtm/internal/tuner"
)

const (
	// DefaultLockTimeout bounds the wait for carrier lock after tuning.
	DefaultLockTimeout = 3 * time.Second

	// DefaultDwell is the length of one packet observation window.
	DefaultDwell = 2 * time.Second

	// DefaultPollTimeout bounds a single dvr poll.
	DefaultPollTimeout = 2 * time.Second

	// defaultBufferSize is the demux buffer: room for 2048 TS packets.
	defaultBufferSize = docsis.TSPacketSize * 2048
)

// WithLockTimeout sets the carrier lock timeout.
func WithLockTimeout(d time.Duration) func(*Adapter) {
	return func(a *Adapter) {
		a.lockTimeout = d
	}
}

// WithDwell sets the length of the packet observation window used by each
// stats read.
func WithDwell(d time.Duration) func(*Adapter) {
	return func(a *Adapter) {
		a.dwell = d
	}
}

// WithPollTimeout sets the timeout of a single dvr poll.
func WithPollTimeout(d time.Duration) func(*Adapter) {
	return func(a *Adapter) {
		a.pollTimeout = d
	}
}

// WithLogger sets the logger for the adapter and its handles.
func WithLogger(logger *slog.Logger) func(*Adapter) {
	return func(a *Adapter) {
		a.logger = logger.With(
			slog.Int("adapter", a.adapter),
			slog.Int("tuner", a.tuner),
		)
	}
}

// Adapter acquires tuning sessions on one Linux DVB adapter
// (/dev/dvb/adapterN). Handles share the underlying hardware, so only one
// handle should be actively tuned at a time; the meter's sequential loop
// guarantees that.
type Adapter struct {
	adapter int
	tuner   int

	lockTimeout time.Duration
	dwell       time.Duration
	pollTimeout time.Duration
	bufferSize  int

	logger *slog.Logger
}

// New creates an Adapter for /dev/dvb/adapterN using the frontendM, demuxM
// and dvrM device nodes.
func New(adapter, tunerIdx int, options ...func(*Adapter)) *Adapter {
	a := Adapter{
		adapter:     adapter,
		tuner:       tunerIdx,
		lockTimeout: DefaultLockTimeout,
		dwell:       DefaultDwell,
		pollTimeout: DefaultPollTimeout,
		bufferSize:  defaultBufferSize,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&a)
	}

	return &a
}

func (a *Adapter) devicePath(node string) string {
	return fmt.Sprintf("/dev/dvb/adapter%d/%s%d", a.adapter, node, a.tuner)
}

// Acquire opens the frontend, demux and dvr devices for one channel.
// Failure to open any of them is a DeviceError: fatal for the channel.
func (a *Adapter) Acquire(ch docsis.Channel) (tuner.Handle, error) {
	if !ch.Modulation.Valid() {
		return nil, tuner.NewDeviceError(fmt.Errorf("unsupported modulation %q", ch.Modulation))
	}

	fefd, err := unix.Open(a.devicePath("frontend"), unix.O_RDWR, 0)
	if err != nil {
		return nil, tuner.NewDeviceError(fmt.Errorf("opening %s: %w", a.devicePath("frontend"), err))
	}

	dmxfd, err := unix.Open(a.devicePath("demux"), unix.O_RDWR, 0)
	if err != nil {
		_ = unix.Close(fefd)
		return nil, tuner.NewDeviceError(fmt.Errorf("opening %s: %w", a.devicePath("demux"), err))
	}

	// The dvr device delivers the filtered transport stream and must not
	// block the sampling loop.
	dvrfd, err := unix.Open(a.devicePath("dvr"), unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		_ = unix.Close(fefd)
		_ = unix.Close(dmxfd)
		return nil, tuner.NewDeviceError(fmt.Errorf("opening %s: %w", a.devicePath("dvr"), err))
	}

	if err = ioctlInt(dmxfd, dmxSetBufferSize, uintptr(a.bufferSize)); err != nil {
		_ = unix.Close(fefd)
		_ = unix.Close(dmxfd)
		_ = unix.Close(dvrfd)
		return nil, tuner.NewDeviceError(fmt.Errorf("setting demux buffer size: %w", err))
	}

	a.logger.Debug("acquired tuner devices",
		slog.String("metric", ch.MetricName),
		slog.Int64("frequency", ch.FrequencyHz))

	return &handle{
		adapter: a,
		fefd:    fefd,
		dmxfd:   dmxfd,
		dvrfd:   dvrfd,
		buf:     make([]byte, a.bufferSize),
		logger:  a.logger.With(slog.String("metric", ch.MetricName)),
	}, nil
}
