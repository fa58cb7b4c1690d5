package tuner

import (
	"errors"
	"fmt"
	"time"
)

// ErrReleased is returned when an operation is attempted on a released handle.
var ErrReleased = errors.New("tuner handle released")

// DeviceError indicates the frontend device could not be opened or does
// not support the requested parameters. It is fatal for the affected
// channel for the lifetime of the process.
type DeviceError struct {
	Err error
}

func NewDeviceError(err error) *DeviceError {
	return &DeviceError{Err: err}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error: %s", e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// LockTimeoutError indicates the frontend did not achieve carrier lock
// within the bounded wait. Transient; the channel is retried next cycle.
type LockTimeoutError struct {
	FrequencyHz int64
	Timeout     time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("no carrier lock on %d Hz after %s", e.FrequencyHz, e.Timeout)
}

// IsDeviceError reports whether err wraps a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// IsLockTimeout reports whether err wraps a LockTimeoutError.
func IsLockTimeout(err error) bool {
	var le *LockTimeoutError
	return errors.As(err, &le)
}
