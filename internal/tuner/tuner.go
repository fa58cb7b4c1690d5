package tuner

import (
	"context"
	"time"

	"github.com/cabletools/dtm/internal/docsis"
)

// Status is a snapshot of frontend statistics for one channel. Packets is
// the cumulative count of TS packets seen on the DOCSIS PID over the
// handle's lifetime, and Observed is the cumulative time the packet
// filter was armed; callers derive per-tick deltas from consecutive
// snapshots. Dividing the packet delta by the observed delta yields the
// achieved rate regardless of how the observation windows are scheduled.
type Status struct {
	Locked    bool
	SNR       float64 // dB, driver-reported
	Packets   uint64
	Observed  time.Duration
	Timestamp time.Time
}

// Handle is an acquired tuning session for one channel. Implementations
// must bound every operation: Tune by the lock timeout, ReadStats by the
// observation window. A stats read that times out returns a Status with
// Locked=false rather than an error, since transient signal loss is
// expected.
type Handle interface {
	Tune(ctx context.Context, ch docsis.Channel) error
	ReadStats(ctx context.Context) (Status, error)
	Release() error
}

// Device acquires tuning sessions. The single production implementation
// wraps a Linux DVB adapter; tests substitute fakes.
type Device interface {
	Acquire(ch docsis.Channel) (Handle, error)
}
