package storage

import (
	"database/sql"
	"time"
)

// SessionRecord describes one metering session.
type SessionRecord struct {
	ID        int64
	StartTime time.Time
	Adapter   string
	Config    *string
}

// SampleRecord is one channel measurement within a poll cycle. Cycle is
// the cycle start timestamp shared by all channels of the cycle;
// Timestamp is when this channel's observation window ended. Utilization
// is nil when the channel had no carrier lock.
type SampleRecord struct {
	Cycle       time.Time
	Timestamp   time.Time
	Metric      string
	FrequencyHz int64
	Modulation  string
	Locked      bool
	SNR         float64
	Bitrate     float64
	Utilization *float64
}

// CycleRecord groups the samples of one poll cycle, ordered by
// frequency.
type CycleRecord struct {
	Timestamp time.Time
	Samples   []SampleRecord
}

type sampleData struct {
	ID          int64
	SessionID   int64
	Cycle       time.Time
	Timestamp   time.Time
	Metric      string
	Frequency   int64
	Modulation  string
	Locked      bool
	SNR         float64
	Bitrate     float64
	Utilization sql.NullFloat64
}
