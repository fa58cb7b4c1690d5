package docsis

import (
	"fmt"
	"time"
)

const (
	// PID is the well-known MPEG-TS Packet Identifier carrying DOCSIS
	// data on a EuroDOCSIS downstream channel.
	PID = 8190

	// TSPacketSize is the size of a single MPEG transport stream packet.
	TSPacketSize = 188

	// DefaultSymbolRate is the EuroDOCSIS downstream symbol rate.
	DefaultSymbolRate = 6_952_000
)

const (
	QAM64  Modulation = "qam64"
	QAM256 Modulation = "qam256"
)

// Modulation identifies a EuroDOCSIS downstream modulation scheme.
type Modulation string

func (m Modulation) String() string {
	return string(m)
}

func (m Modulation) Valid() bool {
	return m == QAM64 || m == QAM256
}

// ParseModulation parses the modulation part of a frequency list entry,
// e.g. "64" or "256".
func ParseModulation(s string) (Modulation, error) {
	switch s {
	case "64":
		return QAM64, nil
	case "256":
		return QAM256, nil
	default:
		return "", fmt.Errorf("invalid modulation QAM_%s", s)
	}
}

// CapacityTable maps a modulation to its theoretical post-FEC maximum
// throughput in bits per second. The defaults are approximate figures for
// an 8 MHz EuroDOCSIS channel; the exact Reed-Solomon framing overhead is
// driver and plant dependent, so the values are configurable rather than
// recomputed at runtime.
type CapacityTable map[Modulation]float64

// DefaultCapacities returns the built-in capacity table.
func DefaultCapacities() CapacityTable {
	return CapacityTable{
		QAM64:  34_000_000,
		QAM256: 51_000_000,
	}
}

func (t CapacityTable) Validate() error {
	for _, m := range []Modulation{QAM64, QAM256} {
		c, ok := t[m]
		if !ok {
			return fmt.Errorf("capacity table: missing entry for %s", m)
		}
		if c <= 0 {
			return fmt.Errorf("capacity table: capacity for %s must be positive: %f", m, c)
		}
	}
	return nil
}

// Channel describes one downstream channel to monitor. Channels are built
// from configuration at startup and are read-only afterwards.
type Channel struct {
	FrequencyHz int64
	Modulation  Modulation
	SymbolRate  int64
	MetricName  string
}

func (c Channel) Validate() error {
	if c.FrequencyHz <= 0 {
		return fmt.Errorf("channel: frequency must be positive: %d", c.FrequencyHz)
	}
	if !c.Modulation.Valid() {
		return fmt.Errorf("channel: invalid modulation: %q", c.Modulation)
	}
	if c.SymbolRate <= 0 {
		return fmt.Errorf("channel: symbol rate must be positive: %d", c.SymbolRate)
	}
	if c.MetricName == "" {
		return fmt.Errorf("channel: metric name is required")
	}
	return nil
}

// MetricName derives the carbon path for a channel:
// <prefix>.<modulation>.<frequency in MHz>.
func MetricName(prefix string, m Modulation, frequencyHz int64) string {
	return fmt.Sprintf("%s.%s.%d", prefix, m, frequencyHz/1_000_000)
}

// Reading is one tick's worth of frontend statistics for a channel,
// already reduced to a delta by the sampler.
type Reading struct {
	Locked    bool
	SNR       float64 // dB, driver-reported
	Packets   uint64  // TS packets on the DOCSIS PID since the previous tick
	Timestamp time.Time
}

// Sample is the derived utilization measurement for one channel and tick.
// A nil Utilization means the measurement is unavailable (no lock, or no
// baseline yet), which is distinct from a measured 0.0.
type Sample struct {
	MetricName  string
	Utilization *float64
	Bitrate     float64 // achieved bits per second
	Anomalous   bool    // pre-clamp ratio exceeded 1.0
	Timestamp   time.Time
}
