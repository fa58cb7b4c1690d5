package meter

import (
	"time"

	"github.com/cabletools/dtm/internal/docsis"
	"github.com/cabletools/dtm/internal/tuner"
)

type observation struct {
	packets  uint64
	observed time.Duration
}

// sampler turns cumulative per-channel counters into per-tick deltas. It
// is owned by the meter loop and never accessed concurrently.
type sampler struct {
	prev map[string]observation
}

func newSampler() *sampler {
	return &sampler{prev: make(map[string]observation)}
}

// sample converts a cumulative Status into a Reading carrying the packet
// delta since the previous tick, together with the observation time the
// delta spans. The first tick for a channel, and any counter regression
// after its handle was re-created, yields a zero delta and first=true:
// the baseline is established but not authoritative.
func (s *sampler) sample(ch docsis.Channel, status tuner.Status) (reading docsis.Reading, elapsed time.Duration, first bool) {
	reading = docsis.Reading{
		Locked:    status.Locked,
		SNR:       status.SNR,
		Timestamp: status.Timestamp,
	}

	prev, ok := s.prev[ch.MetricName]
	s.prev[ch.MetricName] = observation{packets: status.Packets, observed: status.Observed}

	if !ok || status.Packets < prev.packets || status.Observed <= prev.observed {
		return reading, 0, true
	}

	reading.Packets = status.Packets - prev.packets
	return reading, status.Observed - prev.observed, false
}

// drop forgets the baseline for a channel whose handle was released.
func (s *sampler) drop(ch docsis.Channel) {
	delete(s.prev, ch.MetricName)
}
