package docsis

import (
	"fmt"
	"time"
)

// Estimator converts per-tick readings into utilization samples. It is
// stateless: the only carried-forward state (previous packet counters)
// lives with the caller.
type Estimator struct {
	capacities CapacityTable
}

// NewEstimator creates an Estimator backed by the given capacity table.
func NewEstimator(capacities CapacityTable) (*Estimator, error) {
	if capacities == nil {
		capacities = DefaultCapacities()
	}
	if err := capacities.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{capacities: capacities}, nil
}

// Capacity returns the post-FEC maximum throughput for a modulation.
func (e *Estimator) Capacity(m Modulation) float64 {
	return e.capacities[m]
}

// Estimate derives the achieved bitrate and normalized utilization for one
// reading. When the frontend has no lock the sample's utilization is nil
// (unavailable) so consumers can tell "no signal" from "no traffic".
// The ratio is clamped to [0, 1]; a pre-clamp value above 1 marks the
// sample as anomalous, which the caller should log.
func (e *Estimator) Estimate(r Reading, ch Channel, elapsed time.Duration) (Sample, error) {
	capacity, ok := e.capacities[ch.Modulation]
	if !ok {
		return Sample{}, fmt.Errorf("no capacity entry for modulation %s", ch.Modulation)
	}

	sample := Sample{
		MetricName: ch.MetricName,
		Timestamp:  r.Timestamp,
	}

	if !r.Locked {
		return sample, nil
	}
	if elapsed <= 0 {
		return Sample{}, fmt.Errorf("elapsed time must be positive: %s", elapsed)
	}

	sample.Bitrate = float64(r.Packets) * TSPacketSize * 8 / elapsed.Seconds()

	ratio := sample.Bitrate / capacity
	if ratio > 1 {
		ratio = 1
		sample.Anomalous = true
	}
	sample.Utilization = &ratio

	return sample, nil
}
