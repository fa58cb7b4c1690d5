// Package meter drives the poll cycle: for every configured downstream
// channel it tunes, samples, estimates utilization and emits the
// resulting metrics, tolerating per-channel failures without halting the
// process.
package meter

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cabletools/dtm/internal/carbon"
	"github.com/cabletools/dtm/internal/docsis"
	"github.com/cabletools/dtm/internal/storage"
	"github.com/cabletools/dtm/internal/tuner"
)

// DefaultInterval is the default poll cadence.
const DefaultInterval = 60 * time.Second

// Emitter sends one cycle's metrics to the collector.
type Emitter interface {
	Send(metrics []carbon.Metric) error
}

// Archive persists samples of a metering session for offline charting.
type Archive interface {
	StoreSamples(ctx context.Context, sessionID int64, samples []storage.SampleRecord) error
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) func(*Meter) {
	return func(m *Meter) {
		m.interval = d
	}
}

// WithArchive enables sample archiving under the given session.
func WithArchive(archive Archive, sessionID int64) func(*Meter) {
	return func(m *Meter) {
		m.archive = archive
		m.sessionID = sessionID
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) func(*Meter) {
	return func(m *Meter) {
		m.logger = logger
	}
}

// Meter owns the scheduler loop and all per-channel state: tuner handles,
// delta baselines and the set of channels disabled by device errors. It
// is not safe for concurrent use; Run is the single driver.
type Meter struct {
	device    tuner.Device
	estimator *docsis.Estimator
	emitter   Emitter
	channels  []docsis.Channel

	interval  time.Duration
	archive   Archive
	sessionID int64
	logger    *slog.Logger

	sampler *sampler
	handles map[string]tuner.Handle
	failed  map[string]bool
}

// New creates a Meter for the given channels.
func New(device tuner.Device, estimator *docsis.Estimator, emitter Emitter, channels []docsis.Channel, options ...func(*Meter)) *Meter {
	m := Meter{
		device:    device,
		estimator: estimator,
		emitter:   emitter,
		channels:  channels,
		interval:  DefaultInterval,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		sampler:   newSampler(),
		handles:   make(map[string]tuner.Handle),
		failed:    make(map[string]bool),
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Run drives poll cycles until ctx is cancelled, then releases every held
// tuner handle. The sleep between cycles is compensated for the time the
// cycle itself took, so the cadence stays periodic instead of drifting.
func (m *Meter) Run(ctx context.Context) error {
	defer m.drain()

	m.logger.Info("meter started",
		slog.Int("channels", len(m.channels)),
		slog.Duration("interval", m.interval))

	for {
		start := time.Now()
		m.cycle(ctx)

		if ctx.Err() != nil {
			return nil
		}

		sleep := m.interval - time.Since(start)
		if sleep <= 0 {
			m.logger.Warn("cycle overran the poll interval", slog.Duration("overrun", -sleep))
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// cycle processes every configured channel once, then emits and archives
// the collected metrics. A per-channel failure at any stage is caught and
// logged; it never aborts the cycle for the remaining channels.
func (m *Meter) cycle(ctx context.Context) {
	cycleStart := time.Now()
	metrics := make([]carbon.Metric, 0, len(m.channels)*2)
	var records []storage.SampleRecord

	for _, ch := range m.channels {
		if ctx.Err() != nil {
			return
		}
		if m.failed[ch.MetricName] {
			continue
		}

		sample, reading, baseline, err := m.observe(ctx, ch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			switch {
			case tuner.IsDeviceError(err):
				m.failed[ch.MetricName] = true
				m.logger.Error("channel disabled",
					slog.String("metric", ch.MetricName),
					slog.String("error", err.Error()))
			case tuner.IsLockTimeout(err):
				m.logger.Warn("no carrier lock",
					slog.String("metric", ch.MetricName),
					slog.String("error", err.Error()))
				metrics = append(metrics, unavailableMetrics(ch.MetricName, time.Now())...)
			default:
				m.logger.Warn("channel skipped this cycle",
					slog.String("metric", ch.MetricName),
					slog.String("error", err.Error()))
			}
			continue
		}

		if baseline {
			metrics = append(metrics, unavailableMetrics(ch.MetricName, sample.Timestamp)...)
			continue
		}

		metrics = append(metrics, metricsFor(sample)...)
		if m.archive != nil {
			records = append(records, newRecord(cycleStart, ch, reading, sample))
		}
	}

	if len(metrics) > 0 {
		if err := m.emitter.Send(metrics); err != nil {
			m.logger.Warn("metrics dropped", slog.String("error", err.Error()))
		}
	}
	if m.archive != nil && len(records) > 0 {
		if err := m.archive.StoreSamples(ctx, m.sessionID, records); err != nil {
			m.logger.Warn("archiving samples failed", slog.String("error", err.Error()))
		}
	}
}

// observe runs one channel through acquire-or-reuse, tune, sample and
// estimate. baseline=true marks the first tick after (re)acquisition,
// whose delta is not authoritative.
func (m *Meter) observe(ctx context.Context, ch docsis.Channel) (docsis.Sample, docsis.Reading, bool, error) {
	h, ok := m.handles[ch.MetricName]
	if !ok {
		var err error
		if h, err = m.device.Acquire(ch); err != nil {
			return docsis.Sample{}, docsis.Reading{}, false, err
		}
		m.handles[ch.MetricName] = h
	}

	if err := h.Tune(ctx, ch); err != nil {
		if tuner.IsDeviceError(err) {
			m.dropHandle(ch)
		}
		return docsis.Sample{}, docsis.Reading{}, false, err
	}

	status, err := h.ReadStats(ctx)
	if err != nil {
		m.dropHandle(ch)
		return docsis.Sample{}, docsis.Reading{}, false, err
	}

	reading, elapsed, first := m.sampler.sample(ch, status)
	if first {
		sample := docsis.Sample{
			MetricName: ch.MetricName,
			Timestamp:  status.Timestamp,
		}
		return sample, reading, true, nil
	}

	sample, err := m.estimator.Estimate(reading, ch, elapsed)
	if err != nil {
		return docsis.Sample{}, docsis.Reading{}, false, err
	}

	if sample.Anomalous {
		m.logger.Warn("achieved bitrate above channel capacity",
			slog.String("metric", ch.MetricName),
			slog.String("bitrate", humanize.SIWithDigits(sample.Bitrate, 2, "bit/s")))
	}

	m.logger.Debug("channel sampled",
		slog.String("metric", ch.MetricName),
		slog.Bool("locked", reading.Locked),
		slog.Float64("snr", reading.SNR),
		slog.String("bitrate", humanize.SIWithDigits(sample.Bitrate, 2, "bit/s")))

	return sample, reading, false, nil
}

// dropHandle releases a channel's handle and forgets its delta baseline,
// forcing a fresh acquisition next cycle.
func (m *Meter) dropHandle(ch docsis.Channel) {
	h, ok := m.handles[ch.MetricName]
	if !ok {
		return
	}
	delete(m.handles, ch.MetricName)
	m.sampler.drop(ch)

	if err := h.Release(); err != nil {
		m.logger.Warn("releasing tuner handle",
			slog.String("metric", ch.MetricName),
			slog.String("error", err.Error()))
	}
}

// drain releases all held handles. Terminal: the meter is not reusable
// afterwards.
func (m *Meter) drain() {
	for name, h := range m.handles {
		if err := h.Release(); err != nil {
			m.logger.Warn("releasing tuner handle",
				slog.String("metric", name),
				slog.String("error", err.Error()))
		}
	}
	m.handles = make(map[string]tuner.Handle)

	m.logger.Info("meter stopped")
}

// metricsFor expands a sample into its .bps and .utilization lines. An
// unlocked sample (nil Utilization) renders both lines unavailable: a
// numeric 0 on .bps would claim a measured-idle channel when nothing
// was measured.
func metricsFor(s docsis.Sample) []carbon.Metric {
	if s.Utilization == nil {
		return unavailableMetrics(s.MetricName, s.Timestamp)
	}
	bps := s.Bitrate
	return []carbon.Metric{
		{Path: s.MetricName + ".bps", Value: &bps, Timestamp: s.Timestamp},
		{Path: s.MetricName + ".utilization", Value: s.Utilization, Timestamp: s.Timestamp},
	}
}

func unavailableMetrics(name string, ts time.Time) []carbon.Metric {
	return []carbon.Metric{
		{Path: name + ".bps", Timestamp: ts},
		{Path: name + ".utilization", Timestamp: ts},
	}
}

func newRecord(cycle time.Time, ch docsis.Channel, reading docsis.Reading, sample docsis.Sample) storage.SampleRecord {
	return storage.SampleRecord{
		Cycle:       cycle,
		Metric:      ch.MetricName,
		FrequencyHz: ch.FrequencyHz,
		Modulation:  ch.Modulation.String(),
		Locked:      reading.Locked,
		SNR:         reading.SNR,
		Bitrate:     sample.Bitrate,
		Utilization: sample.Utilization,
		Timestamp:   sample.Timestamp,
	}
}
