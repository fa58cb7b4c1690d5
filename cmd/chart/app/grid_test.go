package app

import (
	"testing"
	"time"

	"github.com/cabletools/dtm/internal/storage"
)

func ptr(v float64) *float64 {
	return &v
}

func testCycle(ts time.Time, samples ...storage.SampleRecord) *storage.CycleRecord {
	for i := range samples {
		samples[i].Cycle = ts
		samples[i].Timestamp = ts
	}
	return &storage.CycleRecord{Timestamp: ts, Samples: samples}
}

func TestGridUtilization(t *testing.T) {
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	grid := NewGrid(ModeUtilization)
	grid.Update(testCycle(start,
		storage.SampleRecord{Metric: "docsis.qam256.546", FrequencyHz: 546_000_000, Locked: true, Utilization: ptr(0.25)},
		storage.SampleRecord{Metric: "docsis.qam256.554", FrequencyHz: 554_000_000, Locked: false},
	))
	grid.Update(testCycle(start.Add(time.Minute),
		storage.SampleRecord{Metric: "docsis.qam256.546", FrequencyHz: 546_000_000, Locked: true, Utilization: ptr(0.5)},
		storage.SampleRecord{Metric: "docsis.qam256.554", FrequencyHz: 554_000_000, Locked: true, Utilization: ptr(0.75)},
	))
	grid.Finalize()

	if grid.Width() != 2 || grid.Height() != 2 {
		t.Fatalf("grid is %dx%d, want 2x2", grid.Width(), grid.Height())
	}
	if v := grid.Cell(0, 0); v == nil || *v != 0.25 {
		t.Errorf("cell (0,0) = %v, want 0.25", v)
	}
	if v := grid.Cell(1, 0); v != nil {
		t.Errorf("cell (1,0) = %v, want nil for unlocked channel", *v)
	}
	if v := grid.Cell(1, 1); v == nil || *v != 0.75 {
		t.Errorf("cell (1,1) = %v, want 0.75", v)
	}

	first, last := grid.TimeRange()
	if !first.Equal(start) || !last.Equal(start.Add(time.Minute)) {
		t.Errorf("time range = %s - %s", first, last)
	}

	bounds := grid.Bounds()
	if bounds.Min != 0 || bounds.Max != 1 {
		t.Errorf("utilization bounds = %+v, want fixed [0, 1]", bounds)
	}
}

func TestGridColumnsSortedByFrequency(t *testing.T) {
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	grid := NewGrid(ModeUtilization)
	grid.Update(testCycle(start,
		storage.SampleRecord{Metric: "docsis.qam256.554", FrequencyHz: 554_000_000, Locked: true, Utilization: ptr(0.5)},
	))
	// A channel joining later must slot in by frequency, with the
	// earlier row reading nil for it.
	grid.Update(testCycle(start.Add(time.Minute),
		storage.SampleRecord{Metric: "docsis.qam256.554", FrequencyHz: 554_000_000, Locked: true, Utilization: ptr(0.5)},
		storage.SampleRecord{Metric: "docsis.qam64.546", FrequencyHz: 546_000_000, Locked: true, Utilization: ptr(0.1)},
	))
	grid.Finalize()

	columns := grid.Columns()
	if len(columns) != 2 {
		t.Fatalf("got %d columns, want 2", len(columns))
	}
	if columns[0].FrequencyHz != 546_000_000 || columns[1].FrequencyHz != 554_000_000 {
		t.Errorf("columns not in frequency order: %+v", columns)
	}
	if v := grid.Cell(0, 0); v != nil {
		t.Errorf("cell (0,0) = %v, want nil before the channel appeared", *v)
	}
	if v := grid.Cell(0, 1); v == nil || *v != 0.1 {
		t.Errorf("cell (0,1) = %v, want 0.1", v)
	}
	if v := grid.Cell(1, 0); v == nil || *v != 0.5 {
		t.Errorf("cell (1,0) = %v, want 0.5", v)
	}
}

func TestGridBitrateMode(t *testing.T) {
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	grid := NewGrid(ModeBitrate)
	grid.Update(testCycle(start,
		storage.SampleRecord{Metric: "docsis.qam256.546", FrequencyHz: 546_000_000, Locked: true, Bitrate: 20_000_000, Utilization: ptr(0.39)},
		storage.SampleRecord{Metric: "docsis.qam256.554", FrequencyHz: 554_000_000, Locked: false, Bitrate: 0},
	))
	grid.Finalize()

	if v := grid.Cell(0, 0); v == nil || *v != 20_000_000 {
		t.Errorf("cell (0,0) = %v, want 20000000", v)
	}
	if v := grid.Cell(1, 0); v != nil {
		t.Errorf("cell (1,0) = %v, want nil for unlocked channel", *v)
	}
}

func TestValueHistogramPercentileBounds(t *testing.T) {
	h := NewValueHistogram(bitrateBinSize)
	for i := 0; i < 100; i++ {
		h.Update(20_000_000)
	}

	bounds := h.GetPercentileBounds()
	if bounds.Mean != 20_000_000 {
		t.Errorf("mean = %f, want 20000000", bounds.Mean)
	}
	// A single-bin distribution stretches to the minimum range of 10
	// bins plus a 10% margin on each side.
	if bounds.Min != 14_000_000 || bounds.Max != 26_000_000 {
		t.Errorf("bounds = [%f, %f], want [14000000, 26000000]", bounds.Min, bounds.Max)
	}
}

func TestValueHistogramBelowMinimumSamples(t *testing.T) {
	h := NewValueHistogram(bitrateBinSize)
	h.Update(20_000_000)

	bounds := h.GetPercentileBounds()
	want := defaultBitrateBounds()
	if bounds != want {
		t.Errorf("bounds = %+v, want defaults %+v", bounds, want)
	}
}

func TestCalculateNiceTimeStep(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     time.Duration
	}{
		{8 * time.Minute, time.Minute},
		{2 * time.Hour, 15 * time.Minute},
		{24 * time.Hour, 4 * time.Hour},
		{7 * 24 * time.Hour, 6 * time.Hour},
	}

	for _, test := range tests {
		if got := calculateNiceTimeStep(test.duration); got != test.want {
			t.Errorf("calculateNiceTimeStep(%s) = %s, want %s", test.duration, got, test.want)
		}
	}
}
