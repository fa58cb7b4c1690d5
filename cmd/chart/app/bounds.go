package app

import "math"

const (
	defaultMinBitrate = 0.0          // bit/s
	defaultMaxBitrate = 51_000_000.0 // bit/s, QAM256 post-FEC ceiling

	bitrateBinSize = 1_000_000.0 // 1 Mbit/s bins

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	// Keep at least this many bins between the percentile bounds so a
	// quiet segment does not blow noise up to full scale.
	minimumBinRange = 10
)

// ValueBounds represents the calculated chart value boundaries
type ValueBounds struct {
	Min  float64
	Max  float64
	Mean float64
}

func utilizationBounds() ValueBounds {
	return ValueBounds{Min: 0, Max: 1, Mean: 0.5}
}

func defaultBitrateBounds() ValueBounds {
	return ValueBounds{
		Min:  defaultMinBitrate,
		Max:  defaultMaxBitrate,
		Mean: (defaultMinBitrate + defaultMaxBitrate) / 2,
	}
}

// ValueHistogram maintains a histogram of bitrate values with fixed
// size bins
type ValueHistogram struct {
	binSize    float64
	bins       map[int]uint32 // Map of bin index to count
	totalCount uint64         // Total number of samples
	minBin     int            // Cache for min bin
	maxBin     int            // Cache for max bin
}

// NewValueHistogram creates a new histogram
func NewValueHistogram(binSize float64) *ValueHistogram {
	return &ValueHistogram{
		binSize: binSize,
		bins:    make(map[int]uint32),
		minBin:  math.MaxInt32,
		maxBin:  math.MinInt32,
	}
}

// binIndex converts a value to its bin index
func (h *ValueHistogram) binIndex(value float64) int {
	return int(math.Floor(value / h.binSize))
}

// scaleDown scales all bin counts down by factor of 2
func (h *ValueHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		// Remove bin if it becomes 0
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
		}

		if bin < h.minBin {
			h.minBin = bin
		}
		if bin > h.maxBin {
			h.maxBin = bin
		}
	}
	h.totalCount /= 2
}

// Update adds a new value to the histogram
func (h *ValueHistogram) Update(value float64) {
	bin := h.binIndex(value)

	// Check both conditions for scaling
	if h.bins[bin] == math.MaxUint32 || h.totalCount == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.totalCount++

	if bin < h.minBin {
		h.minBin = bin
	}
	if bin > h.maxBin {
		h.maxBin = bin
	}
}

// Clear resets the histogram
func (h *ValueHistogram) Clear() {
	h.bins = make(map[int]uint32)
	h.totalCount = 0
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32
}

// GetPercentileBounds returns value bounds based on percentiles
func (h *ValueHistogram) GetPercentileBounds() ValueBounds {
	if h.totalCount < minimumSampleCount { // Require minimum samples
		return defaultBitrateBounds()
	}

	// Calculate target counts for 5th and 95th percentiles
	target5th := h.totalCount * 5 / 100

	var count uint64
	var min5th, max95th int

	// Find 5th percentile
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target5th {
			min5th = bin
			break
		}
	}

	// Find 95th percentile
	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target5th {
			max95th = bin
			break
		}
	}

	// Calculate mean (weighted average of bin centers)
	var sumProduct float64
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		sumProduct += float64(bin) * float64(h.bins[bin])
	}
	mean := sumProduct / float64(h.totalCount) * h.binSize

	if max95th-min5th < minimumBinRange {
		center := (max95th + min5th) / 2
		min5th = center - minimumBinRange/2
		max95th = center + minimumBinRange/2
	}

	// Add small margin
	margin := (max95th - min5th) * 1 / 10 // 10% margin
	minValue := float64(min5th-margin) * h.binSize
	maxValue := float64(max95th+margin) * h.binSize

	// Bitrates cannot go negative
	if minValue < 0 {
		minValue = 0
	}

	return ValueBounds{
		Min:  minValue,
		Max:  maxValue,
		Mean: mean,
	}
}

// SmoothBounds represents a smoothed version of the histogram bounds
type SmoothBounds struct {
	hist    *ValueHistogram
	alpha   float64     // Smoothing factor (0-1)
	current ValueBounds // Current smoothed bounds
}

// NewSmoothBounds creates a new bounds smoother
func NewSmoothBounds(alpha float64) *SmoothBounds {
	return &SmoothBounds{
		hist:    NewValueHistogram(bitrateBinSize),
		alpha:   alpha,
		current: defaultBitrateBounds(),
	}
}

// Update adds a new value and returns smoothed bounds
func (s *SmoothBounds) Update(value float64) ValueBounds {
	s.hist.Update(value)

	newBounds := s.hist.GetPercentileBounds()

	// Apply exponential smoothing
	s.current.Min = s.current.Min*(1-s.alpha) + newBounds.Min*s.alpha
	s.current.Max = s.current.Max*(1-s.alpha) + newBounds.Max*s.alpha
	s.current.Mean = newBounds.Mean // Use new mean directly

	return s.current
}

// Current returns the current smoothed value bounds
func (s *SmoothBounds) Current() ValueBounds {
	return s.current
}

// Clear resets the histogram and bounds
func (s *SmoothBounds) Clear() {
	s.hist.Clear()
	s.current = defaultBitrateBounds()
}
