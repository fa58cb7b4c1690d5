package app

import (
	"sort"
	"time"

	"github.com/cabletools/dtm/internal/storage"
)

// Column describes one downstream channel plotted across the whole
// session.
type Column struct {
	Metric      string
	FrequencyHz int64
	Modulation  string
}

// Grid accumulates archived poll cycles into a channels-by-time matrix
// of chart values. One column per channel, one row per cycle; a nil
// cell means the channel produced no usable measurement in that cycle.
type Grid struct {
	mode    ChartMode
	bounds  *SmoothBounds
	columns []Column
	index   map[string]int
	rows    [][]*float64
	times   []time.Time
}

func NewGrid(mode ChartMode) *Grid {
	g := &Grid{
		mode:  mode,
		index: make(map[string]int),
	}
	if mode == ModeBitrate {
		g.bounds = NewSmoothBounds(0.3)
	}
	return g
}

// Update appends one archived cycle to the grid. Channels seen for the
// first time grow a new column; earlier rows stay nil for it.
func (g *Grid) Update(cycle *storage.CycleRecord) {
	cells := make([]*float64, len(g.columns))
	for _, sample := range cycle.Samples {
		i, ok := g.index[sample.Metric]
		if !ok {
			i = len(g.columns)
			g.index[sample.Metric] = i
			g.columns = append(g.columns, Column{
				Metric:      sample.Metric,
				FrequencyHz: sample.FrequencyHz,
				Modulation:  sample.Modulation,
			})
			cells = append(cells, nil)
		}

		value := g.value(sample)
		cells[i] = value
		if value != nil && g.bounds != nil {
			g.bounds.Update(*value)
		}
	}

	g.rows = append(g.rows, cells)
	g.times = append(g.times, cycle.Timestamp)
}

func (g *Grid) value(sample storage.SampleRecord) *float64 {
	switch g.mode {
	case ModeBitrate:
		if !sample.Locked {
			return nil
		}
		v := sample.Bitrate
		return &v
	default:
		if sample.Utilization == nil {
			return nil
		}
		v := *sample.Utilization
		return &v
	}
}

// Finalize orders the columns by frequency and pads rows that were
// recorded before later channels appeared. Call once after the last
// Update.
func (g *Grid) Finalize() {
	order := make([]int, len(g.columns))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return g.columns[order[a]].FrequencyHz < g.columns[order[b]].FrequencyHz
	})

	columns := make([]Column, len(g.columns))
	for to, from := range order {
		columns[to] = g.columns[from]
		g.index[columns[to].Metric] = to
	}
	g.columns = columns

	for y, row := range g.rows {
		cells := make([]*float64, len(columns))
		for to, from := range order {
			if from < len(row) {
				cells[to] = row[from]
			}
		}
		g.rows[y] = cells
	}
}

// Width returns the number of channel columns.
func (g *Grid) Width() int {
	return len(g.columns)
}

// Height returns the number of cycle rows.
func (g *Grid) Height() int {
	return len(g.rows)
}

// Columns returns the channel columns in frequency order.
func (g *Grid) Columns() []Column {
	return g.columns
}

// Cell returns the value at column x, row y, or nil.
func (g *Grid) Cell(x, y int) *float64 {
	row := g.rows[y]
	if x >= len(row) {
		return nil
	}
	return row[x]
}

// Timestamp returns the start time of cycle row y.
func (g *Grid) Timestamp(y int) time.Time {
	return g.times[y]
}

// TimeRange returns the first and last cycle timestamps.
func (g *Grid) TimeRange() (time.Time, time.Time) {
	if len(g.times) == 0 {
		return time.Time{}, time.Time{}
	}
	return g.times[0], g.times[len(g.times)-1]
}

// Bounds returns the value range the color scale is stretched over.
// Utilization charts use the fixed [0, 1] ratio range; bitrate charts
// track percentile bounds over the observed rates.
func (g *Grid) Bounds() ValueBounds {
	if g.bounds != nil {
		return g.bounds.Current()
	}
	return utilizationBounds()
}
