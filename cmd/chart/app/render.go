package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	dpi            = 120.0
	fontSize       = 12.0
	tickMarkLength = 5

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04"
	defaultDatetimeFormat = time.DateTime
)

// Cells without a usable measurement (no lock, channel disabled) are
// drawn in a neutral gray so they cannot be mistaken for zero load.
var unavailableColor = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 255}

// BorderConfig defines the sizes of white space around the chart
type BorderConfig struct {
	Top    int // Space for channel labels
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for chart rendering
type RenderConfig struct {
	// Time display configuration
	TimeFormat     string         // Format string for time display (e.g. "15:04")
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	// Visual configuration
	ColorTheme ColorTheme // Color scheme for chart values
	FontPath   string     // Optional TTF font for annotations
	CellWidth  int        // Width of one channel column in pixels
	CellHeight int        // Height of one cycle row in pixels

	// Border configuration
	BorderConfig BorderConfig
}

// ChartRenderer turns an accumulated grid into an annotated image
type ChartRenderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

// NewChartRenderer creates a new chart renderer with the given configuration
func NewChartRenderer(config RenderConfig) (*ChartRenderer, error) {
	// Set defaults for zero values
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.CellWidth == 0 {
		config.CellWidth = 24
	}
	if config.CellHeight == 0 {
		config.CellHeight = 2
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &ChartRenderer{config: config}, nil
}

// Render creates an image of the grid with annotations
func (r *ChartRenderer) Render(grid *Grid, mode ChartMode) (*image.RGBA, error) {
	chartWidth := grid.Width() * r.config.CellWidth
	chartHeight := grid.Height() * r.config.CellHeight

	// Create image with space for borders
	fullWidth := chartWidth + r.config.BorderConfig.Left + r.config.BorderConfig.Right
	fullHeight := chartHeight + r.config.BorderConfig.Top + r.config.BorderConfig.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	// Chart area
	chartArea := image.Rect(
		r.config.BorderConfig.Left,
		r.config.BorderConfig.Top,
		r.config.BorderConfig.Left+chartWidth,
		r.config.BorderConfig.Top+chartHeight,
	)

	// Update or create color map
	bounds := grid.Bounds()
	if r.colorMap == nil {
		r.colorMap = NewColorMapper(r.config.ColorTheme, bounds)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	ann, err := newAnnotator(annotatorConfig{
		TimeFormat:     r.config.TimeFormat,
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontPath:       r.config.FontPath,
		CellWidth:      r.config.CellWidth,
		CellHeight:     r.config.CellHeight,
		Borders:        r.config.BorderConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, grid, mode, bounds); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	r.renderCells(img, chartArea, grid)

	return img, nil
}

// renderCells draws the grid values using the color map
func (r *ChartRenderer) renderCells(img *image.RGBA, area image.Rectangle, grid *Grid) {
	for y := 0; y < grid.Height(); y++ {
		for x := 0; x < grid.Width(); x++ {
			cell := image.Rect(
				area.Min.X+x*r.config.CellWidth,
				area.Min.Y+y*r.config.CellHeight,
				area.Min.X+(x+1)*r.config.CellWidth,
				area.Min.Y+(y+1)*r.config.CellHeight,
			)

			var c color.Color = unavailableColor
			if value := grid.Cell(x, y); value != nil {
				c = r.colorMap.GetColor(*value)
			}
			draw.Draw(img, cell, image.NewUniform(c), image.Point{}, draw.Src)
		}
	}
}

// Internal annotator implementation
type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontPath       string
	CellWidth      int
	CellHeight     int
	Borders        BorderConfig
}

type annotator struct {
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	face, err := loadFontFace(config.FontPath)
	if err != nil {
		return nil, err
	}
	return &annotator{config: config, fontFace: face}, nil
}

// loadFontFace parses the TTF file when one is given and falls back to
// the built-in bitmap face otherwise.
func loadFontFace(path string) (font.Face, error) {
	if path == "" {
		return basicfont.Face7x13, nil
	}

	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}
	parsedFont, err := freetype.ParseFont(p)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    fontSize,
		DPI:     dpi,
		Hinting: font.HintingNone,
	}), nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, grid *Grid, mode ChartMode, bounds ValueBounds) error {
	a.drawChannelScale(img, grid)
	a.drawTimeScale(img, grid)
	a.drawInfoBar(img, grid, mode, bounds)
	return nil
}

// drawString draws s with its baseline at (x, y).
func (a *annotator) drawString(img *image.RGBA, s string, x, y int) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: a.fontFace,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawChannelScale labels every column with its frequency in MHz and
// QAM order, centered over the column.
func (a *annotator) drawChannelScale(img *image.RGBA, grid *Grid) {
	metrics := a.fontFace.Metrics()

	for i, column := range grid.Columns() {
		centerX := a.config.Borders.Left + i*a.config.CellWidth + a.config.CellWidth/2

		// Tick mark
		for y := a.config.Borders.Top - tickMarkLength; y < a.config.Borders.Top; y++ {
			img.Set(centerX, y, color.Black)
		}

		label := fmt.Sprintf("%d", column.FrequencyHz/1_000_000)
		width := font.MeasureString(a.fontFace, label)
		textY := a.config.Borders.Top - tickMarkLength - 2 - metrics.Descent.Round()
		a.drawString(img, label, centerX-width.Round()/2, textY)
	}
}

// drawTimeScale puts tick marks and clock labels on the left border at
// nice time intervals.
func (a *annotator) drawTimeScale(img *image.RGBA, grid *Grid) {
	if grid.Height() == 0 {
		return
	}

	start, end := grid.TimeRange()
	timeStep := calculateNiceTimeStep(end.Sub(start))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	next := start
	for y := 0; y < grid.Height(); y++ {
		if grid.Timestamp(y).Before(next) {
			continue
		}

		imgY := a.config.Borders.Top + y*a.config.CellHeight

		// Tick mark
		for x := a.config.Borders.Left - tickMarkLength; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := grid.Timestamp(y).In(a.config.Location).Format(a.config.TimeFormat)
		textY := imgY + fontHeight/2 - metrics.Descent.Round()
		a.drawString(img, label, 10, textY)

		for !grid.Timestamp(y).Before(next) {
			next = next.Add(timeStep)
		}
	}
}

// drawInfoBar summarizes the chart in the bottom border.
func (a *annotator) drawInfoBar(img *image.RGBA, grid *Grid, mode ChartMode, bounds ValueBounds) {
	var sb strings.Builder

	switch mode {
	case ModeBitrate:
		sb.WriteString(fmt.Sprintf("Bitrate: %s - %s",
			humanize.SIWithDigits(bounds.Min, 1, "bit/s"),
			humanize.SIWithDigits(bounds.Max, 1, "bit/s")))
	default:
		sb.WriteString(fmt.Sprintf("Utilization: %.0f%% - %.0f%%", bounds.Min*100, bounds.Max*100))
	}

	start, end := grid.TimeRange()
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		start.In(a.config.Location).Format(a.config.DatetimeFormat),
		end.In(a.config.Location).Format(a.config.DatetimeFormat)))

	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("%d channels x %d cycles", grid.Width(), grid.Height()))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	// Center text vertically in bottom border
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-fontHeight)/2 - metrics.Descent.Round()
	a.drawString(img, sb.String(), a.config.Borders.Left, textY)
}

// Helper functions

func calculateNiceTimeStep(duration time.Duration) time.Duration {
	seconds := duration.Seconds()
	roughStep := seconds / 8 // Aim for about 8 time labels

	// Nice time intervals in seconds
	niceIntervals := []float64{
		60,    // 1 minute
		300,   // 5 minutes
		600,   // 10 minutes
		900,   // 15 minutes
		1800,  // 30 minutes
		3600,  // 1 hour
		7200,  // 2 hours
		14400, // 4 hours
	}

	// Find the first interval larger than our rough step
	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return time.Duration(interval) * time.Second
		}
	}

	return time.Hour * 6 // Default for very long durations
}
