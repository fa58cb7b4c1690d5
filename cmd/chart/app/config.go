package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	// ModeUtilization plots the normalized utilization ratio [0, 1].
	ModeUtilization ChartMode = "utilization"
	// ModeBitrate plots the achieved bitrate in bits per second.
	ModeBitrate ChartMode = "bps"
)

type ImageFormat string

type ChartMode string

type Config struct {
	DBPath     string
	SessionID  int64
	OutputFile string
	Format     ImageFormat
	Mode       ChartMode
	Theme      ColorTheme
	FontPath   string
	CellWidth  int
	CellHeight int
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validChartModes = map[ChartMode]struct{}{
	ModeUtilization: {},
	ModeBitrate:     {},
}

func NewConfig() *Config {
	return &Config{
		Format:     ImagePNG,
		Mode:       ModeUtilization,
		Theme:      ThermalTheme,
		CellWidth:  24,
		CellHeight: 2,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, chartMode, theme string
	flag.StringVar(&c.DBPath, "db", "", "Path to the archive database file")
	flag.Int64Var(&c.SessionID, "s", 1, "Session ID")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&chartMode, "m", string(ModeUtilization), "Chart mode. [utilization, bps]")
	flag.StringVar(&theme, "theme", string(ThermalTheme), "Color theme. [classic, grayscale, jungle, thermal, marine]")
	flag.StringVar(&c.FontPath, "font", "", "Path to a TTF font used for annotations (optional)")
	flag.IntVar(&c.CellWidth, "cell-width", c.CellWidth, "Width of one channel column in pixels")
	flag.IntVar(&c.CellHeight, "cell-height", c.CellHeight, "Height of one cycle row in pixels")
	flag.Parse()

	imageFormat = strings.ToLower(imageFormat)
	chartMode = strings.ToLower(chartMode)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if _, ok := validChartModes[ChartMode(chartMode)]; !ok {
		err = fmt.Errorf("invalid chart mode: %s", chartMode)
	} else if c.CellWidth <= 0 || c.CellHeight <= 0 {
		err = errors.New("cell dimensions must be positive")
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Mode = ChartMode(chartMode)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
