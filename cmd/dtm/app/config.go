package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cabletools/dtm/internal/docsis"
)

const (
	DefaultCarbonAddress = "localhost:2003"
	DefaultPrefix        = "docsis"
	DefaultInterval      = TimeDuration(60 * time.Second)
	DefaultLockTimeout   = TimeDuration(3 * time.Second)
	DefaultDwell         = TimeDuration(2 * time.Second)
)

type TimeDuration time.Duration

func NewTimeDuration(d time.Duration) TimeDuration {
	return TimeDuration(d)
}

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *TimeDuration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d TimeDuration) Validate() error {
	if time.Duration(d) < 0 {
		return fmt.Errorf("app.TimeDuration: must not be negative: %s", time.Duration(d))
	}
	return nil
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// Config represents the main application configuration
type Config struct {
	Settings   Settings           `yaml:"settings"`
	Tuner      TunerConfig        `yaml:"tuner"`
	Channels   []ChannelConfig    `yaml:"channels"`
	Carbon     CarbonConfig       `yaml:"carbon"`
	Archive    ArchiveConfig      `yaml:"archive"`
	Capacities map[string]float64 `yaml:"capacities"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string       `yaml:"logLevel"`
	Prefix   string       `yaml:"prefix"`
	Interval TimeDuration `yaml:"interval"`
}

// Level parses the configured log level.
func (s *Settings) Level() (slog.Level, error) {
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s.LogLevel, err)
	}
	return level, nil
}

// TunerConfig selects the DVB adapter and its tuning behavior
type TunerConfig struct {
	Adapter     int          `yaml:"adapter"`
	Frontend    int          `yaml:"frontend"`
	LockTimeout TimeDuration `yaml:"lockTimeout"`
	Dwell       TimeDuration `yaml:"dwell"`
}

// ChannelConfig represents a single downstream channel. Frequency is in
// MHz; modulation is "64" or "256" (defaults to "256"); symbolRate
// defaults to the EuroDOCSIS downstream rate. Metric overrides the
// generated <prefix>.<qam>.<freqMHz> series name for this channel.
type ChannelConfig struct {
	Frequency  int64  `yaml:"frequency"`
	Modulation string `yaml:"modulation"`
	SymbolRate int64  `yaml:"symbolRate"`
	Metric     string `yaml:"metric"`
}

// CarbonConfig represents the metrics backend settings
type CarbonConfig struct {
	Address string `yaml:"address"`
}

// ArchiveConfig represents sample archive settings
type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
}

// LoadConfig reads and validates a yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(p, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Flags carries the command line configuration surface used when no
// configuration file is given.
type Flags struct {
	Adapter     int
	Frontend    int
	Carbon      string
	Frequencies string
	Prefix      string
	Interval    time.Duration
	ArchiveDir  string
}

// FromFlags builds a Config from command line flags.
func FromFlags(f Flags) (*Config, error) {
	channels, err := ParseFrequencies(f.Frequencies)
	if err != nil {
		return nil, err
	}

	config := Config{
		Settings: Settings{
			Prefix:   f.Prefix,
			Interval: TimeDuration(f.Interval),
		},
		Tuner: TunerConfig{
			Adapter:  f.Adapter,
			Frontend: f.Frontend,
		},
		Channels: channels,
		Carbon:   CarbonConfig{Address: f.Carbon},
		Archive: ArchiveConfig{
			Enabled:       f.ArchiveDir != "",
			DataDirectory: f.ArchiveDir,
		},
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ParseFrequencies parses a comma separated frequency list, e.g.
// "546,554:64,562:256". Each entry is a frequency in MHz, optionally
// suffixed with the QAM order.
func ParseFrequencies(s string) ([]ChannelConfig, error) {
	var channels []ChannelConfig
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		var channel ChannelConfig
		freq, modulation, found := strings.Cut(entry, ":")
		if found {
			channel.Modulation = modulation
		}

		v, err := strconv.ParseInt(freq, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid frequency %q: %w", freq, err)
		}
		channel.Frequency = v

		channels = append(channels, channel)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no frequencies given")
	}
	return channels, nil
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return err
	}
	if c.Settings.Prefix == "" {
		c.Settings.Prefix = DefaultPrefix
	}
	if c.Settings.Interval == 0 {
		c.Settings.Interval = DefaultInterval
	}
	if err := c.Settings.Interval.Validate(); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}

	if c.Tuner.Adapter < 0 {
		return fmt.Errorf("adapter number must not be negative: %d", c.Tuner.Adapter)
	}
	if c.Tuner.Frontend < 0 {
		return fmt.Errorf("frontend number must not be negative: %d", c.Tuner.Frontend)
	}
	if c.Tuner.LockTimeout == 0 {
		c.Tuner.LockTimeout = DefaultLockTimeout
	}
	if c.Tuner.Dwell == 0 {
		c.Tuner.Dwell = DefaultDwell
	}
	for _, d := range []TimeDuration{c.Tuner.LockTimeout, c.Tuner.Dwell} {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid tuner timing: %w", err)
		}
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("no channels configured")
	}
	for i := range c.Channels {
		channel := &c.Channels[i]
		if channel.Frequency <= 0 {
			return fmt.Errorf("channel %d: frequency must be positive: %d", i, channel.Frequency)
		}
		if channel.Modulation == "" {
			channel.Modulation = "256"
		}
		if _, err := docsis.ParseModulation(channel.Modulation); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
		if channel.SymbolRate == 0 {
			channel.SymbolRate = docsis.DefaultSymbolRate
		}
		if channel.SymbolRate < 0 {
			return fmt.Errorf("channel %d: symbol rate must be positive: %d", i, channel.SymbolRate)
		}
	}

	// All channels must fit inside one poll interval, with their worst
	// case lock wait and observation window.
	budget := time.Duration(len(c.Channels)) * (c.Tuner.LockTimeout.Duration() + c.Tuner.Dwell.Duration())
	if budget > c.Settings.Interval.Duration() {
		return fmt.Errorf("%d channels need up to %s per cycle, which exceeds the %s interval",
			len(c.Channels), budget, c.Settings.Interval)
	}

	if c.Carbon.Address == "" {
		c.Carbon.Address = DefaultCarbonAddress
	}

	if c.Capacities != nil {
		if err := c.CapacityTable().Validate(); err != nil {
			return err
		}
	}

	return nil
}

// CapacityTable returns the post-FEC capacity table: the built-in
// defaults overlaid with any configured overrides.
func (c *Config) CapacityTable() docsis.CapacityTable {
	if c.Capacities == nil {
		return nil
	}

	table := docsis.DefaultCapacities()
	for m, capacity := range c.Capacities {
		table[docsis.Modulation(m)] = capacity
	}
	return table
}

// DocsisChannels converts the configured channels into their metering
// representation.
func (c *Config) DocsisChannels() []docsis.Channel {
	channels := make([]docsis.Channel, 0, len(c.Channels))
	for _, channel := range c.Channels {
		m, _ := docsis.ParseModulation(channel.Modulation)
		frequencyHz := channel.Frequency * 1_000_000
		name := channel.Metric
		if name == "" {
			name = docsis.MetricName(c.Settings.Prefix, m, frequencyHz)
		}
		channels = append(channels, docsis.Channel{
			FrequencyHz: frequencyHz,
			Modulation:  m,
			SymbolRate:  channel.SymbolRate,
			MetricName:  name,
		})
	}
	return channels
}
