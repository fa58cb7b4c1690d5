package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cabletools/dtm/internal/docsis"
)

const testConfigYAML = `
settings:
  logLevel: debug
  prefix: docsis.headend1
  interval: 120s
tuner:
  adapter: 1
  frontend: 0
  lockTimeout: 5s
  dwell: 3s
channels:
  - frequency: 546
    modulation: "256"
  - frequency: 554
    modulation: "64"
carbon:
  address: graphite.local:2003
archive:
  enabled: true
  dataDirectory: /var/lib/dtm
capacities:
  qam256: 50000000
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dtm.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %s", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, testConfigYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error: %s", err)
	}

	if config.Settings.Prefix != "docsis.headend1" {
		t.Errorf("Prefix = %q", config.Settings.Prefix)
	}
	if config.Settings.Interval.Duration() != 2*time.Minute {
		t.Errorf("Interval = %s", config.Settings.Interval)
	}
	if config.Tuner.Adapter != 1 || config.Tuner.LockTimeout.Duration() != 5*time.Second {
		t.Errorf("tuner config mismatch: %+v", config.Tuner)
	}
	if len(config.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(config.Channels))
	}
	if config.Carbon.Address != "graphite.local:2003" {
		t.Errorf("carbon address = %q", config.Carbon.Address)
	}
	if !config.Archive.Enabled || config.Archive.DataDirectory != "/var/lib/dtm" {
		t.Errorf("archive config mismatch: %+v", config.Archive)
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "channels:\n  - frequency: 546\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %s", err)
	}

	if config.Settings.Prefix != DefaultPrefix {
		t.Errorf("Prefix = %q, want %q", config.Settings.Prefix, DefaultPrefix)
	}
	if config.Settings.Interval != DefaultInterval {
		t.Errorf("Interval = %s, want %s", config.Settings.Interval, DefaultInterval)
	}
	if config.Tuner.LockTimeout != DefaultLockTimeout || config.Tuner.Dwell != DefaultDwell {
		t.Errorf("tuner timing defaults not applied: %+v", config.Tuner)
	}
	if config.Carbon.Address != DefaultCarbonAddress {
		t.Errorf("carbon address = %q, want %q", config.Carbon.Address, DefaultCarbonAddress)
	}
	if config.Channels[0].Modulation != "256" {
		t.Errorf("modulation default = %q, want 256", config.Channels[0].Modulation)
	}
	if config.Channels[0].SymbolRate != docsis.DefaultSymbolRate {
		t.Errorf("symbol rate default = %d", config.Channels[0].SymbolRate)
	}
}

func TestParseFrequencies(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []ChannelConfig
		wantErr bool
	}{
		{
			name:  "single frequency",
			input: "546",
			want:  []ChannelConfig{{Frequency: 546}},
		},
		{
			name:  "list with modulations",
			input: "546:256, 554:64,562",
			want: []ChannelConfig{
				{Frequency: 546, Modulation: "256"},
				{Frequency: 554, Modulation: "64"},
				{Frequency: 562},
			},
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "546,fast",
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseFrequencies(test.input)
			if test.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrequencies() error: %s", err)
			}
			if len(got) != len(test.want) {
				t.Fatalf("got %d channels, want %d", len(got), len(test.want))
			}
			for i := range got {
				if got[i] != test.want[i] {
					t.Errorf("channel %d = %+v, want %+v", i, got[i], test.want[i])
				}
			}
		})
	}
}

func TestFromFlags(t *testing.T) {
	config, err := FromFlags(Flags{
		Carbon:      DefaultCarbonAddress,
		Frequencies: "546",
		Prefix:      DefaultPrefix,
		Interval:    60 * time.Second,
	})
	if err != nil {
		t.Fatalf("FromFlags() error: %s", err)
	}

	channels := config.DocsisChannels()
	if len(channels) != 1 {
		t.Fatalf("got %d channels, want 1", len(channels))
	}
	if channels[0].MetricName != "docsis.qam256.546" {
		t.Errorf("metric name = %q, want docsis.qam256.546", channels[0].MetricName)
	}
	if channels[0].FrequencyHz != 546_000_000 {
		t.Errorf("frequency = %d, want 546000000", channels[0].FrequencyHz)
	}
	if config.Archive.Enabled {
		t.Error("archive enabled without a directory")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "no channels",
			mutate: func(c *Config) { c.Channels = nil },
			want:   "no channels",
		},
		{
			name:   "bad modulation",
			mutate: func(c *Config) { c.Channels[0].Modulation = "1024" },
			want:   "invalid modulation",
		},
		{
			name:   "negative adapter",
			mutate: func(c *Config) { c.Tuner.Adapter = -1 },
			want:   "adapter",
		},
		{
			name: "cycle budget exceeds interval",
			mutate: func(c *Config) {
				c.Settings.Interval = NewTimeDuration(4 * time.Second)
			},
			want: "exceeds",
		},
		{
			name:   "bad capacity override",
			mutate: func(c *Config) { c.Capacities = map[string]float64{"qam256": -1} },
			want:   "capacity",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := Config{
				Channels: []ChannelConfig{{Frequency: 546}},
			}
			test.mutate(&config)

			err := config.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func TestCapacityTableOverride(t *testing.T) {
	config := Config{
		Channels:   []ChannelConfig{{Frequency: 546}},
		Capacities: map[string]float64{"qam256": 50_000_000},
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate() error: %s", err)
	}

	table := config.CapacityTable()
	if table[docsis.QAM256] != 50_000_000 {
		t.Errorf("qam256 capacity = %f, want override", table[docsis.QAM256])
	}
	if table[docsis.QAM64] != 34_000_000 {
		t.Errorf("qam64 capacity = %f, want default", table[docsis.QAM64])
	}
}
