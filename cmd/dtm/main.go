package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/cabletools/dtm/cmd/dtm/app"
)

var (
	configPath = kingpin.Flag("config", "Path to the configuration file; overrides all other flags.").
			Short('c').OverrideDefaultFromEnvar("DTM_CONFIG").String()
	adapter = kingpin.Flag("adapter", "DVB adapter number (/dev/dvb/adapterN).").
		Default("0").OverrideDefaultFromEnvar("DTM_ADAPTER").Int()
	frontend = kingpin.Flag("tuner", "Frontend and demux device number on the adapter.").
			Default("0").OverrideDefaultFromEnvar("DTM_TUNER").Int()
	carbonAddr = kingpin.Flag("carbon", "Carbon host:port the metrics are sent to.").
			Default(app.DefaultCarbonAddress).OverrideDefaultFromEnvar("DTM_CARBON").String()
	frequencies = kingpin.Flag("frequencies", "Comma separated downstream frequencies in MHz, each optionally suffixed with :64 or :256.").
			Default("546").OverrideDefaultFromEnvar("DTM_FREQUENCIES").String()
	prefix = kingpin.Flag("prefix", "Metric name prefix.").
		Default(app.DefaultPrefix).OverrideDefaultFromEnvar("DTM_PREFIX").String()
	interval = kingpin.Flag("interval", "Poll interval.").
			Default("60s").OverrideDefaultFromEnvar("DTM_INTERVAL").Duration()
	archiveDir = kingpin.Flag("archive", "Directory for the sqlite sample archive; empty disables archiving.").
			OverrideDefaultFromEnvar("DTM_ARCHIVE").String()
	debug = kingpin.Flag("debug", "Enable debug logging.").
		OverrideDefaultFromEnvar("DTM_DEBUG").Bool()
)

func main() {
	kingpin.Parse()

	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var config *app.Config
	var err error
	if *configPath != "" {
		config, err = app.LoadConfig(*configPath)
	} else {
		config, err = app.FromFlags(app.Flags{
			Adapter:     *adapter,
			Frontend:    *frontend,
			Carbon:      *carbonAddr,
			Frequencies: *frequencies,
			Prefix:      *prefix,
			Interval:    *interval,
			ArchiveDir:  *archiveDir,
		})
	}
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration: %s", err.Error()))
		os.Exit(1)
	}

	level, err := config.Settings.Level()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	if *debug {
		level = slog.LevelDebug
	}
	logLevel.Set(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
