// Package app wires the configuration into a running traffic meter.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cabletools/dtm/internal/carbon"
	"github.com/cabletools/dtm/internal/docsis"
	"github.com/cabletools/dtm/internal/meter"
	"github.com/cabletools/dtm/internal/storage"
	"github.com/cabletools/dtm/internal/tuner/dvb"
)

const storageDir = "data"

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	estimator, err := docsis.NewEstimator(config.CapacityTable())
	if err != nil {
		return fmt.Errorf("failed to create estimator: %w", err)
	}

	client, err := carbon.Dial(config.Carbon.Address)
	if err != nil {
		return fmt.Errorf("failed to connect to carbon: %w", err)
	}
	defer client.Close()

	adapter := dvb.New(config.Tuner.Adapter, config.Tuner.Frontend,
		dvb.WithLockTimeout(config.Tuner.LockTimeout.Duration()),
		dvb.WithDwell(config.Tuner.Dwell.Duration()),
		dvb.WithLogger(logger))

	options := []func(*meter.Meter){
		meter.WithInterval(config.Settings.Interval.Duration()),
		meter.WithLogger(logger),
	}

	if config.Archive.Enabled {
		store, err := createArchive(&config.Archive)
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		defer store.Close()

		adapterName := fmt.Sprintf("adapter%d/frontend%d", config.Tuner.Adapter, config.Tuner.Frontend)
		sessionID, err := store.CreateSession(ctx, adapterName, config)
		if err != nil {
			return fmt.Errorf("failed to create archive session: %w", err)
		}

		options = append(options, meter.WithArchive(store, sessionID))
	}

	m := meter.New(adapter, estimator, client, config.DocsisChannels(), options...)
	return m.Run(ctx)
}

func createArchive(config *ArchiveConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}
	dbPath := dir
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archive directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking archive directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid archive directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("dtm_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
