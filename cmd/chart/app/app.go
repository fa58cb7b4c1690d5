// Package app renders an archived metering session into a
// channels-by-time utilization chart.
package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/cabletools/dtm/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderChart(ctx, store, config, logger)
}

func renderChart(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) error {
	reader, err := store.ReadCycles(ctx, config.SessionID)
	if err != nil {
		return err
	}
	defer reader.Close()

	session := reader.Session()
	logger.Info("reading session",
		slog.Int64("id", session.ID),
		slog.String("adapter", session.Adapter),
		slog.String("startTime", session.StartTime.Local().Format(time.DateTime)))

	grid := NewGrid(config.Mode)
	for reader.Next(ctx) {
		grid.Update(reader.Current())
	}
	if err = reader.Error(); err != nil {
		return err
	}
	if grid.Height() == 0 {
		return fmt.Errorf("session %d has no archived samples", config.SessionID)
	}
	grid.Finalize()

	start, end := grid.TimeRange()
	logger.Info("finished reading cycles",
		slog.Group("stats",
			slog.Int("channels", grid.Width()),
			slog.Int("cycles", grid.Height()),
			slog.String("minTimestamp", start.Local().Format(time.DateTime)),
			slog.String("maxTimestamp", end.Local().Format(time.DateTime)),
		))

	renderer, err := NewChartRenderer(RenderConfig{
		ColorTheme: config.Theme,
		FontPath:   config.FontPath,
		CellWidth:  config.CellWidth,
		CellHeight: config.CellHeight,
	})
	if err != nil {
		return fmt.Errorf("creating chart renderer: %w", err)
	}

	logger.Info("rendering chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.String("mode", string(config.Mode)),
			slog.Int("width", grid.Width()*config.CellWidth),
			slog.Int("height", grid.Height()*config.CellHeight),
		))

	img, err := renderer.Render(grid, config.Mode)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
