package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ReaderOption configures a SqliteCycleReader with filtering criteria.
type ReaderOption func(*SqliteCycleReader)

// WithStartTime sets the start of the cycle time range filter. Cycles
// before this time are excluded.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteCycleReader) {
		r.startTime = &t
	}
}

// WithEndTime sets the end of the cycle time range filter. Cycles after
// this time are excluded.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteCycleReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters. This is a
// convenience function equivalent to applying both WithStartTime and
// WithEndTime.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteCycleReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// SqliteCycleReader iterates over a session's poll cycles, one
// CycleRecord per Next call. Rows are streamed from the database and
// grouped by cycle timestamp with single-sample lookahead.
type SqliteCycleReader struct {
	db *sql.DB

	sessionID int64
	session   *SessionRecord

	startTime *time.Time
	endTime   *time.Time

	currentCycle *CycleRecord
	nextSample   *SampleRecord
	rows         *sql.Rows
	err          error
}

func newSqliteCycleReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteCycleReader, error) {
	r := &SqliteCycleReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return r, nil
}

func (r *SqliteCycleReader) init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection required")
	}
	if r.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: r.loadSession},
		{msg: "initializing filters", fn: r.initFilters},
		{msg: "initializing query", fn: r.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (r *SqliteCycleReader) loadSession(ctx context.Context) (err error) {
	stmt, err := r.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var sess SessionRecord
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, r.sessionID).Scan(&sess.ID, &sess.StartTime, &sess.Adapter, &config); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	if config.Valid {
		sess.Config = &config.String
	}

	r.session = &sess
	return
}

func (r *SqliteCycleReader) initFilters(ctx context.Context) (err error) {
	if r.startTime != nil && r.endTime != nil {
		if r.startTime.After(*r.endTime) {
			return fmt.Errorf("start time %s is after end time %s", r.startTime, r.endTime)
		}
		return nil
	}

	stmt, err := r.db.PrepareContext(ctx, selectCycleRangeSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var first, last sqliteDatetime
	if err = stmt.QueryRowContext(ctx, r.sessionID).Scan(&first, &last); err != nil {
		return fmt.Errorf("scanning cycle range: %w", err)
	}

	if r.startTime == nil {
		r.startTime = &first.Datetime
	}
	if r.endTime == nil {
		r.endTime = &last.Datetime
	}
	return nil
}

func (r *SqliteCycleReader) initQuery(ctx context.Context) (err error) {
	stmt, err := r.db.PrepareContext(ctx, selectSamplesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if r.rows, err = stmt.QueryContext(ctx, r.sessionID, r.startTime, r.endTime); err != nil {
		return err
	}
	return nil
}

func (r *SqliteCycleReader) scanSample() (SampleRecord, error) {
	var data sampleData
	err := r.rows.Scan(
		&data.Cycle,
		&data.Timestamp,
		&data.Metric,
		&data.Frequency,
		&data.Modulation,
		&data.Locked,
		&data.SNR,
		&data.Bitrate,
		&data.Utilization,
	)
	if err != nil {
		return SampleRecord{}, fmt.Errorf("scanning sample: %w", err)
	}
	return fromSampleData(&data), nil
}

// Session returns metadata about the metering session this reader is
// accessing.
func (r *SqliteCycleReader) Session() *SessionRecord {
	return r.session
}

// Next advances the iterator and returns true if there is another cycle
// to read, false when the iteration is complete or an error occurred.
func (r *SqliteCycleReader) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}

	var cycle *CycleRecord
	if r.nextSample != nil {
		cycle = &CycleRecord{
			Timestamp: r.nextSample.Cycle,
			Samples:   []SampleRecord{*r.nextSample},
		}
		r.nextSample = nil
	}

	for {
		select {
		case <-ctx.Done():
			r.err = ctx.Err()
			return false
		default:
		}

		if !r.rows.Next() {
			if cycle != nil {
				r.currentCycle = cycle
				return true
			}
			return false
		}

		sample, err := r.scanSample()
		if err != nil {
			r.err = err
			return false
		}

		if cycle == nil {
			cycle = &CycleRecord{
				Timestamp: sample.Cycle,
				Samples:   []SampleRecord{sample},
			}
			continue
		}

		// Cycle timestamp changed: the current cycle is complete and the
		// sample opens the next one.
		if !sample.Cycle.Equal(cycle.Timestamp) {
			r.nextSample = &sample
			r.currentCycle = cycle
			return true
		}

		cycle.Samples = append(cycle.Samples, sample)
	}
}

// Current returns the current cycle in the iteration. If called after
// Next returns false, the behavior is undefined.
func (r *SqliteCycleReader) Current() *CycleRecord {
	return r.currentCycle
}

// Error returns any error that occurred during iteration.
func (r *SqliteCycleReader) Error() error {
	if r.err != nil {
		return r.err
	}
	if r.rows != nil {
		return r.rows.Err()
	}
	return nil
}

// Close releases the resources associated with the reader. After Close
// is called, the reader should not be used.
func (r *SqliteCycleReader) Close() error {
	if r.rows != nil {
		err := r.rows.Close()
		r.currentCycle = nil
		r.nextSample = nil
		r.rows = nil
		return err
	}
	return nil
}

// sqliteDatetime scans DATETIME values that sqlite aggregate functions
// return as text instead of time.Time.
type sqliteDatetime struct {
	Datetime time.Time
	Valid    bool
}

func (d *sqliteDatetime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		d.Datetime, d.Valid = v, true
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	}
	return fmt.Errorf("unsupported datetime type %T", value)
}

func (d *sqliteDatetime) parse(s string) error {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	} {
		t, err := time.Parse(layout, s)
		if err == nil {
			d.Datetime, d.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("unsupported datetime value %q", s)
}
