// Package storage persists metering sessions and their samples in a
// sqlite archive for offline charting.
package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"
)

// Store provides an interface for managing the metering archive. All
// operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession initializes a new metering session and returns its
	// unique identifier. adapter identifies the tuner hardware (e.g.
	// "adapter0/frontend0"); config is the effective channel
	// configuration and can be a string, []byte, or any JSON-serializable
	// value.
	CreateSession(ctx context.Context, adapter string, config any) (sessionID int64, err error)

	// Session retrieves a metering session by its ID.
	Session(ctx context.Context, id int64) (session *SessionRecord, err error)

	// Sessions returns all metering sessions stored in the database,
	// ordered by start time.
	Sessions(ctx context.Context) (sessions []*SessionRecord, err error)

	// StoreSamples saves one poll cycle's channel samples in a single
	// atomic transaction.
	StoreSamples(ctx context.Context, sessionID int64, samples []SampleRecord) error

	// Close releases all database connections and resources. After Close
	// is called, the store instance cannot be reused. It is safe to call
	// Close multiple times.
	Close() error
}
