// Package docstore persists applicant records as nested JSON documents keyed
// by (collection, id). Every write is a deep merge, and every merge stamps
// submission.lastUpdated with the time of the write.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"portal-workers/internal/common/logger"
	"portal-workers/internal/form/draft"
	"portal-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when no document exists for the key.
var ErrNotFound = errors.New("docstore: document not found")

// Backends accepted by Open.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Change is delivered to subscribers after the watched document has been
// written.
type Change struct {
	Collection string
	ID         string
	Document   models.ApplicantDraft
}

// Store is the durable record store the form engine saves drafts into.
type Store interface {
	Get(ctx context.Context, collection, id string) (models.ApplicantDraft, error)
	SetMerge(ctx context.Context, collection, id string, partial map[string]interface{}) error
	// Subscribe calls fn for every change to the document (collection, id)
	// until the returned function is called or ctx is done.
	Subscribe(ctx context.Context, collection, id string, fn func(Change)) (func(), error)
}

// Backing carries the clients a backend may need.
type Backing struct {
	Redis       *redis.Client
	DB          *sql.DB
	PostgresDSN string
	Logger      logger.Logger
}

// Open returns the Store for the configured backend.
func Open(backend string, b Backing) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("docstore: redis backend requires a redis client")
		}
		s := NewRedisStore(b.Redis)
		if b.Logger != nil {
			s.WithLogger(b.Logger)
		}
		return s, nil
	case BackendPostgres:
		if b.DB == nil {
			return nil, fmt.Errorf("docstore: postgres backend requires a database")
		}
		return NewPostgresStore(b.DB, b.PostgresDSN), nil
	default:
		return nil, fmt.Errorf("docstore: unknown backend %q", backend)
	}
}

// mergeAndStamp applies partial to current and records the write time.
func mergeAndStamp(current, partial map[string]interface{}, at time.Time) map[string]interface{} {
	merged := draft.Merge(current, partial)
	return draft.Merge(merged, map[string]interface{}{
		models.KeySubmission: map[string]interface{}{
			models.KeyLastUpdated: at.UTC().Format(time.RFC3339Nano),
		},
	})
}

// cancelOnDone runs unsubscribe when ctx is done, unless stop is closed first.
func cancelOnDone(ctx context.Context, stop <-chan struct{}, unsubscribe func()) {
	if ctx.Done() == nil {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()
}
