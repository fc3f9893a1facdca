package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"portal-workers/internal/models"

	"github.com/lib/pq"
)

// NotifyChannel is the LISTEN/NOTIFY channel writes are announced on.
const NotifyChannel = "documents_changed"

const (
	selectDocumentQuery = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	lockDocumentQuery   = selectDocumentQuery + ` FOR UPDATE`

	// submission.lastUpdated is assigned by the database clock.
	upsertDocumentQuery = `INSERT INTO documents (collection, id, data, updated_at)
VALUES ($1, $2, jsonb_set($3::jsonb, '{submission,lastUpdated}', to_jsonb(now())), now())
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	notifyQuery = `SELECT pg_notify($1, $2)`
)

// PostgresStore keeps documents in a jsonb column:
//
//	CREATE TABLE documents (
//	    collection TEXT NOT NULL,
//	    id         TEXT NOT NULL,
//	    data       JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (collection, id)
//	);
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore needs dsn only for Subscribe, which holds its own
// connection for LISTEN.
func NewPostgresStore(db *sql.DB, dsn string) *PostgresStore {
	return &PostgresStore{db: db, dsn: dsn}
}

type notification struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (models.ApplicantDraft, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, selectDocumentQuery, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: decode %s/%s: %w", collection, id, err)
	}
	return models.ApplicantDraft(doc), nil
}

func (s *PostgresStore) SetMerge(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current := map[string]interface{}{}
	var raw []byte
	err = tx.QueryRowContext(ctx, lockDocumentQuery, collection, id).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("docstore: lock %s/%s: %w", collection, id, err)
	default:
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("docstore: decode %s/%s: %w", collection, id, err)
		}
	}

	// The go-side stamp guarantees the submission object exists for jsonb_set;
	// the database then overwrites it with its own clock.
	merged := mergeAndStamp(current, partial, time.Now())
	payload, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	if _, err := tx.ExecContext(ctx, upsertDocumentQuery, collection, id, string(payload)); err != nil {
		return fmt.Errorf("docstore: upsert %s/%s: %w", collection, id, err)
	}

	note, _ := json.Marshal(notification{Collection: collection, ID: id})
	if _, err := tx.ExecContext(ctx, notifyQuery, NotifyChannel, string(note)); err != nil {
		return fmt.Errorf("docstore: notify %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("docstore: commit %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, collection, id string, fn func(Change)) (func(), error) {
	if s.dsn == "" {
		return nil, fmt.Errorf("docstore: postgres change feed requires a DSN")
	}

	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, nil)
	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("docstore: listen %s: %w", NotifyChannel, err)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case n := <-listener.Notify:
				// nil after a reconnect; notifications sent meanwhile are lost.
				if n == nil {
					continue
				}
				s.dispatch(ctx, collection, id, n.Extra, fn)
			case <-time.After(90 * time.Second):
				go func() { _ = listener.Ping() }()
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			_ = listener.Close()
		})
	}
	cancelOnDone(ctx, stop, unsubscribe)
	return unsubscribe, nil
}

// dispatch loads the changed document and hands it to fn when the
// notification is about (collection, id). Other documents are skipped
// before any query runs.
func (s *PostgresStore) dispatch(ctx context.Context, collection, id, payload string, fn func(Change)) {
	var note notification
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		return
	}
	if note.Collection != collection || note.ID != id {
		return
	}
	doc, err := s.Get(ctx, note.Collection, note.ID)
	if err != nil {
		return
	}
	fn(Change{Collection: note.Collection, ID: note.ID, Document: doc})
}
