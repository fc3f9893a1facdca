package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"portal-workers/internal/common/logger"
	"portal-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const defaultMergeRetries = 5

// RedisStore keeps each document as a JSON string and merges under
// WATCH/MULTI. Changes are published on a per-document channel.
type RedisStore struct {
	client     *redis.Client
	now        func() time.Time
	maxRetries int
	logger     logger.Logger
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:     client,
		now:        time.Now,
		maxRetries: defaultMergeRetries,
		logger:     logger.NewNoOpLogger(),
	}
}

func (s *RedisStore) WithLogger(log logger.Logger) *RedisStore {
	s.logger = log
	return s
}

// WithClock replaces the clock used to stamp submission.lastUpdated.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func documentKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

func changeChannel(collection, id string) string {
	return fmt.Sprintf("docs:%s:%s", collection, id)
}

type changeMessage struct {
	ID       string                 `json:"id"`
	Document map[string]interface{} `json:"document"`
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (models.ApplicantDraft, error) {
	raw, err := s.client.Get(ctx, documentKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
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

func (s *RedisStore) SetMerge(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	key := documentKey(collection, id)

	var merged map[string]interface{}
	txf := func(tx *redis.Tx) error {
		current := map[string]interface{}{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("decode stored document: %w", err)
			}
		}

		merged = mergeAndStamp(current, partial, s.now())
		payload, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("docstore: merge %s/%s: %w", collection, id, err)
		}
		// The write has committed; a lost notification is only logged.
		if err := s.publish(ctx, collection, id, merged); err != nil {
			s.logger.Warn("failed to publish document change", map[string]interface{}{
				"collection": collection,
				"id":         id,
				"error":      err.Error(),
			})
		}
		return nil
	}
	return fmt.Errorf("docstore: merge %s/%s: %w", collection, id, redis.TxFailedErr)
}

func (s *RedisStore) publish(ctx context.Context, collection, id string, doc map[string]interface{}) error {
	msg, err := json.Marshal(changeMessage{ID: id, Document: doc})
	if err != nil {
		return fmt.Errorf("docstore: encode change: %w", err)
	}
	if err := s.client.Publish(ctx, changeChannel(collection, id), msg).Err(); err != nil {
		return fmt.Errorf("docstore: publish change %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, collection, id string, fn func(Change)) (func(), error) {
	ps := s.client.Subscribe(ctx, changeChannel(collection, id))
	// Wait for the subscription to be confirmed so no change published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("docstore: subscribe %s/%s: %w", collection, id, err)
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			var change changeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				continue
			}
			fn(Change{Collection: collection, ID: change.ID, Document: models.ApplicantDraft(change.Document)})
		}
	}()

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = ps.Close()
			close(stop)
		})
	}
	cancelOnDone(ctx, stop, unsubscribe)
	return unsubscribe, nil
}
