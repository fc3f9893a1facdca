package docstore

import (
	"context"
	"sync"
	"time"

	"portal-workers/internal/form/draft"
	"portal-workers/internal/models"
)

// MemoryStore keeps documents in process. Used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]models.ApplicantDraft
	subs    map[string]map[int]func(Change) // keyed by subscriptionKey
	nextSub int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: map[string]map[string]models.ApplicantDraft{},
		subs: map[string]map[int]func(Change){},
		now:  time.Now,
	}
}

// WithClock replaces the clock used to stamp submission.lastUpdated.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (models.ApplicantDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return draft.Clone(doc), nil
}

func (s *MemoryStore) SetMerge(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	docs, ok := s.docs[collection]
	if !ok {
		docs = map[string]models.ApplicantDraft{}
		s.docs[collection] = docs
	}
	merged := models.ApplicantDraft(mergeAndStamp(docs[id], partial, s.now()))
	docs[id] = merged

	key := subscriptionKey(collection, id)
	listeners := make([]func(Change), 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(Change{Collection: collection, ID: id, Document: draft.Clone(merged)})
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection, docID string, fn func(Change)) (func(), error) {
	key := subscriptionKey(collection, docID)
	s.mu.Lock()
	if s.subs[key] == nil {
		s.subs[key] = map[int]func(Change){}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[key][id] = fn
	s.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[key], id)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
			s.mu.Unlock()
			close(stop)
		})
	}
	cancelOnDone(ctx, stop, unsubscribe)
	return unsubscribe, nil
}

func subscriptionKey(collection, id string) string {
	return collection + "/" + id
}
