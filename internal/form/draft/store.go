// Package draft holds the working copy of an applicant record while the form
// is open, together with the dirty flag the autosave loop reconciles against.
package draft

import (
	"sync"
	"time"

	"portal-workers/internal/models"
)

// State is a snapshot of the store. Applicant must be treated as read-only:
// the store replaces it on every change and never mutates it in place.
type State struct {
	Applicant       models.ApplicantDraft
	Dirty           bool
	LastLocalSaveAt *time.Time
	// Revision increases on every change to Applicant. Autosave compares it
	// before and after a write to detect edits made while the write was in flight.
	Revision uint64
}

// Store is safe for concurrent use by the form layer and the autosave loop.
type Store struct {
	mu    sync.Mutex
	state State

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{subs: map[int]func(State){}}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) snapshot() State {
	st := s.state
	if st.LastLocalSaveAt != nil {
		at := *st.LastLocalSaveAt
		st.LastLocalSaveAt = &at
	}
	return st
}

// SetApplicant replaces the draft wholesale and marks it clean.
func (s *Store) SetApplicant(d models.ApplicantDraft) {
	s.update(func(st *State) {
		st.Applicant = Clone(d)
		st.Dirty = false
		st.Revision++
	})
}

// PatchApplicant deep-merges partial into the draft, starting from a blank
// template when there is none yet, and marks it dirty.
func (s *Store) PatchApplicant(partial map[string]interface{}) {
	s.update(func(st *State) {
		base := st.Applicant
		if base == nil {
			base = models.BlankApplicantDraft()
		}
		st.Applicant = models.ApplicantDraft(Merge(base, partial))
		st.Dirty = true
		st.Revision++
	})
}

// ApplyRemote merges a change made elsewhere into the draft without touching
// the dirty flag. It does nothing when there is no draft yet.
func (s *Store) ApplyRemote(partial map[string]interface{}) {
	s.update(func(st *State) {
		if st.Applicant == nil {
			return
		}
		st.Applicant = models.ApplicantDraft(Merge(st.Applicant, partial))
		st.Revision++
	})
}

// MarkSubmitted merges {submission: {submitted: true}} into the draft.
func (s *Store) MarkSubmitted() {
	s.PatchApplicant(map[string]interface{}{
		models.KeySubmission: map[string]interface{}{models.KeySubmitted: true},
	})
}

// Reset clears all state.
func (s *Store) Reset() {
	s.update(func(st *State) {
		rev := st.Revision
		*st = State{Revision: rev + 1}
	})
}

// MarkSaved records a successful durable write of the draft at revision.
// The dirty flag is cleared only when no change happened since that revision;
// it reports whether it was cleared.
func (s *Store) MarkSaved(revision uint64, at time.Time) bool {
	var cleared bool
	s.update(func(st *State) {
		st.LastLocalSaveAt = &at
		if st.Revision == revision {
			st.Dirty = false
			cleared = true
		}
	})
	return cleared
}

// Subscribe registers fn to receive a snapshot after every change. Callbacks
// run on the goroutine that made the change, outside the store lock.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.snapshot()
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}
