// Package autosave periodically writes the dirty draft to the document store.
package autosave

import (
	"context"
	"fmt"
	"time"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/common/metrics"
	"portal-workers/internal/common/observability"
	"portal-workers/internal/form/draft"
	"portal-workers/internal/storage/docstore"
)

const DefaultInterval = 15 * time.Second

// Result is the outcome of one tick.
type Result string

const (
	ResultSkipped Result = "skipped"
	ResultSaved   Result = "saved"
	// The write succeeded but the draft changed while it was in flight, so
	// it stays dirty for the next tick.
	ResultSuperseded Result = "superseded"
	ResultFailed     Result = "failed"
)

type Loop struct {
	store       *draft.Store
	docs        docstore.Store
	collection  string
	applicantID string
	interval    time.Duration
	logger      logger.Logger
	obs         *observability.Observability
	now         func() time.Time
}

type Option func(*Loop)

func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

func WithObservability(o *observability.Observability) Option {
	return func(l *Loop) { l.obs = o }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// New returns a loop that saves the draft held in store to
// (collection, applicantID).
func New(store *draft.Store, docs docstore.Store, collection, applicantID string, log logger.Logger, opts ...Option) *Loop {
	l := &Loop{
		store:       store,
		docs:        docs,
		collection:  collection,
		applicantID: applicantID,
		interval:    DefaultInterval,
		logger: log.WithFields(map[string]interface{}{
			"component":   "autosave",
			"applicantId": applicantID,
			"collection":  collection,
		}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Interval returns the delay between ticks.
func (l *Loop) Interval() time.Duration { return l.interval }

// Tick runs one save attempt against the current store state. It never
// panics and never returns an error: failures are logged and the draft stays
// dirty so the next tick retries.
func (l *Loop) Tick(ctx context.Context) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("autosave tick panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			result = ResultFailed
		}
		metrics.AutosaveWrites.WithLabelValues(string(result)).Inc()
		l.obs.RecordAutosaveTick(ctx, time.Since(start), string(result))
	}()

	st := l.store.State()
	if st.Applicant == nil || !st.Dirty || st.Applicant.Submitted() {
		return ResultSkipped
	}

	if err := l.docs.SetMerge(ctx, l.collection, l.applicantID, st.Applicant); err != nil {
		stdErr := apperrors.NewDraftPersistFailedError(l.applicantID, err)
		l.logger.Warn("autosave write failed", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"error":     err,
			"revision":  st.Revision,
		})
		return ResultFailed
	}

	// Re-read: only clear dirty if nothing changed while the write was in flight.
	if !l.store.MarkSaved(st.Revision, l.now()) {
		l.logger.Debug("draft changed during autosave", map[string]interface{}{"revision": st.Revision})
		return ResultSuperseded
	}
	l.logger.Debug("draft saved", map[string]interface{}{"revision": st.Revision})
	return ResultSaved
}

// Run ticks every interval until ctx is done. The next tick is scheduled only
// after the previous one finished, so writes never overlap.
func (l *Loop) Run(ctx context.Context) {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			l.Tick(ctx)
			timer.Reset(l.interval)
		}
	}
}

// Start runs the loop on its own goroutine. The returned stop function
// cancels the pending tick and waits for an in-flight one to finish.
func (l *Loop) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
