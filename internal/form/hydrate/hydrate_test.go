package hydrate

import (
	"context"
	"errors"
	"testing"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/form/draft"
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/models"
	"portal-workers/internal/storage/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

// blockingStore holds Get until release is closed, then defers to the
// embedded store.
type blockingStore struct {
	*docstore.MemoryStore
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) Get(ctx context.Context, collection, id string) (models.ApplicantDraft, error) {
	close(b.started)
	<-b.release
	return b.MemoryStore.Get(context.Background(), collection, id)
}

type failingStore struct {
	*docstore.MemoryStore
	getErr, setErr error
}

func (f *failingStore) Get(ctx context.Context, collection, id string) (models.ApplicantDraft, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemoryStore.Get(ctx, collection, id)
}

func (f *failingStore) SetMerge(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryStore.SetMerge(ctx, collection, id, partial)
}

var ada = &models.Identity{UID: "u-1", Email: "ada@example.com", DisplayName: "Ada King Lovelace"}

// ==========================
// Hydrate
// ==========================

func TestHydrate_CreatesAndPersistsFreshDraft(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemoryStore()
	store := draft.NewStore()

	require.NoError(t, New(docs, store, logger.NewTestLogger(t)).Hydrate(ctx, ada, "applicants"))

	remote, err := docs.Get(ctx, "applicants", "u-1")
	require.NoError(t, err, "a durable record exists before the first autosave")
	assert.Equal(t, "u-1", remote.ID())

	st := store.State()
	assert.False(t, st.Dirty)
	assert.Equal(t, "u-1", st.Applicant.ID())
	assert.Equal(t, "Ada", fieldpath.GetString(st.Applicant, "basicInfo.legalFirstName"))
	assert.Equal(t, "King Lovelace", fieldpath.GetString(st.Applicant, "basicInfo.legalLastName"))
	assert.Equal(t, "ada@example.com", fieldpath.GetString(st.Applicant, "basicInfo.email"))
	assert.Equal(t, models.ApplicationStatusInProgress, st.Applicant.ApplicationStatus())
	assert.False(t, st.Applicant.Submitted())
}

func TestHydrate_LoadsExistingDraftAsIs(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemoryStore()
	require.NoError(t, docs.SetMerge(ctx, "applicants", "u-1", map[string]interface{}{
		"_id":       "u-1",
		"basicInfo": map[string]interface{}{"legalFirstName": "Augusta", "school": "Cambridge"},
	}))
	// Drop the submission object to exercise normalisation.
	raw, err := docs.Get(ctx, "applicants", "u-1")
	require.NoError(t, err)
	delete(raw, models.KeySubmission)
	docs = docstore.NewMemoryStore()
	require.NoError(t, docs.SetMerge(ctx, "applicants", "u-1", raw))

	store := draft.NewStore()
	require.NoError(t, New(docs, store, logger.NewNoOpLogger()).Hydrate(ctx, ada, "applicants"))

	st := store.State()
	assert.Equal(t, "Augusta", fieldpath.GetString(st.Applicant, "basicInfo.legalFirstName"), "remote data is not overwritten")
	assert.Equal(t, "Cambridge", fieldpath.GetString(st.Applicant, "basicInfo.school"))
	submitted, ok := fieldpath.GetValueAtPath(st.Applicant, "submission.submitted")
	assert.True(t, ok)
	assert.Equal(t, false, submitted)
}

func TestHydrate_ResetsWithoutIdentityOrCollection(t *testing.T) {
	store := draft.NewStore()
	store.PatchApplicant(map[string]interface{}{"_id": "stale"})
	h := New(docstore.NewMemoryStore(), store, logger.NewNoOpLogger())

	require.NoError(t, h.Hydrate(context.Background(), nil, "applicants"))
	assert.Nil(t, store.State().Applicant)

	store.PatchApplicant(map[string]interface{}{"_id": "stale"})
	require.NoError(t, h.Hydrate(context.Background(), ada, ""))
	assert.Nil(t, store.State().Applicant)
}

func TestHydrate_CancelledFetchIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	docs := &blockingStore{
		MemoryStore: docstore.NewMemoryStore(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	require.NoError(t, docs.MemoryStore.SetMerge(context.Background(), "applicants", "u-1", map[string]interface{}{"_id": "u-1"}))

	store := draft.NewStore()
	done := make(chan error, 1)
	go func() { done <- New(docs, store, logger.NewNoOpLogger()).Hydrate(ctx, ada, "applicants") }()

	<-docs.started
	cancel()
	close(docs.release)

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Nil(t, store.State().Applicant)
}

func TestHydrate_Failures(t *testing.T) {
	boom := errors.New("unavailable")

	t.Run("fetch fails", func(t *testing.T) {
		store := draft.NewStore()
		docs := &failingStore{MemoryStore: docstore.NewMemoryStore(), getErr: boom}
		err := New(docs, store, logger.NewNoOpLogger()).Hydrate(context.Background(), ada, "applicants")

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeHydrationFailed))
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, store.State().Applicant)
	})

	t.Run("persisting the fresh draft fails", func(t *testing.T) {
		store := draft.NewStore()
		docs := &failingStore{MemoryStore: docstore.NewMemoryStore(), setErr: boom}
		err := New(docs, store, logger.NewNoOpLogger()).Hydrate(context.Background(), ada, "applicants")

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeHydrationFailed))
		assert.Nil(t, store.State().Applicant, "nothing is loaded locally without a durable record")
	})
}

func TestNormalize(t *testing.T) {
	doc := Normalize(models.ApplicantDraft{
		"_id":        "u-1",
		"submission": map[string]interface{}{"submitted": true},
	})
	assert.True(t, doc.Submitted())

	doc = Normalize(models.ApplicantDraft{"_id": "u-1"})
	assert.False(t, doc.Submitted())
	_, ok := fieldpath.GetValueAtPath(doc, "submission.submitted")
	assert.True(t, ok)
}

func TestNormalize_NonObjectSubmission(t *testing.T) {
	for _, v := range []interface{}{nil, "yes", true} {
		remote := models.ApplicantDraft{"_id": "u-1", "submission": v}
		doc := Normalize(remote)

		submitted, ok := fieldpath.GetValueAtPath(doc, "submission.submitted")
		require.True(t, ok, "submission %v", v)
		assert.Equal(t, false, submitted)
		assert.Equal(t, v, remote["submission"], "remote record is untouched")
	}
}
