package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/common/validation"
	"portal-workers/internal/form/autosave"
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/form/schema"
	"portal-workers/internal/models"
	"portal-workers/internal/storage/docstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const (
	collection = "applicants-hack-2026"
	eventID    = "hack-2026"
)

var ada = &models.Identity{UID: "u-1", Email: "ada@example.com", DisplayName: "Ada Lovelace"}

var pronouns = models.QuestionDefinition{
	ID: "q-pronouns", Title: "Pronouns", Type: models.QuestionTypeShortAnswer, FormInput: "pronouns", Required: true,
}

var why = models.QuestionDefinition{
	ID: "q-why", Title: "Why?", Type: models.QuestionTypeLongAnswer, FormInput: "why", Required: true, MaxWords: "5",
}

func questionSet() models.QuestionSet {
	return models.QuestionSet{
		models.SectionBasicInfo: {
			{ID: "q-name", Title: "Full legal name", Type: models.QuestionTypeFullLegalName, Required: true},
			pronouns,
		},
		models.SectionQuestionnaire: {why},
	}
}

type staticSchemas struct {
	set models.QuestionSet
	err error
}

func (s staticSchemas) Compiled(ctx context.Context, eventID string) (*schema.CompiledSchema, models.QuestionSet, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return schema.Compile(s.set), s.set, nil
}

type recordingStarter struct {
	calls []string
	err   error
}

func (r *recordingStarter) StartSubmission(ctx context.Context, collection, applicantID, eventID string) (int64, error) {
	r.calls = append(r.calls, strings.Join([]string{collection, applicantID, eventID}, "/"))
	if r.err != nil {
		return 0, r.err
	}
	return 2251799813685249, nil
}

// flakyDocs fails writes while failWrites is set.
type flakyDocs struct {
	*docstore.MemoryStore
	failWrites atomic.Bool
}

func (f *flakyDocs) SetMerge(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	if f.failWrites.Load() {
		return errors.New("connection reset")
	}
	return f.MemoryStore.SetMerge(ctx, collection, id, partial)
}

// gatedDocs holds the write that carries the submitted flag until release
// is closed.
type gatedDocs struct {
	*docstore.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedDocs) SetMerge(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	if models.ApplicantDraft(partial).Submitted() {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.MemoryStore.SetMerge(ctx, collection, id, partial)
}

func openSession(t *testing.T, docs docstore.Store, starter SubmissionStarter) *Session {
	t.Helper()
	deps := Deps{
		Docs:             docs,
		Questions:        staticSchemas{set: questionSet()},
		Logger:           logger.NewTestLogger(t),
		AutosaveInterval: time.Hour,
	}
	if starter != nil {
		deps.Submissions = starter
	}
	s, err := Open(context.Background(), deps, ada, collection, eventID)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func fillValid(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.SetField("basicInfo.pronouns", "she/her"))
	require.NoError(t, s.SetField("questionnaire.why", "I love building things"))
}

// ==========================
// Open
// ==========================

func TestOpen_CreatesFreshDraft(t *testing.T) {
	docs := docstore.NewMemoryStore()
	s := openSession(t, docs, nil)

	st := s.State()
	require.NotNil(t, st.Applicant)
	assert.False(t, st.Dirty)
	assert.Equal(t, "u-1", st.Applicant.ID())
	assert.Equal(t, "Ada", fieldpath.GetString(map[string]interface{}(st.Applicant), "basicInfo.legalFirstName"))

	stored, err := docs.Get(context.Background(), collection, "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusInProgress, stored.ApplicationStatus())
}

func TestOpen_Errors(t *testing.T) {
	deps := Deps{Docs: docstore.NewMemoryStore(), Questions: staticSchemas{set: questionSet()}}

	_, err := Open(context.Background(), deps, nil, collection, eventID)
	assert.ErrorIs(t, err, ErrNoIdentity)

	deps.Questions = staticSchemas{err: apperrors.NewQuestionsLoadFailedError(eventID, errors.New("db down"))}
	_, err = Open(context.Background(), deps, ada, collection, eventID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeQuestionsLoadFailed))
}

// ==========================
// Editing and autosave
// ==========================

func TestSession_PatchAndFlush(t *testing.T) {
	docs := docstore.NewMemoryStore()
	s := openSession(t, docs, nil)

	require.NoError(t, s.SetField("basicInfo.pronouns", "she/her"))
	assert.True(t, s.State().Dirty)

	assert.Equal(t, autosave.ResultSaved, s.Flush(context.Background()))
	assert.False(t, s.State().Dirty)

	stored, err := docs.Get(context.Background(), collection, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "she/her", fieldpath.GetString(map[string]interface{}(stored), "basicInfo.pronouns"))
	assert.Equal(t, "Ada", fieldpath.GetString(map[string]interface{}(stored), "basicInfo.legalFirstName"))
}

func TestSession_RemoteStatusChange(t *testing.T) {
	docs := docstore.NewMemoryStore()
	s := openSession(t, docs, nil)

	err := docs.SetMerge(context.Background(), collection, "u-1", map[string]interface{}{
		"status": map[string]interface{}{"applicationStatus": "accepted"},
	})
	require.NoError(t, err)

	st := s.State()
	assert.Equal(t, "accepted", st.Applicant.ApplicationStatus())
	assert.False(t, st.Dirty, "a remote change is not a local edit")

	// Another applicant's record is ignored.
	require.NoError(t, docs.SetMerge(context.Background(), collection, "u-2", map[string]interface{}{
		"status": map[string]interface{}{"applicationStatus": "rejected"},
	}))
	assert.Equal(t, "accepted", s.State().Applicant.ApplicationStatus())
}

// ==========================
// Validation
// ==========================

func TestSession_ValidateStepFeedsBinding(t *testing.T) {
	s := openSession(t, docstore.NewMemoryStore(), nil)

	assert.Nil(t, s.Binding(models.SectionBasicInfo, pronouns).MainError, "no errors before validation")

	res := s.ValidateStep(models.SectionBasicInfo)
	assert.False(t, res.Valid)
	assert.True(t, res.HasErrors("basicInfo.pronouns"))
	assert.False(t, res.HasErrors("questionnaire.why"), "other sections are not reported")

	b := s.Binding(models.SectionBasicInfo, pronouns)
	require.NotNil(t, b.MainError)
	assert.Equal(t, validation.CodeRequired, b.MainError.Code)

	require.NoError(t, s.SetField("basicInfo.pronouns", "they/them"))
	assert.True(t, s.ValidateStep(models.SectionBasicInfo).Valid)
	assert.Nil(t, s.Binding(models.SectionBasicInfo, pronouns).MainError)
}

// ==========================
// Submission
// ==========================

func TestSession_SubmitInvalid(t *testing.T) {
	starter := &recordingStarter{}
	s := openSession(t, docstore.NewMemoryStore(), starter)
	require.NoError(t, s.SetField("basicInfo.pronouns", "she/her"))
	require.NoError(t, s.SetField("questionnaire.why", "one two three four five six"))

	res, err := s.Submit(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationValidationFailed))
	require.NotNil(t, res)
	assert.False(t, res.Validation.Valid)

	b := s.Binding(models.SectionQuestionnaire, why)
	require.NotNil(t, b.MainError)
	assert.Equal(t, validation.CodeWordLimit, b.MainError.Code)

	assert.False(t, s.State().Applicant.Submitted())
	assert.Empty(t, starter.calls)
}

func TestSession_Submit(t *testing.T) {
	docs := docstore.NewMemoryStore()
	starter := &recordingStarter{}
	s := openSession(t, docs, starter)
	fillValid(t, s)

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Validation.Valid)
	assert.Equal(t, int64(2251799813685249), res.ProcessInstanceKey)
	assert.Equal(t, []string{collection + "/u-1/" + eventID}, starter.calls)

	st := s.State()
	assert.False(t, st.Dirty)
	assert.True(t, st.Applicant.Submitted())
	assert.Equal(t, models.ApplicationStatusApplied, st.Applicant.ApplicationStatus())

	stored, err := docs.Get(context.Background(), collection, "u-1")
	require.NoError(t, err)
	assert.True(t, stored.Submitted())
	assert.Equal(t, models.ApplicationStatusApplied, stored.ApplicationStatus())
	assert.Equal(t, "I love building things", fieldpath.GetString(map[string]interface{}(stored), "questionnaire.why"))

	err = s.SetField("basicInfo.pronouns", "he/him")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationAlreadySubmitted))
	_, err = s.Submit(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationAlreadySubmitted))
}

func TestSession_EditDuringSubmitIsRefused(t *testing.T) {
	docs := &gatedDocs{
		MemoryStore: docstore.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	s := openSession(t, docs, nil)
	fillValid(t, s)

	submitted := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		submitted <- err
	}()
	<-docs.entered

	patched := make(chan error, 1)
	go func() {
		patched <- s.SetField("questionnaire.why", "one two three four five six seven")
	}()

	select {
	case <-patched:
		t.Fatal("edit was applied while the submission was being persisted")
	case <-time.After(50 * time.Millisecond):
	}
	close(docs.release)

	require.NoError(t, <-submitted)
	err := <-patched
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeApplicationAlreadySubmitted))

	stored, err := docs.Get(context.Background(), collection, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "I love building things", fieldpath.GetString(map[string]interface{}(stored), "questionnaire.why"))
}

func TestSession_SubmitPersistFailure(t *testing.T) {
	docs := &flakyDocs{MemoryStore: docstore.NewMemoryStore()}
	starter := &recordingStarter{}
	s := openSession(t, docs, starter)
	fillValid(t, s)

	docs.failWrites.Store(true)
	_, err := s.Submit(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDraftPersistFailed))
	assert.Empty(t, starter.calls)

	st := s.State()
	assert.False(t, st.Applicant.Submitted())
	assert.Equal(t, models.ApplicationStatusInProgress, st.Applicant.ApplicationStatus())
	assert.True(t, st.Dirty, "edits are still waiting for autosave")

	docs.failWrites.Store(false)
	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	assert.Len(t, starter.calls, 1)
}

func TestSession_SubmitWorkflowFailure(t *testing.T) {
	docs := docstore.NewMemoryStore()
	starter := &recordingStarter{err: apperrors.NewSubmissionStartFailedError(errors.New("unavailable"))}
	s := openSession(t, docs, starter)
	fillValid(t, s)

	res, err := s.Submit(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSubmissionStartFailed))
	require.NotNil(t, res)

	stored, err := docs.Get(context.Background(), collection, "u-1")
	require.NoError(t, err)
	assert.True(t, stored.Submitted(), "the application itself is stored")
}

// ==========================
// Review, upload and teardown
// ==========================

func TestSession_Review(t *testing.T) {
	s := openSession(t, docstore.NewMemoryStore(), nil)
	require.NoError(t, s.SetField("basicInfo.pronouns", "she/her"))

	entries := s.Review()
	require.Len(t, entries, 3)
	assert.Equal(t, "Ada Lovelace", entries[0].Answer)
	assert.Equal(t, "she/her", entries[1].Answer)
	assert.Equal(t, "Not answered", entries[2].Answer)
}

func TestSession_UploadWithoutStorage(t *testing.T) {
	s := openSession(t, docstore.NewMemoryStore(), nil)

	_, err := s.UploadResume(context.Background(), "cv.pdf", "application/pdf", strings.NewReader("%PDF-1.7"))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUploadFailed))
}

func TestSession_Close(t *testing.T) {
	docs := docstore.NewMemoryStore()
	s := openSession(t, docs, nil)

	s.Close()
	s.Close()

	assert.ErrorIs(t, s.SetField("basicInfo.pronouns", "she/her"), ErrClosed)

	require.NoError(t, docs.SetMerge(context.Background(), collection, "u-1", map[string]interface{}{
		"status": map[string]interface{}{"applicationStatus": "accepted"},
	}))
	assert.Equal(t, models.ApplicationStatusInProgress, s.State().Applicant.ApplicationStatus(), "no longer subscribed")
}
