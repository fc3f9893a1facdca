// Package session ties the form components together for one applicant with
// the form open: hydration, autosave, remote status changes, validation,
// review and submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/common/metrics"
	"portal-workers/internal/common/observability"
	"portal-workers/internal/common/validation"
	"portal-workers/internal/form/autosave"
	"portal-workers/internal/form/binding"
	"portal-workers/internal/form/draft"
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/form/hydrate"
	"portal-workers/internal/form/review"
	"portal-workers/internal/form/schema"
	"portal-workers/internal/form/upload"
	"portal-workers/internal/models"
	"portal-workers/internal/storage/docstore"
)

var (
	ErrNoIdentity = errors.New("session: no authenticated applicant")
	ErrClosed     = errors.New("session: closed")
)

// SchemaSource provides the compiled schema for an event.
type SchemaSource interface {
	Compiled(ctx context.Context, eventID string) (*schema.CompiledSchema, models.QuestionSet, error)
}

// SubmissionStarter starts the back-office workflow for a submitted
// application and returns the process instance key.
type SubmissionStarter interface {
	StartSubmission(ctx context.Context, collection, applicantID, eventID string) (int64, error)
}

// Deps are the collaborators shared by every session. Uploader and
// Submissions may be nil.
type Deps struct {
	Docs          docstore.Store
	Questions     SchemaSource
	Uploader      upload.Uploader
	Submissions   SubmissionStarter
	Logger        logger.Logger
	Observability *observability.Observability

	AutosaveInterval time.Duration
	MaxResumeBytes   int64
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	Validation         *validation.ValidationResult
	ProcessInstanceKey int64
}

type Session struct {
	deps       Deps
	identity   models.Identity
	collection string
	eventID    string

	schema    *schema.CompiledSchema
	questions models.QuestionSet
	store     *draft.Store
	autosave  *autosave.Loop
	resume    *upload.ResumeUploader
	logger    logger.Logger

	mu     sync.Mutex
	issues map[models.Section]*validation.ValidationResult
	closed bool

	// submitMu serialises edits with Submit, so nothing lands between the
	// final validation and the submitted flag. It also guards stopAutosave.
	submitMu     sync.Mutex
	stopAutosave func()
	unsubscribe  func()
	life         context.Context
	cancel       context.CancelFunc
}

// Open prepares a session for identity. ctx bounds the loading work only;
// the session lives until Close.
func Open(ctx context.Context, deps Deps, identity *models.Identity, collection, eventID string) (*Session, error) {
	if identity == nil || identity.UID == "" {
		return nil, ErrNoIdentity
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	log := deps.Logger.WithFields(map[string]interface{}{
		"applicantId": identity.UID,
		"collection":  collection,
		"eventId":     eventID,
	})

	cs, set, err := deps.Questions.Compiled(ctx, eventID)
	if err != nil {
		return nil, err
	}

	store := draft.NewStore()
	if err := hydrate.New(deps.Docs, store, log).Hydrate(ctx, identity, collection); err != nil {
		return nil, err
	}

	s := &Session{
		deps:       deps,
		identity:   *identity,
		collection: collection,
		eventID:    eventID,
		schema:     cs,
		questions:  set,
		store:      store,
		logger:     log,
		issues:     map[models.Section]*validation.ValidationResult{},
	}
	if deps.Uploader != nil {
		s.resume = upload.NewResumeUploader(deps.Uploader, store, deps.MaxResumeBytes, log)
	}

	life, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.life, s.cancel = life, cancel

	unsubscribe, err := deps.Docs.Subscribe(life, collection, identity.UID, s.onRemoteChange)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", collection, err)
	}
	s.unsubscribe = unsubscribe

	s.autosave = autosave.New(store, deps.Docs, collection, identity.UID, log,
		autosave.WithInterval(deps.AutosaveInterval),
		autosave.WithObservability(deps.Observability),
	)
	s.stopAutosave = s.autosave.Start(life)

	log.Info("form session opened", map[string]interface{}{"submitted": store.State().Applicant.Submitted()})
	return s, nil
}

// onRemoteChange folds status changes made elsewhere (an organiser decision,
// a submission from another device) into the local draft.
func (s *Session) onRemoteChange(ch docstore.Change) {
	if ch.ID != s.identity.UID {
		return
	}
	remote := ch.Document
	local := s.store.State().Applicant
	if local == nil {
		return
	}

	partial := map[string]interface{}{}
	if status := remote.ApplicationStatus(); status != "" && status != local.ApplicationStatus() {
		partial[models.KeyStatus] = map[string]interface{}{models.KeyApplicationStatus: status}
	}
	if remote.Submitted() && !local.Submitted() {
		partial[models.KeySubmission] = map[string]interface{}{models.KeySubmitted: true}
	}
	if len(partial) == 0 {
		return
	}
	s.store.ApplyRemote(partial)
	s.logger.Info("applied remote status change", map[string]interface{}{
		"applicationStatus": remote.ApplicationStatus(),
		"submitted":         remote.Submitted(),
	})
}

// Identity returns the applicant the session belongs to.
func (s *Session) Identity() models.Identity { return s.identity }

// Questions returns the question set the session was opened with.
func (s *Session) Questions() models.QuestionSet { return s.questions }

// Schema returns the compiled schema for the event.
func (s *Session) Schema() *schema.CompiledSchema { return s.schema }

// State returns the current draft state.
func (s *Session) State() draft.State { return s.store.State() }

// Subscribe forwards draft changes to fn until the returned function is called.
func (s *Session) Subscribe(fn func(draft.State)) func() { return s.store.Subscribe(fn) }

func (s *Session) writable() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.store.State().Applicant.Submitted() {
		return apperrors.NewApplicationAlreadySubmittedError(s.identity.UID)
	}
	return nil
}

// Patch deep-merges partial into the draft.
func (s *Session) Patch(partial map[string]interface{}) error {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.store.PatchApplicant(partial)
	return nil
}

// SetField stores value at path.
func (s *Session) SetField(path fieldpath.FieldPath, value interface{}) error {
	return s.Patch(fieldpath.SetValueAtPath(path, value))
}

// Binding resolves q against the issues from the last validation of its
// section. Before the section was validated no errors are attached.
func (s *Session) Binding(section models.Section, q models.QuestionDefinition) binding.FieldBinding {
	s.mu.Lock()
	res := s.issues[section]
	s.mu.Unlock()

	var tree map[string]interface{}
	if res != nil {
		tree = res.Tree()
	}
	return binding.Resolve(section, q, tree)
}

// ValidateStep validates one section, the gate for moving to the next page.
func (s *Session) ValidateStep(section models.Section) *validation.ValidationResult {
	res := s.schema.ValidateSection(s.store.State().Applicant, section)
	s.record(section, res)
	return res
}

func (s *Session) record(section models.Section, res *validation.ValidationResult) {
	for _, issue := range res.Errors {
		metrics.ValidationIssues.WithLabelValues(string(section), issue.Code).Inc()
	}
	s.mu.Lock()
	s.issues[section] = res
	s.mu.Unlock()
}

// Review returns the display answers for every question.
func (s *Session) Review() []review.Entry {
	return review.Summarize(s.questions, s.store.State().Applicant)
}

// UploadResume stores a resume PDF and records its URL in the draft. Submit
// waits for an upload in progress.
func (s *Session) UploadResume(ctx context.Context, filename, contentType string, body io.Reader) (string, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if err := s.writable(); err != nil {
		return "", err
	}
	if s.resume == nil {
		return "", apperrors.NewUploadFailedError(errors.New("no resume storage configured"))
	}
	return s.resume.Upload(ctx, s.identity, s.collection, filename, contentType, body)
}

// Flush runs one autosave tick immediately.
func (s *Session) Flush(ctx context.Context) autosave.Result {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	return s.autosave.Tick(ctx)
}

// Submit validates the whole draft and, when it is valid, marks it submitted,
// persists it right away and starts the submission workflow. On validation
// failure the per-section issues become visible through Binding.
func (s *Session) Submit(ctx context.Context) (*SubmitResult, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if err := s.writable(); err != nil {
		return nil, err
	}

	st := s.store.State()
	res := s.schema.Validate(st.Applicant)
	s.recordAll(res)
	if !res.Valid {
		s.logger.Info("submission rejected", map[string]interface{}{"issues": len(res.Errors)})
		return &SubmitResult{Validation: res}, apperrors.NewApplicationValidationFailedError(
			strings.Join(res.GetErrorMessages(), "; "))
	}

	// A tick still holding the pre-submit draft must not land after the
	// submitted one, so autosave stays off unless the submission fails.
	s.stopAutosave()
	previousStatus := st.Applicant.ApplicationStatus()
	if previousStatus == "" {
		previousStatus = models.ApplicationStatusInProgress
	}
	s.store.PatchApplicant(map[string]interface{}{
		models.KeySubmission: map[string]interface{}{models.KeySubmitted: true},
		models.KeyStatus:     map[string]interface{}{models.KeyApplicationStatus: models.ApplicationStatusApplied},
	})
	submitted := s.store.State()

	if err := s.deps.Docs.SetMerge(ctx, s.collection, s.identity.UID, submitted.Applicant); err != nil {
		// Autosave skips submitted drafts, so undo the flag to keep the
		// edits saveable and let the applicant retry.
		s.store.PatchApplicant(map[string]interface{}{
			models.KeySubmission: map[string]interface{}{models.KeySubmitted: false},
			models.KeyStatus:     map[string]interface{}{models.KeyApplicationStatus: previousStatus},
		})
		s.stopAutosave = s.autosave.Start(s.life)
		s.logger.Error("failed to persist submission", map[string]interface{}{"error": err})
		return nil, apperrors.NewDraftPersistFailedError(s.identity.UID, err)
	}
	s.store.MarkSaved(submitted.Revision, time.Now())
	s.logger.Info("application submitted", nil)

	out := &SubmitResult{Validation: res}
	if s.deps.Submissions == nil {
		return out, nil
	}
	key, err := s.deps.Submissions.StartSubmission(ctx, s.collection, s.identity.UID, s.eventID)
	if err != nil {
		s.logger.Error("failed to start submission workflow", map[string]interface{}{"error": err})
		return out, err
	}
	out.ProcessInstanceKey = key
	s.logger.Info("submission workflow started", map[string]interface{}{"processInstanceKey": key})
	return out, nil
}

func (s *Session) recordAll(res *validation.ValidationResult) {
	for _, section := range s.questions.Sections() {
		s.record(section, res.Filter(s.schema.SectionFilter(section)))
	}
}

// Close stops autosave and the remote change feed. Pending edits that were
// not saved yet are dropped; call Flush first to keep them.
func (s *Session) Close() {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stopAutosave()
	s.unsubscribe()
	s.cancel()
	s.logger.Info("form session closed", nil)
}
