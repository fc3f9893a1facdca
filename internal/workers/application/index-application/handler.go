// internal/workers/application/index-application/handler.go
package indexapplication

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"portal-workers/internal/common/database"
	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/common/metrics"
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/form/review"
	"portal-workers/internal/form/schema"
	"portal-workers/internal/models"
	"portal-workers/internal/storage/docstore"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "index-application"
)

// SchemaSource provides the question set for an event.
type SchemaSource interface {
	Compiled(ctx context.Context, eventID string) (*schema.CompiledSchema, models.QuestionSet, error)
}

// Indexer writes one document into a search index.
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) (*database.IndexResult, error)
}

type Handler struct {
	config       *Config
	docs         docstore.Store
	questions    SchemaSource
	indexer      Indexer
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
	now          func() time.Time
}

func NewHandler(config *Config, docs docstore.Store, questions SchemaSource, indexer Indexer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		docs:         docs,
		questions:    questions,
		indexer:      indexer,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, apperrors.NewInvalidJobInputError(err))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := input.validate(); err != nil {
		return nil, apperrors.NewInvalidJobInputError(err)
	}

	doc, err := h.docs.Get(ctx, input.Collection, input.ApplicantID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperrors.NewDraftNotFoundError(input.Collection, input.ApplicantID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionFailedError(err)
	}

	_, set, err := h.questions.Compiled(ctx, input.EventID)
	if err != nil {
		return nil, err
	}

	indexedAt := h.now().UTC().Format(time.RFC3339)
	body := BuildDocument(input.ApplicantID, input.EventID, set, doc)
	body.IndexedAt = indexedAt

	index := IndexName(h.config.IndexPrefix, input.EventID)
	res, err := h.indexer.IndexDocument(ctx, index, input.ApplicantID, body)
	if err != nil {
		return nil, err
	}

	h.logger.Info("application indexed", map[string]interface{}{
		"applicantId": input.ApplicantID,
		"index":       index,
		"result":      res.Result,
		"answers":     len(body.Answers),
	})

	return &Output{
		Indexed:    true,
		IndexName:  index,
		DocumentID: input.ApplicantID,
		Result:     res.Result,
		IndexedAt:  indexedAt,
	}, nil
}

// IndexName lower-cases the event id since index names must be lower case.
func IndexName(prefix, eventID string) string {
	return strings.ToLower(prefix + eventID)
}

// BuildDocument summarises a stored application for the search index.
func BuildDocument(applicantID, eventID string, set models.QuestionSet, d models.ApplicantDraft) ApplicationDocument {
	root := map[string]interface{}(d)
	answers := review.Summarize(set, d)

	lines := make([]string, 0, len(answers))
	for _, a := range answers {
		if a.Answer == review.NotAnswered {
			continue
		}
		lines = append(lines, a.Title+": "+a.Answer)
	}

	first := fieldpath.GetString(root, "basicInfo.legalFirstName")
	last := fieldpath.GetString(root, "basicInfo.legalLastName")

	return ApplicationDocument{
		ApplicantID:       applicantID,
		EventID:           eventID,
		Email:             fieldpath.GetString(root, "basicInfo.email"),
		FullName:          strings.TrimSpace(first + " " + last),
		ApplicationStatus: d.ApplicationStatus(),
		Submitted:         d.Submitted(),
		LastUpdated:       fieldpath.GetString(root, "submission.lastUpdated"),
		Answers:           answers,
		Text:              strings.Join(lines, "\n"),
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
