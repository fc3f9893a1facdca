// internal/workers/application/validate-application-draft/handler.go
package validateapplicationdraft

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/common/metrics"
	"portal-workers/internal/common/validation"
	"portal-workers/internal/form/schema"
	"portal-workers/internal/models"
	"portal-workers/internal/storage/docstore"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "validate-application-draft"
)

// SchemaSource provides the compiled schema for an event.
type SchemaSource interface {
	Compiled(ctx context.Context, eventID string) (*schema.CompiledSchema, models.QuestionSet, error)
}

type Handler struct {
	config       *Config
	docs         docstore.Store
	questions    SchemaSource
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, docs docstore.Store, questions SchemaSource, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		docs:         docs,
		questions:    questions,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
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

	cs, _, err := h.questions.Compiled(ctx, input.EventID)
	if err != nil {
		return nil, err
	}

	result := cs.Validate(doc)
	issues := result.Errors
	if h.config.RequireSubmitted && !doc.Submitted() {
		issues = append(issues, validation.ValidationError{
			Field:   models.KeySubmission + "." + models.KeySubmitted,
			Code:    CodeNotSubmitted,
			Message: "Application has not been submitted",
		})
	}

	h.logger.Info("validation completed", map[string]interface{}{
		"applicantId": input.ApplicantID,
		"isValid":     len(issues) == 0,
		"errorCount":  len(issues),
	})

	if len(issues) > 0 {
		messages := make([]string, len(issues))
		for i, issue := range issues {
			messages[i] = issue.Error()
		}
		return nil, apperrors.NewApplicationValidationFailedError(strings.Join(messages, "; ")).
			WithMetadata("applicantId", input.ApplicantID).
			WithMetadata("validationErrors", issues)
	}

	return &Output{
		IsValid:          true,
		ValidationErrors: []validation.ValidationError{},
		ApplicantID:      input.ApplicantID,
	}, nil
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
