// internal/workers/application/send-notification/handler.go
package sendnotification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

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
	"github.com/google/uuid"
)

const (
	TaskType = "send-notification"
)

// Mailer sends one email and returns the provider message id.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) (string, error)
}

// Publisher fans a message out to the organiser topic.
type Publisher interface {
	Publish(ctx context.Context, subject, message string, attributes map[string]string) (string, error)
}

// SchemaSource provides the question set for an event.
type SchemaSource interface {
	Compiled(ctx context.Context, eventID string) (*schema.CompiledSchema, models.QuestionSet, error)
}

// IdentityProvider resolves an applicant's account when the draft carries no
// email address.
type IdentityProvider interface {
	GetUser(ctx context.Context, userID string) (*models.Identity, error)
}

type template struct {
	subject string
	body    string
	// organiser is published to the topic when set.
	organiser string
}

var templates = map[string]template{
	TypeApplicationSubmitted: {
		subject:   "We received your application",
		body:      "Hi {{firstName}},\n\nThanks for applying to {{eventId}}. Here is what you sent us:\n\n{{summary}}\n",
		organiser: "New application from {{fullName}} ({{email}}) for {{eventId}}.",
	},
	TypeStatusChanged: {
		subject: "Your application status changed",
		body:    "Hi {{firstName}},\n\nYour application to {{eventId}} is now: {{applicationStatus}}.\n",
	},
}

type Handler struct {
	config       *Config
	docs         docstore.Store
	questions    SchemaSource
	mailer       Mailer
	publisher    Publisher
	identities   IdentityProvider
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
	now          func() time.Time
}

// NewHandler wires the notification worker. identities may be nil.
func NewHandler(config *Config, docs docstore.Store, questions SchemaSource, mailer Mailer, publisher Publisher, identities IdentityProvider, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		docs:         docs,
		questions:    questions,
		mailer:       mailer,
		publisher:    publisher,
		identities:   identities,
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
	tmpl := templates[input.NotificationType]

	doc, err := h.docs.Get(ctx, input.Collection, input.ApplicantID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperrors.NewDraftNotFoundError(input.Collection, input.ApplicantID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseConnectionFailedError(err)
	}

	data, err := h.templateData(ctx, input, doc)
	if err != nil {
		return nil, err
	}

	out := &Output{
		NotificationID: uuid.New().String(),
		Status:         StatusDisabled,
		SentAt:         h.now().UTC().Format(time.RFC3339),
	}

	email, _ := data["email"].(string)
	if h.config.EmailEnabled && h.mailer != nil {
		if email == "" {
			h.logger.Warn("recipient has no email address", map[string]interface{}{
				"applicantId": input.ApplicantID,
			})
		} else {
			id, err := h.mailer.SendEmail(ctx, email,
				renderTemplate(tmpl.subject, data), renderTemplate(tmpl.body, data), "")
			if err != nil {
				return nil, apperrors.NewNotificationSendFailedError(input.NotificationType, fmt.Errorf("email: %w", err))
			}
			out.EmailMessageID = id
			out.Status = StatusSent
		}
	}

	if tmpl.organiser != "" && h.config.TopicEnabled && h.publisher != nil {
		id, err := h.publisher.Publish(ctx, renderTemplate(tmpl.subject, data), renderTemplate(tmpl.organiser, data), map[string]string{
			"eventId":          input.EventID,
			"applicantId":      input.ApplicantID,
			"notificationType": input.NotificationType,
		})
		if err != nil {
			return nil, apperrors.NewNotificationSendFailedError(input.NotificationType, fmt.Errorf("topic: %w", err))
		}
		out.TopicMessageID = id
		out.Status = StatusSent
	}

	h.logger.Info("notification processed", map[string]interface{}{
		"applicantId":      input.ApplicantID,
		"notificationType": input.NotificationType,
		"status":           out.Status,
	})
	return out, nil
}

// templateData collects the placeholders the templates can use. The email
// falls back to the identity provider when the draft has none.
func (h *Handler) templateData(ctx context.Context, input *Input, doc models.ApplicantDraft) (map[string]interface{}, error) {
	_, set, err := h.questions.Compiled(ctx, input.EventID)
	if err != nil {
		return nil, err
	}


	root := map[string]interface{}(doc)
	first := fieldpath.GetString(root, "basicInfo.legalFirstName")
	last := fieldpath.GetString(root, "basicInfo.legalLastName")
	email := strings.TrimSpace(fieldpath.GetString(root, "basicInfo.email"))

	if email == "" && h.identities != nil {
		user, err := h.identities.GetUser(ctx, input.ApplicantID)
		if err != nil {
			return nil, err
		}
		email = user.Email
		if first == "" {
			first, last = models.SplitDisplayName(user.DisplayName)
		}
	}

	return map[string]interface{}{
		"applicantId":       input.ApplicantID,
		"eventId":           input.EventID,
		"email":             email,
		"firstName":         first,
		"fullName":          strings.TrimSpace(first + " " + last),
		"applicationStatus": doc.ApplicationStatus(),
		"summary":           summaryText(set, doc),
	}, nil
}

// summaryText lists the answered questions as "Title: Answer" lines.
func summaryText(set models.QuestionSet, doc models.ApplicantDraft) string {
	var lines []string
	for _, e := range review.Summarize(set, doc) {
		if e.Answer != review.NotAnswered {
			lines = append(lines, e.Title+": "+e.Answer)
		}
	}
	return strings.Join(lines, "\n")
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
		h.logger.Error("failed to send complete job command", map[string]interface{}{
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

// renderTemplate replaces {{key}} placeholders and drops any left unmatched.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
