// internal/workers/application/send-notification/models.go
package sendnotification

import "fmt"

type Input struct {
	Collection       string `json:"collection"`
	ApplicantID      string `json:"applicantId"`
	EventID          string `json:"eventId"`
	NotificationType string `json:"notificationType"`
}

func (i *Input) validate() error {
	switch {
	case i.Collection == "":
		return fmt.Errorf("collection is required")
	case i.ApplicantID == "":
		return fmt.Errorf("applicantId is required")
	case i.NotificationType == "":
		return fmt.Errorf("notificationType is required")
	}
	if _, ok := templates[i.NotificationType]; !ok {
		return fmt.Errorf("unknown notificationType: %s", i.NotificationType)
	}
	return nil
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // "sent", "disabled"
	SentAt         string `json:"sentAt"` // ISO 8601
	EmailMessageID string `json:"emailMessageId,omitempty"`
	TopicMessageID string `json:"topicMessageId,omitempty"`
}

// Notification types
const (
	TypeApplicationSubmitted = "application_submitted"
	TypeStatusChanged        = "application_status_changed"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
)
