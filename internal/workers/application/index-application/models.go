// internal/workers/application/index-application/models.go
package indexapplication

import (
	"fmt"

	"portal-workers/internal/form/review"
)

type Input struct {
	Collection  string `json:"collection"`
	ApplicantID string `json:"applicantId"`
	EventID     string `json:"eventId"`
}

func (i *Input) validate() error {
	switch {
	case i.Collection == "":
		return fmt.Errorf("collection is required")
	case i.ApplicantID == "":
		return fmt.Errorf("applicantId is required")
	case i.EventID == "":
		return fmt.Errorf("eventId is required")
	}
	return nil
}

type Output struct {
	Indexed    bool   `json:"indexed"`
	IndexName  string `json:"indexName"`
	DocumentID string `json:"documentId"`
	Result     string `json:"result"` // "created" or "updated"
	IndexedAt  string `json:"indexedAt"`
}

// ApplicationDocument is what organisers search over.
type ApplicationDocument struct {
	ApplicantID       string         `json:"applicantId"`
	EventID           string         `json:"eventId"`
	Email             string         `json:"email,omitempty"`
	FullName          string         `json:"fullName,omitempty"`
	ApplicationStatus string         `json:"applicationStatus"`
	Submitted         bool           `json:"submitted"`
	LastUpdated       string         `json:"lastUpdated,omitempty"`
	IndexedAt         string         `json:"indexedAt"`
	Answers           []review.Entry `json:"answers"`
	// Text joins every "title: answer" line for full-text queries.
	Text string `json:"text"`
}
