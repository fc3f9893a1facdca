// internal/workers/application/validate-application-draft/models.go
package validateapplicationdraft

import (
	"fmt"

	"portal-workers/internal/common/validation"
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
	IsValid          bool                         `json:"isValid"`
	ValidationErrors []validation.ValidationError `json:"validationErrors"`
	ApplicantID      string                       `json:"applicantId"`
}

// CodeNotSubmitted flags a stored draft that was never submitted.
const CodeNotSubmitted = "NOT_SUBMITTED"
