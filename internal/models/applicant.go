// internal/models/applicant.go
package models

import "strings"

// Application statuses stored under status.applicationStatus.
const (
	ApplicationStatusInProgress = "inProgress"
	ApplicationStatusApplied    = "applied"
)

// Top-level keys of an applicant record.
const (
	KeyID         = "_id"
	KeyStatus     = "status"
	KeySubmission = "submission"

	KeyApplicationStatus = "applicationStatus"
	KeySubmitted         = "submitted"
	KeyLastUpdated       = "lastUpdated"
)

// ApplicantDraft is the nested applicant record. Everything below the
// always-present keys (_id, status.applicationStatus, submission.submitted)
// is optional and open-ended, so the record is kept as a generic document.
type ApplicantDraft map[string]interface{}

// ID returns the record id, or "" when missing.
func (d ApplicantDraft) ID() string {
	id, _ := d[KeyID].(string)
	return id
}

// Submitted reports submission.submitted.
func (d ApplicantDraft) Submitted() bool {
	sub, ok := d[KeySubmission].(map[string]interface{})
	if !ok {
		return false
	}
	submitted, _ := sub[KeySubmitted].(bool)
	return submitted
}

// ApplicationStatus returns status.applicationStatus, or "" when missing.
func (d ApplicantDraft) ApplicationStatus() string {
	status, ok := d[KeyStatus].(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := status[KeyApplicationStatus].(string)
	return s
}

// Bucket returns the nested object for a draft bucket, or nil.
func (d ApplicantDraft) Bucket(name string) map[string]interface{} {
	b, _ := d[name].(map[string]interface{})
	return b
}

// BlankApplicantDraft is the template a patch lands on when no draft exists yet.
func BlankApplicantDraft() ApplicantDraft {
	return ApplicantDraft{
		KeyID:                "",
		"basicInfo":          map[string]interface{}{},
		"skills":             map[string]interface{}{},
		"questionnaire":      map[string]interface{}{},
		"termsAndConditions": map[string]interface{}{},
		KeyStatus: map[string]interface{}{
			KeyApplicationStatus: ApplicationStatusInProgress,
		},
		KeySubmission: map[string]interface{}{
			KeySubmitted: false,
		},
	}
}

// NewApplicantDraft seeds a fresh draft from the authenticated identity.
func NewApplicantDraft(identity Identity) ApplicantDraft {
	d := BlankApplicantDraft()
	first, last := SplitDisplayName(identity.DisplayName)
	d[KeyID] = identity.UID
	d["basicInfo"] = map[string]interface{}{
		"legalFirstName": first,
		"legalLastName":  last,
		"email":          identity.Email,
	}
	return d
}

// Identity is the authenticated user as exposed by the identity provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// SplitDisplayName splits "Ada King Lovelace" into ("Ada", "King Lovelace").
func SplitDisplayName(displayName string) (string, string) {
	parts := strings.Fields(displayName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
