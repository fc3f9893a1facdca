package formapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/validation"
	"portal-workers/internal/form/binding"
	"portal-workers/internal/form/draft"
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/form/review"
	"portal-workers/internal/form/session"
	"portal-workers/internal/form/upload"
	"portal-workers/internal/models"
)

type identityHandler func(w http.ResponseWriter, r *http.Request, identity *models.Identity)

func (s *Server) withIdentity(next identityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHORIZED", Message: "missing bearer token"})
			return
		}

		identity, err := s.auth.UserInfo(r.Context(), token)
		if err != nil || identity == nil || identity.UID == "" {
			status := http.StatusUnauthorized
			if stdErr, ok := apperrors.AsStandardError(err); ok && stdErr.Retryable {
				status = http.StatusServiceUnavailable
			}
			s.logger.Warn("form request not authenticated", map[string]interface{}{"error": err, "status": status})
			writeJSON(w, status, errorBody{Code: "UNAUTHORIZED", Message: "invalid or expired token"})
			return
		}

		next(w, r, identity)
	})
}

// ==========================
// Responses
// ==========================

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type draftView struct {
	Applicant       models.ApplicantDraft `json:"applicant"`
	Dirty           bool                  `json:"dirty"`
	Submitted       bool                  `json:"submitted"`
	LastLocalSaveAt *time.Time            `json:"lastLocalSaveAt,omitempty"`
}

func viewOf(st draft.State) draftView {
	return draftView{
		Applicant:       st.Applicant,
		Dirty:           st.Dirty,
		Submitted:       st.Applicant.Submitted(),
		LastLocalSaveAt: st.LastLocalSaveAt,
	}
}

type sessionView struct {
	EventID   string             `json:"eventId"`
	Questions models.QuestionSet `json:"questions"`
	Draft     draftView          `json:"draft"`
}

type fieldView struct {
	QuestionID string                      `json:"questionId"`
	Label      string                      `json:"label"`
	Required   bool                        `json:"required"`
	MainID     string                      `json:"mainId"`
	MainPath   fieldpath.FieldPath         `json:"mainPath,omitempty"`
	MainError  *validation.ValidationError `json:"mainError,omitempty"`
	OtherID    string                      `json:"otherId,omitempty"`
	OtherPath  fieldpath.FieldPath         `json:"otherPath,omitempty"`
	OtherError *validation.ValidationError `json:"otherError,omitempty"`
}

func fieldOf(q models.QuestionDefinition, b binding.FieldBinding) fieldView {
	v := fieldView{
		QuestionID: q.ID,
		Label:      b.Label,
		Required:   b.IsRequired,
		MainID:     b.MainID,
		MainPath:   b.MainPath,
		MainError:  b.MainError,
	}
	if b.HasOther {
		v.OtherID = b.OtherID
		v.OtherPath = b.OtherPath
		v.OtherError = b.OtherError
	}
	return v
}

type stepView struct {
	Section    models.Section               `json:"section"`
	Validation *validation.ValidationResult `json:"validation"`
	Fields     []fieldView                  `json:"fields"`
}

type submitView struct {
	Validation         *validation.ValidationResult `json:"validation"`
	ProcessInstanceKey int64                        `json:"processInstanceKey,omitempty"`
	Error              *apperrors.StandardError     `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var statusByCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeApplicationAlreadySubmitted: http.StatusConflict,
	apperrors.ErrCodeApplicationValidationFailed: http.StatusUnprocessableEntity,
	apperrors.ErrCodeUploadRejected:              http.StatusBadRequest,
	apperrors.ErrCodeUploadFailed:                http.StatusBadGateway,
	apperrors.ErrCodeSubmissionStartFailed:       http.StatusBadGateway,
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, errNotObject):
		return http.StatusBadRequest
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		if status, ok := statusByCode[stdErr.Code]; ok {
			return status
		}
		if stdErr.Retryable {
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	fields := map[string]interface{}{"path": r.URL.Path, "status": status, "error": err}
	if status >= http.StatusInternalServerError {
		s.logger.Error("form request failed", fields)
	} else {
		s.logger.Debug("form request refused", fields)
	}

	if stdErr, ok := apperrors.AsStandardError(err); ok {
		writeJSON(w, status, stdErr)
		return
	}
	writeJSON(w, status, errorBody{Code: string(apperrors.ErrCodeInternal), Message: err.Error()})
}

// ==========================
// Handlers
// ==========================

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	eventID := r.PathValue("eventId")
	sess, err := s.session(r.Context(), identity, eventID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{EventID: eventID, Questions: sess.Questions(), Draft: viewOf(sess.State())})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	if sess := s.release(sessionKey{uid: identity.UID, eventID: r.PathValue("eventId")}); sess != nil {
		s.shutdown(r.Context(), sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	sess, err := s.session(r.Context(), identity, r.PathValue("eventId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess.State()))
}

func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	var partial map[string]interface{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)).Decode(&partial); err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = errNotObject
		}
		s.writeError(w, r, err)
		return
	}
	if partial == nil {
		s.writeError(w, r, errNotObject)
		return
	}

	sess, err := s.session(r.Context(), identity, r.PathValue("eventId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Patch(partial); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess.State()))
}

// parseSection accepts the section name or its bucket name.
func parseSection(raw string, set models.QuestionSet) (models.Section, bool) {
	if sec, ok := fieldpath.SectionForBucket(raw); ok {
		return sec, true
	}
	for _, sec := range set.Sections() {
		if strings.EqualFold(string(sec), raw) {
			return sec, true
		}
	}
	return "", false
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	sess, err := s.session(r.Context(), identity, r.PathValue("eventId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	set := sess.Questions()
	section, ok := parseSection(r.PathValue("section"), set)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "UNKNOWN_SECTION", Message: "no such section: " + r.PathValue("section")})
		return
	}

	res := sess.ValidateStep(section)
	fields := make([]fieldView, 0, len(set[section]))
	for _, q := range set[section] {
		fields = append(fields, fieldOf(q, sess.Binding(section, q)))
	}
	writeJSON(w, http.StatusOK, stepView{Section: section, Validation: res, Fields: fields})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	sess, err := s.session(r.Context(), identity, r.PathValue("eventId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries := sess.Review()
	if entries == nil {
		entries = []review.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	limit := s.deps.MaxResumeBytes
	if limit <= 0 {
		limit = upload.DefaultMaxBytes
	}
	// Multipart framing on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if !errors.As(err, &tooLarge) {
			err = apperrors.NewUploadRejectedError("expected a multipart form with a \"file\" part")
		}
		s.writeError(w, r, err)
		return
	}
	defer file.Close()

	sess, err := s.session(r.Context(), identity, r.PathValue("eventId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	url, err := sess.UploadResume(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, identity *models.Identity) {
	sess, err := s.session(r.Context(), identity, r.PathValue("eventId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := sess.Submit(r.Context())
	if err != nil && res == nil {
		s.writeError(w, r, err)
		return
	}
	view := submitView{Validation: res.Validation, ProcessInstanceKey: res.ProcessInstanceKey}
	if err != nil {
		// Either the answers were rejected, or the submission is stored and
		// only the workflow start failed.
		view.Error = apperrors.Normalize(err)
		writeJSON(w, statusOf(err), view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
