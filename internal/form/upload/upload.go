// Package upload stores an applicant's resume and records its URL in the draft.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/common/metrics"
	"portal-workers/internal/form/draft"
	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/models"

	"github.com/google/uuid"
)

const (
	DefaultMaxBytes = 5 << 20
	pdfContentType  = "application/pdf"
)

// ResumePath is where the uploaded resume URL is stored.
const ResumePath fieldpath.FieldPath = "skills.resume"

// Uploader stores a file and returns a URL it can be retrieved from.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type ResumeUploader struct {
	uploader Uploader
	store    *draft.Store
	maxBytes int64
	logger   logger.Logger
	newID    func() string
}

func NewResumeUploader(uploader Uploader, store *draft.Store, maxBytes int64, log logger.Logger) *ResumeUploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &ResumeUploader{
		uploader: uploader,
		store:    store,
		maxBytes: maxBytes,
		logger:   log.WithFields(map[string]interface{}{"component": "upload"}),
		newID:    uuid.NewString,
	}
}

// ObjectKey is <collection>/<uid>/resume-<id>.pdf.
func ObjectKey(collection, uid, id string) string {
	return path.Join(collection, uid, "resume-"+id+".pdf")
}

// Upload checks that body is a PDF within the size limit, stores it and
// patches skills.resume with the returned URL. When ctx ends before the
// upload completes the URL is discarded and the draft is not touched.
func (u *ResumeUploader) Upload(ctx context.Context, identity models.Identity, collection, filename, contentType string, body io.Reader) (string, error) {
	log := u.logger.WithFields(map[string]interface{}{
		"applicantId": identity.UID,
		"filename":    filename,
	})

	data, err := io.ReadAll(io.LimitReader(body, u.maxBytes+1))
	if err != nil {
		metrics.ResumeUploads.WithLabelValues("failed").Inc()
		return "", apperrors.NewUploadFailedError(err)
	}
	if err := u.check(filename, contentType, data); err != nil {
		metrics.ResumeUploads.WithLabelValues("rejected").Inc()
		log.Info("resume rejected", map[string]interface{}{"reason": err.Details})
		return "", err
	}

	key := ObjectKey(collection, identity.UID, u.newID())
	url, err := u.uploader.Upload(ctx, key, pdfContentType, bytes.NewReader(data))
	if ctx.Err() != nil {
		metrics.ResumeUploads.WithLabelValues("cancelled").Inc()
		log.Debug("resume upload abandoned", nil)
		return "", ctx.Err()
	}
	if err != nil {
		metrics.ResumeUploads.WithLabelValues("failed").Inc()
		log.Warn("resume upload failed", map[string]interface{}{"error": err})
		return "", apperrors.NewUploadFailedError(err)
	}

	u.store.PatchApplicant(fieldpath.SetValueAtPath(ResumePath, url))
	metrics.ResumeUploads.WithLabelValues("stored").Inc()
	log.Info("resume stored", map[string]interface{}{"key": key, "bytes": len(data)})
	return url, nil
}

func (u *ResumeUploader) check(filename, contentType string, data []byte) *apperrors.StandardError {
	if int64(len(data)) > u.maxBytes {
		return apperrors.NewUploadRejectedError(fmt.Sprintf("file exceeds %d bytes", u.maxBytes))
	}
	if len(data) == 0 {
		return apperrors.NewUploadRejectedError("file is empty")
	}
	if contentType != "" && !strings.EqualFold(contentType, pdfContentType) {
		return apperrors.NewUploadRejectedError(fmt.Sprintf("unsupported content type %q", contentType))
	}
	if !strings.EqualFold(path.Ext(filename), ".pdf") {
		return apperrors.NewUploadRejectedError("file must have a .pdf extension")
	}
	if sniffed := http.DetectContentType(data); sniffed != pdfContentType {
		return apperrors.NewUploadRejectedError(fmt.Sprintf("file content is %s, not a PDF", sniffed))
	}
	return nil
}
