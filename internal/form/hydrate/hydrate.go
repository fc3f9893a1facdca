// Package hydrate loads an applicant's remote record into the draft store
// when the form opens, creating the record first if it does not exist.
package hydrate

import (
	"context"
	"errors"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/form/draft"
	"portal-workers/internal/models"
	"portal-workers/internal/storage/docstore"
)

type Hydrator struct {
	docs   docstore.Store
	store  *draft.Store
	logger logger.Logger
}

func New(docs docstore.Store, store *draft.Store, log logger.Logger) *Hydrator {
	return &Hydrator{docs: docs, store: store, logger: log}
}

// Hydrate resets the store when identity or collection is absent. Otherwise
// it loads the remote record, or persists a fresh one seeded from identity and
// loads that. If ctx ends before the fetch completes the result is discarded
// and the store is left untouched.
func (h *Hydrator) Hydrate(ctx context.Context, identity *models.Identity, collection string) error {
	if identity == nil || identity.UID == "" || collection == "" {
		h.store.Reset()
		return nil
	}
	uid := identity.UID
	log := h.logger.WithFields(map[string]interface{}{
		"applicantId": uid,
		"collection":  collection,
	})

	doc, err := h.docs.Get(ctx, collection, uid)
	switch {
	case ctx.Err() != nil:
		log.Debug("hydration abandoned", nil)
		return ctx.Err()

	case errors.Is(err, docstore.ErrNotFound):
		fresh := models.NewApplicantDraft(*identity)
		if err := h.docs.SetMerge(ctx, collection, uid, fresh); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("failed to persist fresh applicant draft", map[string]interface{}{"error": err})
			return apperrors.NewHydrationFailedError(uid, err)
		}
		log.Info("created applicant draft", nil)
		doc = fresh

	case err != nil:
		log.Error("failed to load applicant draft", map[string]interface{}{"error": err})
		return apperrors.NewHydrationFailedError(uid, err)

	default:
		doc = Normalize(doc)
	}

	if ctx.Err() != nil {
		log.Debug("hydration abandoned", nil)
		return ctx.Err()
	}
	h.store.SetApplicant(doc)
	return nil
}

// Normalize fills submission.submitted with false when the record lacks it.
// A submission that is not an object (null, a string) is replaced; anything
// else already present is kept.
func Normalize(doc models.ApplicantDraft) models.ApplicantDraft {
	defaults := map[string]interface{}{
		models.KeySubmission: map[string]interface{}{models.KeySubmitted: false},
	}
	if _, ok := doc[models.KeySubmission].(map[string]interface{}); !ok {
		doc = draft.Clone(doc)
		delete(doc, models.KeySubmission)
	}
	return models.ApplicantDraft(draft.Merge(defaults, doc))
}
