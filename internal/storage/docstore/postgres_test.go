package docstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"portal-workers/internal/form/fieldpath"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// jsonDoc matches a JSON-encoded document argument against a predicate.
type jsonDoc func(map[string]interface{}) bool

func (m jsonDoc) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return false
	}
	return m(doc)
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewPostgresStore(db, "")
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(selectDocumentQuery)).
		WithArgs("applicants", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"_id":"u-1","submission":{"submitted":true}}`)))

	doc, err := s.Get(ctx, "applicants", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", doc.ID())
	assert.True(t, doc.Submitted())

	mock.ExpectQuery(regexp.QuoteMeta(selectDocumentQuery)).
		WithArgs("applicants", "u-2").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err = s.Get(ctx, "applicants", "u-2")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMergeExisting(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewPostgresStore(db, "")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockDocumentQuery)).
		WithArgs("applicants", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"_id":"u-1","basicInfo":{"email":"ada@example.com"}}`)))
	mock.ExpectExec(regexp.QuoteMeta(upsertDocumentQuery)).
		WithArgs("applicants", "u-1", jsonDoc(func(doc map[string]interface{}) bool {
			email, _ := fieldpath.GetValueAtPath(doc, "basicInfo.email")
			school, _ := fieldpath.GetValueAtPath(doc, "basicInfo.school")
			_, stamped := fieldpath.GetValueAtPath(doc, "submission.lastUpdated")
			return email == "ada@example.com" && school == "MIT" && stamped
		})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(notifyQuery)).
		WithArgs(NotifyChannel, `{"collection":"applicants","id":"u-1"}`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := s.SetMerge(context.Background(), "applicants", "u-1", map[string]interface{}{
		"basicInfo": map[string]interface{}{"school": "MIT"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMergeCreates(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewPostgresStore(db, "")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockDocumentQuery)).
		WithArgs("applicants", "u-9").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectExec(regexp.QuoteMeta(upsertDocumentQuery)).
		WithArgs("applicants", "u-9", jsonDoc(func(doc map[string]interface{}) bool {
			return doc["_id"] == "u-9"
		})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(notifyQuery)).
		WithArgs(NotifyChannel, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, s.SetMerge(context.Background(), "applicants", "u-9", map[string]interface{}{"_id": "u-9"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMergeRollsBackOnFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewPostgresStore(db, "")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockDocumentQuery)).
		WithArgs("applicants", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectExec(regexp.QuoteMeta(upsertDocumentQuery)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SetMerge(context.Background(), "applicants", "u-1", map[string]interface{}{})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SubscribeRequiresDSN(t *testing.T) {
	db, _ := setupMockDB(t)
	_, err := NewPostgresStore(db, "").Subscribe(context.Background(), "applicants", "u-1", func(Change) {})
	assert.Error(t, err)
}

func TestPostgresStore_Dispatch(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewPostgresStore(db, "")

	mock.ExpectQuery(regexp.QuoteMeta(selectDocumentQuery)).
		WithArgs("applicants", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).
			AddRow([]byte(`{"_id":"u-1","status":{"applicationStatus":"applied"}}`)))

	var got []Change
	record := func(c Change) { got = append(got, c) }

	s.dispatch(context.Background(), "applicants", "u-1", `{"collection":"applicants","id":"u-1"}`, record)
	s.dispatch(context.Background(), "applicants", "u-1", `{"collection":"other","id":"u-1"}`, record)
	s.dispatch(context.Background(), "applicants", "u-1", `not json`, record)
	// Another applicant's change runs no query.
	s.dispatch(context.Background(), "applicants", "u-1", `{"collection":"applicants","id":"u-2"}`, record)

	require.Len(t, got, 1)
	assert.Equal(t, "applied", got[0].Document.ApplicationStatus())
	assert.NoError(t, mock.ExpectationsWereMet())
}
