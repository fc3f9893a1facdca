package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"portal-workers/internal/common/logger"
	"portal-workers/internal/form/fieldpath"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisStore_SetMergeAndGet(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	s := NewRedisStore(client).WithClock(fixedClock)

	_, err := s.Get(ctx, "applicants", "u-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetMerge(ctx, "applicants", "u-1", map[string]interface{}{
		"_id":    "u-1",
		"skills": map[string]interface{}{"github": "https://github.com/ada"},
	}))
	require.NoError(t, s.SetMerge(ctx, "applicants", "u-1", map[string]interface{}{
		"skills": map[string]interface{}{"resume": "https://cdn.example.com/r.pdf"},
	}))

	assert.True(t, mr.Exists("doc:applicants:u-1"))

	doc, err := s.Get(ctx, "applicants", "u-1")
	require.NoError(t, err)
	github, _ := fieldpath.GetValueAtPath(doc, "skills.github")
	resume, _ := fieldpath.GetValueAtPath(doc, "skills.resume")
	stamp, _ := fieldpath.GetValueAtPath(doc, "submission.lastUpdated")
	assert.Equal(t, "https://github.com/ada", github)
	assert.Equal(t, "https://cdn.example.com/r.pdf", resume)
	assert.Equal(t, "2026-03-14T09:30:00Z", stamp)
}

func TestRedisStore_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	client, mr := setupRedis(t)
	require.NoError(t, mr.Set("doc:applicants:u-1", "{not json"))

	s := NewRedisStore(client)
	_, err := s.Get(ctx, "applicants", "u-1")
	assert.ErrorContains(t, err, "decode")

	err = s.SetMerge(ctx, "applicants", "u-1", map[string]interface{}{"_id": "u-1"})
	assert.ErrorContains(t, err, "decode stored document")
}

func TestRedisStore_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, _ := setupRedis(t)
	s := NewRedisStore(client)

	received := make(chan Change, 1)
	unsubscribe, err := s.Subscribe(ctx, "applicants", "u-7", func(c Change) { received <- c })
	require.NoError(t, err)
	defer unsubscribe()

	// Writes to other applicants are not delivered.
	require.NoError(t, s.SetMerge(ctx, "applicants", "u-8", map[string]interface{}{
		"status": map[string]interface{}{"applicationStatus": "rejected"},
	}))
	require.NoError(t, s.SetMerge(ctx, "applicants", "u-7", map[string]interface{}{
		"status": map[string]interface{}{"applicationStatus": "applied"},
	}))

	select {
	case c := <-received:
		assert.Equal(t, "applicants", c.Collection)
		assert.Equal(t, "u-7", c.ID)
		assert.Equal(t, "applied", c.Document.ApplicationStatus())
	case <-time.After(2 * time.Second):
		t.Fatal("change was not delivered")
	}
}

func TestRedisStore_GetFailures(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)
	ctx := context.Background()

	mock.ExpectGet("doc:applicants:u-1").RedisNil()
	_, err := s.Get(ctx, "applicants", "u-1")
	assert.ErrorIs(t, err, ErrNotFound)

	boom := errors.New("connection refused")
	mock.ExpectGet("doc:applicants:u-2").SetErr(boom)
	_, err = s.Get(ctx, "applicants", "u-2")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// refusePublish fails every PUBLISH and passes other commands through.
type refusePublish struct{}

func (refusePublish) DialHook(next redis.DialHook) redis.DialHook { return next }

func (refusePublish) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "publish" {
			err := errors.New("publish refused")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (refusePublish) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStore_PublishFailureKeepsWrite(t *testing.T) {
	ctx := context.Background()
	client, _ := setupRedis(t)
	client.AddHook(refusePublish{})

	log, logs := logger.NewObservedLogger(zapcore.WarnLevel)
	s := NewRedisStore(client).WithLogger(log)

	err := s.SetMerge(ctx, "applicants", "u-1", map[string]interface{}{
		"submission": map[string]interface{}{"submitted": true},
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "applicants", "u-1")
	require.NoError(t, err)
	assert.True(t, doc.Submitted())
	assert.Equal(t, 1, logs.FilterMessage("failed to publish document change").Len())
}
