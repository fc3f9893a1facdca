// Package questions loads operator-edited question sets and keeps their
// compiled schemas warm.
package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "portal-workers/internal/common/errors"
	"portal-workers/internal/common/logger"
	"portal-workers/internal/common/metrics"
	"portal-workers/internal/form/schema"
	"portal-workers/internal/models"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const loadQuestionsQuery = `
	SELECT id, section, title, description, type, form_input, options, other, required, max_words, position
	FROM questions
	WHERE event_id = $1
	ORDER BY section, position, id`

type Config struct {
	CacheTTL        time.Duration
	SchemaCacheSize int
	PreloadLimit    int
}

func DefaultConfig() Config {
	return Config{
		CacheTTL:        10 * time.Minute,
		SchemaCacheSize: 64,
		PreloadLimit:    4,
	}
}

// Repository reads question sets from Postgres through a Redis cache and
// keeps compiled schemas in an in-process LRU. redis may be nil.
type Repository struct {
	config   Config
	db       *sql.DB
	redis    *redis.Client
	logger   logger.Logger
	compiled *lru.Cache[string, compiledEntry]
	group    singleflight.Group
}

type compiledEntry struct {
	schema *schema.CompiledSchema
	set    models.QuestionSet
}

func NewRepository(config Config, db *sql.DB, redisClient *redis.Client, log logger.Logger) (*Repository, error) {
	if config.SchemaCacheSize <= 0 {
		config.SchemaCacheSize = DefaultConfig().SchemaCacheSize
	}
	if config.PreloadLimit <= 0 {
		config.PreloadLimit = DefaultConfig().PreloadLimit
	}
	cache, err := lru.New[string, compiledEntry](config.SchemaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &Repository{
		config:   config,
		db:       db,
		redis:    redisClient,
		logger:   log.WithFields(map[string]interface{}{"component": "questions"}),
		compiled: cache,
	}, nil
}

func cacheKey(eventID string) string {
	return "questions:" + eventID
}

// Load returns the question set for an event, bucketed by section in
// position order.
func (r *Repository) Load(ctx context.Context, eventID string) (models.QuestionSet, error) {
	if set, ok := r.fromCache(ctx, eventID); ok {
		return set, nil
	}

	set, err := r.query(ctx, eventID)
	if err != nil {
		return nil, apperrors.NewQuestionsLoadFailedError(eventID, err)
	}
	r.toCache(ctx, eventID, set)
	return set, nil
}

// Compiled returns the compiled schema for an event together with the set it
// was compiled from. Concurrent misses for the same event share one load.
func (r *Repository) Compiled(ctx context.Context, eventID string) (*schema.CompiledSchema, models.QuestionSet, error) {
	if e, ok := r.compiled.Get(eventID); ok {
		metrics.QuestionCacheLookups.WithLabelValues("schema", "hit").Inc()
		return e.schema, e.set, nil
	}
	metrics.QuestionCacheLookups.WithLabelValues("schema", "miss").Inc()

	v, err, _ := r.group.Do(eventID, func() (interface{}, error) {
		set, err := r.Load(ctx, eventID)
		if err != nil {
			return nil, err
		}
		e := compiledEntry{schema: schema.Compile(set), set: set}
		r.compiled.Add(eventID, e)
		return e, nil
	})
	if err != nil {
		return nil, nil, err
	}
	e := v.(compiledEntry)
	return e.schema, e.set, nil
}

// Preload compiles the schemas of eventIDs concurrently.
func (r *Repository) Preload(ctx context.Context, eventIDs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.PreloadLimit)

	for _, eventID := range eventIDs {
		g.Go(func() error {
			if _, _, err := r.Compiled(ctx, eventID); err != nil {
				return fmt.Errorf("preload %s: %w", eventID, err)
			}
			r.logger.Info("question set preloaded", map[string]interface{}{"eventId": eventID})
			return nil
		})
	}
	return g.Wait()
}

// Invalidate drops both cache tiers for an event so the next load reads
// the database.
func (r *Repository) Invalidate(ctx context.Context, eventID string) error {
	r.compiled.Remove(eventID)
	if r.redis == nil {
		return nil
	}
	if err := r.redis.Del(ctx, cacheKey(eventID)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", eventID, err)
	}
	return nil
}

func (r *Repository) fromCache(ctx context.Context, eventID string) (models.QuestionSet, bool) {
	if r.redis == nil {
		return nil, false
	}
	raw, err := r.redis.Get(ctx, cacheKey(eventID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("question cache read failed", map[string]interface{}{"eventId": eventID, "error": err})
		}
		metrics.QuestionCacheLookups.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}

	var set models.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		r.logger.Warn("discarding malformed cached question set", map[string]interface{}{"eventId": eventID, "error": err})
		metrics.QuestionCacheLookups.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	metrics.QuestionCacheLookups.WithLabelValues("redis", "hit").Inc()
	return set, true
}

func (r *Repository) toCache(ctx context.Context, eventID string, set models.QuestionSet) {
	if r.redis == nil {
		return
	}
	payload, err := json.Marshal(set)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, cacheKey(eventID), payload, r.config.CacheTTL).Err(); err != nil {
		r.logger.Warn("question cache write failed", map[string]interface{}{"eventId": eventID, "error": err})
	}
}

func (r *Repository) query(ctx context.Context, eventID string) (models.QuestionSet, error) {
	rows, err := r.db.QueryContext(ctx, loadQuestionsQuery, eventID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	set := models.QuestionSet{}
	for rows.Next() {
		var (
			q                                models.QuestionDefinition
			section, qType                   string
			description, formInput, maxWords sql.NullString
			options                          []byte
		)
		if err := rows.Scan(&q.ID, &section, &q.Title, &description, &qType, &formInput,
			&options, &q.Other, &q.Required, &maxWords, &q.Position); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}

		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				r.logger.Warn("skipping question with malformed options", map[string]interface{}{
					"eventId":    eventID,
					"questionId": q.ID,
					"error":      err,
				})
				continue
			}
		}
		q.Type = models.QuestionType(qType)
		q.Description = description.String
		q.FormInput = formInput.String
		q.MaxWords = maxWords.String

		sec := models.Section(section)
		set[sec] = append(set[sec], q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return set, nil
}
