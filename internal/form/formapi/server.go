// Package formapi serves the application form over HTTP. It keeps one form
// session per applicant and event, opened on first use and closed after it
// has been idle for a while.
package formapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"portal-workers/internal/common/logger"
	"portal-workers/internal/form/session"
	"portal-workers/internal/models"

	"golang.org/x/sync/singleflight"
)

// Authenticator resolves a bearer token into the applicant it belongs to.
type Authenticator interface {
	UserInfo(ctx context.Context, accessToken string) (*models.Identity, error)
}

type Config struct {
	// Collection holds the applicant records.
	Collection  string
	IdleTimeout time.Duration
	// MaxBodyBytes bounds JSON request bodies. Resume uploads are bounded by
	// the session's resume limit instead.
	MaxBodyBytes int64
}

const (
	defaultIdleTimeout  = 30 * time.Minute
	defaultMaxBodyBytes = 1 << 20
)

type sessionKey struct {
	uid     string
	eventID string
}

func (k sessionKey) String() string { return k.uid + "/" + k.eventID }

type entry struct {
	sess     *session.Session
	lastUsed time.Time
}

type Server struct {
	cfg    Config
	deps   session.Deps
	auth   Authenticator
	logger logger.Logger
	now    func() time.Time
	open   func(ctx context.Context, deps session.Deps, identity *models.Identity, collection, eventID string) (*session.Session, error)

	opening  singleflight.Group
	mu       sync.Mutex
	sessions map[sessionKey]*entry
}

func NewServer(cfg Config, deps session.Deps, auth Authenticator, log logger.Logger) *Server {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	deps.Logger = log
	return &Server{
		cfg:      cfg,
		deps:     deps,
		auth:     auth,
		logger:   log.WithFields(map[string]interface{}{"component": "formapi"}),
		now:      time.Now,
		open:     session.Open,
		sessions: map[sessionKey]*entry{},
	}
}

// Handler returns the routes under /api/form/.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/form/{eventId}/session", s.withIdentity(s.handleOpen))
	mux.Handle("DELETE /api/form/{eventId}/session", s.withIdentity(s.handleClose))
	mux.Handle("GET /api/form/{eventId}/draft", s.withIdentity(s.handleGetDraft))
	mux.Handle("PATCH /api/form/{eventId}/draft", s.withIdentity(s.handlePatchDraft))
	mux.Handle("POST /api/form/{eventId}/sections/{section}/validate", s.withIdentity(s.handleValidate))
	mux.Handle("GET /api/form/{eventId}/review", s.withIdentity(s.handleReview))
	mux.Handle("POST /api/form/{eventId}/resume", s.withIdentity(s.handleResume))
	mux.Handle("POST /api/form/{eventId}/submit", s.withIdentity(s.handleSubmit))
	return mux
}

// session returns the open session for identity and eventID, opening it when
// there is none. Concurrent first requests share one Open.
func (s *Server) session(ctx context.Context, identity *models.Identity, eventID string) (*session.Session, error) {
	key := sessionKey{uid: identity.UID, eventID: eventID}
	if sess := s.lookup(key); sess != nil {
		return sess, nil
	}

	v, err, _ := s.opening.Do(key.String(), func() (interface{}, error) {
		if sess := s.lookup(key); sess != nil {
			return sess, nil
		}
		sess, err := s.open(ctx, s.deps, identity, s.cfg.Collection, eventID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.sessions[key] = &entry{sess: sess, lastUsed: s.now()}
		s.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

func (s *Server) lookup(key sessionKey) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[key]
	if !ok {
		return nil
	}
	e.lastUsed = s.now()
	return e.sess
}

// release removes the session from the table and returns it, or nil.
func (s *Server) release(key sessionKey) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[key]
	if !ok {
		return nil
	}
	delete(s.sessions, key)
	return e.sess
}

// shutdown saves pending edits and closes sess.
func (s *Server) shutdown(ctx context.Context, sess *session.Session) {
	res := sess.Flush(ctx)
	sess.Close()
	s.logger.Debug("form session released", map[string]interface{}{
		"applicantId": sess.Identity().UID,
		"flush":       string(res),
	})
}

// Run closes idle sessions until ctx is done, then closes the rest.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.CloseAll(closeCtx)
			cancel()
			return
		case <-ticker.C:
			s.reap(ctx)
		}
	}
}

func (s *Server) reap(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	var idle []*session.Session
	for key, e := range s.sessions {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.sess)
			delete(s.sessions, key)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.shutdown(ctx, sess)
	}
	if len(idle) > 0 {
		s.logger.Info("closed idle form sessions", map[string]interface{}{"count": len(idle)})
	}
}

// CloseAll flushes and closes every open session.
func (s *Server) CloseAll(ctx context.Context) {
	s.mu.Lock()
	all := make([]*session.Session, 0, len(s.sessions))
	for key, e := range s.sessions {
		all = append(all, e.sess)
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	for _, sess := range all {
		s.shutdown(ctx, sess)
	}
}

// OpenSessions reports how many sessions are currently held.
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

var errNotObject = errors.New("request body must be a JSON object")
