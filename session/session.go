// Package session keeps one carousel and one contact form per visitor.
// A session is opened on a visitor's first request and closed when it sits
// idle past its TTL, when the registry is full, or on shutdown. Closing a
// session stops its auto-advance timer and any pending form reset.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Zachkp/folio/carousel"
	"github.com/Zachkp/folio/contact"
	"github.com/Zachkp/folio/errs"
	"github.com/Zachkp/folio/metrics"
	"github.com/Zachkp/folio/scheduler"
)

const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxSessions = 1000
)

var (
	// ErrClosed is returned after the registry has been closed.
	ErrClosed = errors.New("session registry closed")
	// ErrNoRelay is returned when no contact relay is configured.
	ErrNoRelay = errors.New("contact relay is required")
)

// Config configures a Registry.
type Config struct {
	Projects     []carousel.Project
	Relay        contact.Relay
	AutoAdvance  time.Duration
	ContactReset time.Duration
	TTL          time.Duration
	MaxSessions  int
	Clock        clockwork.Clock
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Session is one visitor's state.
type Session struct {
	ID       string
	Carousel *carousel.Controller
	Contact  *contact.Form

	lastSeen time.Time
}

func (s *Session) close() {
	s.Carousel.Close()
	s.Contact.Close()
}

// Registry holds live sessions.
type Registry struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	sched    *scheduler.Scheduler
	sweepJob string
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AutoAdvance == 0 {
		cfg.AutoAdvance = carousel.DefaultInterval
	}
	if cfg.ContactReset == 0 {
		cfg.ContactReset = contact.DefaultResetAfter
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Relay == nil {
		return nil, errs.Config("session.NewRegistry", ErrNoRelay)
	}

	// Surface dataset problems at startup rather than on the first visit.
	probe, err := carousel.New(cfg.Projects, carousel.WithInterval(cfg.AutoAdvance))
	if err != nil {
		return nil, err
	}
	probe.Close()

	return &Registry{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[string]*Session),
	}, nil
}

// Get returns a live session and marks it as seen.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		s.lastSeen = r.cfg.Clock.Now()
	}
	return s, ok
}

// GetOrOpen returns the session for id, opening a new one when id is unknown.
// The boolean reports whether a session was opened.
func (r *Registry) GetOrOpen(id string) (*Session, bool, error) {
	if s, ok := r.Get(id); ok {
		return s, false, nil
	}
	s, err := r.Open()
	return s, err == nil, err
}

// Open starts a new session.
func (r *Registry) Open() (*Session, error) {
	s, err := r.newSession()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.close()
		return nil, ErrClosed
	}
	var evicted *Session
	if len(r.sessions) >= r.cfg.MaxSessions {
		evicted = r.oldestLocked()
		delete(r.sessions, evicted.ID)
	}
	s.lastSeen = r.cfg.Clock.Now()
	r.sessions[s.ID] = s
	r.setGaugeLocked()
	r.mu.Unlock()

	if evicted != nil {
		evicted.close()
		r.countEviction("capacity", 1)
		r.log.Debug("session evicted", zap.String("session", evicted.ID), zap.String("reason", "capacity"))
	}
	s.Carousel.Start()
	r.log.Debug("session opened", zap.String("session", s.ID))
	return s, nil
}

func (r *Registry) newSession() (*Session, error) {
	id := uuid.NewString()
	log := r.log.With(zap.String("session", id))

	copts := []carousel.Option{
		carousel.WithClock(r.cfg.Clock),
		carousel.WithInterval(r.cfg.AutoAdvance),
		carousel.WithLogger(log),
	}
	fopts := []contact.FormOption{
		contact.WithClock(r.cfg.Clock),
		contact.WithResetAfter(r.cfg.ContactReset),
		contact.WithLogger(log),
	}
	if m := r.cfg.Metrics; m != nil {
		copts = append(copts, carousel.WithObserver(func(carousel.View) { m.CarouselTransitions.Inc() }))
		fopts = append(fopts, contact.WithObserver(func(s contact.Snapshot) {
			if s.Status == contact.StatusSuccess || s.Status == contact.StatusError {
				m.ContactSubmissions.WithLabelValues(string(s.Status)).Inc()
			}
		}))
	}

	ctl, err := carousel.New(r.cfg.Projects, copts...)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:       id,
		Carousel: ctl,
		Contact:  contact.NewForm(r.cfg.Relay, fopts...),
	}, nil
}

func (r *Registry) oldestLocked() *Session {
	var oldest *Session
	for _, s := range r.sessions {
		if oldest == nil || s.lastSeen.Before(oldest.lastSeen) {
			oldest = s
		}
	}
	return oldest
}

// Sweep closes sessions idle for longer than the TTL and reports how many.
func (r *Registry) Sweep() int {
	cutoff := r.cfg.Clock.Now().Add(-r.cfg.TTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.setGaugeLocked()
	r.mu.Unlock()

	for _, s := range expired {
		s.close()
	}
	if len(expired) > 0 {
		r.countEviction("idle", len(expired))
		r.log.Info("idle sessions closed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Schedule registers the idle sweep on s. Close removes the job again.
func (r *Registry) Schedule(s *scheduler.Scheduler, every time.Duration) (string, error) {
	id, err := s.Every("session-sweep", every, func() { r.Sweep() })
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.sched, r.sweepJob = s, id
	r.mu.Unlock()
	return id, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session and removes the sweep job. Later opens fail
// with ErrClosed. Calling Close again does nothing.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.setGaugeLocked()
	sched, job := r.sched, r.sweepJob
	r.sched, r.sweepJob = nil, ""
	r.mu.Unlock()

	if sched != nil {
		if err := sched.Remove(job); err != nil {
			r.log.Warn("failed to remove session sweep", zap.Error(err))
		}
	}
	for _, s := range all {
		s.close()
	}
	r.log.Info("session registry closed", zap.Int("sessions", len(all)))
}

func (r *Registry) setGaugeLocked() {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}

func (r *Registry) countEviction(reason string, n int) {
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.SessionsEvicted.WithLabelValues(reason).Add(float64(n))
	}
}
