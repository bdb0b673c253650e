package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
)

// ErrNoSession is returned when a mutation targets a template with no active session.
var ErrNoSession = errors.New("no active session for template")

// Finalizer persists a session that just became complete and applies it to the cycle.
type Finalizer interface {
	SaveWorkout(ctx context.Context, userID string, s *models.WorkoutSession) (*models.SaveResult, error)
}

// View is what callers see after every session operation.
type View struct {
	Session  *models.WorkoutSession `json:"session"`
	Complete bool                   `json:"complete"`
	Rest     *RestSignal            `json:"rest,omitempty"`
	Saved    *models.SaveResult     `json:"saved,omitempty"`
	Previous *models.WorkoutSession `json:"previous,omitempty"`
}

// Service holds each user's active sessions, one per template, so switching
// templates never discards entered data.
type Service struct {
	catalog   *catalog.Catalog
	tracker   *Tracker
	timers    *Timers
	drafts    *Drafts
	store     storage.Gateway
	finalizer Finalizer
	log       *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	active map[string]map[string]*models.WorkoutSession
	users  map[string]*sync.Mutex
}

// NewService wires the session components together.
func NewService(c *catalog.Catalog, tracker *Tracker, timers *Timers, drafts *Drafts, store storage.Gateway, finalizer Finalizer, log *slog.Logger) *Service {
	return &Service{
		catalog:   c,
		tracker:   tracker,
		timers:    timers,
		drafts:    drafts,
		store:     store,
		finalizer: finalizer,
		log:       log,
		now:       time.Now,
		active:    make(map[string]map[string]*models.WorkoutSession),
		users:     make(map[string]*sync.Mutex),
	}
}

// Start returns the active session for a template, resuming a cached draft if
// one exists, or begins a new one seeded from the previous completed workout.
// A held session that is complete but not yet saved is finalized first.
func (s *Service) Start(ctx context.Context, userID, templateKey string) (*View, error) {
	tpl, ok := s.catalog.Get(templateKey)
	if !ok {
		return nil, models.Invalid("template", "unknown template %q", templateKey)
	}

	unlock := s.lockUser(userID)
	defer unlock()

	previous, err := storage.LatestWorkout(ctx, s.store, userID, templateKey)
	if err != nil {
		return nil, err
	}

	if cur := s.lookup(userID, templateKey); cur != nil && cur.CompletedAt == nil {
		return s.resume(ctx, userID, cur, previous)
	}

	draft, err := s.drafts.Load(ctx, userID, templateKey)
	if err != nil {
		return nil, err
	}
	if draft != nil && draft.CompletedAt == nil {
		s.setActive(userID, draft)
		s.log.Info("session resumed", "user", userID, "template", templateKey, "session", draft.ID)
		return s.resume(ctx, userID, draft, previous)
	}

	profile, err := storage.GetProfile(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	sess := s.tracker.Init(tpl, previous, profile.Bodyweight)
	sess.ID = uuid.NewString()
	sess.UserID = userID
	s.setActive(userID, sess)
	s.drafts.Save(sess)
	s.log.Info("session started", "user", userID, "template", templateKey, "session", sess.ID)
	return s.view(sess, previous), nil
}

func (s *Service) resume(ctx context.Context, userID string, sess, previous *models.WorkoutSession) (*View, error) {
	if !s.tracker.IsComplete(sess) {
		return s.view(sess, previous), nil
	}
	saved, err := s.finalize(ctx, userID, sess)
	if err != nil {
		return nil, err
	}
	v := s.view(sess, previous)
	v.Saved = saved
	return v, nil
}

// Get returns the active session for a template.
func (s *Service) Get(userID, templateKey string) (*View, error) {
	cur := s.lookup(userID, templateKey)
	if cur == nil {
		return nil, ErrNoSession
	}
	return s.view(cur, nil), nil
}

// UpdateSet replaces one set record.
func (s *Service) UpdateSet(ctx context.Context, userID, templateKey, exercise string, index int, rec models.SetRecord) (*View, error) {
	return s.mutate(ctx, userID, templateKey, func(cur *models.WorkoutSession) (*models.WorkoutSession, error) {
		return s.tracker.UpdateSet(cur, exercise, index, rec)
	})
}

// RecordRPE stores the RPE for one exercise.
func (s *Service) RecordRPE(ctx context.Context, userID, templateKey, exercise string, value int) (*View, error) {
	return s.mutate(ctx, userID, templateKey, func(cur *models.WorkoutSession) (*models.WorkoutSession, error) {
		return s.tracker.RecordRPE(cur, exercise, value)
	})
}

// SkipExercise marks one exercise as skipped.
func (s *Service) SkipExercise(ctx context.Context, userID, templateKey, exercise string) (*View, error) {
	return s.mutate(ctx, userID, templateKey, func(cur *models.WorkoutSession) (*models.WorkoutSession, error) {
		return s.tracker.SkipExercise(cur, exercise)
	})
}

// mutate applies fn and caches the result as a draft. A complete session that
// has not been saved yet is handed to the finalizer; CompletedAt is only set
// once that succeeds, so a failed save is retried on the next call.
func (s *Service) mutate(ctx context.Context, userID, templateKey string, fn func(*models.WorkoutSession) (*models.WorkoutSession, error)) (*View, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	cur := s.lookup(userID, templateKey)
	if cur == nil {
		return nil, ErrNoSession
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	s.setActive(userID, next)

	if next.CompletedAt != nil || !s.tracker.IsComplete(next) {
		s.drafts.Save(next)
		return s.view(next, nil), nil
	}
	saved, err := s.finalize(ctx, userID, next)
	if err != nil {
		return nil, err
	}
	v := s.view(next, nil)
	v.Saved = saved
	return v, nil
}

// finalize saves a complete session and marks it finished. On failure the
// session stays unfinished and its draft is kept for a later attempt.
func (s *Service) finalize(ctx context.Context, userID string, sess *models.WorkoutSession) (*models.SaveResult, error) {
	at := s.now().UTC()
	sess.CompletedAt = &at
	saved, err := s.finalizer.SaveWorkout(ctx, userID, sess)
	if err != nil {
		sess.CompletedAt = nil
		s.drafts.Save(sess)
		s.log.Error("finalizing session failed", "user", userID, "template", sess.TemplateKey, "error", err)
		return nil, fmt.Errorf("finalizing session: %w", err)
	}
	s.drafts.Save(sess)
	return saved, nil
}

func (s *Service) view(sess *models.WorkoutSession, previous *models.WorkoutSession) *View {
	v := &View{
		Session:  sess.Clone(),
		Complete: s.tracker.IsComplete(sess),
		Previous: previous,
	}
	if s.timers != nil {
		if sig, ok := s.timers.Current(sess.UserID); ok {
			v.Rest = &sig
		}
	}
	return v
}

// lockUser serializes read-modify-write on one user's sessions.
func (s *Service) lockUser(userID string) func() {
	s.mu.Lock()
	m, ok := s.users[userID]
	if !ok {
		m = &sync.Mutex{}
		s.users[userID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (s *Service) lookup(userID, templateKey string) *models.WorkoutSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[userID][templateKey]
}

// setActive records sess as the active session for its template.
func (s *Service) setActive(userID string, sess *models.WorkoutSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTemplate, ok := s.active[userID]
	if !ok {
		byTemplate = make(map[string]*models.WorkoutSession)
		s.active[userID] = byTemplate
	}
	byTemplate[sess.TemplateKey] = sess
}
