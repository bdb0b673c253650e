// Package coach saves finished workouts, applies them to the training cycle
// and falls back to the local outbox when the store is unreachable.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/cycle"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/session"
	"github.com/ibarani/fitforge/internal/storage"
)

// Outbox entry kinds.
const (
	KindWorkout    = "workout"
	KindCompletion = "completion"
)

// OfflineMessage is shown when a save was queued locally.
const OfflineMessage = "working offline, will retry"

// AnalysisTrigger starts an analysis in the background.
type AnalysisTrigger interface {
	Trigger(ev models.CycleClosed)
}

type completion struct {
	TemplateKey string `json:"template_key"`
	WorkoutRef  string `json:"workout_ref"`
}

// Coach orchestrates workout saves.
type Coach struct {
	catalog  *catalog.Catalog
	tracker  *session.Tracker
	store    storage.Gateway
	cycles   *cycle.Tracker
	analysis AnalysisTrigger
	outbox   *storage.Outbox
	log      *slog.Logger
	now      func() time.Time
}

// Compile-time check: *Coach finalizes sessions.
var _ session.Finalizer = (*Coach)(nil)

// New creates a Coach. outbox may be nil, in which case store failures are
// returned to the caller.
func New(c *catalog.Catalog, tracker *session.Tracker, store storage.Gateway, cycles *cycle.Tracker, analysis AnalysisTrigger, outbox *storage.Outbox, log *slog.Logger) *Coach {
	return &Coach{
		catalog:  c,
		tracker:  tracker,
		store:    store,
		cycles:   cycles,
		analysis: analysis,
		outbox:   outbox,
		log:      log,
		now:      time.Now,
	}
}

// SaveWorkout persists a workout and, when it is complete, counts it toward
// the open cycle. If the store is unreachable the save is queued in the
// outbox and the result is marked offline.
func (c *Coach) SaveWorkout(ctx context.Context, userID string, s *models.WorkoutSession) (*models.SaveResult, error) {
	if !c.catalog.Has(s.TemplateKey) {
		return nil, models.Invalid("template_key", "unknown template %q", s.TemplateKey)
	}
	w := s.Clone()
	w.UserID = userID
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Date == "" {
		w.Date = c.now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", w.Date); err != nil {
		return nil, models.Invalid("date", "must be YYYY-MM-DD, got %q", w.Date)
	}
	if w.Sets == nil {
		w.Sets = map[string][]models.SetRecord{}
	}
	if w.ExerciseRPE == nil {
		w.ExerciseRPE = map[string]int{}
	}
	for name, rpe := range w.ExerciseRPE {
		if rpe < 1 || rpe > 10 {
			return nil, models.Invalid("rpe", "%q: must be between 1 and 10, got %d", name, rpe)
		}
	}
	if w.CompletedAt == nil && c.tracker.IsComplete(w) {
		at := c.now().UTC()
		w.CompletedAt = &at
	}
	w.UpdatedAt = c.now().UTC()

	res, err := c.save(ctx, userID, w)
	if models.IsPersistence(err) {
		return c.queue(ctx, userID, KindWorkout, w, err)
	}
	return res, err
}

// save writes the workout and applies a completed one to the cycle.
func (c *Coach) save(ctx context.Context, userID string, w *models.WorkoutSession) (*models.SaveResult, error) {
	sk, err := storage.PutWorkout(ctx, c.store, w)
	if err != nil {
		return nil, fmt.Errorf("saving workout: %w", err)
	}
	res := &models.SaveResult{WorkoutSK: sk, Complete: w.CompletedAt != nil}
	if !res.Complete {
		c.log.Info("workout saved", "user", userID, "template", w.TemplateKey, "date", w.Date, "complete", false)
		return res, nil
	}

	out, err := c.cycles.Complete(ctx, userID, w.TemplateKey, sk)
	if models.IsPersistence(err) {
		// The workout record is stored; only the cycle update is queued.
		queued, qerr := c.queue(ctx, userID, KindCompletion, completion{TemplateKey: w.TemplateKey, WorkoutRef: sk}, err)
		if qerr != nil {
			return nil, qerr
		}
		queued.WorkoutSK = sk
		queued.Complete = true
		return queued, nil
	}
	if err != nil {
		return nil, err
	}
	res.Counted = out.Counted
	res.CycleClosed = out.Closed
	c.log.Info("workout saved", "user", userID, "template", w.TemplateKey, "date", w.Date,
		"complete", true, "counted", out.Counted, "cycle_closed", out.Closed != nil)
	return res, nil
}

func (c *Coach) queue(ctx context.Context, userID, kind string, v any, cause error) (*models.SaveResult, error) {
	if c.outbox == nil {
		return nil, cause
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s for outbox: %w", kind, err)
	}
	id, err := c.outbox.Enqueue(context.WithoutCancel(ctx), kind, userID, payload)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	c.log.Warn("store unavailable, queued locally", "user", userID, "kind", kind, "outbox_id", id, "error", cause)
	return &models.SaveResult{Offline: true, Message: OfflineMessage}, nil
}

// TriggerAnalysis starts the analysis of an archived cycle. A cycleNumber of
// 0 selects the most recently closed cycle. Returns the cycle number.
func (c *Coach) TriggerAnalysis(ctx context.Context, userID string, cycleNumber int) (int, error) {
	var (
		a   models.CycleArchive
		err error
	)
	if cycleNumber <= 0 {
		a, err = c.cycles.LatestArchive(ctx, userID)
	} else {
		a, err = c.cycles.Archive(ctx, userID, cycleNumber)
	}
	if err != nil {
		return 0, err
	}
	c.analysis.Trigger(models.CycleClosed{
		UserID:        userID,
		CycleNumber:   a.Number,
		CompletedKeys: a.CompletedWorkoutKeys,
		SelectedCount: len(a.SelectedWorkoutKeys),
		WorkoutRefs:   a.WorkoutRefs,
		ClosedAt:      a.ClosedAt,
	})
	c.log.Info("analysis triggered", "user", userID, "cycle", a.Number)
	return a.Number, nil
}
