// Package cycle tracks which selected workout templates were completed since
// the last closure and archives a cycle once every selected key is done.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
)

// Options control reset behavior.
type Options struct {
	// ResetOnConfigChange drops all completed keys when the selection changes.
	// When false, completed keys still in the new selection are kept.
	ResetOnConfigChange bool
}

// Selection is a cycle configuration request.
type Selection struct {
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
}

// Outcome describes the result of a cycle transition.
type Outcome struct {
	State models.CycleState `json:"state"`
	// Counted is true when the transition added a new completed key.
	Counted bool `json:"counted"`
	// Reset is true when a configuration change discarded completed keys.
	Reset  bool                `json:"reset"`
	Closed *models.CycleClosed `json:"closed,omitempty"`
}

// Tracker is the persistent cycle state machine. Writes are last-write-wins;
// Version is bumped on every write so concurrent writers can be detected later.
type Tracker struct {
	catalog *catalog.Catalog
	store   storage.Gateway
	opts    Options
	log     *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	subs []func(models.CycleClosed)
}

// NewTracker creates a cycle tracker.
func NewTracker(c *catalog.Catalog, store storage.Gateway, opts Options, log *slog.Logger) *Tracker {
	return &Tracker{catalog: c, store: store, opts: opts, log: log, now: time.Now}
}

// Subscribe registers fn to receive every CycleClosed event. Handlers run
// synchronously after the new cycle is stored and must not block.
func (t *Tracker) Subscribe(fn func(models.CycleClosed)) {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

// Current returns the open cycle. A user without one starts at cycle 1 with
// every mandatory template selected.
func (t *Tracker) Current(ctx context.Context, userID string) (models.CycleState, error) {
	var st models.CycleState
	err := storage.GetJSON(ctx, t.store, storage.UserPK(userID), storage.SKCycleCurrent, &st)
	if errors.Is(err, storage.ErrNotFound) {
		return t.initial(), nil
	}
	if err != nil {
		return models.CycleState{}, fmt.Errorf("loading current cycle: %w", err)
	}
	if st.CompletedWorkoutKeys == nil {
		st.CompletedWorkoutKeys = []string{}
	}
	return st, nil
}

// Configure changes which templates count toward the cycle. An unchanged
// selection (compared as sets) is a no-op.
func (t *Tracker) Configure(ctx context.Context, userID string, sel Selection) (Outcome, error) {
	keys, err := t.catalog.Select(sel.Include, sel.Exclude)
	if err != nil {
		return Outcome{}, err
	}

	t.mu.Lock()
	cur, err := t.Current(ctx, userID)
	if err != nil {
		t.mu.Unlock()
		return Outcome{}, err
	}
	if models.SameKeys(cur.SelectedWorkoutKeys, keys) {
		t.mu.Unlock()
		return Outcome{State: cur}, nil
	}

	next := cur
	next.SelectedWorkoutKeys = keys
	out := Outcome{}
	if t.opts.ResetOnConfigChange {
		out.Reset = len(cur.CompletedWorkoutKeys) > 0
		next.CompletedWorkoutKeys = []string{}
		next.WorkoutRefs = nil
	} else {
		next.CompletedWorkoutKeys, next.WorkoutRefs = retain(cur, keys)
		out.Reset = len(next.CompletedWorkoutKeys) < len(cur.CompletedWorkoutKeys)
	}

	if closes(next) {
		out.State, out.Closed, err = t.close(ctx, userID, next)
	} else {
		out.State, err = t.save(ctx, userID, next)
	}
	subs := t.subs
	t.mu.Unlock()
	if err != nil {
		return Outcome{}, err
	}

	t.log.Info("cycle configured", "user", userID, "cycle", cur.Number, "selected", keys, "reset", out.Reset)
	notify(subs, out.Closed)
	return out, nil
}

// Complete records that a complete workout for key was saved under workoutRef.
// Keys outside the selection are ignored and repeated keys are no-ops. When the
// completed set equals the non-empty selection, the cycle is archived, a new
// cycle is opened and CycleClosed is emitted.
func (t *Tracker) Complete(ctx context.Context, userID, key, workoutRef string) (Outcome, error) {
	t.mu.Lock()
	cur, err := t.Current(ctx, userID)
	if err != nil {
		t.mu.Unlock()
		return Outcome{}, err
	}
	if !cur.IsSelected(key) || cur.IsCompleted(key) {
		t.mu.Unlock()
		t.log.Debug("workout not counted", "user", userID, "template", key, "cycle", cur.Number)
		return Outcome{State: cur}, nil
	}

	next := cur
	next.CompletedWorkoutKeys = append(append([]string{}, cur.CompletedWorkoutKeys...), key)
	next.WorkoutRefs = make(map[string]string, len(cur.WorkoutRefs)+1)
	for k, v := range cur.WorkoutRefs {
		next.WorkoutRefs[k] = v
	}
	next.WorkoutRefs[key] = workoutRef

	out := Outcome{Counted: true}
	if closes(next) {
		out.State, out.Closed, err = t.close(ctx, userID, next)
	} else {
		out.State, err = t.save(ctx, userID, next)
	}
	subs := t.subs
	t.mu.Unlock()
	if err != nil {
		return Outcome{}, err
	}

	t.log.Info("workout counted", "user", userID, "template", key, "cycle", cur.Number,
		"completed", len(next.CompletedWorkoutKeys), "selected", len(next.SelectedWorkoutKeys))
	notify(subs, out.Closed)
	return out, nil
}

// Archive loads one closed cycle.
func (t *Tracker) Archive(ctx context.Context, userID string, number int) (models.CycleArchive, error) {
	var a models.CycleArchive
	if err := storage.GetJSON(ctx, t.store, storage.UserPK(userID), storage.CycleSK(number), &a); err != nil {
		return models.CycleArchive{}, err
	}
	return a, nil
}

// Archives returns closed cycles numbered from..to inclusive, oldest first.
// A to of 0 means no upper bound.
func (t *Tracker) Archives(ctx context.Context, userID string, from, to int) ([]models.CycleArchive, error) {
	if to <= 0 {
		to = maxCycleNumber
	}
	lo, hi := storage.CycleRange(from, to)
	items, err := t.store.QueryRange(ctx, storage.IndexGSI1, storage.CyclesIndexPK(userID), lo, hi)
	if err != nil {
		return nil, fmt.Errorf("querying archives: %w", err)
	}
	archived := items[:0]
	for _, it := range items {
		if strings.HasPrefix(it.SK, storage.PrefixCycle) {
			archived = append(archived, it)
		}
	}
	return storage.DecodeAll[models.CycleArchive](archived)
}

// LatestArchive returns the most recently closed cycle, or ErrNotFound.
func (t *Tracker) LatestArchive(ctx context.Context, userID string) (models.CycleArchive, error) {
	items, err := t.store.QueryByPrefix(ctx, storage.UserPK(userID), storage.PrefixCycle, true, 2)
	if err != nil {
		return models.CycleArchive{}, err
	}
	for _, it := range items {
		if it.SK == storage.SKCycleCurrent {
			continue
		}
		out, err := storage.DecodeAll[models.CycleArchive]([]storage.Item{it})
		if err != nil {
			return models.CycleArchive{}, err
		}
		return out[0], nil
	}
	return models.CycleArchive{}, storage.ErrNotFound
}

const maxCycleNumber = 999999

func (t *Tracker) initial() models.CycleState {
	keys := t.catalog.MandatoryKeys()
	if keys == nil {
		keys = []string{}
	}
	now := t.now().UTC()
	return models.CycleState{
		Number:               1,
		SelectedWorkoutKeys:  keys,
		CompletedWorkoutKeys: []string{},
		StartedAt:            now,
		UpdatedAt:            now,
	}
}

func (t *Tracker) save(ctx context.Context, userID string, st models.CycleState) (models.CycleState, error) {
	st.Version++
	st.UpdatedAt = t.now().UTC()
	item := storage.Item{PK: storage.UserPK(userID), SK: storage.SKCycleCurrent}
	if err := storage.PutJSON(ctx, t.store, item, st); err != nil {
		return models.CycleState{}, fmt.Errorf("saving cycle %d: %w", st.Number, err)
	}
	return st, nil
}

// close archives st and opens the next cycle with the same selection. The
// archive is written first so that a failed reset can be retried; rewriting
// the same archive is harmless.
func (t *Tracker) close(ctx context.Context, userID string, st models.CycleState) (models.CycleState, *models.CycleClosed, error) {
	closedAt := t.now().UTC()
	archive := models.CycleArchive{
		Number:               st.Number,
		SelectedWorkoutKeys:  st.SelectedWorkoutKeys,
		CompletedWorkoutKeys: st.CompletedWorkoutKeys,
		WorkoutRefs:          st.WorkoutRefs,
		StartedAt:            st.StartedAt,
		ClosedAt:             closedAt,
	}
	item := storage.Item{
		PK:     storage.UserPK(userID),
		SK:     storage.CycleSK(st.Number),
		GSI1PK: storage.CyclesIndexPK(userID),
		GSI1SK: storage.ArchiveIndexSK(st.Number),
	}
	if err := storage.PutJSON(ctx, t.store, item, archive); err != nil {
		return models.CycleState{}, nil, fmt.Errorf("archiving cycle %d: %w", st.Number, err)
	}

	next := models.CycleState{
		Number:               st.Number + 1,
		SelectedWorkoutKeys:  st.SelectedWorkoutKeys,
		CompletedWorkoutKeys: []string{},
		StartedAt:            closedAt,
		Version:              st.Version,
	}
	saved, err := t.save(ctx, userID, next)
	if err != nil {
		return models.CycleState{}, nil, err
	}
	t.log.Info("cycle closed", "user", userID, "cycle", st.Number, "workouts", len(st.CompletedWorkoutKeys))
	return saved, &models.CycleClosed{
		UserID:        userID,
		CycleNumber:   st.Number,
		CompletedKeys: st.CompletedWorkoutKeys,
		SelectedCount: len(st.SelectedWorkoutKeys),
		WorkoutRefs:   st.WorkoutRefs,
		ClosedAt:      closedAt,
	}, nil
}

func closes(st models.CycleState) bool {
	return len(st.SelectedWorkoutKeys) > 0 && models.SameKeys(st.CompletedWorkoutKeys, st.SelectedWorkoutKeys)
}

// retain keeps the completed keys (and their refs) that are still selected.
func retain(st models.CycleState, selected []string) ([]string, map[string]string) {
	in := make(map[string]bool, len(selected))
	for _, k := range selected {
		in[k] = true
	}
	keys := []string{}
	var refs map[string]string
	for _, k := range st.CompletedWorkoutKeys {
		if !in[k] {
			continue
		}
		keys = append(keys, k)
		if ref, ok := st.WorkoutRefs[k]; ok {
			if refs == nil {
				refs = make(map[string]string)
			}
			refs[k] = ref
		}
	}
	return keys, refs
}

func notify(subs []func(models.CycleClosed), ev *models.CycleClosed) {
	if ev == nil {
		return
	}
	for _, fn := range subs {
		fn(*ev)
	}
}
