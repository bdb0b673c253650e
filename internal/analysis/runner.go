package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Analysis outcomes reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// loadConcurrency caps parallel workout reads for one cycle.
const loadConcurrency = 8

// RetryPolicy bounds how often a failed analysis is retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy retries three times starting at two seconds.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second}

// Observer receives one call per finished analysis.
type Observer interface {
	ObserveAnalysis(outcome string, elapsed time.Duration)
}

// Runner executes analyses off the request path. Each closed cycle is
// analyzed at most once at a time; failures are retried with exponential
// backoff and, after the last attempt, a placeholder result is stored.
type Runner struct {
	builder  *Builder
	store    storage.Gateway
	policy   RetryPolicy
	observer Observer
	log      *slog.Logger

	flights singleflight.Group
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// NewRunner creates a Runner. observer may be nil.
func NewRunner(b *Builder, store storage.Gateway, policy RetryPolicy, observer Observer, log *slog.Logger) *Runner {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultRetryPolicy.InitialBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		builder:  b,
		store:    store,
		policy:   policy,
		observer: observer,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Trigger starts the analysis of a closed cycle in the background and
// returns immediately. Triggers after Close are dropped.
func (r *Runner) Trigger(ev models.CycleClosed) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log.Warn("analysis runner closed, dropping trigger", "user", ev.UserID, "cycle", ev.CycleNumber)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if _, err := r.Run(r.ctx, ev.UserID, ev.CycleNumber, ev.WorkoutRefs); err != nil {
			r.log.Error("cycle analysis failed", "user", ev.UserID, "cycle", ev.CycleNumber, "error", err)
		}
	}()
}

// Run analyzes one cycle synchronously. Concurrent runs for the same cycle
// share a single execution.
func (r *Runner) Run(ctx context.Context, userID string, cycleNumber int, refs map[string]string) (models.AnalysisResult, error) {
	key := fmt.Sprintf("%s#%d", userID, cycleNumber)
	v, err, _ := r.flights.Do(key, func() (any, error) {
		return r.run(ctx, userID, cycleNumber, refs)
	})
	res, _ := v.(models.AnalysisResult)
	return res, err
}

func (r *Runner) run(ctx context.Context, userID string, cycleNumber int, refs map[string]string) (models.AnalysisResult, error) {
	start := time.Now()
	backoff := r.policy.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, backoff); err != nil {
				r.observe(OutcomeFailed, start)
				return models.AnalysisResult{}, fmt.Errorf("analysis of cycle %d interrupted: %w", cycleNumber, err)
			}
			backoff = min(backoff*2, r.policy.MaxBackoff)
		}

		res, err := r.attempt(ctx, userID, cycleNumber, refs)
		if err == nil {
			if res.Degraded {
				r.observe(OutcomeDegraded, start)
			} else {
				r.observe(OutcomeOK, start)
			}
			return res, nil
		}
		lastErr = err
		r.log.Warn("analysis attempt failed", "user", userID, "cycle", cycleNumber,
			"attempt", attempt, "max_attempts", r.policy.MaxAttempts, "error", err)
	}

	res, err := r.builder.StoreUnavailable(ctx, userID, cycleNumber, lastErr)
	r.observe(OutcomeFailed, start)
	if err != nil {
		return models.AnalysisResult{}, errors.Join(lastErr, err)
	}
	return res, &models.AnalysisError{CycleID: CycleID(cycleNumber), Err: lastErr}
}

func (r *Runner) attempt(ctx context.Context, userID string, cycleNumber int, refs map[string]string) (models.AnalysisResult, error) {
	data, err := r.LoadCycle(ctx, userID, refs)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	return r.builder.AnalyzeCycle(ctx, userID, cycleNumber, data)
}

// LoadCycle reads the referenced workouts and the user profile concurrently
// and aggregates them. References to missing workouts are skipped.
func (r *Runner) LoadCycle(ctx context.Context, userID string, refs map[string]string) (CycleData, error) {
	keys := sortedKeys(refs)
	workouts := make([]*models.WorkoutSession, len(keys))
	var profile models.UserProfile

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	g.Go(func() error {
		p, err := storage.GetProfile(gctx, r.store, userID)
		if err != nil {
			return fmt.Errorf("loading profile: %w", err)
		}
		profile = p
		return nil
	})
	for i, k := range keys {
		g.Go(func() error {
			w, err := storage.GetWorkout(gctx, r.store, userID, refs[k])
			if errors.Is(err, storage.ErrNotFound) {
				r.log.Warn("cycle workout missing", "user", userID, "template", k, "ref", refs[k])
				return nil
			}
			if err != nil {
				return fmt.Errorf("loading workout %s: %w", refs[k], err)
			}
			workouts[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CycleData{}, err
	}

	found := make([]models.WorkoutSession, 0, len(workouts))
	for _, w := range workouts {
		if w != nil {
			found = append(found, *w)
		}
	}
	return Aggregate(found, profile), nil
}

// Close stops accepting triggers and waits for running analyses. If ctx ends
// first, running analyses are cancelled.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	defer r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) observe(outcome string, start time.Time) {
	if r.observer != nil {
		r.observer.ObserveAnalysis(outcome, time.Since(start))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
