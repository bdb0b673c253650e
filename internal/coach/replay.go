package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
)

// DefaultReplayInterval is how often the outbox is drained.
const DefaultReplayInterval = 30 * time.Second

const replayBatch = 50

// Replay re-applies queued writes in order. It stops at the first store
// failure, leaving the rest queued. Entries that fail for any other reason
// cannot succeed later and are moved to the dead-letter table. Returns how
// many entries were applied. Re-applying an entry is safe: workout puts
// overwrite and cycle completion of an already counted key is a no-op.
func (c *Coach) Replay(ctx context.Context) (int, error) {
	if c.outbox == nil {
		return 0, nil
	}
	entries, err := c.outbox.Pending(ctx, replayBatch)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, e := range entries {
		err := c.apply(ctx, e)
		if err == nil {
			if err := c.outbox.Done(ctx, e.ID); err != nil {
				return applied, err
			}
			applied++
			continue
		}
		if ctx.Err() != nil || models.IsPersistence(err) {
			if ferr := c.outbox.Failed(ctx, e.ID, err); ferr != nil {
				return applied, ferr
			}
			return applied, err
		}
		if berr := c.outbox.Bury(ctx, e.ID, err); berr != nil {
			return applied, berr
		}
		c.log.Error("outbox entry cannot be applied, moved to dead letters", "id", e.ID, "kind", e.Kind,
			"user", e.UserID, "attempts", e.Attempts+1, "error", err)
	}
	if applied > 0 {
		c.log.Info("outbox replayed", "applied", applied, "pending", len(entries)-applied)
	}
	return applied, nil
}

func (c *Coach) apply(ctx context.Context, e storage.OutboxEntry) error {
	switch e.Kind {
	case KindWorkout:
		var w models.WorkoutSession
		if err := json.Unmarshal(e.Payload, &w); err != nil {
			return fmt.Errorf("decoding queued workout: %w", err)
		}
		w.UserID = e.UserID
		_, err := c.save(ctx, e.UserID, &w)
		return err
	case KindCompletion:
		var cp completion
		if err := json.Unmarshal(e.Payload, &cp); err != nil {
			return fmt.Errorf("decoding queued completion: %w", err)
		}
		_, err := c.cycles.Complete(ctx, e.UserID, cp.TemplateKey, cp.WorkoutRef)
		return err
	default:
		return fmt.Errorf("unknown outbox kind %q", e.Kind)
	}
}

// RunReplay drains the outbox every interval until ctx is cancelled.
func (c *Coach) RunReplay(ctx context.Context, interval time.Duration) {
	if c.outbox == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Replay(ctx); err != nil {
				c.log.Warn("outbox replay incomplete", "error", err)
			}
		}
	}
}

// Pending reports how many writes are queued locally.
func (c *Coach) Pending(ctx context.Context) (int, error) {
	if c.outbox == nil {
		return 0, nil
	}
	return c.outbox.Count(ctx)
}
