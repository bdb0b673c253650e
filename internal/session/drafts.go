package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
)

// DefaultDraftDebounce is the quiet window before a draft is written.
const DefaultDraftDebounce = time.Second

type draftKey struct {
	userID      string
	templateKey string
}

type pendingDraft struct {
	session *models.WorkoutSession
	timer   *time.Timer
}

// Drafts caches in-progress sessions in the store under DRAFT#<templateKey>.
// Rapid saves for the same session are coalesced into one write issued after
// the quiet window.
type Drafts struct {
	store   storage.Gateway
	window  time.Duration
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	pending map[draftKey]*pendingDraft
	writes  sync.WaitGroup
	closed  bool
}

// NewDrafts creates a draft writer. A window <= 0 uses DefaultDraftDebounce.
func NewDrafts(store storage.Gateway, window, timeout time.Duration, log *slog.Logger) *Drafts {
	if window <= 0 {
		window = DefaultDraftDebounce
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Drafts{
		store:   store,
		window:  window,
		timeout: timeout,
		log:     log,
		pending: make(map[draftKey]*pendingDraft),
	}
}

// Save schedules s to be written once no further saves arrive within the window.
func (d *Drafts) Save(s *models.WorkoutSession) {
	k := draftKey{userID: s.UserID, templateKey: s.TemplateKey}
	p := &pendingDraft{session: s.Clone()}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if old, ok := d.pending[k]; ok && old.timer.Stop() {
		d.writes.Done()
	}
	d.pending[k] = p
	d.writes.Add(1)
	p.timer = time.AfterFunc(d.window, func() {
		defer d.writes.Done()
		d.mu.Lock()
		if d.pending[k] != p {
			d.mu.Unlock()
			return
		}
		delete(d.pending, k)
		d.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.write(ctx, p.session); err != nil {
			d.log.Warn("draft write failed", "user", k.userID, "template", k.templateKey, "error", err)
		}
	})
}

// Flush writes every pending draft immediately.
func (d *Drafts) Flush(ctx context.Context) error {
	d.mu.Lock()
	batch := make([]*models.WorkoutSession, 0, len(d.pending))
	for k, p := range d.pending {
		if p.timer.Stop() {
			d.writes.Done()
		}
		batch = append(batch, p.session)
		delete(d.pending, k)
	}
	d.mu.Unlock()

	var errs []error
	for _, s := range batch {
		if err := d.write(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load returns the newest draft for a template: a pending one if present,
// otherwise the stored one. A missing draft yields nil.
func (d *Drafts) Load(ctx context.Context, userID, templateKey string) (*models.WorkoutSession, error) {
	d.mu.Lock()
	if p, ok := d.pending[draftKey{userID: userID, templateKey: templateKey}]; ok {
		s := p.session.Clone()
		d.mu.Unlock()
		return s, nil
	}
	d.mu.Unlock()

	var s models.WorkoutSession
	err := storage.GetJSON(ctx, d.store, storage.UserPK(userID), storage.DraftSK(templateKey), &s)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Close flushes pending drafts, waits for in-flight writes and rejects further saves.
func (d *Drafts) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	err := d.Flush(ctx)
	d.writes.Wait()
	return err
}

func (d *Drafts) write(ctx context.Context, s *models.WorkoutSession) error {
	item := storage.Item{PK: storage.UserPK(s.UserID), SK: storage.DraftSK(s.TemplateKey)}
	return storage.PutJSON(ctx, d.store, item, s)
}
