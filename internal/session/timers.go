package session

import (
	"sync"
	"time"
)

// RestSignal describes a running rest period.
type RestSignal struct {
	UserID   string    `json:"-"`
	Exercise string    `json:"exercise"`
	Seconds  int       `json:"seconds"`
	EndsAt   time.Time `json:"ends_at"`
}

// Timers tracks one rest period per user. notify is called for every started
// period; it is the hook for pushing "start rest timer" to clients.
type Timers struct {
	mu      sync.Mutex
	current map[string]RestSignal
	notify  func(RestSignal)
	now     func() time.Time
}

// Compile-time check: *Timers satisfies RestTimers.
var _ RestTimers = (*Timers)(nil)

// NewTimers creates an empty timer set. notify may be nil.
func NewTimers(notify func(RestSignal)) *Timers {
	return &Timers{
		current: make(map[string]RestSignal),
		notify:  notify,
		now:     time.Now,
	}
}

// Active reports whether the user has a rest period that has not yet ended.
func (t *Timers) Active(userID string) bool {
	_, ok := t.Current(userID)
	return ok
}

// Start begins a rest period, replacing any previous one.
func (t *Timers) Start(userID, exercise string, d time.Duration) {
	sig := RestSignal{
		UserID:   userID,
		Exercise: exercise,
		Seconds:  int(d / time.Second),
		EndsAt:   t.now().Add(d),
	}
	t.mu.Lock()
	t.current[userID] = sig
	t.mu.Unlock()
	if t.notify != nil {
		t.notify(sig)
	}
}

// Current returns the running rest period, if any.
func (t *Timers) Current(userID string) (RestSignal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sig, ok := t.current[userID]
	if !ok {
		return RestSignal{}, false
	}
	if !t.now().Before(sig.EndsAt) {
		delete(t.current, userID)
		return RestSignal{}, false
	}
	return sig, true
}

// Stop cancels the user's rest period.
func (t *Timers) Stop(userID string) {
	t.mu.Lock()
	delete(t.current, userID)
	t.mu.Unlock()
}
