package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/ibarani/fitforge/internal/models"
)

// Memory is an in-process Gateway backed by ordered B-trees. It serves the
// dev "memory" driver and tests.
type Memory struct {
	mu      sync.RWMutex
	primary *btree.BTreeG[Item]
	gsi1    *btree.BTreeG[Item]
	failErr error
	puts    int
}

// Compile-time check: *Memory satisfies Gateway.
var _ Gateway = (*Memory)(nil)

// NewMemory creates an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		primary: btree.NewG(32, lessPrimary),
		gsi1:    btree.NewG(32, lessGSI1),
	}
}

func lessPrimary(a, b Item) bool {
	if a.PK != b.PK {
		return a.PK < b.PK
	}
	return a.SK < b.SK
}

func lessGSI1(a, b Item) bool {
	if a.GSI1PK != b.GSI1PK {
		return a.GSI1PK < b.GSI1PK
	}
	if a.GSI1SK != b.GSI1SK {
		return a.GSI1SK < b.GSI1SK
	}
	return lessPrimary(a, b)
}

// FailWith makes every subsequent call fail with a PersistenceError wrapping err.
// Pass nil to restore normal operation.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// Puts returns how many successful Put calls were made.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Put upserts an item.
func (m *Memory) Put(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return &models.PersistenceError{Op: "put " + item.SK, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return &models.PersistenceError{Op: "put " + item.SK, Err: m.failErr}
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	item.Data = append([]byte(nil), item.Data...)

	if old, ok := m.primary.Get(item); ok && old.GSI1PK != "" {
		m.gsi1.Delete(old)
	}
	m.primary.ReplaceOrInsert(item)
	if item.GSI1PK != "" {
		m.gsi1.ReplaceOrInsert(item)
	}
	m.puts++
	return nil
}

// Get returns the item at (pk, sk) or ErrNotFound.
func (m *Memory) Get(ctx context.Context, pk, sk string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, &models.PersistenceError{Op: "get " + sk, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return Item{}, &models.PersistenceError{Op: "get " + sk, Err: m.failErr}
	}
	it, ok := m.primary.Get(Item{PK: pk, SK: sk})
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

// QueryByPrefix lists items in a partition whose sort key starts with skPrefix.
func (m *Memory) QueryByPrefix(ctx context.Context, pk, skPrefix string, descending bool, limit int) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.PersistenceError{Op: "query " + skPrefix, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return nil, &models.PersistenceError{Op: "query " + skPrefix, Err: m.failErr}
	}

	var out []Item
	m.primary.AscendGreaterOrEqual(Item{PK: pk, SK: skPrefix}, func(it Item) bool {
		if it.PK != pk || !strings.HasPrefix(it.SK, skPrefix) {
			return false
		}
		out = append(out, it)
		return true
	})
	if descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// QueryRange lists items on a secondary index with from <= sort key <= to.
func (m *Memory) QueryRange(ctx context.Context, index, pk, from, to string) ([]Item, error) {
	if index != IndexGSI1 {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	if err := ctx.Err(); err != nil {
		return nil, &models.PersistenceError{Op: "range " + pk, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failErr != nil {
		return nil, &models.PersistenceError{Op: "range " + pk, Err: m.failErr}
	}

	var out []Item
	m.gsi1.AscendGreaterOrEqual(Item{GSI1PK: pk, GSI1SK: from}, func(it Item) bool {
		if it.GSI1PK != pk || it.GSI1SK > to {
			return false
		}
		out = append(out, it)
		return true
	})
	return out, nil
}
