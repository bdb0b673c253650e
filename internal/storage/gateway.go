package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no item exists under the key.
var ErrNotFound = errors.New("item not found")

// IndexGSI1 is the secondary index over (GSI1PK, GSI1SK).
const IndexGSI1 = "gsi1"

// Item is one record in the key-value store.
type Item struct {
	PK        string          `json:"pk"`
	SK        string          `json:"sk"`
	GSI1PK    string          `json:"gsi1pk,omitempty"`
	GSI1SK    string          `json:"gsi1sk,omitempty"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Gateway is the key-value contract the core persists through.
// Implementations wrap transport failures in *models.PersistenceError.
type Gateway interface {
	Put(ctx context.Context, item Item) error
	Get(ctx context.Context, pk, sk string) (Item, error)
	QueryByPrefix(ctx context.Context, pk, skPrefix string, descending bool, limit int) ([]Item, error)
	QueryRange(ctx context.Context, index, pk, from, to string) ([]Item, error)
}

// PutJSON marshals v into item.Data and stores it.
func PutJSON(ctx context.Context, g Gateway, item Item, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", item.SK, err)
	}
	item.Data = data
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	return g.Put(ctx, item)
}

// GetJSON loads the item at (pk, sk) and unmarshals its data into v.
func GetJSON(ctx context.Context, g Gateway, pk, sk string, v any) error {
	item, err := g.Get(ctx, pk, sk)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(item.Data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", sk, err)
	}
	return nil
}

// DecodeAll unmarshals the data of each item into a new T.
func DecodeAll[T any](items []Item) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, it := range items {
		var v T
		if err := json.Unmarshal(it.Data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", it.SK, err)
		}
		out = append(out, v)
	}
	return out, nil
}
