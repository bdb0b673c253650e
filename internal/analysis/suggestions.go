package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
	"github.com/patrickmn/go-cache"
)

// DefaultSuggestionTTL bounds how long a user's suggestion set stays cached.
const DefaultSuggestionTTL = 10 * time.Minute

// Suggestions serves the latest per-exercise recommendations. Reads go
// through an in-process cache that is refreshed whenever a projection is written.
type Suggestions struct {
	store storage.Gateway
	cache *cache.Cache
}

// NewSuggestions creates the read path. A ttl <= 0 uses DefaultSuggestionTTL.
func NewSuggestions(store storage.Gateway, ttl time.Duration) *Suggestions {
	if ttl <= 0 {
		ttl = DefaultSuggestionTTL
	}
	return &Suggestions{
		store: store,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Latest returns the user's suggestion set. A user without one gets an empty set.
func (s *Suggestions) Latest(ctx context.Context, userID string) (models.SuggestionSet, error) {
	if x, found := s.cache.Get(userID); found {
		return x.(models.SuggestionSet), nil
	}
	set, err := s.load(ctx, userID)
	if err != nil {
		return models.SuggestionSet{}, err
	}
	s.cache.Set(userID, set, cache.DefaultExpiration)
	return set, nil
}

// Get returns the latest suggestion for one exercise. Names match
// case-insensitively. Returns storage.ErrNotFound when there is none.
func (s *Suggestions) Get(ctx context.Context, userID, exercise string) (models.Suggestion, error) {
	set, err := s.Latest(ctx, userID)
	if err != nil {
		return models.Suggestion{}, err
	}
	if sg, ok := set.Exercises[exercise]; ok {
		return sg, nil
	}
	for name, sg := range set.Exercises {
		if strings.EqualFold(name, exercise) {
			return sg, nil
		}
	}
	return models.Suggestion{}, storage.ErrNotFound
}

// Project merges the per-exercise recommendations of res into the user's
// latest suggestion set. Exercises absent from res keep their older entry.
// Degraded results are not projected.
func (s *Suggestions) Project(ctx context.Context, userID string, res models.AnalysisResult) error {
	if res.Degraded || len(res.PerExerciseRecommendation) == 0 {
		return nil
	}
	set, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	set.CycleID = res.CycleID
	set.GeneratedAt = res.GeneratedAt
	for name, rec := range res.PerExerciseRecommendation {
		set.Exercises[name] = models.Suggestion{
			ExerciseName:           name,
			CycleID:                res.CycleID,
			ExerciseRecommendation: rec,
			GeneratedAt:            res.GeneratedAt,
		}
	}
	item := storage.Item{PK: storage.UserPK(userID), SK: storage.SKSuggestionsLatest}
	if err := storage.PutJSON(ctx, s.store, item, set); err != nil {
		s.cache.Delete(userID)
		return fmt.Errorf("storing suggestions: %w", err)
	}
	s.cache.Set(userID, set, cache.DefaultExpiration)
	return nil
}

func (s *Suggestions) load(ctx context.Context, userID string) (models.SuggestionSet, error) {
	var set models.SuggestionSet
	err := storage.GetJSON(ctx, s.store, storage.UserPK(userID), storage.SKSuggestionsLatest, &set)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.SuggestionSet{}, fmt.Errorf("loading suggestions: %w", err)
	}
	if set.Exercises == nil {
		set.Exercises = map[string]models.Suggestion{}
	}
	return set, nil
}
