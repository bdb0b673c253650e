package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ibarani/fitforge/internal/models"
)

// previousScanLimit bounds how many recent workouts are scanned when looking
// for the last session of one template.
const previousScanLimit = 100

// PutWorkout stores a finalized workout and indexes it by date. Returns its sort key.
func PutWorkout(ctx context.Context, g Gateway, s *models.WorkoutSession) (string, error) {
	if s.UserID == "" || s.TemplateKey == "" || s.Date == "" {
		return "", fmt.Errorf("workout needs user, template and date")
	}
	sk := WorkoutSK(s.Date, s.TemplateKey)
	item := Item{
		PK:     UserPK(s.UserID),
		SK:     sk,
		GSI1PK: WorkoutsIndexPK(s.UserID),
		GSI1SK: s.Date + "#" + s.TemplateKey,
	}
	if err := PutJSON(ctx, g, item, s); err != nil {
		return "", err
	}
	return sk, nil
}

// GetWorkout loads one workout by its sort key.
func GetWorkout(ctx context.Context, g Gateway, userID, sk string) (*models.WorkoutSession, error) {
	var s models.WorkoutSession
	if err := GetJSON(ctx, g, UserPK(userID), sk, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListWorkouts returns the most recent workouts, newest first. A limit of 0 means all.
func ListWorkouts(ctx context.Context, g Gateway, userID string, limit int) ([]models.WorkoutSession, error) {
	items, err := g.QueryByPrefix(ctx, UserPK(userID), PrefixWorkout, true, limit)
	if err != nil {
		return nil, err
	}
	return DecodeAll[models.WorkoutSession](items)
}

// WorkoutsBetween returns workouts dated from..to inclusive (YYYY-MM-DD), oldest first.
func WorkoutsBetween(ctx context.Context, g Gateway, userID, from, to string) ([]models.WorkoutSession, error) {
	lo, hi := DateRange(from, to)
	items, err := g.QueryRange(ctx, IndexGSI1, WorkoutsIndexPK(userID), lo, hi)
	if err != nil {
		return nil, err
	}
	return DecodeAll[models.WorkoutSession](items)
}

// LatestWorkout returns the newest finalized workout for a template, or nil if none exists.
func LatestWorkout(ctx context.Context, g Gateway, userID, templateKey string) (*models.WorkoutSession, error) {
	items, err := g.QueryByPrefix(ctx, UserPK(userID), PrefixWorkout, true, previousScanLimit)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if _, key, ok := ParseWorkoutSK(it.SK); !ok || key != templateKey {
			continue
		}
		ws, err := DecodeAll[models.WorkoutSession]([]Item{it})
		if err != nil {
			return nil, err
		}
		return &ws[0], nil
	}
	return nil, nil
}

// GetProfile loads the user profile. A missing profile yields the zero value.
func GetProfile(ctx context.Context, g Gateway, userID string) (models.UserProfile, error) {
	var p models.UserProfile
	err := GetJSON(ctx, g, UserPK(userID), SKProfile, &p)
	if errors.Is(err, ErrNotFound) {
		return models.UserProfile{}, nil
	}
	return p, err
}

// PutProfile stores the user profile.
func PutProfile(ctx context.Context, g Gateway, userID string, p models.UserProfile) error {
	return PutJSON(ctx, g, Item{PK: UserPK(userID), SK: SKProfile}, p)
}
