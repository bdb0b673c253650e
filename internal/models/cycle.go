package models

import "time"

// CycleState is the open training cycle for one user.
// Invariant: CompletedWorkoutKeys is a subset of SelectedWorkoutKeys.
type CycleState struct {
	Number               int      `json:"number"`
	SelectedWorkoutKeys  []string `json:"selected_workout_keys"`
	CompletedWorkoutKeys []string `json:"completed_workout_keys"`
	// WorkoutRefs maps a completed template key to the sort key of the workout that completed it.
	WorkoutRefs map[string]string `json:"workout_refs,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int64             `json:"version"`
}

// IsSelected reports whether key counts toward this cycle.
func (c *CycleState) IsSelected(key string) bool {
	return contains(c.SelectedWorkoutKeys, key)
}

// IsCompleted reports whether key was already completed in this cycle.
func (c *CycleState) IsCompleted(key string) bool {
	return contains(c.CompletedWorkoutKeys, key)
}

// CycleArchive is the frozen record of a closed cycle.
type CycleArchive struct {
	Number               int               `json:"number"`
	SelectedWorkoutKeys  []string          `json:"selected_workout_keys"`
	CompletedWorkoutKeys []string          `json:"completed_workout_keys"`
	WorkoutRefs          map[string]string `json:"workout_refs,omitempty"`
	StartedAt            time.Time         `json:"started_at"`
	ClosedAt             time.Time         `json:"closed_at"`
}

// CycleClosed is emitted once per cycle closure. It is the only trigger for analysis.
type CycleClosed struct {
	UserID        string            `json:"user_id"`
	CycleNumber   int               `json:"cycle_number"`
	CompletedKeys []string          `json:"completed_keys"`
	SelectedCount int               `json:"selected_count"`
	WorkoutRefs   map[string]string `json:"workout_refs,omitempty"`
	ClosedAt      time.Time         `json:"closed_at"`
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SameKeys reports whether a and b hold the same set of keys, ignoring order and duplicates.
func SameKeys(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, k := range a {
		as[k] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, k := range b {
		bs[k] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for k := range as {
		if _, ok := bs[k]; !ok {
			return false
		}
	}
	return true
}
