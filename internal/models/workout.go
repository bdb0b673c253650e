package models

import (
	"time"
)

// WorkoutTemplate is a static workout definition. Templates are built once at
// startup and never mutated.
type WorkoutTemplate struct {
	Key       string         `json:"key" yaml:"key"`
	Title     string         `json:"title" yaml:"title"`
	Mandatory bool           `json:"mandatory" yaml:"mandatory"`
	Exercises []ExerciseSpec `json:"exercises" yaml:"exercises"`
}

// ExerciseSpec is one planned exercise within a template.
type ExerciseSpec struct {
	Name        string `json:"name" yaml:"name"`
	TargetSets  int    `json:"target_sets" yaml:"target_sets"`
	TargetReps  string `json:"target_reps" yaml:"target_reps"`
	RestSeconds int    `json:"rest_seconds" yaml:"rest_seconds"`
}

// Exercise returns the spec with the given name.
func (t WorkoutTemplate) Exercise(name string) (ExerciseSpec, bool) {
	for _, ex := range t.Exercises {
		if ex.Name == name {
			return ex, true
		}
	}
	return ExerciseSpec{}, false
}

// SetRecord holds the values entered for one set. Nil fields were not entered.
type SetRecord struct {
	Weight          *float64 `json:"weight,omitempty"`
	Reps            *int     `json:"reps,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	Comment         string   `json:"comment,omitempty"`
}

// Complete reports whether the record has every field the tracking type requires.
func (s SetRecord) Complete(t TrackingType) bool {
	switch t {
	case TrackingDuration:
		return s.DurationSeconds != nil
	case TrackingWeightedDuration:
		return s.Weight != nil && s.DurationSeconds != nil
	default:
		return s.Weight != nil && s.Reps != nil
	}
}

// WorkoutSession is one in-progress or completed instance of a template.
type WorkoutSession struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"user_id"`
	TemplateKey      string                 `json:"template_key"`
	Date             string                 `json:"date"` // YYYY-MM-DD
	Bodyweight       *float64               `json:"bodyweight,omitempty"`
	Sets             map[string][]SetRecord `json:"sets"`
	ExerciseRPE      map[string]int         `json:"exercise_rpe"`
	SkippedExercises map[string]bool        `json:"skipped_exercises,omitempty"`
	// Touched is the ordered log of exercises edited in this session, most recent last.
	Touched     []string   `json:"touched,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Skipped reports whether the exercise was skipped.
func (s *WorkoutSession) Skipped(exercise string) bool {
	return s.SkippedExercises[exercise]
}

// LastTouched returns the most recently edited exercise, if any.
func (s *WorkoutSession) LastTouched() (string, bool) {
	if len(s.Touched) == 0 {
		return "", false
	}
	return s.Touched[len(s.Touched)-1], true
}

// CompletedSetCount counts the complete records for an exercise.
func (s *WorkoutSession) CompletedSetCount(exercise string) int {
	tt := Classify(exercise)
	n := 0
	for _, rec := range s.Sets[exercise] {
		if rec.Complete(tt) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s *WorkoutSession) Clone() *WorkoutSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Bodyweight != nil {
		bw := *s.Bodyweight
		c.Bodyweight = &bw
	}
	c.Sets = make(map[string][]SetRecord, len(s.Sets))
	for name, recs := range s.Sets {
		cp := make([]SetRecord, len(recs))
		for i, r := range recs {
			cp[i] = r.clone()
		}
		c.Sets[name] = cp
	}
	c.ExerciseRPE = make(map[string]int, len(s.ExerciseRPE))
	for k, v := range s.ExerciseRPE {
		c.ExerciseRPE[k] = v
	}
	c.SkippedExercises = make(map[string]bool, len(s.SkippedExercises))
	for k, v := range s.SkippedExercises {
		c.SkippedExercises[k] = v
	}
	c.Touched = append([]string(nil), s.Touched...)
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func (s SetRecord) clone() SetRecord {
	c := s
	if s.Weight != nil {
		w := *s.Weight
		c.Weight = &w
	}
	if s.Reps != nil {
		r := *s.Reps
		c.Reps = &r
	}
	if s.DurationSeconds != nil {
		d := *s.DurationSeconds
		c.DurationSeconds = &d
	}
	return c
}

// UserProfile holds per-user inputs for analysis and session seeding.
type UserProfile struct {
	Bodyweight      *float64  `json:"bodyweight,omitempty"`
	ExperienceLevel string    `json:"experience_level"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SaveResult reports what happened when a workout was saved.
type SaveResult struct {
	WorkoutSK string `json:"workout_sk"`
	Complete  bool   `json:"complete"`
	// Counted is true when the workout added a new key to the open cycle.
	Counted     bool         `json:"counted"`
	CycleClosed *CycleClosed `json:"cycle_closed,omitempty"`
	// Offline is true when the store was unreachable and the save was queued locally.
	Offline bool   `json:"offline"`
	Message string `json:"message,omitempty"`
}
