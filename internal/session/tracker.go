package session

import (
	"time"

	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/models"
)

// DefaultRestSeconds applies when an exercise has no rest time configured.
const DefaultRestSeconds = 90

// Options tune the completion rules.
type Options struct {
	DefaultRestSeconds int
	// ZeroSetRequiresRPE decides whether an exercise with no target sets
	// still needs an RPE entry (or a skip) to count as handled.
	ZeroSetRequiresRPE bool
}

// RestTimers is told to start a rest period when a set becomes complete.
type RestTimers interface {
	Active(userID string) bool
	Start(userID, exercise string, d time.Duration)
}

// Tracker applies set, RPE and skip mutations to sessions and derives completion.
// Mutations never modify their input; they return an updated copy.
type Tracker struct {
	catalog *catalog.Catalog
	opts    Options
	timers  RestTimers
	now     func() time.Time
}

// NewTracker creates a Tracker. timers may be nil.
func NewTracker(c *catalog.Catalog, opts Options, timers RestTimers) *Tracker {
	if opts.DefaultRestSeconds <= 0 {
		opts.DefaultRestSeconds = DefaultRestSeconds
	}
	return &Tracker{catalog: c, opts: opts, timers: timers, now: time.Now}
}

// Init allocates an empty session for tpl. Bodyweight-type exercises are seeded
// with the last known bodyweight: the explicit value, else previous.Bodyweight.
func (t *Tracker) Init(tpl models.WorkoutTemplate, previous *models.WorkoutSession, bodyweight *float64) *models.WorkoutSession {
	if bodyweight == nil && previous != nil {
		bodyweight = previous.Bodyweight
	}
	s := &models.WorkoutSession{
		TemplateKey:      tpl.Key,
		Date:             t.now().Format("2006-01-02"),
		Sets:             make(map[string][]models.SetRecord, len(tpl.Exercises)),
		ExerciseRPE:      map[string]int{},
		SkippedExercises: map[string]bool{},
		UpdatedAt:        t.now().UTC(),
	}
	if bodyweight != nil {
		bw := *bodyweight
		s.Bodyweight = &bw
	}
	for _, ex := range tpl.Exercises {
		recs := make([]models.SetRecord, ex.TargetSets)
		if bodyweight != nil && models.Classify(ex.Name) == models.TrackingBodyweight {
			for i := range recs {
				bw := *bodyweight
				recs[i].Weight = &bw
			}
		}
		s.Sets[ex.Name] = recs
	}
	return s
}

// UpdateSet replaces the record at index for exercise. When the record becomes
// complete and no rest timer is running, a rest period is started.
func (t *Tracker) UpdateSet(s *models.WorkoutSession, exercise string, index int, rec models.SetRecord) (*models.WorkoutSession, error) {
	spec, err := t.exercise(s, exercise)
	if err != nil {
		return nil, err
	}
	recs := s.Sets[exercise]
	if index < 0 || index >= len(recs) {
		return nil, models.Invalid("index", "set %d out of range for %q (0..%d)", index, exercise, len(recs)-1)
	}
	if err := validateSet(rec); err != nil {
		return nil, err
	}

	tt := models.Classify(exercise)
	wasComplete := recs[index].Complete(tt)

	out := s.Clone()
	out.Sets[exercise][index] = rec
	touch(out, exercise)
	out.UpdatedAt = t.now().UTC()

	if !wasComplete && rec.Complete(tt) && t.timers != nil && !t.timers.Active(s.UserID) {
		t.timers.Start(s.UserID, exercise, time.Duration(t.restSeconds(spec))*time.Second)
	}
	return out, nil
}

// RecordRPE stores the perceived exertion for an exercise. Values outside 1..10 are rejected.
func (t *Tracker) RecordRPE(s *models.WorkoutSession, exercise string, value int) (*models.WorkoutSession, error) {
	if _, err := t.exercise(s, exercise); err != nil {
		return nil, err
	}
	if value < 1 || value > 10 {
		return nil, models.Invalid("rpe", "must be between 1 and 10, got %d", value)
	}
	out := s.Clone()
	out.ExerciseRPE[exercise] = value
	touch(out, exercise)
	out.UpdatedAt = t.now().UTC()
	return out, nil
}

// SkipExercise marks an exercise as skipped. Skipping twice is a no-op.
func (t *Tracker) SkipExercise(s *models.WorkoutSession, exercise string) (*models.WorkoutSession, error) {
	if _, err := t.exercise(s, exercise); err != nil {
		return nil, err
	}
	out := s.Clone()
	if out.SkippedExercises[exercise] {
		return out, nil
	}
	out.SkippedExercises[exercise] = true
	out.UpdatedAt = t.now().UTC()
	return out, nil
}

// IsComplete reports whether every exercise is handled: all target sets complete
// and RPE recorded, or skipped. Sessions for unknown templates are never complete.
func (t *Tracker) IsComplete(s *models.WorkoutSession) bool {
	tpl, ok := t.catalog.Get(s.TemplateKey)
	if !ok {
		return false
	}
	for _, ex := range tpl.Exercises {
		if s.Skipped(ex.Name) {
			continue
		}
		if s.CompletedSetCount(ex.Name) < ex.TargetSets {
			return false
		}
		if _, ok := s.ExerciseRPE[ex.Name]; !ok {
			if ex.TargetSets > 0 || t.opts.ZeroSetRequiresRPE {
				return false
			}
		}
	}
	return true
}

// RestFor returns the rest period of the most recently touched exercise.
func (t *Tracker) RestFor(s *models.WorkoutSession) int {
	name, ok := s.LastTouched()
	if !ok {
		return t.opts.DefaultRestSeconds
	}
	spec, err := t.exercise(s, name)
	if err != nil {
		return t.opts.DefaultRestSeconds
	}
	return t.restSeconds(spec)
}

func (t *Tracker) restSeconds(spec models.ExerciseSpec) int {
	if spec.RestSeconds > 0 {
		return spec.RestSeconds
	}
	return t.opts.DefaultRestSeconds
}

func (t *Tracker) exercise(s *models.WorkoutSession, name string) (models.ExerciseSpec, error) {
	tpl, ok := t.catalog.Get(s.TemplateKey)
	if !ok {
		return models.ExerciseSpec{}, models.Invalid("template", "unknown template %q", s.TemplateKey)
	}
	spec, ok := tpl.Exercise(name)
	if !ok {
		return models.ExerciseSpec{}, models.Invalid("exercise", "%q is not part of %q", name, s.TemplateKey)
	}
	return spec, nil
}

func validateSet(rec models.SetRecord) error {
	if rec.Weight != nil && *rec.Weight < 0 {
		return models.Invalid("weight", "must not be negative")
	}
	if rec.Reps != nil && *rec.Reps < 0 {
		return models.Invalid("reps", "must not be negative")
	}
	if rec.DurationSeconds != nil && *rec.DurationSeconds < 0 {
		return models.Invalid("duration_seconds", "must not be negative")
	}
	return nil
}

// touch moves exercise to the end of the touched log.
func touch(s *models.WorkoutSession, exercise string) {
	for i, name := range s.Touched {
		if name == exercise {
			s.Touched = append(s.Touched[:i], s.Touched[i+1:]...)
			break
		}
	}
	s.Touched = append(s.Touched, exercise)
}
