// Package analysis turns a closed cycle's workouts into a coaching request,
// calls the external analyzer and stores the structured result.
package analysis

import (
	"sort"

	"github.com/ibarani/fitforge/internal/models"
)

// Trend labels an RPE sequence.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// trendThreshold is the mean difference between halves needed to call a trend.
const trendThreshold = 0.5

// ExerciseSeries is the performed volume for one exercise across a cycle.
// Only the fields the exercise's tracking type requires are filled.
type ExerciseSeries struct {
	TrackingType models.TrackingType `json:"tracking_type"`
	Weights      []float64           `json:"weights,omitempty"`
	Reps         []int               `json:"reps,omitempty"`
	Durations    []int               `json:"durations_seconds,omitempty"`
}

// CycleData is the aggregated input for one analysis.
type CycleData struct {
	Workouts       []models.WorkoutSession    `json:"-"`
	PerExercise    map[string]*ExerciseSeries `json:"per_exercise"`
	PerExerciseRPE map[string][]int           `json:"per_exercise_rpe"`
	Profile        models.UserProfile         `json:"profile"`
}

// Aggregate folds workouts into per-exercise series. Workouts are ordered by
// date then template key, so the result does not depend on input order. Sets
// missing a field their tracking type requires are skipped.
func Aggregate(workouts []models.WorkoutSession, profile models.UserProfile) CycleData {
	ordered := append([]models.WorkoutSession(nil), workouts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Date != ordered[j].Date {
			return ordered[i].Date < ordered[j].Date
		}
		return ordered[i].TemplateKey < ordered[j].TemplateKey
	})

	data := CycleData{
		Workouts:       ordered,
		PerExercise:    make(map[string]*ExerciseSeries),
		PerExerciseRPE: make(map[string][]int),
		Profile:        profile,
	}
	for _, w := range ordered {
		for _, name := range sortedKeys(w.Sets) {
			tt := models.Classify(name)
			for _, rec := range w.Sets[name] {
				if !rec.Complete(tt) {
					continue
				}
				series, ok := data.PerExercise[name]
				if !ok {
					series = &ExerciseSeries{TrackingType: tt}
					data.PerExercise[name] = series
				}
				appendSet(series, rec)
			}
		}
		for _, name := range sortedKeys(w.ExerciseRPE) {
			data.PerExerciseRPE[name] = append(data.PerExerciseRPE[name], w.ExerciseRPE[name])
		}
	}
	return data
}

func appendSet(s *ExerciseSeries, rec models.SetRecord) {
	for _, f := range s.TrackingType.RequiredFields() {
		switch f {
		case models.FieldWeight:
			s.Weights = append(s.Weights, *rec.Weight)
		case models.FieldReps:
			s.Reps = append(s.Reps, *rec.Reps)
		case models.FieldDuration:
			s.Durations = append(s.Durations, *rec.DurationSeconds)
		}
	}
}

// RPETrend compares the mean of the second half of seq with the first half.
// For odd lengths the second half is the larger one. Sequences shorter than
// two are stable.
func RPETrend(seq []int) Trend {
	if len(seq) < 2 {
		return TrendStable
	}
	mid := len(seq) / 2
	diff := mean(seq[mid:]) - mean(seq[:mid])
	switch {
	case diff > trendThreshold:
		return TrendIncreasing
	case diff < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(xs []int) float64 {
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
