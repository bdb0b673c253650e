package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
)

// Saver persists one finished workout.
type Saver interface {
	SaveWorkout(ctx context.Context, userID string, s *models.WorkoutSession) (*models.SaveResult, error)
}

// Result holds the outcome of an import.
type Result struct {
	SessionsReceived int      `json:"sessions_received"`
	WorkoutsSaved    int      `json:"workouts_saved"`
	WorkoutsComplete int      `json:"workouts_complete"`
	WorkoutsQueued   int      `json:"workouts_queued"`
	SetsImported     int      `json:"sets_imported"`
	SetsDropped      int      `json:"sets_dropped,omitempty"`
	CyclesClosed     []int    `json:"cycles_closed,omitempty"`
	Unmatched        []string `json:"unmatched_sessions,omitempty"`
}

// Importer turns exported sessions into workouts of the closest template.
type Importer struct {
	catalog *catalog.Catalog
	saver   Saver
	store   storage.Gateway
	log     *slog.Logger
}

// NewImporter creates an Importer that saves through saver.
func NewImporter(c *catalog.Catalog, saver Saver, store storage.Gateway, log *slog.Logger) *Importer {
	return &Importer{catalog: c, saver: saver, store: store, log: log}
}

// ImportAlpha parses an Alpha Progression export and saves each session,
// oldest first, as a workout of the best-matching template. Sessions that
// share no exercise with any template are reported as unmatched.
func (im *Importer) ImportAlpha(ctx context.Context, userID string, r io.Reader) (*Result, error) {
	sessions, err := ParseAlpha(r)
	if err != nil {
		return nil, errors.Join(models.Invalid("export", "%v", err), err)
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Date.Before(sessions[j].Date) })

	profile, err := storage.GetProfile(ctx, im.store, userID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	res := &Result{SessionsReceived: len(sessions)}
	for _, s := range sessions {
		tpl, ok := im.match(s)
		if !ok {
			res.Unmatched = append(res.Unmatched, s.Name)
			continue
		}
		w, sets, dropped := toWorkout(tpl, s, profile.Bodyweight)
		saved, err := im.saver.SaveWorkout(ctx, userID, w)
		if err != nil {
			return res, fmt.Errorf("saving session %q on %s: %w", s.Name, w.Date, err)
		}
		res.WorkoutsSaved++
		res.SetsImported += sets
		res.SetsDropped += dropped
		if saved.Offline {
			res.WorkoutsQueued++
		}
		if saved.Complete {
			res.WorkoutsComplete++
		}
		if saved.CycleClosed != nil {
			res.CyclesClosed = append(res.CyclesClosed, saved.CycleClosed.CycleNumber)
		}
	}
	im.log.Info("alpha import finished",
		"user", userID,
		"sessions", res.SessionsReceived,
		"saved", res.WorkoutsSaved,
		"unmatched", len(res.Unmatched),
	)
	return res, nil
}

// match picks the template sharing the most exercises with s. Ties go to
// the earlier template in catalog order.
func (im *Importer) match(s AlphaSession) (models.WorkoutTemplate, bool) {
	var (
		best  models.WorkoutTemplate
		score int
	)
	for _, tpl := range im.catalog.All() {
		n := 0
		for _, spec := range tpl.Exercises {
			if _, ok := findExercise(s, spec.Name); ok {
				n++
			}
		}
		if n > score {
			best, score = tpl, n
		}
	}
	return best, score > 0
}

func findExercise(s AlphaSession, name string) (AlphaExercise, bool) {
	want := normalize(name)
	for _, ex := range s.Exercises {
		got := normalize(ex.Name)
		if got == want || strings.Contains(got, want) || strings.Contains(want, got) {
			return ex, true
		}
	}
	return AlphaExercise{}, false
}

func normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "s")
}

// toWorkout maps s onto tpl. Template exercises missing from the export are
// marked skipped. Each exercise keeps exactly TargetSets records; working sets
// beyond that are dropped. Added-load sets on bodyweight exercises count the
// user's bodyweight when it is known. Returns the workout and the number of
// sets copied and dropped.
func toWorkout(tpl models.WorkoutTemplate, s AlphaSession, bodyweight *float64) (*models.WorkoutSession, int, int) {
	w := &models.WorkoutSession{
		TemplateKey:      tpl.Key,
		Date:             s.Date.Format(time.DateOnly),
		Bodyweight:       bodyweight,
		Sets:             make(map[string][]models.SetRecord, len(tpl.Exercises)),
		ExerciseRPE:      make(map[string]int),
		SkippedExercises: make(map[string]bool),
		Notes:            strings.TrimSpace(s.Name + " " + s.Duration),
	}
	copied, dropped := 0, 0
	for _, spec := range tpl.Exercises {
		ex, ok := findExercise(s, spec.Name)
		working := ex.WorkingSets()
		if !ok || len(working) == 0 {
			w.Sets[spec.Name] = make([]models.SetRecord, spec.TargetSets)
			w.SkippedExercises[spec.Name] = true
			continue
		}

		tt := models.Classify(spec.Name)
		recs := make([]models.SetRecord, spec.TargetSets)
		n := min(len(recs), len(working))
		var rir float64
		for i, set := range working {
			if i < n {
				recs[i] = toSetRecord(tt, set, bodyweight)
			}
			rir += set.RIR
		}
		w.Sets[spec.Name] = recs
		w.ExerciseRPE[spec.Name] = rirToRPE(rir / float64(len(working)))
		w.Touched = append(w.Touched, spec.Name)
		copied += n
		dropped += len(working) - n
	}
	return w, copied, dropped
}

func toSetRecord(tt models.TrackingType, set AlphaSet, bodyweight *float64) models.SetRecord {
	weight := set.WeightKg
	if set.BodyweightPlus && bodyweight != nil {
		weight += *bodyweight
	}
	reps := set.Reps
	rec := models.SetRecord{Weight: &weight}
	switch tt {
	case models.TrackingDuration, models.TrackingWeightedDuration:
		// The export has no durations; the set stays incomplete.
		if tt == models.TrackingDuration {
			rec.Weight = nil
		}
	default:
		rec.Reps = &reps
	}
	return rec
}

// rirToRPE converts mean reps-in-reserve to the 1..10 RPE scale.
func rirToRPE(rir float64) int {
	rpe := int(math.Round(10 - rir))
	return min(max(rpe, 1), 10)
}
