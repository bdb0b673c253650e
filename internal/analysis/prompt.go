package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ibarani/fitforge/internal/models"
)

// Request is what the analyzer receives.
type Request struct {
	CycleID string
	System  string
	Prompt  string
}

const systemPrompt = `You are a strength and conditioning coach reviewing one completed training cycle.
Respond with a single JSON object and nothing else, using exactly this shape:
{
  "overall_assessment": {"fatigue_level": "low|moderate|high", "progress_rate": "slow|optimal|fast", "summary": "..."},
  "per_exercise_recommendation": {"<exercise name>": {"suggested_weight": 0, "suggested_reps": "...", "reasoning": "...", "confidence": 0.0}},
  "training_modifications": {"volume": "increase|maintain|decrease", "frequency": "increase|maintain|decrease", "intensity": "increase|maintain|decrease", "reasoning": "..."},
  "recovery_recommendations": ["..."],
  "warnings": ["..."]
}
Confidence is between 0 and 1. Weights use the same unit as the input. Omit suggested_weight for exercises tracked by duration only.`

type cycleSummary struct {
	Cycle     int                        `json:"cycle"`
	Workouts  []workoutSummary           `json:"workouts"`
	Exercises map[string]exerciseSummary `json:"exercises"`
	Profile   profileSummary             `json:"profile"`
}

type workoutSummary struct {
	Date        string `json:"date"`
	TemplateKey string `json:"template_key"`
	Notes       string `json:"notes,omitempty"`
}

type exerciseSummary struct {
	*ExerciseSeries
	RPE      []int `json:"rpe,omitempty"`
	RPETrend Trend `json:"rpe_trend"`
}

type profileSummary struct {
	Bodyweight      *float64 `json:"bodyweight,omitempty"`
	ExperienceLevel string   `json:"experience_level,omitempty"`
}

// CycleID renders a cycle number as the identifier stored on results.
func CycleID(cycleNumber int) string {
	return strconv.Itoa(cycleNumber)
}

// BuildRequest renders the cycle summary, including RPE trends, as the
// analyzer prompt.
func BuildRequest(cycleNumber int, data CycleData) (Request, error) {
	sum := cycleSummary{
		Cycle:     cycleNumber,
		Workouts:  make([]workoutSummary, 0, len(data.Workouts)),
		Exercises: make(map[string]exerciseSummary),
		Profile: profileSummary{
			Bodyweight:      data.Profile.Bodyweight,
			ExperienceLevel: data.Profile.ExperienceLevel,
		},
	}
	for _, w := range data.Workouts {
		sum.Workouts = append(sum.Workouts, workoutSummary{Date: w.Date, TemplateKey: w.TemplateKey, Notes: w.Notes})
	}
	for name, series := range data.PerExercise {
		sum.Exercises[name] = exerciseSummary{ExerciseSeries: series}
	}
	for name, rpe := range data.PerExerciseRPE {
		es, ok := sum.Exercises[name]
		if !ok {
			es.ExerciseSeries = &ExerciseSeries{TrackingType: models.Classify(name)}
		}
		es.RPE = rpe
		sum.Exercises[name] = es
	}
	for name, es := range sum.Exercises {
		es.RPETrend = RPETrend(es.RPE)
		sum.Exercises[name] = es
	}

	body, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return Request{}, fmt.Errorf("encoding cycle summary: %w", err)
	}
	return Request{
		CycleID: CycleID(cycleNumber),
		System:  systemPrompt,
		Prompt:  fmt.Sprintf("Analyze training cycle %d.\n\n%s", cycleNumber, body),
	}, nil
}
