package models

import "time"

// Enumerations used in AnalysisResult.
const (
	FatigueLow      = "low"
	FatigueModerate = "moderate"
	FatigueHigh     = "high"

	ProgressSlow    = "slow"
	ProgressOptimal = "optimal"
	ProgressFast    = "fast"

	AdjustIncrease = "increase"
	AdjustMaintain = "maintain"
	AdjustDecrease = "decrease"
)

// AnalysisResult is the structured coaching output for one closed cycle.
// Stored once per cycle and never modified.
type AnalysisResult struct {
	CycleID                   string                            `json:"cycle_id"`
	GeneratedAt               time.Time                         `json:"generated_at"`
	OverallAssessment         OverallAssessment                 `json:"overall_assessment"`
	PerExerciseRecommendation map[string]ExerciseRecommendation `json:"per_exercise_recommendation"`
	TrainingModifications     TrainingModifications             `json:"training_modifications"`
	RecoveryRecommendations   []string                          `json:"recovery_recommendations"`
	Warnings                  []string                          `json:"warnings"`
	Degraded                  bool                              `json:"degraded,omitempty"`
	RawResponse               string                            `json:"raw_response,omitempty"`
}

type OverallAssessment struct {
	FatigueLevel string `json:"fatigue_level"`
	ProgressRate string `json:"progress_rate"`
	Summary      string `json:"summary"`
}

type ExerciseRecommendation struct {
	SuggestedWeight    *float64 `json:"suggested_weight,omitempty"`
	SuggestedRepsLabel string   `json:"suggested_reps,omitempty"`
	Reasoning          string   `json:"reasoning"`
	Confidence         float64  `json:"confidence"`
}

type TrainingModifications struct {
	Volume    string `json:"volume"`
	Frequency string `json:"frequency"`
	Intensity string `json:"intensity"`
	Reasoning string `json:"reasoning"`
}

// Suggestion is the latest recommendation for one exercise, projected from an AnalysisResult.
type Suggestion struct {
	ExerciseName string `json:"exercise_name"`
	CycleID      string `json:"cycle_id"`
	ExerciseRecommendation
	GeneratedAt time.Time `json:"generated_at"`
}

// SuggestionSet is the stored "latest suggestions" lookup keyed by exercise name.
type SuggestionSet struct {
	CycleID     string                `json:"cycle_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Exercises   map[string]Suggestion `json:"exercises"`
}
