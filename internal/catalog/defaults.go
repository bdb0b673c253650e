package catalog

import "github.com/ibarani/fitforge/internal/models"

// Default returns the built-in upper/lower split used when no catalog file is configured.
func Default() *Catalog {
	c, err := New(defaultTemplates)
	if err != nil {
		panic("catalog: invalid built-in templates: " + err.Error())
	}
	return c
}

var defaultTemplates = []models.WorkoutTemplate{
	{
		Key:       "upper-a",
		Title:     "Upper A",
		Mandatory: true,
		Exercises: []models.ExerciseSpec{
			{Name: "Bench Press", TargetSets: 4, TargetReps: "5-6", RestSeconds: 180},
			{Name: "Barbell Row", TargetSets: 4, TargetReps: "6-8", RestSeconds: 150},
			{Name: "Overhead Press", TargetSets: 3, TargetReps: "8-10", RestSeconds: 120},
			{Name: "Pull-Up", TargetSets: 3, TargetReps: "AMRAP", RestSeconds: 120},
			{Name: "Plank", TargetSets: 3, TargetReps: "45s", RestSeconds: 60},
		},
	},
	{
		Key:       "lower-a",
		Title:     "Lower A",
		Mandatory: true,
		Exercises: []models.ExerciseSpec{
			{Name: "Back Squat", TargetSets: 4, TargetReps: "5", RestSeconds: 180},
			{Name: "Romanian Deadlift", TargetSets: 3, TargetReps: "8", RestSeconds: 150},
			{Name: "Walking Lunge", TargetSets: 3, TargetReps: "10/leg", RestSeconds: 90},
			{Name: "Farmer's Walk", TargetSets: 3, TargetReps: "40s", RestSeconds: 90},
		},
	},
	{
		Key:       "upper-b",
		Title:     "Upper B",
		Mandatory: true,
		Exercises: []models.ExerciseSpec{
			{Name: "Incline Dumbbell Press", TargetSets: 4, TargetReps: "8-10", RestSeconds: 120},
			{Name: "Chin-Up", TargetSets: 4, TargetReps: "6-8", RestSeconds: 120},
			{Name: "Dip", TargetSets: 3, TargetReps: "8-12", RestSeconds: 90},
			{Name: "Face Pull", TargetSets: 3, TargetReps: "15", RestSeconds: 60},
		},
	},
	{
		Key:       "lower-b",
		Title:     "Lower B",
		Mandatory: true,
		Exercises: []models.ExerciseSpec{
			{Name: "Deadlift", TargetSets: 3, TargetReps: "3-5", RestSeconds: 210},
			{Name: "Front Squat", TargetSets: 3, TargetReps: "6", RestSeconds: 150},
			{Name: "Hanging Leg Raise", TargetSets: 3, TargetReps: "12", RestSeconds: 60},
			{Name: "Dead Hang", TargetSets: 2, TargetReps: "max", RestSeconds: 60},
		},
	},
	{
		Key:       "conditioning",
		Title:     "Conditioning",
		Mandatory: false,
		Exercises: []models.ExerciseSpec{
			{Name: "Rower Intervals", TargetSets: 6, TargetReps: "250m", RestSeconds: 60},
			{Name: "Suitcase Carry", TargetSets: 3, TargetReps: "30s/side", RestSeconds: 60},
			{Name: "Burpee", TargetSets: 3, TargetReps: "10", RestSeconds: 60},
		},
	},
}
