package models

import "strings"

// TrackingType decides which set fields are required for a set to count as complete.
type TrackingType string

const (
	TrackingWeighted         TrackingType = "weighted"
	TrackingBodyweight       TrackingType = "bodyweight"
	TrackingDuration         TrackingType = "duration"
	TrackingWeightedDuration TrackingType = "weighted_duration"
)

// Set field names reported by RequiredFields.
const (
	FieldWeight   = "weight"
	FieldReps     = "reps"
	FieldDuration = "duration_seconds"
)

// Name fragments per tracking type, matched as lowercase substrings.
// Lists are consulted in precedence order: weighted+duration, duration, bodyweight.
var (
	weightedDurationNames = []string{
		"farmer",
		"suitcase carry",
		"loaded carry",
		"weighted plank",
		"weighted wall sit",
		"sled push",
		"sled drag",
		"plate pinch",
	}

	durationNames = []string{
		"plank",
		"wall sit",
		"dead hang",
		"hollow hold",
		"hollow body",
		"l-sit",
		"stretch",
		"treadmill",
		"bike",
		"rower",
		"jump rope",
	}

	bodyweightNames = []string{
		"pull-up",
		"pull up",
		"pullup",
		"chin-up",
		"chin up",
		"chinup",
		"push-up",
		"push up",
		"pushup",
		"dip",
		"inverted row",
		"pistol squat",
		"hanging leg raise",
		"hanging knee raise",
		"burpee",
		"sit-up",
		"back extension",
	}
)

// Classify maps an exercise name to its tracking type. Unknown names are Weighted.
func Classify(exerciseName string) TrackingType {
	lower := strings.ToLower(strings.TrimSpace(exerciseName))
	switch {
	case containsAny(lower, weightedDurationNames):
		return TrackingWeightedDuration
	case containsAny(lower, durationNames):
		return TrackingDuration
	case containsAny(lower, bodyweightNames):
		return TrackingBodyweight
	default:
		return TrackingWeighted
	}
}

// RequiredFields lists the set fields that must be present for a complete set.
func (t TrackingType) RequiredFields() []string {
	switch t {
	case TrackingDuration:
		return []string{FieldDuration}
	case TrackingWeightedDuration:
		return []string{FieldWeight, FieldDuration}
	default:
		// Bodyweight sets carry the bodyweight value in the weight field.
		return []string{FieldWeight, FieldReps}
	}
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
