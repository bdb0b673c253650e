package storage

import (
	"fmt"
	"strings"
)

// Sort keys and prefixes within a user partition.
const (
	SKProfile           = "PROFILE"
	SKCycleCurrent      = "CYCLE#CURRENT"
	SKSuggestionsLatest = "SUGGESTIONS#LATEST"
	PrefixWorkout       = "WORKOUT#"
	PrefixCycle         = "CYCLE#"
	PrefixAnalysis      = "ANALYSIS#"
	PrefixDraft         = "DRAFT#"
	cycleNumberWidth    = 6
	gsiWorkoutsPrefix   = "WORKOUTS#"
	gsiCyclesPrefix     = "CYCLES#"
	gsiArchiveSuffix    = "#ARCHIVE"
	gsiAnalysisSuffix   = "#ANALYSIS"
)

// UserPK is the partition key for everything a user owns.
func UserPK(userID string) string {
	return "USER#" + userID
}

// WorkoutSK keys a finalized workout by date and template.
func WorkoutSK(date, templateKey string) string {
	return PrefixWorkout + date + "#" + templateKey
}

// ParseWorkoutSK splits a workout sort key into date and template key.
func ParseWorkoutSK(sk string) (date, templateKey string, ok bool) {
	rest, found := strings.CutPrefix(sk, PrefixWorkout)
	if !found {
		return "", "", false
	}
	date, templateKey, ok = strings.Cut(rest, "#")
	return date, templateKey, ok
}

// CycleSK keys an archived cycle.
func CycleSK(number int) string {
	return PrefixCycle + PadCycle(number)
}

// AnalysisSK keys the analysis result of a cycle.
func AnalysisSK(number int) string {
	return PrefixAnalysis + PadCycle(number)
}

// DraftSK keys the in-progress draft for a template.
func DraftSK(templateKey string) string {
	return PrefixDraft + templateKey
}

// PadCycle renders a cycle number so that lexical order matches numeric order.
func PadCycle(number int) string {
	return fmt.Sprintf("%0*d", cycleNumberWidth, number)
}

// WorkoutsIndexPK is the GSI1 partition holding a user's workouts ordered by date.
func WorkoutsIndexPK(userID string) string {
	return gsiWorkoutsPrefix + userID
}

// CyclesIndexPK is the GSI1 partition holding cycle-scoped records ordered by number.
func CyclesIndexPK(userID string) string {
	return gsiCyclesPrefix + userID
}

// ArchiveIndexSK orders an archive within CyclesIndexPK.
func ArchiveIndexSK(number int) string {
	return PadCycle(number) + gsiArchiveSuffix
}

// AnalysisIndexSK orders an analysis result within CyclesIndexPK.
func AnalysisIndexSK(number int) string {
	return PadCycle(number) + gsiAnalysisSuffix
}

// CycleRange returns GSI1 bounds covering cycles from..to inclusive.
func CycleRange(from, to int) (string, string) {
	return PadCycle(from), PadCycle(to) + "~"
}

// DateRange returns GSI1 bounds covering workout dates from..to inclusive (YYYY-MM-DD).
func DateRange(from, to string) (string, string) {
	return from, to + "~"
}
