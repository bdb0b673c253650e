package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ibarani/fitforge/internal/models"
)

// ParseFailedSummary marks a result whose analyzer output could not be parsed.
const ParseFailedSummary = "parse failed"

// UnavailableSummary marks a placeholder stored after every attempt failed.
const UnavailableSummary = "analysis unavailable"

var errNoJSON = errors.New("no JSON object in response")

// ParseResult extracts the structured result from the analyzer's text. The
// JSON object may be wrapped in a code fence or surrounding prose.
func ParseResult(cycleID, raw string, now time.Time) (models.AnalysisResult, error) {
	obj, ok := extractJSON(raw)
	if !ok {
		return models.AnalysisResult{}, errNoJSON
	}
	var res models.AnalysisResult
	if err := json.Unmarshal([]byte(obj), &res); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("decoding analysis: %w", err)
	}
	if err := validate(&res); err != nil {
		return models.AnalysisResult{}, err
	}
	res.CycleID = cycleID
	res.GeneratedAt = now.UTC()
	res.Degraded = false
	res.RawResponse = ""
	normalize(&res)
	return res, nil
}

// Degraded is the placeholder result used when the analyzer output cannot be
// used. The raw text is kept for later inspection.
func Degraded(cycleID, raw string, now time.Time) models.AnalysisResult {
	res := models.AnalysisResult{
		CycleID:     cycleID,
		GeneratedAt: now.UTC(),
		OverallAssessment: models.OverallAssessment{
			FatigueLevel: models.FatigueModerate,
			ProgressRate: models.ProgressOptimal,
			Summary:      ParseFailedSummary,
		},
		TrainingModifications: models.TrainingModifications{
			Volume:    models.AdjustMaintain,
			Frequency: models.AdjustMaintain,
			Intensity: models.AdjustMaintain,
		},
		Degraded:    true,
		RawResponse: raw,
	}
	normalize(&res)
	return res
}

// extractJSON returns the outermost JSON object in s.
func extractJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func validate(res *models.AnalysisResult) error {
	oa := res.OverallAssessment
	if !oneOf(oa.FatigueLevel, models.FatigueLow, models.FatigueModerate, models.FatigueHigh) {
		return fmt.Errorf("fatigue_level %q not recognized", oa.FatigueLevel)
	}
	if !oneOf(oa.ProgressRate, models.ProgressSlow, models.ProgressOptimal, models.ProgressFast) {
		return fmt.Errorf("progress_rate %q not recognized", oa.ProgressRate)
	}
	tm := res.TrainingModifications
	for field, v := range map[string]string{"volume": tm.Volume, "frequency": tm.Frequency, "intensity": tm.Intensity} {
		if v == "" {
			continue
		}
		if !oneOf(v, models.AdjustIncrease, models.AdjustMaintain, models.AdjustDecrease) {
			return fmt.Errorf("%s %q not recognized", field, v)
		}
	}
	return nil
}

// normalize clamps confidences and replaces nil collections so stored results
// always serialize the same shape.
func normalize(res *models.AnalysisResult) {
	if res.PerExerciseRecommendation == nil {
		res.PerExerciseRecommendation = map[string]models.ExerciseRecommendation{}
	}
	for name, rec := range res.PerExerciseRecommendation {
		rec.Confidence = min(max(rec.Confidence, 0), 1)
		res.PerExerciseRecommendation[name] = rec
	}
	if res.RecoveryRecommendations == nil {
		res.RecoveryRecommendations = []string{}
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	tm := &res.TrainingModifications
	for _, v := range []*string{&tm.Volume, &tm.Frequency, &tm.Intensity} {
		if *v == "" {
			*v = models.AdjustMaintain
		}
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
