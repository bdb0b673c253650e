package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
)

// DefaultAnalysisTimeout bounds one analyzer call.
const DefaultAnalysisTimeout = 60 * time.Second

// Builder runs one analysis: request, analyzer call, parse, persist, project.
type Builder struct {
	analyzer    Analyzer
	store       storage.Gateway
	suggestions *Suggestions
	timeout     time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// NewBuilder creates a Builder. A timeout <= 0 uses DefaultAnalysisTimeout.
func NewBuilder(analyzer Analyzer, store storage.Gateway, suggestions *Suggestions, timeout time.Duration, log *slog.Logger) *Builder {
	if timeout <= 0 {
		timeout = DefaultAnalysisTimeout
	}
	return &Builder{
		analyzer:    analyzer,
		store:       store,
		suggestions: suggestions,
		timeout:     timeout,
		log:         log,
		now:         time.Now,
	}
}

// AnalyzeCycle produces and stores the result for a closed cycle. An existing
// full result is returned unchanged. Unparseable analyzer output yields a
// stored degraded result, not an error. A failed analyzer call returns an
// *models.AnalysisError and stores nothing so the caller can retry.
func (b *Builder) AnalyzeCycle(ctx context.Context, userID string, cycleNumber int, data CycleData) (models.AnalysisResult, error) {
	existing, err := LoadResult(ctx, b.store, userID, cycleNumber)
	switch {
	case err == nil && !existing.Degraded:
		return existing, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return models.AnalysisResult{}, err
	}

	id := CycleID(cycleNumber)
	req, err := BuildRequest(cycleNumber, data)
	if err != nil {
		return models.AnalysisResult{}, &models.AnalysisError{CycleID: id, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	start := time.Now()
	raw, err := b.analyzer.Analyze(callCtx, req)
	if err != nil {
		return models.AnalysisResult{}, &models.AnalysisError{CycleID: id, Err: err}
	}

	res, err := ParseResult(id, raw, b.now())
	if err != nil {
		b.log.Warn("analysis response not parseable, storing degraded result",
			"user", userID, "cycle", cycleNumber, "error", err)
		res = Degraded(id, raw, b.now())
	}
	if err := b.save(ctx, userID, cycleNumber, res); err != nil {
		return res, err
	}
	if err := b.suggestions.Project(ctx, userID, res); err != nil {
		b.log.Warn("projecting suggestions failed", "user", userID, "cycle", cycleNumber, "error", err)
	}
	b.log.Info("cycle analyzed", "user", userID, "cycle", cycleNumber,
		"degraded", res.Degraded, "exercises", len(res.PerExerciseRecommendation),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// StoreUnavailable stores the placeholder used once every attempt failed.
// An existing full result is kept.
func (b *Builder) StoreUnavailable(ctx context.Context, userID string, cycleNumber int, cause error) (models.AnalysisResult, error) {
	if existing, err := LoadResult(ctx, b.store, userID, cycleNumber); err == nil && !existing.Degraded {
		return existing, nil
	}
	res := Degraded(CycleID(cycleNumber), "", b.now())
	res.OverallAssessment.Summary = UnavailableSummary
	if cause != nil {
		res.Warnings = append(res.Warnings, cause.Error())
	}
	return res, b.save(ctx, userID, cycleNumber, res)
}

func (b *Builder) save(ctx context.Context, userID string, cycleNumber int, res models.AnalysisResult) error {
	item := storage.Item{
		PK:     storage.UserPK(userID),
		SK:     storage.AnalysisSK(cycleNumber),
		GSI1PK: storage.CyclesIndexPK(userID),
		GSI1SK: storage.AnalysisIndexSK(cycleNumber),
	}
	if err := storage.PutJSON(ctx, b.store, item, res); err != nil {
		return fmt.Errorf("storing analysis of cycle %d: %w", cycleNumber, err)
	}
	return nil
}

// LoadResult reads the stored result of a cycle.
func LoadResult(ctx context.Context, g storage.Gateway, userID string, cycleNumber int) (models.AnalysisResult, error) {
	var res models.AnalysisResult
	if err := storage.GetJSON(ctx, g, storage.UserPK(userID), storage.AnalysisSK(cycleNumber), &res); err != nil {
		return models.AnalysisResult{}, err
	}
	return res, nil
}
