package mcp

import (
	"context"
	"errors"

	"github.com/ibarani/fitforge/internal/analysis"
	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/cycle"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
)

// errNoUser is returned when a tool runs without a caller identity.
var errNoUser = errors.New("no user identity on request")

// DataSource abstracts the data layer for MCP tools. Local (in-process) and
// HTTPClient (remote via REST API) both satisfy this interface.
type DataSource interface {
	Templates(ctx context.Context) ([]models.WorkoutTemplate, error)
	CurrentCycle(ctx context.Context, userID string) (models.CycleState, error)
	CycleHistory(ctx context.Context, userID string, from, to int) ([]models.CycleArchive, error)
	Workouts(ctx context.Context, userID, from, to string, limit int) ([]models.WorkoutSession, error)
	Analysis(ctx context.Context, userID string, cycleNumber int) (models.AnalysisResult, error)
	Suggestion(ctx context.Context, userID, exercise string) (models.Suggestion, error)
}

// Local serves tool calls straight from the running components.
type Local struct {
	Catalog     *catalog.Catalog
	Cycles      *cycle.Tracker
	Suggestions *analysis.Suggestions
	Store       storage.Gateway
}

// Compile-time check: *Local satisfies DataSource.
var _ DataSource = (*Local)(nil)

func (l *Local) Templates(ctx context.Context) ([]models.WorkoutTemplate, error) {
	return l.Catalog.All(), nil
}

func (l *Local) CurrentCycle(ctx context.Context, userID string) (models.CycleState, error) {
	if userID == "" {
		return models.CycleState{}, errNoUser
	}
	return l.Cycles.Current(ctx, userID)
}

func (l *Local) CycleHistory(ctx context.Context, userID string, from, to int) ([]models.CycleArchive, error) {
	if userID == "" {
		return nil, errNoUser
	}
	return l.Cycles.Archives(ctx, userID, from, to)
}

func (l *Local) Workouts(ctx context.Context, userID, from, to string, limit int) ([]models.WorkoutSession, error) {
	if userID == "" {
		return nil, errNoUser
	}
	if from != "" {
		return storage.WorkoutsBetween(ctx, l.Store, userID, from, to)
	}
	return storage.ListWorkouts(ctx, l.Store, userID, limit)
}

func (l *Local) Analysis(ctx context.Context, userID string, cycleNumber int) (models.AnalysisResult, error) {
	if userID == "" {
		return models.AnalysisResult{}, errNoUser
	}
	if cycleNumber <= 0 {
		a, err := l.Cycles.LatestArchive(ctx, userID)
		if err != nil {
			return models.AnalysisResult{}, err
		}
		cycleNumber = a.Number
	}
	return analysis.LoadResult(ctx, l.Store, userID, cycleNumber)
}

func (l *Local) Suggestion(ctx context.Context, userID, exercise string) (models.Suggestion, error) {
	if userID == "" {
		return models.Suggestion{}, errNoUser
	}
	return l.Suggestions.Get(ctx, userID, exercise)
}
