package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultWorkoutLimit = 20

// dateRange normalizes optional start/end dates to YYYY-MM-DD. An empty start
// means "no range"; an empty end defaults to today.
func dateRange(startStr, endStr string) (string, string, error) {
	if startStr == "" {
		return "", "", nil
	}
	start, err := parseFlexTime(startStr)
	if err != nil {
		return "", "", err
	}
	end := time.Now().UTC()
	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return "", "", err
		}
	}
	return start.Format(time.DateOnly), end.Format(time.DateOnly), nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.DateOnly, s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolListTemplates = mcp.NewTool("list_templates",
	mcp.WithDescription("List all workout templates with their exercises, target sets/reps, rest periods and each exercise's tracking type (weighted, bodyweight, duration, weighted_duration)."),
)

var toolGetCurrentCycle = mcp.NewTool("get_current_cycle",
	mcp.WithDescription("Get the open training cycle: its number, the selected workout templates and which of them are already completed."),
)

var toolGetCycleHistory = mcp.NewTool("get_cycle_history",
	mcp.WithDescription("List archived (closed) training cycles with the workouts that completed them."),
	mcp.WithNumber("from", mcp.Description("First cycle number. Defaults to 1.")),
	mcp.WithNumber("to", mcp.Description("Last cycle number. Defaults to the most recent.")),
)

var toolGetWorkouts = mcp.NewTool("get_workouts",
	mcp.WithDescription("Query logged workouts with every set, per-exercise RPE and skipped exercises. Without a start date, returns the most recent workouts."),
	mcp.WithString("start", mcp.Description("Start date (YYYY-MM-DD). Optional.")),
	mcp.WithString("end", mcp.Description("End date (YYYY-MM-DD). Defaults to today when start is set.")),
	mcp.WithNumber("limit", mcp.Description("Maximum number of recent workouts when no start date is given. Defaults to 20.")),
)

var toolGetAnalysis = mcp.NewTool("get_analysis",
	mcp.WithDescription("Get the stored coaching analysis of a closed cycle: fatigue, progress rate, per-exercise recommendations, training modifications and warnings."),
	mcp.WithNumber("cycle", mcp.Description("Cycle number. Defaults to the most recently closed cycle.")),
)

var toolGetSuggestion = mcp.NewTool("get_suggestion",
	mcp.WithDescription("Get the latest suggested weight and reps for one exercise, with reasoning and confidence."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise name (case-insensitive, e.g. 'Bench Press')")),
)

// --- Tool handlers ---

type exerciseInfo struct {
	models.ExerciseSpec
	TrackingType models.TrackingType `json:"tracking_type"`
}

type templateInfo struct {
	Key       string         `json:"key"`
	Title     string         `json:"title"`
	Mandatory bool           `json:"mandatory"`
	Exercises []exerciseInfo `json:"exercises"`
}

func (h *handlers) listTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tpls, err := h.ds.Templates(ctx)
	if err != nil {
		h.log.Error("mcp list_templates", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	out := make([]templateInfo, 0, len(tpls))
	for _, t := range tpls {
		ti := templateInfo{Key: t.Key, Title: t.Title, Mandatory: t.Mandatory}
		for _, ex := range t.Exercises {
			ti.Exercises = append(ti.Exercises, exerciseInfo{ExerciseSpec: ex, TrackingType: models.Classify(ex.Name)})
		}
		out = append(out, ti)
	}
	return jsonResult(out)
}

func (h *handlers) getCurrentCycle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := h.ds.CurrentCycle(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_current_cycle", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(st)
}

func (h *handlers) getCycleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetInt("from", 1)
	to := req.GetInt("to", 0)
	if from < 1 {
		return mcp.NewToolResultError("from must be at least 1"), nil
	}
	archives, err := h.ds.CycleHistory(ctx, UserIDFromContext(ctx), from, to)
	if err != nil {
		h.log.Error("mcp get_cycle_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(archives)
}

func (h *handlers) getWorkouts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, to, err := dateRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}
	limit := req.GetInt("limit", defaultWorkoutLimit)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}
	workouts, err := h.ds.Workouts(ctx, UserIDFromContext(ctx), from, to, limit)
	if err != nil {
		h.log.Error("mcp get_workouts", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(workouts)
}

func (h *handlers) getAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := h.ds.Analysis(ctx, UserIDFromContext(ctx), req.GetInt("cycle", 0))
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultText("No analysis is stored for that cycle yet."), nil
	}
	if err != nil {
		h.log.Error("mcp get_analysis", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(res)
}

func (h *handlers) getSuggestion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}
	sg, err := h.ds.Suggestion(ctx, UserIDFromContext(ctx), exercise)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultText("No suggestion yet for " + exercise + "."), nil
	}
	if err != nil {
		h.log.Error("mcp get_suggestion", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(sg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
