package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ibarani/fitforge/internal/analysis"
	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/cycle"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
)

// TestUserIDFromContextDefault verifies an empty user ID when no value is set.
func TestUserIDFromContextDefault(t *testing.T) {
	if id := UserIDFromContext(context.Background()); id != "" {
		t.Errorf("UserIDFromContext(empty) = %q, want empty", id)
	}
}

// TestUserIDFromContextSet verifies the user ID is extracted from context
// after being set by WithUserID.
func TestUserIDFromContextSet(t *testing.T) {
	ctx := WithUserID(context.Background(), "athlete-7")
	if id := UserIDFromContext(ctx); id != "athlete-7" {
		t.Errorf("UserIDFromContext = %q, want athlete-7", id)
	}
}

// TestDateRange verifies date normalization and defaults.
func TestDateRange(t *testing.T) {
	from, to, err := dateRange("", "")
	if err != nil || from != "" || to != "" {
		t.Errorf("empty range = (%q, %q, %v), want no range", from, to, err)
	}

	from, to, err = dateRange("2024-01-01", "2024-01-31T10:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if from != "2024-01-01" || to != "2024-01-31" {
		t.Errorf("range = %s..%s, want 2024-01-01..2024-01-31", from, to)
	}

	_, to, err = dateRange("2024-01-01", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if to != time.Now().UTC().Format(time.DateOnly) {
		t.Errorf("default end = %s, want today", to)
	}

	if _, _, err = dateRange("not-a-date", ""); err == nil {
		t.Error("expected error for invalid date")
	}
}

type toolEnv struct {
	h      *handlers
	cycles *cycle.Tracker
	mem    *storage.Memory
	sugg   *analysis.Suggestions
}

func newToolEnv(t *testing.T) *toolEnv {
	t.Helper()
	c, err := catalog.New([]models.WorkoutTemplate{
		{Key: "A", Title: "Push", Mandatory: true, Exercises: []models.ExerciseSpec{{Name: "Bench Press", TargetSets: 3}}},
		{Key: "B", Title: "Core", Exercises: []models.ExerciseSpec{{Name: "Plank", TargetSets: 2}}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := storage.NewMemory()
	cycles := cycle.NewTracker(c, mem, cycle.Options{ResetOnConfigChange: true}, log)
	sugg := analysis.NewSuggestions(mem, time.Minute)
	ds := &Local{Catalog: c, Cycles: cycles, Suggestions: sugg, Store: mem}
	return &toolEnv{h: &handlers{ds: ds, log: log}, cycles: cycles, mem: mem, sugg: sugg}
}

func callTool(t *testing.T, fn func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), user string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := fn(WithUserID(context.Background(), user), req)
	if err != nil {
		t.Fatalf("tool returned error: %v", err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

// TestListTemplatesTool verifies templates are returned with tracking types.
func TestListTemplatesTool(t *testing.T) {
	e := newToolEnv(t)
	res := callTool(t, e.h.listTemplates, "u1", nil)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var tpls []templateInfo
	if err := json.Unmarshal([]byte(resultText(t, res)), &tpls); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tpls) != 2 {
		t.Fatalf("templates = %d, want 2", len(tpls))
	}
	if tpls[1].Exercises[0].TrackingType != models.TrackingDuration {
		t.Errorf("Plank tracking = %q, want duration", tpls[1].Exercises[0].TrackingType)
	}
}

// TestCycleTools verifies current cycle and history after a closure.
func TestCycleTools(t *testing.T) {
	e := newToolEnv(t)
	ctx := context.Background()
	if _, err := e.cycles.Complete(ctx, "u1", "A", storage.WorkoutSK("2024-03-01", "A")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res := callTool(t, e.h.getCurrentCycle, "u1", nil)
	var st models.CycleState
	if err := json.Unmarshal([]byte(resultText(t, res)), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Number != 2 {
		t.Errorf("cycle number = %d, want 2", st.Number)
	}

	res = callTool(t, e.h.getCycleHistory, "u1", map[string]any{"from": 1})
	var archives []models.CycleArchive
	if err := json.Unmarshal([]byte(resultText(t, res)), &archives); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(archives) != 1 || archives[0].Number != 1 {
		t.Errorf("archives = %+v, want cycle 1", archives)
	}

	res = callTool(t, e.h.getCycleHistory, "u1", map[string]any{"from": 0})
	if !res.IsError {
		t.Error("expected error for from=0")
	}
}

// TestToolsRequireIdentity verifies user-scoped tools fail without a user.
func TestToolsRequireIdentity(t *testing.T) {
	e := newToolEnv(t)
	res := callTool(t, e.h.getCurrentCycle, "", nil)
	if !res.IsError {
		t.Error("expected error without user identity")
	}
}

// TestGetWorkoutsTool verifies recent and ranged workout queries.
func TestGetWorkoutsTool(t *testing.T) {
	e := newToolEnv(t)
	ctx := context.Background()
	for _, d := range []string{"2024-03-01", "2024-03-05", "2024-03-09"} {
		w := &models.WorkoutSession{ID: d, UserID: "u1", TemplateKey: "A", Date: d}
		if _, err := storage.PutWorkout(ctx, e.mem, w); err != nil {
			t.Fatalf("put workout: %v", err)
		}
	}

	res := callTool(t, e.h.getWorkouts, "u1", map[string]any{"limit": 2})
	var ws []models.WorkoutSession
	if err := json.Unmarshal([]byte(resultText(t, res)), &ws); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ws) != 2 {
		t.Errorf("recent workouts = %d, want 2", len(ws))
	}

	res = callTool(t, e.h.getWorkouts, "u1", map[string]any{"start": "2024-03-02", "end": "2024-03-06"})
	ws = nil
	if err := json.Unmarshal([]byte(resultText(t, res)), &ws); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ws) != 1 || ws[0].Date != "2024-03-05" {
		t.Errorf("ranged workouts = %+v, want only 2024-03-05", ws)
	}

	res = callTool(t, e.h.getWorkouts, "u1", map[string]any{"start": "yesterday"})
	if !res.IsError {
		t.Error("expected error for invalid start date")
	}
}

// TestAnalysisAndSuggestionTools verifies stored results are served and
// missing ones answer with a plain message.
func TestAnalysisAndSuggestionTools(t *testing.T) {
	e := newToolEnv(t)
	ctx := context.Background()

	res := callTool(t, e.h.getAnalysis, "u1", map[string]any{"cycle": 1})
	if res.IsError {
		t.Errorf("missing analysis should not be a tool error: %s", resultText(t, res))
	}
	res = callTool(t, e.h.getSuggestion, "u1", map[string]any{"exercise": "Bench Press"})
	if res.IsError {
		t.Errorf("missing suggestion should not be a tool error: %s", resultText(t, res))
	}
	res = callTool(t, e.h.getSuggestion, "u1", nil)
	if !res.IsError {
		t.Error("expected error when exercise is missing")
	}

	w := 105.0
	result := models.AnalysisResult{
		CycleID:     "1",
		GeneratedAt: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		PerExerciseRecommendation: map[string]models.ExerciseRecommendation{
			"Bench Press": {SuggestedWeight: &w, SuggestedRepsLabel: "5", Reasoning: "steady RPE", Confidence: 0.8},
		},
	}
	if err := e.sugg.Project(ctx, "u1", result); err != nil {
		t.Fatalf("project: %v", err)
	}

	res = callTool(t, e.h.getSuggestion, "u1", map[string]any{"exercise": "bench press"})
	var sg models.Suggestion
	if err := json.Unmarshal([]byte(resultText(t, res)), &sg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sg.SuggestedWeight == nil || *sg.SuggestedWeight != 105 {
		t.Errorf("suggestion = %+v, want 105", sg)
	}
}
