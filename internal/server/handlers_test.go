package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ibarani/fitforge/internal/analysis"
	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/coach"
	"github.com/ibarani/fitforge/internal/cycle"
	"github.com/ibarani/fitforge/internal/ingest"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/session"
	"github.com/ibarani/fitforge/internal/storage"
)

func iptr(v int) *int { return &v }

type recordingTrigger struct {
	mu     sync.Mutex
	events []models.CycleClosed
}

func (r *recordingTrigger) Trigger(ev models.CycleClosed) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type testEnv struct {
	srv     *Server
	mem     *storage.Memory
	trigger *recordingTrigger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	c, err := catalog.New([]models.WorkoutTemplate{
		{Key: "A", Title: "Push", Mandatory: true, Exercises: []models.ExerciseSpec{{Name: "Bench", TargetSets: 3, RestSeconds: 120}}},
		{Key: "B", Title: "Core", Exercises: []models.ExerciseSpec{{Name: "Plank", TargetSets: 1}}},
		{Key: "C", Title: "Carry", Exercises: []models.ExerciseSpec{{Name: "Farmer's Walk", TargetSets: 2}}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := storage.NewMemory()
	trigger := &recordingTrigger{}

	timers := session.NewTimers(nil)
	tracker := session.NewTracker(c, session.Options{ZeroSetRequiresRPE: true}, timers)
	drafts := session.NewDrafts(mem, time.Hour, time.Second, log)
	t.Cleanup(func() { _ = drafts.Close(context.Background()) })
	cycles := cycle.NewTracker(c, mem, cycle.Options{ResetOnConfigChange: true}, log)
	cycles.Subscribe(trigger.Trigger)
	ch := coach.New(c, tracker, mem, cycles, trigger, nil, log)

	srv := New(Deps{
		Catalog:     c,
		Sessions:    session.NewService(c, tracker, timers, drafts, mem, ch, log),
		Coach:       ch,
		Cycles:      cycles,
		Suggestions: analysis.NewSuggestions(mem, time.Minute),
		Store:       mem,
		Importer:    ingest.NewImporter(c, ch, mem, log),
	}, nil, log)
	return &testEnv{srv: srv, mem: mem, trigger: trigger}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, rec.Body.String())
	}
	return v
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no other identity middleware is configured.
func TestHandleMeDefault(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	info := decode[UserInfo](t, rec)
	if info.Login != DevUserID {
		t.Errorf("login = %q, want %q", info.Login, DevUserID)
	}
}

// TestHandleTemplates verifies templates are listed with their tracking types.
func TestHandleTemplates(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/templates", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	tpls := decode[[]templateView](t, rec)
	if len(tpls) != 3 {
		t.Fatalf("templates = %d, want 3", len(tpls))
	}
	if got := tpls[1].Exercises[0].TrackingType; got != models.TrackingDuration {
		t.Errorf("Plank tracking = %q, want %q", got, models.TrackingDuration)
	}
}

// TestSessionFlowClosesCycle walks a full workout through the session API
// and verifies the cycle closes and analysis is triggered once.
func TestSessionFlowClosesCycle(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/sessions/A", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	set := map[string]any{"weight": 225, "reps": 5}
	for _, idx := range []string{"0", "1", "2"} {
		rec = e.do(t, http.MethodPut, "/api/v1/sessions/A/sets/Bench/"+idx, set)
		if rec.Code != http.StatusOK {
			t.Fatalf("set %s status = %d: %s", idx, rec.Code, rec.Body.String())
		}
	}
	v := decode[session.View](t, rec)
	if v.Complete {
		t.Fatal("session complete before RPE was recorded")
	}
	if v.Rest == nil || v.Rest.Exercise != "Bench" {
		t.Errorf("rest = %+v, want a Bench rest signal", v.Rest)
	}

	rec = e.do(t, http.MethodPut, "/api/v1/sessions/A/rpe/Bench", map[string]int{"rpe": 8})
	if rec.Code != http.StatusOK {
		t.Fatalf("rpe status = %d: %s", rec.Code, rec.Body.String())
	}
	v = decode[session.View](t, rec)
	if !v.Complete || v.Saved == nil || v.Saved.CycleClosed == nil {
		t.Fatalf("view = %+v, want a completed save that closed the cycle", v)
	}
	if e.trigger.count() != 1 {
		t.Errorf("analysis triggers = %d, want 1", e.trigger.count())
	}

	rec = e.do(t, http.MethodGet, "/api/v1/cycles/current", nil)
	st := decode[models.CycleState](t, rec)
	if st.Number != 2 || len(st.CompletedWorkoutKeys) != 0 {
		t.Errorf("current cycle = %+v, want fresh cycle 2", st)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/cycles", nil)
	archives := decode[[]models.CycleArchive](t, rec)
	if len(archives) != 1 || archives[0].Number != 1 {
		t.Errorf("archives = %+v, want cycle 1", archives)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/workouts?limit=5", nil)
	workouts := decode[[]models.WorkoutSession](t, rec)
	if len(workouts) != 1 {
		t.Errorf("workouts = %d, want 1", len(workouts))
	}
}

// TestSessionErrors verifies domain errors map to the expected status codes.
func TestSessionErrors(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/v1/sessions/A", nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown template", http.MethodPost, "/api/v1/sessions/Z", nil, http.StatusBadRequest},
		{"no session", http.MethodPut, "/api/v1/sessions/B/rpe/Plank", map[string]int{"rpe": 5}, http.StatusNotFound},
		{"bad index", http.MethodPut, "/api/v1/sessions/A/sets/Bench/x", map[string]int{"reps": 5}, http.StatusBadRequest},
		{"index out of range", http.MethodPut, "/api/v1/sessions/A/sets/Bench/9", map[string]int{"reps": 5}, http.StatusBadRequest},
		{"rpe out of range", http.MethodPut, "/api/v1/sessions/A/rpe/Bench", map[string]int{"rpe": 11}, http.StatusBadRequest},
		{"unknown exercise", http.MethodPost, "/api/v1/sessions/A/skip/Curl", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/workouts?limit=0", nil, http.StatusBadRequest},
		{"unknown cycle key", http.MethodPut, "/api/v1/cycles/config", map[string][]string{"include": {"Q"}}, http.StatusBadRequest},
		{"missing analysis", http.MethodGet, "/api/v1/analysis/1", nil, http.StatusNotFound},
		{"bad analysis number", http.MethodGet, "/api/v1/analysis/zero", nil, http.StatusBadRequest},
		{"no suggestion", http.MethodGet, "/api/v1/suggestions/Bench", nil, http.StatusNotFound},
		{"no archive to analyze", http.MethodPost, "/api/v1/analysis/trigger", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

// TestSaveWorkoutStoreDown verifies a save without an outbox reports 503.
func TestSaveWorkoutStoreDown(t *testing.T) {
	e := newTestEnv(t)
	e.mem.FailWith(errors.New("connection refused"))
	defer e.mem.FailWith(nil)

	rec := e.do(t, http.MethodPost, "/api/v1/workouts", models.WorkoutSession{
		TemplateKey: "B",
		Date:        "2024-03-01",
		Sets:        map[string][]models.SetRecord{"Plank": {{DurationSeconds: iptr(60)}}},
		ExerciseRPE: map[string]int{"Plank": 6},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
}

// TestConfigureCycleAndTrigger verifies narrowing the selection and
// triggering analysis of the closed cycle.
func TestConfigureCycleAndTrigger(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPut, "/api/v1/cycles/config", map[string][]string{"include": {"B"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("config status = %d: %s", rec.Code, rec.Body.String())
	}
	out := decode[cycle.Outcome](t, rec)
	if !models.SameKeys(out.State.SelectedWorkoutKeys, []string{"A", "B"}) {
		t.Errorf("selected = %v, want [A B]", out.State.SelectedWorkoutKeys)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/workouts", models.WorkoutSession{
		TemplateKey: "B",
		Date:        "2024-03-01",
		Sets:        map[string][]models.SetRecord{"Plank": {{DurationSeconds: iptr(60)}}},
		ExerciseRPE: map[string]int{"Plank": 6},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[models.SaveResult](t, rec)
	if !res.Counted || res.CycleClosed != nil {
		t.Errorf("result = %+v, want counted without closure", res)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/analysis/trigger", map[string]int{"cycle_number": 1})
	if rec.Code != http.StatusNotFound {
		t.Errorf("trigger of open cycle status = %d, want 404", rec.Code)
	}
}

// TestProfileRoundTrip verifies profile updates are stored per user.
func TestProfileRoundTrip(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPut, "/api/v1/profile", map[string]any{"bodyweight": 82.5, "experience_level": "intermediate"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodGet, "/api/v1/profile", nil)
	p := decode[models.UserProfile](t, rec)
	if p.Bodyweight == nil || *p.Bodyweight != 82.5 || p.ExperienceLevel != "intermediate" {
		t.Errorf("profile = %+v", p)
	}

	rec = e.do(t, http.MethodPut, "/api/v1/profile", map[string]any{"bodyweight": -1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative bodyweight status = %d, want 400", rec.Code)
	}
}

// TestImportAlpha verifies an uploaded Alpha Progression export is saved as
// workouts and that a malformed export is rejected with 400.
func TestImportAlpha(t *testing.T) {
	e := newTestEnv(t)
	csv := `"Push · Day 1";"2026-02-17 5:04 h";"1:12 hr"
"1. Bench · Barbell · 6 reps"
#;KG;REPS;RIR
1;100;6;1
2;100;6;1
3;100;6;2
`
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/import/alpha", strings.NewReader(csv)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[ingest.Result](t, rec)
	if res.WorkoutsSaved != 1 || res.WorkoutsComplete != 1 {
		t.Errorf("result = %+v", res)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/workouts", nil)
	workouts := decode[[]models.WorkoutSession](t, rec)
	if len(workouts) != 1 || workouts[0].Date != "2026-02-17" {
		t.Errorf("workouts = %+v", workouts)
	}

	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/import/alpha",
		strings.NewReader(`"1. Bench · Barbell · 6 reps"`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed status = %d, want 400", rec.Code)
	}
}

// TestEscapedExerciseNames verifies that exercise names in the path are
// decoded whichever escaping the client used.
func TestEscapedExerciseNames(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(t, http.MethodPost, "/api/v1/sessions/C", nil); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}

	for i, path := range []string{
		"/api/v1/sessions/C/rpe/Farmer's%20Walk",
		"/api/v1/sessions/C/rpe/Farmer%27s%20Walk",
	} {
		rec := e.do(t, http.MethodPut, path, map[string]int{"rpe": 6 + i})
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d: %s", path, rec.Code, rec.Body.String())
		}
		v := decode[session.View](t, rec)
		if got := v.Session.ExerciseRPE["Farmer's Walk"]; got != 6+i {
			t.Errorf("%s: rpe = %d, want %d", path, got, 6+i)
		}
	}
}
