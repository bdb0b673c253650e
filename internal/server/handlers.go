package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ibarani/fitforge/internal/analysis"
	"github.com/ibarani/fitforge/internal/cycle"
	"github.com/ibarani/fitforge/internal/models"
	"github.com/ibarani/fitforge/internal/session"
	"github.com/ibarani/fitforge/internal/storage"
)

const defaultWorkoutLimit = 20

// pathParam returns a decoded URL parameter. chi matches on the raw path when
// the client's escaping differs from Go's, leaving the value still escaped.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

type exerciseView struct {
	models.ExerciseSpec
	TrackingType   models.TrackingType `json:"tracking_type"`
	RequiredFields []string            `json:"required_fields"`
}

type templateView struct {
	Key       string         `json:"key"`
	Title     string         `json:"title"`
	Mandatory bool           `json:"mandatory"`
	Exercises []exerciseView `json:"exercises"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	all := s.catalog.All()
	out := make([]templateView, 0, len(all))
	for _, tpl := range all {
		tv := templateView{Key: tpl.Key, Title: tpl.Title, Mandatory: tpl.Mandatory}
		for _, ex := range tpl.Exercises {
			tt := models.Classify(ex.Name)
			tv.Exercises = append(tv.Exercises, exerciseView{
				ExerciseSpec:   ex,
				TrackingType:   tt,
				RequiredFields: tt.RequiredFields(),
			})
		}
		out = append(out, tv)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := storage.GetProfile(r.Context(), s.store, userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p models.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if p.Bodyweight != nil && *p.Bodyweight <= 0 {
		s.writeError(w, models.Invalid("bodyweight", "must be positive"))
		return
	}
	p.UpdatedAt = time.Now().UTC()
	if err := storage.PutProfile(r.Context(), s.store, userIDFromContext(r), p); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Start(r.Context(), userIDFromContext(r), pathParam(r, "templateKey"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Get(userIDFromContext(r), pathParam(r, "templateKey"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid set index"})
		return
	}
	var rec models.SetRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	v, err := s.sessions.UpdateSet(r.Context(), userIDFromContext(r), pathParam(r, "templateKey"), pathParam(r, "exercise"), index, rec)
	s.writeView(w, v, err)
}

func (s *Server) handleRecordRPE(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RPE int `json:"rpe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	v, err := s.sessions.RecordRPE(r.Context(), userIDFromContext(r), pathParam(r, "templateKey"), pathParam(r, "exercise"), body.RPE)
	s.writeView(w, v, err)
}

func (s *Server) handleSkipExercise(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.SkipExercise(r.Context(), userIDFromContext(r), pathParam(r, "templateKey"), pathParam(r, "exercise"))
	s.writeView(w, v, err)
}

// writeView answers a session mutation, counting the save when the mutation
// finished the workout.
func (s *Server) writeView(w http.ResponseWriter, v *session.View, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if v.Saved != nil {
		s.countSave(v.Saved)
		if v.Saved.Offline {
			status = http.StatusAccepted
		}
	}
	writeJSON(w, status, v)
}

func (s *Server) handleSaveWorkout(w http.ResponseWriter, r *http.Request) {
	var ws models.WorkoutSession
	if err := json.NewDecoder(r.Body).Decode(&ws); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	res, err := s.coach.SaveWorkout(r.Context(), userIDFromContext(r), &ws)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.countSave(res)
	status := http.StatusCreated
	if res.Offline {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	limit := defaultWorkoutLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	userID := userIDFromContext(r)

	var (
		workouts []models.WorkoutSession
		err      error
	)
	if from := r.URL.Query().Get("from"); from != "" {
		to := r.URL.Query().Get("to")
		if to == "" {
			to = time.Now().UTC().Format(time.DateOnly)
		}
		workouts, err = storage.WorkoutsBetween(r.Context(), s.store, userID, from, to)
	} else {
		workouts, err = storage.ListWorkouts(r.Context(), s.store, userID, limit)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if workouts == nil {
		workouts = []models.WorkoutSession{}
	}
	writeJSON(w, http.StatusOK, workouts)
}

func (s *Server) handleCurrentCycle(w http.ResponseWriter, r *http.Request) {
	st, err := s.cycles.Current(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleConfigureCycle(w http.ResponseWriter, r *http.Request) {
	var sel cycle.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	out, err := s.cycles.Configure(r.Context(), userIDFromContext(r), sel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	from, err := intParam(r, "from", 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	to, err := intParam(r, "to", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	archives, err := s.cycles.Archives(r.Context(), userIDFromContext(r), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if archives == nil {
		archives = []models.CycleArchive{}
	}
	writeJSON(w, http.StatusOK, archives)
}

func (s *Server) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CycleNumber int `json:"cycle_number"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
	}
	n, err := s.coach.TriggerAnalysis(r.Context(), userIDFromContext(r), body.CycleNumber)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"cycle_number": n, "status": "queued"})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "cycle"))
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cycle number"})
		return
	}
	res, err := analysis.LoadResult(r.Context(), s.store, userIDFromContext(r), n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLatestSuggestions(w http.ResponseWriter, r *http.Request) {
	set, err := s.suggestions.Latest(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	sg, err := s.suggestions.Get(r.Context(), userIDFromContext(r), pathParam(r, "exerciseName"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}

func (s *Server) countSave(res *models.SaveResult) {
	if s.metrics != nil {
		s.metrics.WorkoutSaved(res)
	}
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error()})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, session.ErrNoSession):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case models.IsPersistence(err):
		s.log.Error("store unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable, try again"})
	default:
		s.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

// maxImportSize caps an uploaded export.
const maxImportSize = 16 << 20

func (s *Server) handleImportAlpha(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportSize)
	res, err := s.importer.ImportAlpha(r.Context(), userIDFromContext(r), body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "export too large"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
