package server

import (
	"encoding/json"
	"net/http"

	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/streak"
	"github.com/habitkit/habits/pkg/habit"
	"github.com/habitkit/habits/pkg/versioninfo"
)

func (s *Server) getVersionInfo(w http.ResponseWriter, _ *http.Request) {
	if err := writeJSON(w, http.StatusOK, versioninfo.Get()); err != nil {
		logger.Error("Failed to serialize version info response", "error", err)
		http.Error(w, `{"error":"failed to serialize version info"}`, http.StatusInternalServerError)
		return
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) listHabits(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	logger.Debug("Listing habits", "user_id", userID)

	views, err := s.habitViews(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err, "habit", "Failed to list habits", "user_id", userID)
		return
	}
	UpdateActiveHabitsForUser(userID, len(views))

	logger.Debug("Listed habits successfully", "user_id", userID, "count", len(views))
	if err := writeJSON(w, http.StatusOK, HabitListResponse{Habits: views}); err != nil {
		logger.Error("Failed to serialize habit list response", "user_id", userID, "error", err)
	}
}

func (s *Server) createHabit(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	var in habit.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		logger.Warn("Invalid JSON in create habit request", "error", err)
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h, err := s.store.CreateHabit(r.Context(), userID, in)
	if err != nil {
		writeStoreError(w, err, "habit", "Failed to create habit", "user_id", userID, "habit_name", in.Name)
		return
	}
	logger.Info("Habit created", "user_id", userID, "habit_id", h.ID, "habit_name", h.Name)
	s.refreshActiveHabits(r, userID)

	if err := writeJSON(w, http.StatusCreated, h); err != nil {
		logger.Error("Failed to serialize create habit response", "user_id", userID, "habit_id", h.ID, "error", err)
	}
}

func (s *Server) getHabit(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	habitID, ok := habitIDParam(r)
	if !ok {
		http.Error(w, `{"error":"invalid habit id"}`, http.StatusBadRequest)
		return
	}

	view, days, err := s.habitView(r.Context(), userID, habitID)
	if err != nil {
		writeStoreError(w, err, "habit", "Failed to get habit", "user_id", userID, "habit_id", habitID)
		return
	}

	resp := HabitGetResponse{Habit: view, Completions: make([]string, 0, len(days))}
	for _, d := range streak.Normalize(days) {
		resp.Completions = append(resp.Completions, streak.Format(d))
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		logger.Error("Failed to serialize get habit response", "user_id", userID, "habit_id", habitID, "error", err)
	}
}

func (s *Server) updateHabit(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	habitID, ok := habitIDParam(r)
	if !ok {
		http.Error(w, `{"error":"invalid habit id"}`, http.StatusBadRequest)
		return
	}

	var in habit.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		logger.Warn("Invalid JSON in update habit request", "error", err)
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	h, err := s.applyEdit(r, userID, habitID, in)
	if err != nil {
		writeStoreError(w, err, "habit", "Failed to update habit", "user_id", userID, "habit_id", habitID)
		return
	}
	logger.Info("Habit updated", "user_id", userID, "habit_id", habitID)
	if err := writeJSON(w, http.StatusOK, h); err != nil {
		logger.Error("Failed to serialize update habit response", "user_id", userID, "habit_id", habitID, "error", err)
	}
}

// applyEdit merges in over the stored habit: blank category, color and
// reminder keep their current values.
func (s *Server) applyEdit(r *http.Request, userID, habitID int64, in habit.Input) (*habit.Habit, error) {
	cur, err := s.store.GetHabit(r.Context(), userID, habitID)
	if err != nil {
		return nil, err
	}
	if in.Category == "" {
		in.Category = cur.Category
	}
	if in.Color == "" {
		in.Color = cur.Color
	}
	if in.ReminderTime == "" {
		in.ReminderTime = cur.ReminderTime
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdateHabit(r.Context(), userID, habitID, in)
}

func (s *Server) deleteHabit(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	habitID, ok := habitIDParam(r)
	if !ok {
		http.Error(w, `{"error":"invalid habit id"}`, http.StatusBadRequest)
		return
	}
	logger.Info("Deleting habit", "user_id", userID, "habit_id", habitID)

	if err := s.store.DeleteHabit(r.Context(), userID, habitID); err != nil {
		writeStoreError(w, err, "habit", "Failed to delete habit", "user_id", userID, "habit_id", habitID)
		return
	}
	logger.Info("Habit deleted successfully", "user_id", userID, "habit_id", habitID)
	s.refreshActiveHabits(r, userID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleHabit(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	habitID, ok := habitIDParam(r)
	if !ok {
		http.Error(w, `{"error":"invalid habit id"}`, http.StatusBadRequest)
		return
	}

	res, err := s.toggle(r, userID, habitID)
	if err != nil {
		writeStoreError(w, err, "habit", "Failed to toggle habit", "user_id", userID, "habit_id", habitID)
		return
	}
	if err := writeJSON(w, http.StatusOK, res); err != nil {
		logger.Error("Failed to serialize toggle response", "user_id", userID, "habit_id", habitID, "error", err)
	}
}

func (s *Server) toggle(r *http.Request, userID, habitID int64) (habit.ToggleResult, error) {
	res, err := s.store.ToggleCompletion(r.Context(), userID, habitID, s.today())
	if err != nil {
		return res, err
	}
	RecordToggle(res.Done)
	logger.Info("Habit toggled", "user_id", userID, "habit_id", habitID, "day", res.Day, "done", res.Done, "streak", res.Streak)
	return res, nil
}

func (s *Server) getHabitSummary(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	habitID, ok := habitIDParam(r)
	if !ok {
		http.Error(w, `{"error":"invalid habit id"}`, http.StatusBadRequest)
		return
	}
	logger.Debug("Getting habit summary", "habit_id", habitID, "user_id", userID)

	summary, err := s.computeSummary(r.Context(), userID, habitID)
	if err != nil {
		writeStoreError(w, err, "habit", "Failed to compute habit summary", "user_id", userID, "habit_id", habitID)
		return
	}

	resp := HabitSummaryResponse{HabitID: habitID, HabitSummary: summary}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		logger.Error("Failed to serialize habit summary response", "user_id", userID, "habit_id", habitID, "error", err)
	}
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	st, err := s.computeStats(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err, "habit", "Failed to compute stats", "user_id", userID)
		return
	}
	if err := writeJSON(w, http.StatusOK, st); err != nil {
		logger.Error("Failed to serialize stats response", "user_id", userID, "error", err)
	}
}

func (s *Server) refreshActiveHabits(r *http.Request, userID int64) {
	habits, err := s.store.ListHabits(r.Context(), userID)
	if err != nil {
		logger.Warn("Failed to update active habits metric", "user_id", userID, "error", err)
		return
	}
	UpdateActiveHabitsForUser(userID, len(habits))
}
