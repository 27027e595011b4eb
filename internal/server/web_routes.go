package server

import (
	"errors"
	"net/http"

	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/pkg/habit"
)

type indexData struct {
	User   *User
	Today  string
	Habits []habit.View
	Error  string
}

type statsData struct {
	User     *User
	Stats    habit.Stats
	MaxCount int
}

func formInput(r *http.Request) habit.Input {
	name := r.PostFormValue("name")
	if name == "" {
		name = r.PostFormValue("habit")
	}
	return habit.Input{
		Name:         name,
		Category:     r.PostFormValue("category"),
		Color:        r.PostFormValue("color"),
		ReminderTime: r.PostFormValue("reminder_time"),
	}
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, "")
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, code int, msg string) {
	u, _ := userFromContext(r.Context())
	views, err := s.habitViews(r.Context(), u.UserID)
	if err != nil {
		logger.Error("Failed to list habits", "user_id", u.UserID, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	s.render(w, code, "index", indexData{
		User:   u,
		Today:  s.today().Format("Monday, 2 January"),
		Habits: views,
		Error:  msg,
	})
}

func (s *Server) createHabitForm(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	in := formInput(r).Normalize()
	if err := in.Validate(); err != nil {
		s.renderIndex(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h, err := s.store.CreateHabit(r.Context(), userID, in)
	if err != nil {
		logger.Error("Failed to create habit", "user_id", userID, "habit_name", in.Name, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	logger.Info("Habit created", "user_id", userID, "habit_id", h.ID, "habit_name", h.Name)
	s.refreshActiveHabits(r, userID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// toggleForm flips today's completion. Unknown, foreign or deleted habits
// are not an error for the browser flow; it just goes back home.
func (s *Server) toggleForm(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	habitID, ok := habitIDParam(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if _, err := s.toggle(r, userID, habitID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error("Failed to toggle habit", "user_id", userID, "habit_id", habitID, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) editForm(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	habitID, ok := habitIDParam(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	_, err := s.applyEdit(r, userID, habitID, formInput(r))
	var verr *habit.ValidationError
	switch {
	case err == nil:
		logger.Info("Habit updated", "user_id", userID, "habit_id", habitID)
	case errors.As(err, &verr):
		s.renderIndex(w, r, http.StatusBadRequest, verr.Error())
		return
	case errors.Is(err, storage.ErrNotFound):
	default:
		logger.Error("Failed to update habit", "user_id", userID, "habit_id", habitID, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) deleteForm(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)
	habitID, ok := habitIDParam(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	err := s.store.DeleteHabit(r.Context(), userID, habitID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error("Failed to delete habit", "user_id", userID, "habit_id", habitID, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err == nil {
		logger.Info("Habit deleted successfully", "user_id", userID, "habit_id", habitID)
		s.refreshActiveHabits(r, userID)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) statsPage(w http.ResponseWriter, r *http.Request) {
	u, _ := userFromContext(r.Context())
	st, err := s.computeStats(r.Context(), u.UserID)
	if err != nil {
		logger.Error("Failed to compute stats", "user_id", u.UserID, "error", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	page := statsData{User: u, Stats: st}
	for _, d := range st.Week {
		page.MaxCount = max(page.MaxCount, d.Count)
	}
	s.render(w, http.StatusOK, "stats", page)
}
