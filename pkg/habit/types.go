package habit

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultCategory = "General"
	DefaultColor    = "#4f46e5"

	maxNameLength     = 64
	maxCategoryLength = 32
)

var (
	colorRe    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	reminderRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	ExternalID   string    `json:"external_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Habit struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Color        string    `json:"color"`
	ReminderTime string    `json:"reminder_time,omitempty"`
	Streak       int       `json:"streak"`
	CreatedAt    time.Time `json:"created_at"`
	Deleted      bool      `json:"-"`
}

// Input is the user-editable part of a habit, as submitted by a form or the API.
type Input struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Color        string `json:"color"`
	ReminderTime string `json:"reminder_time"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bad habit %s: %s", e.Field, e.Reason)
}

// Normalize trims the input and fills in defaults for optional fields.
func (in Input) Normalize() Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Color = strings.TrimSpace(in.Color)
	in.ReminderTime = strings.TrimSpace(in.ReminderTime)
	if in.Category == "" {
		in.Category = DefaultCategory
	}
	if in.Color == "" {
		in.Color = DefaultColor
	}
	return in
}

func (in Input) Validate() error {
	if n := len([]rune(in.Name)); n == 0 || n > maxNameLength {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("must be 1-%d characters", maxNameLength)}
	}
	if len([]rune(in.Category)) > maxCategoryLength {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("must be 0-%d characters", maxCategoryLength)}
	}
	if !colorRe.MatchString(in.Color) {
		return &ValidationError{Field: "color", Reason: "must look like #rrggbb"}
	}
	if in.ReminderTime != "" && !reminderRe.MatchString(in.ReminderTime) {
		return &ValidationError{Field: "reminder_time", Reason: "must be HH:MM"}
	}
	return nil
}

type Completion struct {
	HabitID int64     `json:"habit_id"`
	Day     time.Time `json:"day"`
}

// View is a habit as shown on the home page: the stored record plus what its
// completion history says about today.
type View struct {
	Habit
	LastDone      string `json:"last_done,omitempty"`
	DoneToday     bool   `json:"done_today"`
	CurrentStreak int    `json:"current_streak"`
}

type HabitSummary struct {
	Name          string `json:"name"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	FirstLogged   string `json:"first_logged,omitempty"`
	LastDone      string `json:"last_done,omitempty"`
	TotalDaysDone int    `json:"total_days_done"`
	BestMonth     int    `json:"best_month"`
	ThisMonth     int    `json:"this_month"`
}

type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type Stats struct {
	Total          int        `json:"total"`
	CompletedToday int        `json:"completed_today"`
	BestStreak     int        `json:"best_streak"`
	Week           []DayCount `json:"week"`
}

type ToggleResult struct {
	HabitID int64  `json:"habit_id"`
	Day     string `json:"day"`
	Done    bool   `json:"done"`
	Streak  int    `json:"streak"`
}
