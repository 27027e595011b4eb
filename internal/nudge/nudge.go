// Package nudge finds streaks about to lapse and reminders that are due, and
// hands them to a Notifier.
package nudge

import (
	"context"
	"fmt"
	"time"

	"github.com/habitkit/habits/internal/logger"
	"github.com/habitkit/habits/pkg/habit"
)

type Reminder struct {
	Expiring []string
	Due      []string
	Hours    int
}

func (r Reminder) Empty() bool {
	return len(r.Expiring) == 0 && len(r.Due) == 0
}

type Notifier interface {
	SendNudge(ctx context.Context, r Reminder) error
}

// endOfDay is the next midnight after now, in now's location.
func endOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// GetHabitsExpiringIn returns habits with a live streak that is not yet
// extended today, when the day ends within window.
func GetHabitsExpiringIn(ctx context.Context, q Querier, now time.Time, window time.Duration) ([]string, error) {
	habits, err := q.ListHabits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	if endOfDay(now).Sub(now) > window {
		return nil, nil
	}

	var out []string
	for _, h := range habits {
		if h.CurrentStreak > 0 && !h.DoneToday {
			out = append(out, h.Name)
		}
	}
	return out, nil
}

// GetDueReminders returns habits not done today whose reminder time has
// passed.
func GetDueReminders(ctx context.Context, q Querier, now time.Time) ([]string, error) {
	habits, err := q.ListHabits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	var out []string
	for _, h := range habits {
		if reminderDue(h, now) {
			out = append(out, h.Name)
		}
	}
	return out, nil
}

func reminderDue(h habit.View, now time.Time) bool {
	if h.DoneToday || h.ReminderTime == "" {
		return false
	}
	at, err := time.ParseInLocation("15:04", h.ReminderTime, now.Location())
	if err != nil {
		logger.Warn("Ignoring bad reminder time", "habit_id", h.ID, "reminder_time", h.ReminderTime)
		return false
	}
	y, m, d := now.Date()
	due := time.Date(y, m, d, at.Hour(), at.Minute(), 0, 0, now.Location())
	return !now.Before(due)
}

// Nudge sends one message covering expiring streaks and due reminders. It
// sends nothing when both lists are empty.
func Nudge(ctx context.Context, q Querier, n Notifier, now time.Time, window time.Duration) (Reminder, error) {
	r := Reminder{Hours: int(window.Round(time.Hour) / time.Hour)}

	var err error
	if r.Expiring, err = GetHabitsExpiringIn(ctx, q, now, window); err != nil {
		return r, err
	}
	if r.Due, err = GetDueReminders(ctx, q, now); err != nil {
		return r, err
	}
	if r.Empty() {
		logger.Debug("Nothing to nudge about")
		return r, nil
	}

	logger.Info("Sending nudge", "expiring", len(r.Expiring), "due", len(r.Due))
	if err := n.SendNudge(ctx, r); err != nil {
		return r, fmt.Errorf("send nudge: %w", err)
	}
	return r, nil
}
