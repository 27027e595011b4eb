package server

import (
	"context"
	"slices"
	"time"

	"github.com/habitkit/habits/internal/streak"
	"github.com/habitkit/habits/pkg/habit"
)

const weekDays = 7

func groupCompletions(cs []habit.Completion) map[int64][]time.Time {
	out := make(map[int64][]time.Time)
	for _, c := range cs {
		out[c.HabitID] = append(out[c.HabitID], c.Day)
	}
	return out
}

func buildView(h habit.Habit, days []time.Time, today time.Time) habit.View {
	days = streak.Normalize(days)
	v := habit.View{Habit: h}
	for _, d := range days {
		if d.After(today) {
			continue
		}
		if v.LastDone == "" {
			v.LastDone = streak.Format(d)
		}
		if d.Equal(today) {
			v.DoneToday = true
		}
		break
	}
	v.CurrentStreak = streak.Current(days, today)
	return v
}

func (s *Server) habitViews(ctx context.Context, userID int64) ([]habit.View, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	completions, err := s.store.ListUserCompletions(ctx, userID, time.Time{})
	if err != nil {
		return nil, err
	}
	byHabit := groupCompletions(completions)
	today := s.today()

	views := make([]habit.View, 0, len(habits))
	for _, h := range habits {
		views = append(views, buildView(h, byHabit[h.ID], today))
	}
	return views, nil
}

func (s *Server) habitView(ctx context.Context, userID, habitID int64) (habit.View, []time.Time, error) {
	h, err := s.store.GetHabit(ctx, userID, habitID)
	if err != nil {
		return habit.View{}, nil, err
	}
	days, err := s.store.ListCompletions(ctx, userID, habitID)
	if err != nil {
		return habit.View{}, nil, err
	}
	return buildView(*h, days, s.today()), days, nil
}

func (s *Server) computeSummary(ctx context.Context, userID, habitID int64) (habit.HabitSummary, error) {
	h, err := s.store.GetHabit(ctx, userID, habitID)
	if err != nil {
		return habit.HabitSummary{}, err
	}
	days, err := s.store.ListCompletions(ctx, userID, habitID)
	if err != nil {
		return habit.HabitSummary{}, err
	}

	sum := streak.Summarize(days, s.today())
	out := habit.HabitSummary{
		Name:          h.Name,
		CurrentStreak: sum.Current,
		LongestStreak: sum.Longest,
		TotalDaysDone: sum.Total,
		BestMonth:     sum.BestMonth,
		ThisMonth:     sum.ThisMonth,
	}
	if sum.Total > 0 {
		out.FirstLogged = streak.Format(sum.First)
		out.LastDone = streak.Format(sum.Last)
	}
	return out, nil
}

// computeStats aggregates over the user's live habits: how many there are,
// how many are done today, the best stored streak and the last week of
// completion counts.
func (s *Server) computeStats(ctx context.Context, userID int64) (habit.Stats, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return habit.Stats{}, err
	}
	today := s.today()
	window := streak.Window(today, weekDays)
	completions, err := s.store.ListUserCompletions(ctx, userID, window[0])
	if err != nil {
		return habit.Stats{}, err
	}

	st := habit.Stats{
		Total: len(habits),
		Week:  make([]habit.DayCount, len(window)),
	}
	for _, h := range habits {
		st.BestStreak = max(st.BestStreak, h.Streak)
	}
	for i, d := range window {
		st.Week[i].Day = streak.Format(d)
	}
	for _, c := range completions {
		i := slices.IndexFunc(window, c.Day.Equal)
		if i < 0 {
			continue
		}
		st.Week[i].Count++
		if c.Day.Equal(today) {
			st.CompletedToday++
		}
	}
	return st, nil
}
