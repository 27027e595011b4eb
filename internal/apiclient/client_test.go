package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/habitkit/habits/internal/server"
	"github.com/habitkit/habits/pkg/habit"
	"github.com/habitkit/habits/pkg/versioninfo"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", "hab_live_test")
}

func TestListHabits(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/habits" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hab_live_test" {
			t.Errorf("got Authorization %q", got)
		}
		json.NewEncoder(w).Encode(server.HabitListResponse{Habits: []habit.View{
			{Habit: habit.Habit{ID: 1, Name: "Read"}, DoneToday: true, CurrentStreak: 4},
		}})
	})

	got, err := c.ListHabits(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "Read" || got[0].CurrentStreak != 4 || !got[0].DoneToday {
		t.Fatalf("got %+v", got)
	}
}

func TestToggleAndSummary(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/habits/7/toggle":
			if r.Method != http.MethodPost {
				t.Errorf("toggle method %s", r.Method)
			}
			json.NewEncoder(w).Encode(habit.ToggleResult{HabitID: 7, Day: "2024-03-10", Done: true, Streak: 2})
		case "/api/habits/7/summary":
			json.NewEncoder(w).Encode(server.HabitSummaryResponse{HabitID: 7, HabitSummary: habit.HabitSummary{Name: "Run", LongestStreak: 9}})
		default:
			http.NotFound(w, r)
		}
	})

	res, err := c.Toggle(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Done || res.Streak != 2 {
		t.Fatalf("got %+v", res)
	}

	sum, err := c.GetHabitSummary(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Name != "Run" || sum.LongestStreak != 9 {
		t.Fatalf("got %+v", sum)
	}
}

func TestStatsAndVersion(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/stats":
			json.NewEncoder(w).Encode(habit.Stats{Total: 3, CompletedToday: 1, BestStreak: 5})
		case "/version":
			json.NewEncoder(w).Encode(versioninfo.VersionInfo{Version: "1.2.3", BuildDate: "today"})
		}
	})

	st, err := c.GetStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 3 || st.BestStreak != 5 {
		t.Fatalf("got %+v", st)
	}
	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != "1.2.3" {
		t.Fatalf("got %+v", v)
	}
}

func TestErrorMessage(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"habit not found"}`))
	})

	_, err := c.Toggle(context.Background(), 99)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "habit not found" {
		t.Fatalf("got %+v", apiErr)
	}
}

func TestErrorPlainBody(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := c.ListHabits(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "unauthorized" {
		t.Fatalf("got %v", err)
	}
}

func TestCreateHabit(t *testing.T) {
	c := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/habits" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("got Content-Type %q", ct)
		}
		var in habit.Input
		json.NewDecoder(r.Body).Decode(&in)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(habit.Habit{ID: 3, Name: in.Name, Category: in.Category})
	})

	h, err := c.CreateHabit(context.Background(), habit.Input{Name: "Walk", Category: "Health"})
	if err != nil {
		t.Fatal(err)
	}
	if h.ID != 3 || h.Name != "Walk" || h.Category != "Health" {
		t.Fatalf("got %+v", h)
	}
}
