// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/internal/streak"
	"github.com/habitkit/habits/pkg/habit"
)

var today = time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

// Run executes the suite; newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"Users", testUsers},
		{"ExternalUsers", testExternalUsers},
		{"ExternalUserNameTaken", testExternalUserNameTaken},
		{"HabitCRUD", testHabitCRUD},
		{"UserIsolation", testUserIsolation},
		{"Toggle", testToggle},
		{"ToggleDeletedHabit", testToggleDeletedHabit},
		{"UserCompletions", testUserCompletions},
		{"APIKeys", testAPIKeys},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() {
				if err := s.Close(); err != nil {
					t.Errorf("failed to close store: %v", err)
				}
			})
			tt.fn(t, s)
		})
	}
}

func mustUser(t *testing.T, s storage.Store, name string) *habit.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, "hash-"+name)
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", name, err)
	}
	return u
}

func mustHabit(t *testing.T, s storage.Store, userID int64, name string) *habit.Habit {
	t.Helper()
	h, err := s.CreateHabit(context.Background(), userID, habit.Input{Name: name}.Normalize())
	if err != nil {
		t.Fatalf("CreateHabit(%s) failed: %v", name, err)
	}
	return h
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	if alice.ID == 0 {
		t.Fatal("expected non-zero user id")
	}

	if _, err := s.CreateUser(ctx, "alice", "other"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate username: got %v, want ErrConflict", err)
	}

	got, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if got.ID != alice.ID || got.PasswordHash != "hash-alice" {
		t.Fatalf("got %+v, want id %d with stored hash", got, alice.ID)
	}

	byID, err := s.GetUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if byID.Username != "alice" {
		t.Fatalf("got username %q, want alice", byID.Username)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown username: got %v, want ErrNotFound", err)
	}
}

func testExternalUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	first, err := s.EnsureExternalUser(ctx, "user-0011223344556677")
	if err != nil {
		t.Fatalf("EnsureExternalUser failed: %v", err)
	}
	second, err := s.EnsureExternalUser(ctx, "user-0011223344556677")
	if err != nil {
		t.Fatalf("EnsureExternalUser (again) failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("got ids %d and %d, want the same user", first.ID, second.ID)
	}
	if second.PasswordHash != "" {
		t.Fatal("external users must not have a password")
	}
	if second.Username != storage.ExternalUsername("user-0011223344556677") {
		t.Fatalf("got username %q", second.Username)
	}
}

func testExternalUserNameTaken(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const externalID = "oidc-1d81edfe4c5d05a3"
	local, err := s.CreateUser(ctx, externalID, "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	ext, err := s.EnsureExternalUser(ctx, externalID)
	if err != nil {
		t.Fatalf("EnsureExternalUser failed: %v", err)
	}
	if ext.ID == local.ID || ext.ExternalID != externalID {
		t.Fatalf("external login resolved to %+v, local user is %d", ext, local.ID)
	}
	again, err := s.EnsureExternalUser(ctx, externalID)
	if err != nil || again.ID != ext.ID {
		t.Fatalf("got %+v, %v on second login", again, err)
	}
}

func testHabitCRUD(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	h, err := s.CreateHabit(ctx, u.ID, habit.Input{Name: "guitar", Category: "Music", Color: "#112233", ReminderTime: "19:00"})
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if h.ID == 0 || h.UserID != u.ID || h.Streak != 0 {
		t.Fatalf("unexpected habit %+v", h)
	}
	mustHabit(t, s, u.ID, "reading")

	list, err := s.ListHabits(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "guitar" || list[1].Name != "reading" {
		t.Fatalf("got %+v, want [guitar reading]", list)
	}

	updated, err := s.UpdateHabit(ctx, u.ID, h.ID, habit.Input{Name: "bass", Category: "Music", Color: "#445566"})
	if err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}
	if updated.Name != "bass" || updated.Color != "#445566" || updated.ReminderTime != "" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	got, err := s.GetHabit(ctx, u.ID, h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if got.Name != "bass" {
		t.Fatalf("got name %q, want bass", got.Name)
	}

	if err := s.DeleteHabit(ctx, u.ID, h.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}
	if _, err := s.GetHabit(ctx, u.ID, h.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("deleted habit: got %v, want ErrNotFound", err)
	}
	if err := s.DeleteHabit(ctx, u.ID, h.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateHabit(ctx, u.ID, h.ID, habit.Input{Name: "x"}.Normalize()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update deleted: got %v, want ErrNotFound", err)
	}
	list, err = s.ListHabits(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "reading" {
		t.Fatalf("got %+v, want [reading]", list)
	}
}

func testUserIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	h := mustHabit(t, s, alice.ID, "guitar")

	bobHabits, err := s.ListHabits(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	if len(bobHabits) != 0 {
		t.Fatalf("bob should see no habits, got %v", bobHabits)
	}
	if _, err := s.GetHabit(ctx, bob.ID, h.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign GetHabit: got %v, want ErrNotFound", err)
	}
	if _, err := s.ToggleCompletion(ctx, bob.ID, h.ID, today); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign toggle: got %v, want ErrNotFound", err)
	}
	if err := s.DeleteHabit(ctx, bob.ID, h.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign delete: got %v, want ErrNotFound", err)
	}
}

func testToggle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	h := mustHabit(t, s, u.ID, "guitar")

	for _, d := range []time.Time{today.AddDate(0, 0, -3), today.AddDate(0, 0, -2), today.AddDate(0, 0, -1)} {
		if _, err := s.ToggleCompletion(ctx, u.ID, h.ID, d); err != nil {
			t.Fatalf("ToggleCompletion(%s) failed: %v", streak.Format(d), err)
		}
	}

	res, err := s.ToggleCompletion(ctx, u.ID, h.ID, today)
	if err != nil {
		t.Fatalf("ToggleCompletion failed: %v", err)
	}
	if !res.Done || res.Streak != 4 || res.Day != "2024-03-10" {
		t.Fatalf("toggle on: got %+v, want done with streak 4", res)
	}
	got, err := s.GetHabit(ctx, u.ID, h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if got.Streak != 4 {
		t.Fatalf("stored streak = %d, want 4", got.Streak)
	}

	res, err = s.ToggleCompletion(ctx, u.ID, h.ID, today)
	if err != nil {
		t.Fatalf("ToggleCompletion failed: %v", err)
	}
	if res.Done || res.Streak != 3 {
		t.Fatalf("toggle off: got %+v, want not done with streak 3", res)
	}

	// Punch a hole in the middle of the run.
	res, err = s.ToggleCompletion(ctx, u.ID, h.ID, today.AddDate(0, 0, -2))
	if err != nil {
		t.Fatalf("ToggleCompletion failed: %v", err)
	}
	if res.Done || res.Streak != 1 {
		t.Fatalf("gap: got %+v, want streak 1", res)
	}

	days, err := s.ListCompletions(ctx, u.ID, h.ID)
	if err != nil {
		t.Fatalf("ListCompletions failed: %v", err)
	}
	if len(days) != 2 || streak.Format(days[0]) != "2024-03-09" || streak.Format(days[1]) != "2024-03-07" {
		t.Fatalf("got %v, want [2024-03-09 2024-03-07]", days)
	}
}

func testToggleDeletedHabit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	h := mustHabit(t, s, u.ID, "guitar")
	if err := s.DeleteHabit(ctx, u.ID, h.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}
	if _, err := s.ToggleCompletion(ctx, u.ID, h.ID, today); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := s.ToggleCompletion(ctx, u.ID, 9999, today); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown habit: got %v, want ErrNotFound", err)
	}
}

func testUserCompletions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	a := mustHabit(t, s, u.ID, "guitar")
	b := mustHabit(t, s, u.ID, "reading")
	gone := mustHabit(t, s, u.ID, "old")

	toggles := []struct {
		id  int64
		day time.Time
	}{
		{a.ID, today},
		{a.ID, today.AddDate(0, 0, -10)},
		{b.ID, today},
		{gone.ID, today},
	}
	for _, tg := range toggles {
		if _, err := s.ToggleCompletion(ctx, u.ID, tg.id, tg.day); err != nil {
			t.Fatalf("ToggleCompletion failed: %v", err)
		}
	}
	if err := s.DeleteHabit(ctx, u.ID, gone.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}

	all, err := s.ListUserCompletions(ctx, u.ID, time.Time{})
	if err != nil {
		t.Fatalf("ListUserCompletions failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d completions, want 3 (deleted habits excluded)", len(all))
	}

	recent, err := s.ListUserCompletions(ctx, u.ID, today.AddDate(0, 0, -6))
	if err != nil {
		t.Fatalf("ListUserCompletions failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d recent completions, want 2", len(recent))
	}
	for _, c := range recent {
		if !c.Day.Equal(today) {
			t.Fatalf("unexpected completion day %s", streak.Format(c.Day))
		}
	}
}

func testAPIKeys(t *testing.T, s storage.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	if _, found, err := s.GetAPIKey(ctx, "nonexistent"); err != nil || found {
		t.Fatalf("GetAPIKey(nonexistent) = found %v, err %v", found, err)
	}

	for _, k := range []string{"key1", "key2"} {
		if err := s.PutAPIKey(ctx, k, alice.ID); err != nil {
			t.Fatalf("PutAPIKey failed: %v", err)
		}
	}
	if err := s.PutAPIKey(ctx, "key3", bob.ID); err != nil {
		t.Fatalf("PutAPIKey failed: %v", err)
	}

	userID, found, err := s.GetAPIKey(ctx, "key1")
	if err != nil || !found || userID != alice.ID {
		t.Fatalf("GetAPIKey(key1) = %d, %v, %v", userID, found, err)
	}

	keys, err := s.ListAPIKeys(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys for alice, want 2", len(keys))
	}

	if err := s.DeleteAPIKey(ctx, bob.ID, "key1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign delete: got %v, want ErrNotFound", err)
	}
	if err := s.DeleteAPIKey(ctx, alice.ID, "key1"); err != nil {
		t.Fatalf("DeleteAPIKey failed: %v", err)
	}
	if _, found, _ := s.GetAPIKey(ctx, "key1"); found {
		t.Fatal("expected key not to be found after delete")
	}
}
