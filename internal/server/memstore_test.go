package server

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/habitkit/habits/internal/storage"
	"github.com/habitkit/habits/internal/streak"
	"github.com/habitkit/habits/pkg/habit"
)

type memStore struct {
	mu          sync.RWMutex
	nextID      int64
	users       map[int64]*habit.User
	habits      map[int64]*habit.Habit
	completions map[int64]map[time.Time]struct{}
	apiKeys     map[string]storage.APIKey
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[int64]*habit.User{},
		habits:      map[int64]*habit.Habit{},
		completions: map[int64]map[time.Time]struct{}{},
		apiKeys:     map[string]storage.APIKey{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateUser(_ context.Context, username, passwordHash string) (*habit.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return nil, fmt.Errorf("user %s: %w", username, storage.ErrConflict)
		}
	}
	u := &habit.User{ID: m.id(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (*habit.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*habit.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) EnsureExternalUser(_ context.Context, externalID string) (*habit.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	u := &habit.User{ID: m.id(), Username: storage.ExternalUsername(externalID), ExternalID: externalID, CreatedAt: time.Now()}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) liveHabit(userID, habitID int64) (*habit.Habit, error) {
	h, ok := m.habits[habitID]
	if !ok || h.UserID != userID || h.Deleted {
		return nil, storage.ErrNotFound
	}
	return h, nil
}

func (m *memStore) CreateHabit(_ context.Context, userID int64, in habit.Input) (*habit.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &habit.Habit{
		ID:           m.id(),
		UserID:       userID,
		Name:         in.Name,
		Category:     in.Category,
		Color:        in.Color,
		ReminderTime: in.ReminderTime,
		CreatedAt:    time.Now(),
	}
	m.habits[h.ID] = h
	cp := *h
	return &cp, nil
}

func (m *memStore) GetHabit(_ context.Context, userID, habitID int64) (*habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, err := m.liveHabit(userID, habitID)
	if err != nil {
		return nil, err
	}
	cp := *h
	return &cp, nil
}

func (m *memStore) ListHabits(_ context.Context, userID int64) ([]habit.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []habit.Habit{}
	for _, h := range m.habits {
		if h.UserID == userID && !h.Deleted {
			out = append(out, *h)
		}
	}
	slices.SortFunc(out, func(a, b habit.Habit) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memStore) UpdateHabit(_ context.Context, userID, habitID int64, in habit.Input) (*habit.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.liveHabit(userID, habitID)
	if err != nil {
		return nil, err
	}
	h.Name, h.Category, h.Color, h.ReminderTime = in.Name, in.Category, in.Color, in.ReminderTime
	cp := *h
	return &cp, nil
}

func (m *memStore) DeleteHabit(_ context.Context, userID, habitID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.liveHabit(userID, habitID)
	if err != nil {
		return err
	}
	h.Deleted = true
	return nil
}

func (m *memStore) days(habitID int64) []time.Time {
	var out []time.Time
	for d := range m.completions[habitID] {
		out = append(out, d)
	}
	return streak.Normalize(out)
}

func (m *memStore) ToggleCompletion(_ context.Context, userID, habitID int64, day time.Time) (habit.ToggleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.liveHabit(userID, habitID)
	if err != nil {
		return habit.ToggleResult{}, err
	}
	day = streak.Day(day, time.UTC)
	set, ok := m.completions[habitID]
	if !ok {
		set = map[time.Time]struct{}{}
		m.completions[habitID] = set
	}
	_, done := set[day]
	if done {
		delete(set, day)
	} else {
		set[day] = struct{}{}
	}
	h.Streak = streak.Run(m.days(habitID))
	return habit.ToggleResult{HabitID: habitID, Day: streak.Format(day), Done: !done, Streak: h.Streak}, nil
}

func (m *memStore) ListCompletions(_ context.Context, userID, habitID int64) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := m.liveHabit(userID, habitID); err != nil {
		return nil, err
	}
	return m.days(habitID), nil
}

func (m *memStore) ListUserCompletions(_ context.Context, userID int64, since time.Time) ([]habit.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []habit.Completion
	for id, h := range m.habits {
		if h.UserID != userID || h.Deleted {
			continue
		}
		for _, d := range m.days(id) {
			if !d.Before(since) {
				out = append(out, habit.Completion{HabitID: id, Day: d})
			}
		}
	}
	return out, nil
}

func (m *memStore) PutAPIKey(_ context.Context, keyHash string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys[keyHash] = storage.APIKey{Hash: keyHash, UserID: userID, CreatedAt: time.Now()}
	return nil
}

func (m *memStore) GetAPIKey(_ context.Context, keyHash string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[keyHash]
	return k.UserID, ok, nil
}

func (m *memStore) ListAPIKeys(_ context.Context, userID int64) ([]storage.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []storage.APIKey
	for _, k := range m.apiKeys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memStore) DeleteAPIKey(_ context.Context, userID int64, keyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[keyHash]
	if !ok || k.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.apiKeys, keyHash)
	return nil
}

func (m *memStore) Close() error {
	return nil
}

var _ storage.Store = (*memStore)(nil)
