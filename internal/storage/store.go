package storage

import (
	"context"
	"errors"
	"time"

	"github.com/habitkit/habits/pkg/habit"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// ExternalUsername is the account name given to users provisioned by an
// identity provider. The ':' keeps it outside the names /register accepts,
// so such accounts are only ever found by their external id.
func ExternalUsername(externalID string) string {
	return "external:" + externalID
}

type APIKey struct {
	Hash      string    `json:"hash"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*habit.User, error)
	GetUser(ctx context.Context, id int64) (*habit.User, error)
	GetUserByUsername(ctx context.Context, username string) (*habit.User, error)
	EnsureExternalUser(ctx context.Context, externalID string) (*habit.User, error)

	CreateHabit(ctx context.Context, userID int64, in habit.Input) (*habit.Habit, error)
	GetHabit(ctx context.Context, userID, habitID int64) (*habit.Habit, error)
	ListHabits(ctx context.Context, userID int64) ([]habit.Habit, error)
	UpdateHabit(ctx context.Context, userID, habitID int64, in habit.Input) (*habit.Habit, error)
	DeleteHabit(ctx context.Context, userID, habitID int64) error

	ToggleCompletion(ctx context.Context, userID, habitID int64, day time.Time) (habit.ToggleResult, error)
	ListCompletions(ctx context.Context, userID, habitID int64) ([]time.Time, error)
	ListUserCompletions(ctx context.Context, userID int64, since time.Time) ([]habit.Completion, error)

	PutAPIKey(ctx context.Context, keyHash string, userID int64) error
	GetAPIKey(ctx context.Context, keyHash string) (int64, bool, error)
	ListAPIKeys(ctx context.Context, userID int64) ([]APIKey, error)
	DeleteAPIKey(ctx context.Context, userID int64, keyHash string) error

	Close() error
}
