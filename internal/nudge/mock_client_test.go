package nudge

import (
	"context"

	"github.com/habitkit/habits/pkg/habit"
)

type mockClient struct {
	habits []habit.View
	err    error
}

func (f *mockClient) ListHabits(ctx context.Context) ([]habit.View, error) {
	return f.habits, f.err
}
