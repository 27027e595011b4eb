package nudge

import (
	"context"

	"github.com/habitkit/habits/pkg/habit"
)

// Querier is the read side of the habits API, satisfied by apiclient.Client.
type Querier interface {
	ListHabits(ctx context.Context) ([]habit.View, error)
}
