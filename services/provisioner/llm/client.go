package llm

import (
	"context"
	"errors"
)

// ErrNoChoices is returned when the backend answers without any choices.
var ErrNoChoices = errors.New("completion returned no choices")

// CompletionClient defines the standard interface for any completion backend.
// The model is chosen per call because content generation mixes models
// (a stronger one for structure, a cheaper one for volume).
type CompletionClient interface {
	Complete(ctx context.Context, model, system, user string) (string, error)
}
