package intent

import "context"

// Completer is the chat-completion contract used for intent analysis and
// candidate re-ranking.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}
