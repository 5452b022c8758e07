// Package llm talks to the generative-model upstream: it resolves a usable
// model, retries overloaded calls, and runs the chat and flattened-prompt paths.
package llm

import "context"

// Upstream hands out model handles by name. Obtaining a handle never
// contacts the service; the first call on the handle does.
type Upstream interface {
	Model(name string) Model
}

// Model is a handle on one named upstream model.
type Model interface {
	Name() string

	// GenerateContent sends a single prompt with no prior context.
	GenerateContent(ctx context.Context, prompt string) (string, error)

	// StartChat opens a session seeded with prior turns.
	StartChat(history []Turn) ChatSession
}

// ChatSession is a multi-turn conversation against a Model.
// A turn is appended to the session only after a successful send,
// so a failed SendMessage can be retried on the same session.
type ChatSession interface {
	SendMessage(ctx context.Context, text string) (string, error)
}
