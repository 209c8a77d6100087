package transport

import (
	"context"

	"versechat/internal/models"
)

// Kind classifies what the engine is asking the backend to do.
type Kind string

const (
	KindNormal       Kind = "normal"
	KindContinuation Kind = "continuation"
	KindShorten      Kind = "shorten"
	KindDeepen       Kind = "deepen"
)

// Request is one streaming call to the AI backend.
type Request struct {
	ConversationID int64
	Kind           Kind
	// Prompt is the user's question. For a continuation request it is the
	// original question the truncated answer was responding to.
	Prompt      string
	History     []*models.Message
	Mode        models.Mode
	Translation string
	Attachments []models.Attachment
}

// Answer is the backend's finished response.
type Answer struct {
	Content   string
	Citations []models.Citation
}

// Transport streams one answer. onToken receives the full accumulated
// content after every chunk, in order; returning an error from it aborts
// the stream. Errors are *Error values so callers can tell retryable
// failures from terminal ones.
type Transport interface {
	Stream(ctx context.Context, req Request, onToken func(string) error) (*Answer, error)
}

// Suggester produces follow-up prompts for a finalized answer.
type Suggester interface {
	SuggestFollowUps(ctx context.Context, answer, question string, mode models.Mode) ([]string, error)
}
