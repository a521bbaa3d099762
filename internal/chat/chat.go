// Package chat defines the interface for chat notification backends and the
// failure taxonomy they report.
package chat

import (
	"context"
	"fmt"
)

// Poster is the interface that chat backends must implement.
type Poster interface {
	// PostMessage posts text to the named channel and returns a reference
	// to the created message. Failures reported by the chat API are
	// returned as *APIError; transport and credential errors are not.
	PostMessage(ctx context.Context, channel, text string) (string, error)

	// Name returns the human-readable name of this backend.
	Name() string
}

// TokenSource supplies the bot credential used by a backend.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Code classifies a chat API failure.
type Code string

const (
	CodeChannelNotFound Code = "channel-not-found"
	CodeNotMember       Code = "bot-not-a-member"
	CodeRateLimited     Code = "rate-limited"
	CodeGeneric         Code = "generic-api-error"
)

// APIError is a classified chat API failure. Upstream holds the backend's
// own error code or message verbatim.
type APIError struct {
	Code     Code
	Upstream string
	Err      error
}

func (e *APIError) Error() string {
	if e.Upstream == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Code, e.Upstream)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StaticToken is a TokenSource that always returns the same credential.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}
