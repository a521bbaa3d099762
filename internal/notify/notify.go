// Package notify formats parsed messages into chat notifications, dispatches
// them and reports failed dispatches to a fallback channel.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/shineum/mail-to-chat/internal/chat"
	"github.com/shineum/mail-to-chat/internal/email"
	"github.com/shineum/mail-to-chat/internal/router"
)

// ErrFallbackFailed reports that the diagnostic post to the error channel
// failed after a dispatch failure.
var ErrFallbackFailed = errors.New("fallback report failed")

// Status tags an Outcome.
type Status int

const (
	Delivered Status = iota + 1
	Failed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single post to a channel. Ref is set when
// Delivered; Failure when Failed.
type Outcome struct {
	Channel string
	Status  Status
	Ref     string
	Failure *chat.APIError
}

// Dispatcher posts notifications to routed channels. It makes exactly one
// attempt per call.
type Dispatcher struct {
	poster  chat.Poster
	maxBody int
}

// NewDispatcher creates a Dispatcher. A non-positive maxBody uses
// DefaultMaxMessageLength.
func NewDispatcher(poster chat.Poster, maxBody int) *Dispatcher {
	if maxBody <= 0 {
		maxBody = DefaultMaxMessageLength
	}
	return &Dispatcher{poster: poster, maxBody: maxBody}
}

// Dispatch posts msg to the routed channel. Chat API failures are returned
// as a Failed outcome; any other error is returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, decision router.Decision, msg *email.Email) (Outcome, error) {
	text := FormatNotification(msg, d.maxBody)
	return post(ctx, d.poster, decision.Channel, text)
}

// FallbackReporter posts a diagnostic to the error channel when a dispatch
// fails. There is no further tier if that post fails too.
type FallbackReporter struct {
	poster  chat.Poster
	channel string
}

// NewFallbackReporter creates a FallbackReporter posting to channel.
func NewFallbackReporter(poster chat.Poster, channel string) *FallbackReporter {
	return &FallbackReporter{poster: poster, channel: channel}
}

// Channel returns the error channel name.
func (r *FallbackReporter) Channel() string {
	return r.channel
}

// Report posts a diagnostic for the failed dispatch. Any failure is returned
// as a *FallbackError carrying both failures.
func (r *FallbackReporter) Report(ctx context.Context, failed Outcome) (Outcome, error) {
	if failed.Status != Failed || failed.Failure == nil {
		return Outcome{}, fmt.Errorf("fallback report requires a failed outcome, got %s", failed.Status)
	}

	text := FormatDiagnostic(failed.Channel, failed.Failure)
	out, err := post(ctx, r.poster, r.channel, text)
	if err != nil {
		return out, &FallbackError{Channel: failed.Channel, Dispatch: failed.Failure, Fallback: err}
	}
	if out.Status == Failed {
		return out, &FallbackError{Channel: failed.Channel, Dispatch: failed.Failure, Fallback: out.Failure}
	}
	return out, nil
}

// FallbackError is the compound failure of a dispatch and its fallback
// report. It matches ErrFallbackFailed and unwraps to the fallback error.
type FallbackError struct {
	// Channel is the originally routed channel.
	Channel  string
	Dispatch *chat.APIError
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%v: dispatch to #%s failed with %v, fallback failed with %v",
		ErrFallbackFailed, e.Channel, e.Dispatch, e.Fallback)
}

func (e *FallbackError) Unwrap() []error {
	return []error{ErrFallbackFailed, e.Fallback}
}

func post(ctx context.Context, poster chat.Poster, channel, text string) (Outcome, error) {
	ref, err := poster.PostMessage(ctx, channel, text)
	if err == nil {
		return Outcome{Channel: channel, Status: Delivered, Ref: ref}, nil
	}

	var apiErr *chat.APIError
	if errors.As(err, &apiErr) {
		return Outcome{Channel: channel, Status: Failed, Failure: apiErr}, nil
	}
	return Outcome{}, fmt.Errorf("failed to post to #%s: %w", channel, err)
}
