// Package report forwards fatal pipeline errors to an error tracker.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter records fatal errors out of band.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration) bool
}

// Nop discards every report.
type Nop struct{}

func (Nop) Report(context.Context, error, map[string]string) {}

func (Nop) Flush(time.Duration) bool { return true }

// Sentry reports errors to Sentry through a dedicated hub.
type Sentry struct {
	hub *sentry.Hub
}

// NewSentry creates a Sentry reporter from client options.
func NewSentry(opts sentry.ClientOptions) (*Sentry, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	return &Sentry{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report captures err with the given tags attached.
func (s *Sentry) Report(_ context.Context, err error, tags map[string]string) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func (s *Sentry) Flush(timeout time.Duration) bool {
	return s.hub.Flush(timeout)
}
