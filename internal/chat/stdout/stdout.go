// Package stdout implements a chat Poster that prints notifications to
// standard output instead of posting them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Poster prints notifications in a human-readable frame.
type Poster struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer

	mu    sync.Mutex
	count int
}

// New creates a new stdout Poster that writes to os.Stdout.
func New() *Poster {
	return &Poster{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Poster that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Poster {
	return &Poster{writer: w}
}

// PostMessage prints the notification and returns a sequential reference.
// It always succeeds.
func (p *Poster) PostMessage(_ context.Context, channel, text string) (string, error) {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Channel: #%s\n", channel))
	b.WriteString("----------------------------------------\n")
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("========================================\n")

	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	// A failed write is not a delivery failure for a dry run.
	_, _ = fmt.Fprint(p.writer, b.String())

	return fmt.Sprintf("stdout-%d", p.count), nil
}

// Name returns the backend name.
func (p *Poster) Name() string {
	return "stdout"
}
