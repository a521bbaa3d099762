// Package router derives the chat channel for a message from its recipient.
package router

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRecipient is returned when no channel can be derived from a
// recipient address.
var ErrInvalidRecipient = errors.New("invalid recipient")

// Decision is the outcome of routing a single message.
type Decision struct {
	// Channel is the local part of the recipient address, unchanged.
	Channel string
}

// Route splits recipient on its first "@" and returns the local part as the
// channel name. The domain part must equal domain, ignoring case.
func Route(recipient, domain string) (Decision, error) {
	local, host, ok := strings.Cut(recipient, "@")
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q has no @", ErrInvalidRecipient, recipient)
	}
	if !strings.EqualFold(host, domain) {
		return Decision{}, fmt.Errorf("%w: domain %q does not match %q", ErrInvalidRecipient, host, domain)
	}
	if local == "" {
		return Decision{}, fmt.Errorf("%w: %q has an empty local part", ErrInvalidRecipient, recipient)
	}
	return Decision{Channel: local}, nil
}
