package notify

import (
	"fmt"
	"unicode/utf8"

	"github.com/shineum/mail-to-chat/internal/chat"
	"github.com/shineum/mail-to-chat/internal/email"
)

const (
	// DefaultMaxMessageLength is the default body bound in runes.
	DefaultMaxMessageLength = 3000

	maxSenderLength  = 256
	maxSubjectLength = 512

	ellipsis = "…"
)

// FormatNotification composes the chat text for msg. Sender, subject and
// body are truncated independently; the body to maxBody runes.
func FormatNotification(msg *email.Email, maxBody int) string {
	return fmt.Sprintf("*From:* %s\n*Subject:* %s\n\n%s",
		truncate(msg.From, maxSenderLength),
		truncate(msg.Subject, maxSubjectLength),
		truncate(msg.Body, maxBody),
	)
}

// FormatDiagnostic composes the error channel text for a failed dispatch.
func FormatDiagnostic(channel string, failure *chat.APIError) string {
	return fmt.Sprintf("*Error posting to channel:* #%s\n*Error:* %s", channel, failure.Error())
}

// truncate bounds s to limit runes. An over-long s keeps its first limit-1
// runes followed by an ellipsis, so the result is exactly limit runes.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	n := 0
	for i := range s {
		if n == limit-1 {
			return s[:i] + ellipsis
		}
		n++
	}
	return s
}
