package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shineum/mail-to-chat/internal/chat"
	"github.com/shineum/mail-to-chat/internal/email"
	"github.com/shineum/mail-to-chat/internal/filter"
	"github.com/shineum/mail-to-chat/internal/notify"
	"github.com/shineum/mail-to-chat/internal/parser"
	"github.com/shineum/mail-to-chat/internal/router"
	"github.com/shineum/mail-to-chat/internal/store"
)

const (
	testDomain       = "mail.example.com"
	testErrorChannel = "mail-errors"
)

var testNotice = filter.Notice{
	Sender:  "Amazon Web Services <no-reply-aws@amazon.com>",
	Subject: "Amazon SES Setup Notification",
}

type post struct {
	channel string
	text    string
}

// mockPoster implements chat.Poster, failing posts to channels in failures.
type mockPoster struct {
	failures  map[string]error
	callCount int
	posts     []post
}

func (m *mockPoster) PostMessage(_ context.Context, channel, text string) (string, error) {
	m.callCount++
	m.posts = append(m.posts, post{channel: channel, text: text})
	if err, ok := m.failures[channel]; ok {
		return "", err
	}
	return "ts-" + channel, nil
}

func (m *mockPoster) Name() string {
	return "mock"
}

// mockStore implements store.Reader for testing.
type mockStore struct {
	getFn     func(ctx context.Context, loc email.Location) ([]byte, error)
	callCount int
}

func (m *mockStore) Get(ctx context.Context, loc email.Location) ([]byte, error) {
	m.callCount++
	return m.getFn(ctx, loc)
}

func newTestOrchestrator(poster chat.Poster, reader store.Reader) *Orchestrator {
	return New(
		Config{Domain: testDomain, Notice: testNotice},
		reader,
		notify.NewDispatcher(poster, 3000),
		notify.NewFallbackReporter(poster, testErrorChannel),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func rawMessage(from, to, subject, body string) email.RawMessage {
	data := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	return email.RawMessage{
		Location: email.Location{Bucket: "inbox", Key: "emails/test"},
		Data:     []byte(data),
	}
}

func TestProcess_HappyPath(t *testing.T) {
	t.Parallel()

	poster := &mockPoster{}
	o := newTestOrchestrator(poster, nil)

	raw := rawMessage("Sender <sender@example.com>", "alerts@mail.example.com", "=?UTF-8?B?SGVsbG8gV29ybGQ=?=", "ping")
	res, err := o.Process(context.Background(), "run-1", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != Delivered {
		t.Errorf("Status: got %s, want delivered", res.Status)
	}
	if res.Channel != "alerts" {
		t.Errorf("Channel: got %q, want %q", res.Channel, "alerts")
	}
	if poster.callCount != 1 {
		t.Fatalf("callCount: got %d, want 1", poster.callCount)
	}
	if poster.posts[0].channel != "alerts" {
		t.Errorf("channel: got %q, want %q", poster.posts[0].channel, "alerts")
	}
	text := poster.posts[0].text
	if !strings.Contains(text, "Hello World") {
		t.Errorf("text missing decoded subject: %q", text)
	}
	if !strings.Contains(text, "ping") {
		t.Errorf("text missing body: %q", text)
	}
	if strings.Contains(text, "=?UTF-8?") {
		t.Errorf("text contains unresolved encoded-word: %q", text)
	}
}

func TestProcess_DispatchFailureReported(t *testing.T) {
	t.Parallel()

	poster := &mockPoster{failures: map[string]error{
		"missing": &chat.APIError{Code: chat.CodeChannelNotFound, Upstream: "channel_not_found"},
	}}
	o := newTestOrchestrator(poster, nil)

	raw := rawMessage("sender@example.com", "missing@mail.example.com", "Hi", "ping")
	res, err := o.Process(context.Background(), "run-2", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != FallbackDelivered {
		t.Errorf("Status: got %s, want fallback_delivered", res.Status)
	}
	if res.Failure == nil || res.Failure.Code != chat.CodeChannelNotFound {
		t.Errorf("Failure: got %v, want channel-not-found", res.Failure)
	}
	if poster.callCount != 2 {
		t.Fatalf("callCount: got %d, want 2", poster.callCount)
	}

	fb := poster.posts[1]
	if fb.channel != testErrorChannel {
		t.Errorf("fallback channel: got %q, want %q", fb.channel, testErrorChannel)
	}
	if !strings.Contains(fb.text, "missing") || !strings.Contains(fb.text, "channel-not-found") {
		t.Errorf("fallback text missing channel or code: %q", fb.text)
	}
}

func TestProcess_DoubleFailureIsFatal(t *testing.T) {
	t.Parallel()

	poster := &mockPoster{failures: map[string]error{
		"missing":        &chat.APIError{Code: chat.CodeChannelNotFound, Upstream: "channel_not_found"},
		testErrorChannel: &chat.APIError{Code: chat.CodeNotMember, Upstream: "not_in_channel"},
	}}
	o := newTestOrchestrator(poster, nil)

	raw := rawMessage("sender@example.com", "missing@mail.example.com", "Hi", "ping")
	_, err := o.Process(context.Background(), "run-3", raw)

	if !errors.Is(err, notify.ErrFallbackFailed) {
		t.Fatalf("error: got %v, want ErrFallbackFailed", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "channel-not-found") || !strings.Contains(msg, "bot-not-a-member") {
		t.Errorf("error should carry both codes: %q", msg)
	}
	if poster.callCount != 2 {
		t.Errorf("callCount: got %d, want 2", poster.callCount)
	}
}

func TestProcess_ProviderNotice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		from      string
		subject   string
		wantSkip  bool
		wantPosts int
	}{
		{"exact signature", testNotice.Sender, testNotice.Subject, true, 0},
		{"sender only", testNotice.Sender, "Something else", false, 1},
		{"subject only", "other@example.com", testNotice.Subject, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			poster := &mockPoster{}
			o := newTestOrchestrator(poster, nil)

			res, err := o.Process(context.Background(), "run", rawMessage(tt.from, "alerts@mail.example.com", tt.subject, "body"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := res.Status == Skipped; got != tt.wantSkip {
				t.Errorf("skipped: got %v, want %v", got, tt.wantSkip)
			}
			if poster.callCount != tt.wantPosts {
				t.Errorf("callCount: got %d, want %d", poster.callCount, tt.wantPosts)
			}
		})
	}
}

func TestProcess_NoticeSkippedEvenWithForeignRecipient(t *testing.T) {
	t.Parallel()

	poster := &mockPoster{}
	o := newTestOrchestrator(poster, nil)

	res, err := o.Process(context.Background(), "run", rawMessage(testNotice.Sender, "postmaster@elsewhere.example", testNotice.Subject, "body"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Skipped {
		t.Errorf("Status: got %s, want skipped", res.Status)
	}
}

func TestProcess_NoticeSkippedBeforeBodyIsParsed(t *testing.T) {
	t.Parallel()

	poster := &mockPoster{}
	o := newTestOrchestrator(poster, nil)

	raw := email.RawMessage{Data: []byte(strings.Join([]string{
		"From: " + testNotice.Sender,
		"To: alerts@mail.example.com",
		"Subject: " + testNotice.Subject,
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"no closing delimiter",
	}, "\r\n"))}

	res, err := o.Process(context.Background(), "run", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Skipped {
		t.Errorf("Status: got %s, want skipped", res.Status)
	}
	if poster.callCount != 0 {
		t.Errorf("callCount: got %d, want 0", poster.callCount)
	}
}

func TestProcess_TruncatedBodyIsMalformed(t *testing.T) {
	t.Parallel()

	poster := &mockPoster{}
	o := newTestOrchestrator(poster, nil)

	raw := email.RawMessage{Data: []byte(strings.Join([]string{
		"From: a@example.com",
		"To: alerts@mail.example.com",
		"Subject: Hi",
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"no closing delimiter",
	}, "\r\n"))}

	_, err := o.Process(context.Background(), "run", raw)
	if !errors.Is(err, parser.ErrMalformedMessage) {
		t.Errorf("error: got %v, want ErrMalformedMessage", err)
	}
	if poster.callCount != 0 {
		t.Errorf("callCount: got %d, want 0", poster.callCount)
	}
}

func TestProcess_InvalidRecipient(t *testing.T) {
	t.Parallel()

	for _, to := range []string{"alerts@other.example.com", "undisclosed-recipients:;", ""} {
		poster := &mockPoster{}
		o := newTestOrchestrator(poster, nil)

		_, err := o.Process(context.Background(), "run", rawMessage("a@example.com", to, "Hi", "body"))
		if !errors.Is(err, router.ErrInvalidRecipient) {
			t.Errorf("To %q: got %v, want ErrInvalidRecipient", to, err)
		}
		if poster.callCount != 0 {
			t.Errorf("To %q: callCount got %d, want 0", to, poster.callCount)
		}
	}
}

func TestProcess_MalformedMessage(t *testing.T) {
	t.Parallel()

	poster := &mockPoster{}
	o := newTestOrchestrator(poster, nil)

	raw := email.RawMessage{Data: []byte("From: a@example.com\r\nTo: alerts@mail.example.com\r\n")}
	_, err := o.Process(context.Background(), "run", raw)
	if !errors.Is(err, parser.ErrMalformedMessage) {
		t.Errorf("error: got %v, want ErrMalformedMessage", err)
	}
	if poster.callCount != 0 {
		t.Errorf("callCount: got %d, want 0", poster.callCount)
	}
}

func TestProcess_UnclassifiedDispatchErrorSkipsFallback(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset by peer")
	poster := &mockPoster{failures: map[string]error{"alerts": cause}}
	o := newTestOrchestrator(poster, nil)

	_, err := o.Process(context.Background(), "run", rawMessage("a@example.com", "alerts@mail.example.com", "Hi", "body"))
	if !errors.Is(err, cause) {
		t.Errorf("error: got %v, want wrapped cause", err)
	}
	if poster.callCount != 1 {
		t.Errorf("callCount: got %d, want 1", poster.callCount)
	}
}

func TestHandle_FetchesFromStore(t *testing.T) {
	t.Parallel()

	raw := rawMessage("a@example.com", "alerts@mail.example.com", "Hi", "body")
	var gotLoc email.Location
	st := &mockStore{getFn: func(_ context.Context, loc email.Location) ([]byte, error) {
		gotLoc = loc
		return raw.Data, nil
	}}
	poster := &mockPoster{}
	o := newTestOrchestrator(poster, st)

	loc := email.Location{Bucket: "inbox", Key: "emails/abc"}
	res, err := o.Handle(context.Background(), "run", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != Delivered {
		t.Errorf("Status: got %s, want delivered", res.Status)
	}
	if gotLoc != loc {
		t.Errorf("location: got %+v, want %+v", gotLoc, loc)
	}
	if st.callCount != 1 {
		t.Errorf("store callCount: got %d, want 1", st.callCount)
	}
}

func TestHandle_ObjectNotFound(t *testing.T) {
	t.Parallel()

	st := &mockStore{getFn: func(context.Context, email.Location) ([]byte, error) {
		return nil, store.ErrObjectNotFound
	}}
	poster := &mockPoster{}
	o := newTestOrchestrator(poster, st)

	_, err := o.Handle(context.Background(), "run", email.Location{Bucket: "inbox", Key: "gone"})
	if !errors.Is(err, store.ErrObjectNotFound) {
		t.Errorf("error: got %v, want ErrObjectNotFound", err)
	}
	if poster.callCount != 0 {
		t.Errorf("callCount: got %d, want 0", poster.callCount)
	}
}
