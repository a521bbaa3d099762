// Package slack implements a chat Poster backed by the Slack Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/shineum/mail-to-chat/internal/chat"
)

// Poster posts notifications with chat.postMessage.
type Poster struct {
	tokens     chat.TokenSource
	apiURL     string
	httpClient *http.Client
}

// Config holds the configuration for creating a Poster.
type Config struct {
	// APIURL overrides the Slack API base URL. Empty uses the library default.
	APIURL string
	// HTTPClient is shared by every post. Nil uses a client with a 30s timeout.
	HTTPClient *http.Client
}

// New creates a Poster that resolves the bot token from tokens on each post.
func New(tokens chat.TokenSource, cfg Config) *Poster {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	apiURL := cfg.APIURL
	if apiURL != "" && !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}

	return &Poster{
		tokens:     tokens,
		apiURL:     apiURL,
		httpClient: client,
	}
}

// PostMessage posts text to channel and returns the message timestamp.
func (p *Poster) PostMessage(ctx context.Context, channel, text string) (string, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get bot token: %w", err)
	}

	opts := []slack.Option{slack.OptionHTTPClient(p.httpClient)}
	if p.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(p.apiURL))
	}
	api := slack.New(token, opts...)

	_, ts, err := api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return "", classify(err)
	}
	return ts, nil
}

// Name returns the backend name.
func (p *Poster) Name() string {
	return "slack"
}

// classify maps Slack errors onto the chat failure codes. Transport errors
// are returned unchanged.
func classify(err error) error {
	var respErr slack.SlackErrorResponse
	if errors.As(err, &respErr) {
		return &chat.APIError{Code: codeFor(respErr.Err), Upstream: respErr.Err, Err: err}
	}

	var rateErr *slack.RateLimitedError
	if errors.As(err, &rateErr) {
		return &chat.APIError{Code: chat.CodeRateLimited, Upstream: rateErr.Error(), Err: err}
	}

	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		code := chat.CodeGeneric
		if statusErr.Code == http.StatusTooManyRequests {
			code = chat.CodeRateLimited
		}
		return &chat.APIError{Code: code, Upstream: statusErr.Status, Err: err}
	}

	return err
}

func codeFor(upstream string) chat.Code {
	switch upstream {
	case "channel_not_found":
		return chat.CodeChannelNotFound
	case "not_in_channel":
		return chat.CodeNotMember
	case "ratelimited", "rate_limited":
		return chat.CodeRateLimited
	default:
		return chat.CodeGeneric
	}
}
