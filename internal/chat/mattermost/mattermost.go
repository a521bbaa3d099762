// Package mattermost implements a chat Poster backed by the Mattermost
// REST API v4.
package mattermost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/shineum/mail-to-chat/internal/chat"
)

// Poster resolves channels by name within a team and creates posts in them.
type Poster struct {
	serverURL  string
	team       string
	tokens     chat.TokenSource
	httpClient *http.Client
}

// Config holds the configuration for creating a Poster.
type Config struct {
	ServerURL string
	Team      string
	// HTTPClient is shared by every post. Nil uses a client with a 30s timeout.
	HTTPClient *http.Client
}

// New creates a Poster that resolves the bot token from tokens on each post.
func New(tokens chat.TokenSource, cfg Config) *Poster {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Poster{
		serverURL:  cfg.ServerURL,
		team:       cfg.Team,
		tokens:     tokens,
		httpClient: client,
	}
}

// PostMessage posts text to the channel with the given name and returns the
// post ID.
func (p *Poster) PostMessage(ctx context.Context, channel, text string) (string, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get bot token: %w", err)
	}

	client := model.NewAPIv4Client(p.serverURL)
	client.HTTPClient = p.httpClient
	client.SetToken(token)

	ch, resp, err := client.GetChannelByNameForTeamName(ctx, channel, p.team, "")
	if err != nil {
		return "", classify(resp, err)
	}

	post, resp, err := client.CreatePost(ctx, &model.Post{
		ChannelId: ch.Id,
		Message:   text,
	})
	if err != nil {
		return "", classify(resp, err)
	}

	return post.Id, nil
}

// Name returns the backend name.
func (p *Poster) Name() string {
	return "mattermost"
}

// teamErrorPrefix prefixes the error ids Mattermost returns for team lookups.
const teamErrorPrefix = "app.team."

// classify maps a failed API response onto the chat failure codes. Errors
// without a response never reached the server and are returned unchanged.
// A 404 for an unknown team is a generic failure.
func classify(resp *model.Response, err error) error {
	if resp == nil || resp.StatusCode == 0 {
		return err
	}

	upstream := err.Error()
	var appErr *model.AppError
	if errors.As(err, &appErr) && appErr.Id != "" {
		upstream = appErr.Id
	}

	code := chat.CodeGeneric
	switch {
	case strings.HasPrefix(upstream, teamErrorPrefix):
		code = chat.CodeGeneric
	case resp.StatusCode == http.StatusNotFound:
		code = chat.CodeChannelNotFound
	case resp.StatusCode == http.StatusForbidden:
		code = chat.CodeNotMember
	case resp.StatusCode == http.StatusTooManyRequests:
		code = chat.CodeRateLimited
	}

	return &chat.APIError{Code: code, Upstream: upstream, Err: err}
}
