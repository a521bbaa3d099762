package main

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/shineum/mail-to-chat/internal/chat"
	"github.com/shineum/mail-to-chat/internal/config"
	"github.com/shineum/mail-to-chat/internal/replay"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q): got %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSelectPoster(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{config.ProviderSlack, "slack", false},
		{config.ProviderMattermost, "mattermost", false},
		{config.ProviderStdout, "stdout", false},
		{"teams", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			t.Parallel()

			cfg := &config.Config{}
			cfg.Chat.Provider = tt.provider
			cfg.Chat.Mattermost = config.MattermostConfig{URL: "https://mm.example.com", Team: "ops"}

			p, err := selectPoster(cfg, chat.StaticToken("x"), http.DefaultClient)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("Name: got %q, want %q", p.Name(), tt.want)
			}
		})
	}
}

func TestLoadReplayConfig_DryRunForcesStdout(t *testing.T) {
	t.Setenv("DOMAIN_NAME", "mail.example.com")
	t.Setenv("SLACK_ERROR_CHANNEL", "mail-errors")
	t.Setenv("CHAT_PROVIDER", "slack")

	cfg, err := loadReplayConfig("", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chat.Provider != config.ProviderStdout {
		t.Errorf("Chat.Provider: got %q, want %q", cfg.Chat.Provider, config.ProviderStdout)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("DOMAIN_NAME", "")
	t.Setenv("SLACK_ERROR_CHANNEL", "")
	t.Setenv("ERROR_CHANNEL", "")

	if _, err := loadConfig(""); err == nil {
		t.Error("expected validation error, got nil")
	}
}

func TestAddSummaries(t *testing.T) {
	t.Parallel()

	got := add(replay.Summary{Delivered: 1, Fatal: 1}, replay.Summary{Delivered: 2, Skipped: 1, Fallback: 1})
	want := replay.Summary{Delivered: 3, Skipped: 1, Fallback: 1, Fatal: 1}
	if got != want {
		t.Errorf("add: got %+v, want %+v", got, want)
	}
	if got.Total() != 6 {
		t.Errorf("Total: got %d, want 6", got.Total())
	}
}
