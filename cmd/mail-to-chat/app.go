package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/getsentry/sentry-go"

	"github.com/shineum/mail-to-chat/internal/chat"
	"github.com/shineum/mail-to-chat/internal/chat/mattermost"
	"github.com/shineum/mail-to-chat/internal/chat/slack"
	"github.com/shineum/mail-to-chat/internal/chat/stdout"
	"github.com/shineum/mail-to-chat/internal/config"
	"github.com/shineum/mail-to-chat/internal/filter"
	"github.com/shineum/mail-to-chat/internal/notify"
	"github.com/shineum/mail-to-chat/internal/pipeline"
	"github.com/shineum/mail-to-chat/internal/report"
	"github.com/shineum/mail-to-chat/internal/secret"
	"github.com/shineum/mail-to-chat/internal/store"
)

// app holds the process-lifetime collaborators shared by every run.
type app struct {
	orchestrator *pipeline.Orchestrator
	objects      store.Reader
	poster       chat.Poster
	reporter     report.Reporter
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	poster, err := selectPoster(cfg, newTokenSource(cfg, awsCfg), httpClient)
	if err != nil {
		return nil, err
	}

	reporter, err := newReporter(cfg)
	if err != nil {
		return nil, err
	}

	objects := store.NewS3(awsCfg)
	orchestrator := pipeline.New(
		pipeline.Config{
			Domain: cfg.Routing.Domain,
			Notice: filter.Notice{Sender: cfg.Notice.Sender, Subject: cfg.Notice.Subject},
		},
		objects,
		notify.NewDispatcher(poster, cfg.Routing.MaxMessageLength),
		notify.NewFallbackReporter(poster, cfg.Routing.ErrorChannel),
		slog.Default(),
	)

	return &app{
		orchestrator: orchestrator,
		objects:      objects,
		poster:       poster,
		reporter:     reporter,
	}, nil
}

// loadAWSConfig loads the SDK configuration, applying the optional region
// and static credential overrides.
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	if cfg.StaticAWSCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// newTokenSource returns the configured static token, or a cached Secrets
// Manager lookup that is fetched on first use.
func newTokenSource(cfg *config.Config, awsCfg aws.Config) chat.TokenSource {
	if cfg.StaticToken() {
		return chat.StaticToken(cfg.Chat.Token)
	}
	return secret.NewCached(secret.NewSecretsManager(awsCfg, cfg.Secret.Name, cfg.Secret.Key))
}

// selectPoster chooses the chat backend based on configuration.
func selectPoster(cfg *config.Config, tokens chat.TokenSource, httpClient *http.Client) (chat.Poster, error) {
	switch cfg.Chat.Provider {
	case config.ProviderSlack:
		slog.Info("using Slack chat backend", "api_url", cfg.Chat.APIURL)
		return slack.New(tokens, slack.Config{
			APIURL:     cfg.Chat.APIURL,
			HTTPClient: httpClient,
		}), nil

	case config.ProviderMattermost:
		slog.Info("using Mattermost chat backend",
			"url", cfg.Chat.Mattermost.URL,
			"team", cfg.Chat.Mattermost.Team,
		)
		return mattermost.New(tokens, mattermost.Config{
			ServerURL:  cfg.Chat.Mattermost.URL,
			Team:       cfg.Chat.Mattermost.Team,
			HTTPClient: httpClient,
		}), nil

	case config.ProviderStdout:
		slog.Info("using stdout chat backend")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Chat.Provider)
	}
}

func newReporter(cfg *config.Config) (report.Reporter, error) {
	if !cfg.SentryEnabled() {
		return report.Nop{}, nil
	}
	r, err := report.NewSentry(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
