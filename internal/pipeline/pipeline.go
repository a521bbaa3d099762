// Package pipeline sequences a single email notification run: fetch, filter,
// parse, route, dispatch and fallback reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shineum/mail-to-chat/internal/chat"
	"github.com/shineum/mail-to-chat/internal/email"
	"github.com/shineum/mail-to-chat/internal/filter"
	"github.com/shineum/mail-to-chat/internal/notify"
	"github.com/shineum/mail-to-chat/internal/parser"
	"github.com/shineum/mail-to-chat/internal/router"
	"github.com/shineum/mail-to-chat/internal/store"
)

// State is a step of a run. Runs move through the states in order and end
// in Completed or Fatal.
type State string

const (
	StateReceived          State = "received"
	StateFiltered          State = "filtered"
	StateParsed            State = "parsed"
	StateRouted            State = "routed"
	StateDispatched        State = "dispatched"
	StateFallbackAttempted State = "fallback_attempted"
	StateCompleted         State = "completed"
	StateFatal             State = "fatal"
)

// Status describes how a completed run ended.
type Status int

const (
	// Delivered means the notification reached the routed channel.
	Delivered Status = iota + 1
	// Skipped means the message was a provider notice and nothing was posted.
	Skipped
	// FallbackDelivered means dispatch failed and the diagnostic reached the
	// error channel.
	FallbackDelivered
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Skipped:
		return "skipped"
	case FallbackDelivered:
		return "fallback_delivered"
	default:
		return "unknown"
	}
}

// Result is the outcome of a completed run.
type Result struct {
	Status Status
	// Channel is the routed channel; empty when Skipped.
	Channel string
	// Ref references the message posted by the run, if any.
	Ref string
	// Failure is the dispatch failure reported to the error channel.
	Failure *chat.APIError
}

// Config holds the routing settings of an Orchestrator.
type Config struct {
	Domain string
	Notice filter.Notice
}

// Orchestrator runs messages through the pipeline. It holds no per-run state
// and is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	store      store.Reader
	dispatcher *notify.Dispatcher
	fallback   *notify.FallbackReporter
	logger     *slog.Logger
}

// New creates an Orchestrator. A nil logger uses slog.Default().
func New(cfg Config, reader store.Reader, dispatcher *notify.Dispatcher, fallback *notify.FallbackReporter, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      reader,
		dispatcher: dispatcher,
		fallback:   fallback,
		logger:     logger,
	}
}

// Handle fetches the message stored at loc and processes it.
// A returned error means the run is Fatal.
func (o *Orchestrator) Handle(ctx context.Context, runID string, loc email.Location) (Result, error) {
	data, err := o.store.Get(ctx, loc)
	if err != nil {
		o.runLogger(runID, loc).Error("failed to fetch message", "error", err)
		return Result{}, fmt.Errorf("failed to fetch message: %w", err)
	}
	return o.Process(ctx, runID, email.RawMessage{Location: loc, Data: data})
}

// Process runs an already fetched message through the pipeline.
// A returned error means the run is Fatal.
func (o *Orchestrator) Process(ctx context.Context, runID string, raw email.RawMessage) (Result, error) {
	r := &run{logger: o.runLogger(runID, raw.Location)}
	r.enter(StateReceived)

	head, err := parser.ReadHeader(raw.Data)
	if err != nil {
		return r.fatal("failed to read message header", err)
	}

	skip := o.cfg.Notice.Skip(head.From, head.Subject)
	r.enter(StateFiltered)
	if skip {
		r.logger.Info("skipping provider notice", "from", head.From, "subject", head.Subject)
		return r.complete(Result{Status: Skipped})
	}

	msg, err := head.Email()
	if err != nil {
		return r.fatal("failed to parse message", err)
	}
	r.enter(StateParsed)

	decision, err := router.Route(msg.To, o.cfg.Domain)
	if err != nil {
		return r.fatal("failed to route message", err)
	}
	r.enter(StateRouted)
	r.logger = r.logger.With("channel", decision.Channel)

	out, err := o.dispatcher.Dispatch(ctx, decision, msg)
	if err != nil {
		return r.fatal("failed to dispatch notification", err)
	}
	r.enter(StateDispatched)

	if out.Status == notify.Delivered {
		r.logger.Info("notification delivered", "ref", out.Ref)
		return r.complete(Result{Status: Delivered, Channel: decision.Channel, Ref: out.Ref})
	}

	r.logger.Warn("notification dispatch failed, reporting to error channel",
		"code", out.Failure.Code,
		"upstream", out.Failure.Upstream,
		"error_channel", o.fallback.Channel(),
	)

	fb, err := o.fallback.Report(ctx, out)
	r.enter(StateFallbackAttempted)
	if err != nil {
		return r.fatal("failed to report dispatch failure", err)
	}

	r.logger.Info("dispatch failure reported", "ref", fb.Ref, "error_channel", fb.Channel)
	return r.complete(Result{
		Status:  FallbackDelivered,
		Channel: decision.Channel,
		Ref:     fb.Ref,
		Failure: out.Failure,
	})
}

func (o *Orchestrator) runLogger(runID string, loc email.Location) *slog.Logger {
	return o.logger.With("run_id", runID, "bucket", loc.Bucket, "key", loc.Key)
}

// run tracks the state of a single pipeline run.
type run struct {
	state  State
	logger *slog.Logger
}

func (r *run) enter(s State) {
	r.state = s
	r.logger.Debug("pipeline state", "state", s)
}

func (r *run) complete(res Result) (Result, error) {
	r.enter(StateCompleted)
	r.logger.Info("run completed", "status", res.Status)
	return res, nil
}

func (r *run) fatal(msg string, err error) (Result, error) {
	from := r.state
	r.enter(StateFatal)

	attrs := []any{"error", err, "after_state", from}
	var fbErr *notify.FallbackError
	if errors.As(err, &fbErr) {
		attrs = append(attrs, "dispatch_error", fbErr.Dispatch.Error(), "fallback_error", fbErr.Fallback.Error())
	}
	r.logger.Error(msg, attrs...)
	return Result{}, err
}
