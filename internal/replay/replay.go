// Package replay runs stored messages through the pipeline outside of the
// event-driven runtime, from local files, mbox archives or S3 objects.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shineum/mail-to-chat/internal/email"
	"github.com/shineum/mail-to-chat/internal/pipeline"
	"github.com/shineum/mail-to-chat/internal/store"
)

// Processor runs one fetched message through the pipeline.
type Processor interface {
	Process(ctx context.Context, runID string, raw email.RawMessage) (pipeline.Result, error)
}

// Options controls replay throughput.
type Options struct {
	// Concurrency bounds the number of simultaneous runs. Values below one
	// mean one.
	Concurrency int
	// Rate is the maximum number of runs started per second. Zero or less
	// disables throttling.
	Rate float64
}

// Summary counts run outcomes.
type Summary struct {
	Delivered int
	Skipped   int
	Fallback  int
	Fatal     int
}

// Total returns the number of runs.
func (s Summary) Total() int {
	return s.Delivered + s.Skipped + s.Fallback + s.Fatal
}

// Replayer feeds messages to a Processor with bounded concurrency and a
// start-rate limit.
type Replayer struct {
	proc    Processor
	files   store.Reader
	objects store.Reader
	opts    Options
	logger  *slog.Logger
	newID   func() string
}

// New creates a Replayer. files reads local paths and objects reads s3://
// locations; objects may be nil when only local sources are replayed.
func New(proc Processor, files, objects store.Reader, opts Options, logger *slog.Logger) *Replayer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{
		proc:    proc,
		files:   files,
		objects: objects,
		opts:    opts,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// job is one message to replay. Data is nil until fetched.
type job struct {
	loc    email.Location
	reader store.Reader
	data   []byte
}

// Run replays each source, a file path or an s3://bucket/key URI.
func (r *Replayer) Run(ctx context.Context, sources []string) (Summary, error) {
	jobs := make([]job, 0, len(sources))
	for _, src := range sources {
		if loc, ok := ParseS3URI(src); ok {
			if r.objects == nil {
				return Summary{}, fmt.Errorf("no object store configured for %s", src)
			}
			jobs = append(jobs, job{loc: loc, reader: r.objects})
			continue
		}
		jobs = append(jobs, job{loc: email.Location{Key: src}, reader: r.files})
	}
	return r.run(ctx, jobs)
}

// RunMbox replays every message of an mbox archive. name identifies the
// archive in logs.
func (r *Replayer) RunMbox(ctx context.Context, archive io.Reader, name string) (Summary, error) {
	mr := mboxlib.NewReader(archive)

	var jobs []job
	for idx := 0; ; idx++ {
		msg, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("failed to read mbox message %d: %w", idx, err)
		}

		data, err := io.ReadAll(msg)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to read mbox message %d: %w", idx, err)
		}
		jobs = append(jobs, job{
			loc:  email.Location{Bucket: name, Key: fmt.Sprintf("message-%d", idx+1)},
			data: data,
		})
	}

	r.logger.Info("mbox archive loaded", "archive", name, "messages", len(jobs))
	return r.run(ctx, jobs)
}

func (r *Replayer) run(ctx context.Context, jobs []job) (Summary, error) {
	limit := rate.Inf
	if r.opts.Rate > 0 {
		limit = rate.Limit(r.opts.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	var (
		mu      sync.Mutex
		summary Summary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, j := range jobs {
		if err := limiter.Wait(gctx); err != nil {
			break
		}

		g.Go(func() error {
			res, err := r.replayOne(gctx, j)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Fatal++
			case res.Status == pipeline.Skipped:
				summary.Skipped++
			case res.Status == pipeline.FallbackDelivered:
				summary.Fallback++
			default:
				summary.Delivered++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("replay interrupted: %w", err)
	}

	r.logger.Info("replay finished",
		"delivered", summary.Delivered,
		"skipped", summary.Skipped,
		"fallback", summary.Fallback,
		"fatal", summary.Fatal,
	)
	return summary, nil
}

func (r *Replayer) replayOne(ctx context.Context, j job) (pipeline.Result, error) {
	runID := r.newID()

	data := j.data
	if data == nil {
		var err error
		data, err = j.reader.Get(ctx, j.loc)
		if err != nil {
			r.logger.Error("failed to fetch message",
				"run_id", runID,
				"bucket", j.loc.Bucket,
				"key", j.loc.Key,
				"error", err,
			)
			return pipeline.Result{}, err
		}
	}

	return r.proc.Process(ctx, runID, email.RawMessage{Location: j.loc, Data: data})
}

// ParseS3URI parses an s3://bucket/key URI. It reports false for anything
// else, including URIs without a key.
func ParseS3URI(s string) (email.Location, bool) {
	rest, ok := strings.CutPrefix(s, "s3://")
	if !ok {
		return email.Location{}, false
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return email.Location{}, false
	}
	return email.Location{Bucket: bucket, Key: key}, true
}
