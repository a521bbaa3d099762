package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"github.com/shineum/mail-to-chat/internal/email"
	"github.com/shineum/mail-to-chat/internal/pipeline"
	"github.com/shineum/mail-to-chat/internal/report"
	"github.com/shineum/mail-to-chat/internal/trigger"
)

const reportFlushTimeout = 2 * time.Second

// Response is the Lambda invocation result for a successful run.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type runner interface {
	Handle(ctx context.Context, runID string, loc email.Location) (pipeline.Result, error)
}

// handler adapts S3 event notifications to pipeline runs.
type handler struct {
	runner   runner
	reporter report.Reporter
}

// Handle processes every record of the event in order. Fatal runs do not
// stop later records; their errors are joined and returned so the runtime
// applies its own retry policy.
func (h *handler) Handle(ctx context.Context, event events.S3Event) (Response, error) {
	requestID := requestIDFromContext(ctx)

	locs, err := trigger.FromS3Event(event)
	if err != nil {
		slog.Error("failed to decode trigger event", "run_id", requestID, "error", err)
		h.reporter.Report(ctx, err, map[string]string{"run_id": requestID})
		h.reporter.Flush(reportFlushTimeout)
		return Response{}, err
	}

	var (
		errs    []error
		skipped int
	)
	for i, loc := range locs {
		runID := requestID
		if len(locs) > 1 {
			runID = fmt.Sprintf("%s-%d", requestID, i)
		}

		res, err := h.runner.Handle(ctx, runID, loc)
		if err != nil {
			h.reporter.Report(ctx, err, map[string]string{
				"run_id": runID,
				"bucket": loc.Bucket,
				"key":    loc.Key,
			})
			errs = append(errs, fmt.Errorf("%s: %w", loc, err))
			continue
		}
		if res.Status == pipeline.Skipped {
			skipped++
		}
	}

	if err := errors.Join(errs...); err != nil {
		h.reporter.Flush(reportFlushTimeout)
		return Response{}, err
	}

	if skipped == len(locs) {
		return Response{StatusCode: http.StatusOK, Body: "Skipped setup notification"}, nil
	}
	return Response{StatusCode: http.StatusOK, Body: "Success"}, nil
}

// requestIDFromContext returns the Lambda request ID, or a random UUID when
// invoked outside the Lambda runtime.
func requestIDFromContext(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
