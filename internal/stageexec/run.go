// Package stageexec runs one named stage of a finishing job with consistent
// logging, timing metrics and a trace span.
package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"courtclip/internal/logging"
	"courtclip/internal/services"
	"courtclip/internal/telemetry"
)

// Options controls how a stage is observed.
type Options struct {
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Stage   string
	// Fields are added to the stage_start event.
	Fields []logging.Attr
}

// Run executes fn as the named stage. The context passed to fn carries the
// stage name so that loggers derived from it are tagged. The error returned
// by fn is passed through unchanged.
func Run(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("stage %s has no handler", opts.Stage)
	}
	stageCtx := services.WithStage(ctx, opts.Stage)
	stageCtx, span := telemetry.Tracer().Start(stageCtx, opts.Stage)
	defer span.End()

	logger := logging.WithContext(stageCtx, opts.Logger)
	startAttrs := append([]logging.Attr{logging.String(logging.FieldEventType, "stage_start")}, opts.Fields...)
	logger.Info("stage started", logging.Args(startAttrs...)...)

	start := time.Now()
	err := fn(stageCtx)
	elapsed := time.Since(start)
	opts.Metrics.ObserveStage(opts.Stage, elapsed)

	if err != nil {
		kind := services.Kind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		span.SetAttributes(attribute.String("error.kind", kind))
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("error_kind", kind),
			logging.Duration("duration", elapsed),
			logging.Error(err),
		)
		return err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", elapsed),
	)
	return nil
}
