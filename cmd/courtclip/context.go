package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"courtclip/internal/config"
	"courtclip/internal/logging"
	"courtclip/internal/telemetry"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	metricsOnce sync.Once
	metrics     *telemetry.Metrics
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) ensureMetrics() *telemetry.Metrics {
	c.metricsOnce.Do(func() {
		c.metrics = telemetry.NewMetrics()
	})
	return c.metrics
}

// startTelemetry installs the tracer and, when configured, serves /metrics
// until ctx ends. The returned function flushes pending spans.
func (c *commandContext) startTelemetry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(), error) {
	shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	metrics := c.ensureMetrics()
	go func() {
		if err := telemetry.Serve(ctx, cfg.Telemetry.MetricsBind, metrics, logger); err != nil {
			logging.WarnWithContext(logger, "metrics server failed", "metrics_server_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "metrics are not exported for this process"),
			)
		}
	}()
	return func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracer shutdown failed", logging.Error(err))
		}
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
