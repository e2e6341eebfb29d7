package config

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateFinishing(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Telemetry.StatsTZ); err != nil {
		return fmt.Errorf("telemetry.stats_timezone: %w", err)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.LocalRoot == "" {
			return errors.New("storage.local_root must be set for the local backend")
		}
	case BackendMinio:
		if c.Storage.Endpoint == "" {
			return errors.New("storage.endpoint is required. Set MINIO_ENDPOINT or use --dry-run for the local backend")
		}
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
	if c.Storage.PresignExpiryHours <= 0 || c.Storage.PresignExpiryHours > 24*7 {
		return errors.New("storage.presign_expiry_hours must be between 1 and 168")
	}
	return nil
}

func (c *Config) validateFinishing() error {
	switch c.Finishing.Order {
	case OrderNewestFirst, OrderOldestFirst:
	default:
		return fmt.Errorf("finishing.order: unsupported value %q (want %s or %s)", c.Finishing.Order, OrderNewestFirst, OrderOldestFirst)
	}
	if c.Finishing.BatchLimit < 0 {
		return errors.New("finishing.batch_limit must be >= 0")
	}
	if err := ensurePositiveMap(map[string]int{
		"finishing.max_parallel":          c.Finishing.MaxParallel,
		"finishing.threads_per_job":       c.Finishing.ThreadsPerJob,
		"finishing.stale_workspace_hours": c.Finishing.StaleWorkspaceHours,
		"index.retention_hours":           c.Index.RetentionHours,
		"notifications.request_timeout":   c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	return ensurePositiveMap(map[string]int{
		"supervisor.heartbeat_ttl_seconds": c.Supervisor.HeartbeatTTLSeconds,
		"supervisor.tick_seconds":          c.Supervisor.TickSeconds,
		"supervisor.max_runtime_seconds":   c.Supervisor.MaxRuntimeSeconds,
	})
}

func (c *Config) validateOrchestrator() error {
	switch c.Orchestrator.Kind {
	case OrchestratorGitHub, OrchestratorNone:
	case OrchestratorAMQP:
		if c.Orchestrator.AMQPURL == "" {
			return errors.New("orchestrator.amqp_url is required when orchestrator.kind is amqp")
		}
		if c.Orchestrator.LeaseSeconds <= 0 {
			return errors.New("orchestrator.lease_seconds must be positive")
		}
	default:
		return fmt.Errorf("orchestrator.kind: unsupported value %q", c.Orchestrator.Kind)
	}
	if c.Orchestrator.RequestTimeoutSeconds <= 0 {
		return errors.New("orchestrator.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateRegistry() error {
	switch c.Registry.Backend {
	case RegistrySQLite, RegistryObject:
	case RegistryPostgres:
		if c.Registry.PostgresDSN == "" {
			return errors.New("registry.postgres_dsn is required when registry.backend is postgres")
		}
	default:
		return fmt.Errorf("registry.backend: unsupported value %q", c.Registry.Backend)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if err := ensurePositiveMap(map[string]int{
		"retry.max_attempts":          c.Retry.MaxAttempts,
		"retry.initial_backoff_ms":    c.Retry.InitialBackoffMillis,
		"retry.max_backoff_ms":        c.Retry.MaxBackoffMillis,
		"retry.poll_attempts":         c.Retry.PollAttempts,
		"retry.poll_interval_seconds": c.Retry.PollIntervalSeconds,
	}); err != nil {
		return err
	}
	if c.Retry.MaxBackoffMillis < c.Retry.InitialBackoffMillis {
		return errors.New("retry.max_backoff_ms must be >= retry.initial_backoff_ms")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
