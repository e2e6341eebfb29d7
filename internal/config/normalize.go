package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizeBranding(); err != nil {
		return err
	}
	c.normalizeFinishing()
	c.normalizeOrchestrator()
	c.normalizeRegistry()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMinio
	}
	if c.Finishing.DryRun {
		c.Storage.Backend = BackendLocal
	}
	var err error
	if c.Storage.LocalRoot, err = expandPath(c.Storage.LocalRoot); err != nil {
		return fmt.Errorf("storage.local_root: %w", err)
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
	c.Storage.InboundPrefix = cleanPrefix(c.Storage.InboundPrefix, defaultInboundPrefix)
	c.Storage.ArchivePrefix = cleanPrefix(c.Storage.ArchivePrefix, defaultArchivePrefix)
	c.Storage.MetricsPrefix = cleanPrefix(c.Storage.MetricsPrefix, defaultMetricsPrefix)
	c.Storage.HeartbeatKey = cleanPrefix(c.Storage.HeartbeatKey, defaultHeartbeatKey)
	return nil
}

func (c *Config) normalizeBranding() error {
	var err error
	if c.Branding.ClubsRoot, err = expandPath(c.Branding.ClubsRoot); err != nil {
		return fmt.Errorf("branding.clubs_root: %w", err)
	}
	if c.Branding.PrimaryLogo, err = expandPath(c.Branding.PrimaryLogo); err != nil {
		return fmt.Errorf("branding.primary_logo: %w", err)
	}
	return nil
}

func (c *Config) normalizeFinishing() {
	c.Finishing.Order = strings.ToLower(strings.TrimSpace(c.Finishing.Order))
	if c.Finishing.Order == "" {
		c.Finishing.Order = OrderNewestFirst
	}
	c.Finishing.SingleFile = strings.TrimSpace(c.Finishing.SingleFile)
	if strings.TrimSpace(c.Finishing.FFmpegBinary) == "" {
		c.Finishing.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.Finishing.FFprobeBinary) == "" {
		c.Finishing.FFprobeBinary = "ffprobe"
	}
	if strings.TrimSpace(c.Index.FileName) == "" {
		c.Index.FileName = defaultIndexFileName
	}
	if strings.TrimSpace(c.Telemetry.StatsTZ) == "" {
		c.Telemetry.StatsTZ = defaultStatsTZ
	}
}

func (c *Config) normalizeOrchestrator() {
	c.Orchestrator.Kind = strings.ToLower(strings.TrimSpace(c.Orchestrator.Kind))
	if c.Orchestrator.Kind == "" {
		c.Orchestrator.Kind = OrchestratorGitHub
	}
	c.Orchestrator.GitHubAPIURL = strings.TrimRight(strings.TrimSpace(c.Orchestrator.GitHubAPIURL), "/")
	if c.Orchestrator.GitHubAPIURL == "" {
		c.Orchestrator.GitHubAPIURL = defaultGitHubAPIURL
	}
	c.Orchestrator.GitHubRepository = strings.Trim(strings.TrimSpace(c.Orchestrator.GitHubRepository), "/")
	c.Orchestrator.GitHubToken = strings.TrimSpace(c.Orchestrator.GitHubToken)
	if strings.TrimSpace(c.Orchestrator.WorkflowName) == "" {
		c.Orchestrator.WorkflowName = defaultWorkflowName
	}
	if strings.TrimSpace(c.Orchestrator.EventType) == "" {
		c.Orchestrator.EventType = defaultEventType
	}
	c.Orchestrator.RunStateKey = strings.Trim(strings.TrimSpace(c.Orchestrator.RunStateKey), "/")
	if c.Orchestrator.RunStateKey == "" {
		c.Orchestrator.RunStateKey = defaultRunStateKey
	}
	if strings.TrimSpace(c.Orchestrator.AMQPQueue) == "" {
		c.Orchestrator.AMQPQueue = defaultAMQPQueue
	}
}

func (c *Config) normalizeRegistry() {
	c.Registry.Backend = strings.ToLower(strings.TrimSpace(c.Registry.Backend))
	if c.Registry.Backend == "" {
		c.Registry.Backend = RegistrySQLite
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json", "auto":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func cleanPrefix(value, fallback string) string {
	value = strings.Trim(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}
