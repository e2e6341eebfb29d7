package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir" env:"COURTCLIP_STAGING_DIR"`
	StateDir   string `toml:"state_dir" env:"COURTCLIP_STATE_DIR"`
	LogDir     string `toml:"log_dir" env:"COURTCLIP_LOG_DIR"`
}

// Storage selects and configures the object storage backend.
type Storage struct {
	Backend            string `toml:"backend" env:"COURTCLIP_STORAGE_BACKEND"`
	LocalRoot          string `toml:"local_root" env:"COURTCLIP_LOCAL_ROOT"`
	Endpoint           string `toml:"endpoint" env:"MINIO_ENDPOINT"`
	AccessKey          string `toml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey          string `toml:"secret_key" env:"MINIO_SECRET_KEY"`
	Bucket             string `toml:"bucket" env:"MINIO_BUCKET"`
	Region             string `toml:"region" env:"MINIO_REGION"`
	UseSSL             bool   `toml:"use_ssl" env:"MINIO_USE_SSL"`
	PublicBaseURL      string `toml:"public_base_url" env:"COURTCLIP_PUBLIC_BASE_URL"`
	PresignExpiryHours int    `toml:"presign_expiry_hours"`
	InboundPrefix      string `toml:"inbound_prefix"`
	ArchivePrefix      string `toml:"archive_prefix"`
	MetricsPrefix      string `toml:"metrics_prefix"`
	HeartbeatKey       string `toml:"heartbeat_key" env:"HB_PATH"`
}

// Branding locates the logo and splice resources.
type Branding struct {
	ClubsRoot           string `toml:"clubs_root" env:"CLUBS_ROOT"`
	PrimaryLogo         string `toml:"primary_logo" env:"LOGO1_PATH"`
	TertiaryLogoEnabled bool   `toml:"tertiary_logo_enabled" env:"THIRD_LOGO_ENABLED"`
}

// Finishing controls batch selection and per-job execution.
type Finishing struct {
	Order               string `toml:"order" env:"COURTCLIP_ORDER"`
	BatchLimit          int    `toml:"batch_limit" env:"COURTCLIP_BATCH_LIMIT"`
	MaxParallel         int    `toml:"max_parallel" env:"COURTCLIP_MAX_PARALLEL"`
	ThreadsPerJob       int    `toml:"threads_per_job" env:"COURTCLIP_THREADS_PER_JOB"`
	SingleFile          string `toml:"single_file" env:"COURTCLIP_SINGLE_FILE"`
	DryRun              bool   `toml:"dry_run" env:"DRY_RUN"`
	FFmpegBinary        string `toml:"ffmpeg_binary" env:"FFMPEG_BINARY"`
	FFprobeBinary       string `toml:"ffprobe_binary" env:"FFPROBE_BINARY"`
	StaleWorkspaceHours int    `toml:"stale_workspace_hours"`
}

// Index configures the recency index publisher.
type Index struct {
	RetentionHours int    `toml:"retention_hours" env:"RETENTION_HOURS"`
	PruneByAge     bool   `toml:"prune_by_age" env:"COURTCLIP_PRUNE_BY_AGE"`
	FileName       string `toml:"file_name"`
}

// Supervisor configures the heartbeat-gated control loop.
type Supervisor struct {
	HeartbeatTTLSeconds int `toml:"heartbeat_ttl_seconds" env:"HB_TTL_SECONDS"`
	TickSeconds         int `toml:"tick_seconds" env:"LOOP_SLEEP_SECONDS"`
	MaxRuntimeSeconds   int `toml:"max_runtime_seconds" env:"MAX_RUNTIME_SECONDS"`
}

// Orchestrator configures how finishing runs are queried and triggered.
type Orchestrator struct {
	Kind                  string `toml:"kind" env:"COURTCLIP_ORCHESTRATOR"`
	GitHubAPIURL          string `toml:"github_api_url"`
	GitHubRepository      string `toml:"github_repository" env:"GITHUB_REPOSITORY"`
	GitHubToken           string `toml:"github_token" env:"PAT_GITHUB"`
	WorkflowName          string `toml:"workflow_name" env:"PROC_WORKFLOW_NAME"`
	EventType             string `toml:"event_type"`
	AMQPURL               string `toml:"amqp_url" env:"AMQP_URL"`
	AMQPQueue             string `toml:"amqp_queue"`
	RunStateKey           string `toml:"run_state_key"`
	LeaseSeconds          int    `toml:"lease_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout"`
}

// Registry selects the dedup registry backend.
type Registry struct {
	Backend     string `toml:"backend" env:"COURTCLIP_REGISTRY_BACKEND"`
	PostgresDSN string `toml:"postgres_dsn" env:"DATABASE_URL"`
}

// Retry is the bounded retry policy shared by fetch, publish and polling.
type Retry struct {
	MaxAttempts          int `toml:"max_attempts"`
	InitialBackoffMillis int `toml:"initial_backoff_ms"`
	MaxBackoffMillis     int `toml:"max_backoff_ms"`
	PollAttempts         int `toml:"poll_attempts"`
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
}

// Telemetry configures metrics exposure, tracing, and clip statistics.
type Telemetry struct {
	MetricsBind  string `toml:"metrics_bind" env:"COURTCLIP_METRICS_BIND"`
	OTLPEndpoint string `toml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	StatsTZ      string `toml:"stats_timezone"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout"`
	RunSummary     bool   `toml:"run_summary"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"LOG_FORMAT"`
	Level  string `toml:"level" env:"LOG_LEVEL"`
}

// Config encapsulates all configuration values for courtclip. A loaded Config
// is treated as immutable; use WithOverrides to derive an adjusted copy.
//
// Configuration sections by subsystem:
//   - Paths: staging workspaces, state (ledger, locks) and logs
//   - Storage: minio or local filesystem backend and key prefixes
//   - Branding: logo and intro/outro resources
//   - Finishing: batch ordering, limits and parallelism
//   - Index: recency index retention
//   - Supervisor: heartbeat TTL, tick interval and runtime ceiling
//   - Orchestrator: run state query and trigger transport
//   - Registry: dedup registry backend
//   - Retry: bounded retry policy
//   - Telemetry: metrics endpoint, tracing and stats timezone
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Branding      Branding      `toml:"branding"`
	Finishing     Finishing     `toml:"finishing"`
	Index         Index         `toml:"index"`
	Supervisor    Supervisor    `toml:"supervisor"`
	Orchestrator  Orchestrator  `toml:"orchestrator"`
	Registry      Registry      `toml:"registry"`
	Retry         Retry         `toml:"retry"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// Overrides carries command-line adjustments applied on top of a loaded config.
type Overrides struct {
	SingleFile  string
	DryRun      bool
	Order       string
	BatchLimit  int
	MaxParallel int
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/courtclip/config.toml")
}

// Load locates, parses, and validates a configuration file. Values from a .env
// file in the working directory and from the process environment take
// precedence over the file. The returned config has all path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, "", false, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// WithOverrides returns a validated copy of the config with the overrides applied.
func (c Config) WithOverrides(o Overrides) (*Config, error) {
	if s := strings.TrimSpace(o.SingleFile); s != "" {
		c.Finishing.SingleFile = s
	}
	if o.DryRun {
		c.Finishing.DryRun = true
	}
	if s := strings.TrimSpace(o.Order); s != "" {
		c.Finishing.Order = s
	}
	if o.BatchLimit > 0 {
		c.Finishing.BatchLimit = o.BatchLimit
	}
	if o.MaxParallel > 0 {
		c.Finishing.MaxParallel = o.MaxParallel
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("courtclip.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories courtclip writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir}
	if c.Storage.Backend == BackendLocal {
		dirs = append(dirs, c.Storage.LocalRoot)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HeartbeatTTL returns the liveness window for device heartbeats.
func (c *Config) HeartbeatTTL() time.Duration {
	return time.Duration(c.Supervisor.HeartbeatTTLSeconds) * time.Second
}

// TickInterval returns the supervisor sleep between ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Supervisor.TickSeconds) * time.Second
}

// MaxRuntime returns the supervisor runtime ceiling.
func (c *Config) MaxRuntime() time.Duration {
	return time.Duration(c.Supervisor.MaxRuntimeSeconds) * time.Second
}

// RetentionWindow returns the recency index retention window.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.Index.RetentionHours) * time.Hour
}

// LedgerPath returns the SQLite database holding run outcomes and the dedup registry.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "courtclip.db")
}

// SeenIDsKey returns the object key of the dedup registry document used by
// the object registry backend.
func (c *Config) SeenIDsKey() string {
	return strings.TrimSuffix(c.Storage.MetricsPrefix, "/") + "/videos_seen_ids.json"
}

// LockPath returns the path of a named single-instance lock file.
func (c *Config) LockPath(name string) string {
	return filepath.Join(c.Paths.StateDir, name+".lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
