package config

// Storage backends.
const (
	BackendMinio = "minio"
	BackendLocal = "local"
)

// Batch ordering policies.
const (
	OrderNewestFirst = "newest-first"
	OrderOldestFirst = "oldest-first"
)

// Orchestrator kinds.
const (
	OrchestratorGitHub = "github"
	OrchestratorAMQP   = "amqp"
	OrchestratorNone   = "none"
)

// Registry backends.
const (
	RegistrySQLite   = "sqlite"
	RegistryPostgres = "postgres"
	RegistryObject   = "object"
)

const (
	defaultStagingDir          = "~/.local/share/courtclip/staging"
	defaultStateDir            = "~/.local/share/courtclip/state"
	defaultLogDir              = "~/.local/share/courtclip/logs"
	defaultLocalRoot           = "~/.local/share/courtclip/storage"
	defaultClubsRoot           = "clubs"
	defaultPrimaryLogo         = "logos/primary.png"
	defaultInboundPrefix       = "Entrantes"
	defaultArchivePrefix       = "Locaciones"
	defaultMetricsPrefix       = "Metricas"
	defaultHeartbeatKey        = "Entrantes/heartbeats.txt"
	defaultPresignExpiryHours  = 24 * 7
	defaultBatchLimit          = 20
	defaultMaxParallel         = 2
	defaultThreadsPerJob       = 2
	defaultStaleWorkspaceHours = 6
	defaultRetentionHours      = 8
	defaultIndexFileName       = "videos_recientes.json"
	defaultHeartbeatTTLSeconds = 300
	defaultTickSeconds         = 60
	defaultMaxRuntimeSeconds   = 34800
	defaultGitHubAPIURL        = "https://api.github.com"
	defaultWorkflowName        = "Procesar videos con FFmpeg"
	defaultEventType           = "procesar_video_ffmpeg"
	defaultAMQPQueue           = "courtclip.finish"
	defaultRunStateKey         = "Estado/run_state.json"
	defaultLeaseSeconds        = 300
	defaultRequestTimeout      = 20
	defaultRetryAttempts       = 3
	defaultRetryInitialMillis  = 500
	defaultRetryMaxMillis      = 10000
	defaultPollAttempts        = 10
	defaultPollIntervalSeconds = 3
	defaultStatsTZ             = "America/Mexico_City"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Storage: Storage{
			Backend:            BackendMinio,
			LocalRoot:          defaultLocalRoot,
			PresignExpiryHours: defaultPresignExpiryHours,
			InboundPrefix:      defaultInboundPrefix,
			ArchivePrefix:      defaultArchivePrefix,
			MetricsPrefix:      defaultMetricsPrefix,
			HeartbeatKey:       defaultHeartbeatKey,
		},
		Branding: Branding{
			ClubsRoot:   defaultClubsRoot,
			PrimaryLogo: defaultPrimaryLogo,
		},
		Finishing: Finishing{
			Order:               OrderNewestFirst,
			BatchLimit:          defaultBatchLimit,
			MaxParallel:         defaultMaxParallel,
			ThreadsPerJob:       defaultThreadsPerJob,
			FFmpegBinary:        "ffmpeg",
			FFprobeBinary:       "ffprobe",
			StaleWorkspaceHours: defaultStaleWorkspaceHours,
		},
		Index: Index{
			RetentionHours: defaultRetentionHours,
			FileName:       defaultIndexFileName,
		},
		Supervisor: Supervisor{
			HeartbeatTTLSeconds: defaultHeartbeatTTLSeconds,
			TickSeconds:         defaultTickSeconds,
			MaxRuntimeSeconds:   defaultMaxRuntimeSeconds,
		},
		Orchestrator: Orchestrator{
			Kind:                  OrchestratorGitHub,
			GitHubAPIURL:          defaultGitHubAPIURL,
			WorkflowName:          defaultWorkflowName,
			EventType:             defaultEventType,
			AMQPQueue:             defaultAMQPQueue,
			RunStateKey:           defaultRunStateKey,
			LeaseSeconds:          defaultLeaseSeconds,
			RequestTimeoutSeconds: defaultRequestTimeout,
		},
		Registry: Registry{
			Backend: RegistrySQLite,
		},
		Retry: Retry{
			MaxAttempts:          defaultRetryAttempts,
			InitialBackoffMillis: defaultRetryInitialMillis,
			MaxBackoffMillis:     defaultRetryMaxMillis,
			PollAttempts:         defaultPollAttempts,
			PollIntervalSeconds:  defaultPollIntervalSeconds,
		},
		Telemetry: Telemetry{
			StatsTZ: defaultStatsTZ,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			RunSummary:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
