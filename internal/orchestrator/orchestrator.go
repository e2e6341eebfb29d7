// Package orchestrator asks whether a finishing run is already underway and
// requests a new one. The supervisor depends only on the Orchestrator
// interface; GitHub Actions and AMQP back it in production.
package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"courtclip/internal/config"
	"courtclip/internal/logging"
	"courtclip/internal/retry"
	"courtclip/internal/storage"
)

// Orchestrator queries and triggers finishing runs.
type Orchestrator interface {
	// InProgress reports whether a run is queued or executing. Errors wrap
	// services.ErrOrchestratorQuery.
	InProgress(ctx context.Context) (bool, error)
	// Trigger requests a new run.
	Trigger(ctx context.Context) error
}

// HTTPDoer is the subset of *http.Client used by the GitHub client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// New builds the orchestrator selected by cfg.Orchestrator.Kind. A GitHub
// orchestrator without a repository or token degrades to None, matching
// deployments where the supervisor only maintains indexes. When store is
// non-nil the AMQP orchestrator keeps its run-state lease there.
func New(cfg *config.Config, store storage.Store, logger *slog.Logger) Orchestrator {
	logger = logging.NewComponentLogger(logger, "orchestrator")
	oc := cfg.Orchestrator
	timeout := time.Duration(oc.RequestTimeoutSeconds) * time.Second
	policy := retry.FromConfig(cfg.Retry)
	switch oc.Kind {
	case config.OrchestratorGitHub:
		if oc.GitHubRepository == "" || oc.GitHubToken == "" {
			logger.Warn("github orchestrator not configured; runs will not be triggered",
				logging.String(logging.FieldEventType, "orchestrator_disabled"),
				logging.String(logging.FieldErrorHint, "set GITHUB_REPOSITORY and PAT_GITHUB"),
				logging.String(logging.FieldImpact, "the supervisor only refreshes indexes"),
			)
			return None{}
		}
		return NewGitHub(GitHubOptions{
			APIURL:       oc.GitHubAPIURL,
			Repository:   oc.GitHubRepository,
			Token:        oc.GitHubToken,
			WorkflowName: oc.WorkflowName,
			EventType:    oc.EventType,
			Retry:        policy,
		}, &http.Client{Timeout: timeout})
	case config.OrchestratorAMQP:
		broker := NewAMQP(AMQPOptions{
			URL:       oc.AMQPURL,
			Queue:     oc.AMQPQueue,
			EventType: oc.EventType,
			Timeout:   timeout,
		}, logger)
		if store != nil {
			broker = broker.WithLease(NewLease(store, oc.RunStateKey, time.Duration(oc.LeaseSeconds)*time.Second, logger))
		}
		return broker
	default:
		return None{}
	}
}

// None never reports a run in progress and ignores triggers.
type None struct{}

func (None) InProgress(context.Context) (bool, error) { return false, nil }
func (None) Trigger(context.Context) error            { return nil }
