package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"courtclip/internal/retry"
	"courtclip/internal/services"
)

// GitHubOptions configures the GitHub Actions orchestrator.
type GitHubOptions struct {
	APIURL       string
	Repository   string
	Token        string
	WorkflowName string
	EventType    string
	Retry        retry.Policy
}

// GitHub checks workflow runs and sends repository_dispatch events.
type GitHub struct {
	opts   GitHubOptions
	client HTTPDoer

	mu         sync.Mutex
	workflowID int64
}

// NewGitHub returns a GitHub orchestrator using client for requests.
func NewGitHub(opts GitHubOptions, client HTTPDoer) *GitHub {
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	if opts.APIURL == "" {
		opts.APIURL = "https://api.github.com"
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.Once()
	}
	return &GitHub{opts: opts, client: client}
}

type workflowList struct {
	Workflows []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"workflows"`
}

type runList struct {
	TotalCount int `json:"total_count"`
}

// InProgress reports whether the finishing workflow has a queued or running
// run.
func (g *GitHub) InProgress(ctx context.Context) (bool, error) {
	id, err := g.resolveWorkflow(ctx)
	if err != nil {
		return false, err
	}
	for _, status := range []string{"in_progress", "queued"} {
		var runs runList
		endpoint := fmt.Sprintf("%s/repos/%s/actions/workflows/%d/runs?status=%s&per_page=1",
			g.opts.APIURL, g.opts.Repository, id, url.QueryEscape(status))
		if err := g.getJSON(ctx, endpoint, &runs); err != nil {
			return false, services.Wrap(services.ErrOrchestratorQuery, "orchestrator", "list runs", status, err)
		}
		if runs.TotalCount > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Trigger sends the repository_dispatch event that starts a finishing run.
func (g *GitHub) Trigger(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"event_type": g.opts.EventType})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/repos/%s/dispatches", g.opts.APIURL, g.opts.Repository)
	err = g.opts.Retry.Do(ctx, func(ctx context.Context) error {
		_, err := g.do(ctx, http.MethodPost, endpoint, body)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrTransientIO, "orchestrator", "dispatch", g.opts.EventType, err)
	}
	return nil
}

func (g *GitHub) resolveWorkflow(ctx context.Context) (int64, error) {
	g.mu.Lock()
	cached := g.workflowID
	g.mu.Unlock()
	if cached != 0 {
		return cached, nil
	}

	var list workflowList
	endpoint := fmt.Sprintf("%s/repos/%s/actions/workflows?per_page=100", g.opts.APIURL, g.opts.Repository)
	if err := g.getJSON(ctx, endpoint, &list); err != nil {
		return 0, services.Wrap(services.ErrOrchestratorQuery, "orchestrator", "list workflows", g.opts.Repository, err)
	}
	for _, wf := range list.Workflows {
		if wf.Name == g.opts.WorkflowName {
			g.mu.Lock()
			g.workflowID = wf.ID
			g.mu.Unlock()
			return wf.ID, nil
		}
	}
	return 0, services.Wrap(services.ErrOrchestratorQuery, "orchestrator", "list workflows",
		fmt.Sprintf("workflow %q not found", g.opts.WorkflowName), nil)
}

func (g *GitHub) getJSON(ctx context.Context, endpoint string, target any) error {
	return g.opts.Retry.Do(ctx, func(ctx context.Context) error {
		data, err := g.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, target); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", endpoint, err))
		}
		return nil
	})
}

func (g *GitHub) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+g.opts.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "github", method, endpoint, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "github", "read body", endpoint, err)
	}

	switch {
	case resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrTransientIO, "github", method,
			fmt.Sprintf("%s returned %d", endpoint, resp.StatusCode), nil)
	default:
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, retry.Permanent(services.Wrap(services.ErrConfiguration, "github", method,
			fmt.Sprintf("%s returned %d: %s", endpoint, resp.StatusCode, snippet), nil))
	}
}
