package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"courtclip/internal/orchestrator"
	"courtclip/internal/retry"
	"courtclip/internal/services"
)

type fakeActions struct {
	mu             sync.Mutex
	workflowCalls  int
	running        map[string]int
	dispatchBodies []map[string]string
	dispatchStatus []int
	headers        http.Header
}

func (f *fakeActions) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/club/pipeline/actions/workflows", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.workflowCalls++
		f.headers = r.Header.Clone()
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_count": 2,
			"workflows": []map[string]any{
				{"id": 7, "name": "Lint"},
				{"id": 42, "name": "Procesar videos con FFmpeg"},
			},
		})
	})
	mux.HandleFunc("GET /repos/club/pipeline/actions/workflows/42/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("per_page") != "1" {
			t.Errorf("expected per_page=1, got %q", r.URL.RawQuery)
		}
		f.mu.Lock()
		count := f.running[r.URL.Query().Get("status")]
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"total_count": count})
	})
	mux.HandleFunc("POST /repos/club/pipeline/dispatches", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]string
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("decode dispatch body: %v", err)
		}
		f.mu.Lock()
		f.dispatchBodies = append(f.dispatchBodies, body)
		f.headers = r.Header.Clone()
		status := http.StatusNoContent
		if len(f.dispatchStatus) > 0 {
			status = f.dispatchStatus[0]
			f.dispatchStatus = f.dispatchStatus[1:]
		}
		f.mu.Unlock()
		w.WriteHeader(status)
	})
	return mux
}

func (f *fakeActions) snapshot() (int, []map[string]string, http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workflowCalls, append([]map[string]string(nil), f.dispatchBodies...), f.headers
}

func newGitHub(t *testing.T, f *fakeActions, attempts int) *orchestrator.GitHub {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	return orchestrator.NewGitHub(orchestrator.GitHubOptions{
		APIURL:       server.URL + "/",
		Repository:   "club/pipeline",
		Token:        "secret-pat",
		WorkflowName: "Procesar videos con FFmpeg",
		EventType:    "procesar_video_ffmpeg",
		Retry:        retry.Policy{MaxAttempts: attempts},
	}, server.Client())
}

func TestGitHubInProgress(t *testing.T) {
	tests := []struct {
		name    string
		running map[string]int
		want    bool
	}{
		{name: "idle", running: map[string]int{}, want: false},
		{name: "running", running: map[string]int{"in_progress": 1}, want: true},
		{name: "queued", running: map[string]int{"queued": 2}, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeActions{running: tc.running}
			gh := newGitHub(t, f, 1)
			got, err := gh.InProgress(context.Background())
			if err != nil {
				t.Fatalf("InProgress: %v", err)
			}
			if got != tc.want {
				t.Fatalf("InProgress = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGitHubCachesWorkflowID(t *testing.T) {
	f := &fakeActions{running: map[string]int{}}
	gh := newGitHub(t, f, 1)
	for i := 0; i < 3; i++ {
		if _, err := gh.InProgress(context.Background()); err != nil {
			t.Fatalf("InProgress: %v", err)
		}
	}
	calls, _, headers := f.snapshot()
	if calls != 1 {
		t.Fatalf("expected workflow list to be fetched once, got %d", calls)
	}
	if got := headers.Get("Authorization"); got != "Bearer secret-pat" {
		t.Fatalf("unexpected authorization header %q", got)
	}
	if got := headers.Get("Accept"); got != "application/vnd.github+json" {
		t.Fatalf("unexpected accept header %q", got)
	}
}

func TestGitHubUnknownWorkflowIsQueryFailure(t *testing.T) {
	f := &fakeActions{running: map[string]int{}}
	server := httptest.NewServer(f.handler(t))
	defer server.Close()
	gh := orchestrator.NewGitHub(orchestrator.GitHubOptions{
		APIURL:       server.URL,
		Repository:   "club/pipeline",
		Token:        "secret-pat",
		WorkflowName: "Something else",
	}, server.Client())
	_, err := gh.InProgress(context.Background())
	if !errors.Is(err, services.ErrOrchestratorQuery) {
		t.Fatalf("expected orchestrator query failure, got %v", err)
	}
}

func TestGitHubTriggerSendsDispatch(t *testing.T) {
	f := &fakeActions{}
	gh := newGitHub(t, f, 1)
	if err := gh.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	_, bodies, headers := f.snapshot()
	if len(bodies) != 1 || bodies[0]["event_type"] != "procesar_video_ffmpeg" {
		t.Fatalf("unexpected dispatch bodies %v", bodies)
	}
	if got := headers.Get("Content-Type"); got != "application/json" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestGitHubTriggerRetriesServerErrors(t *testing.T) {
	f := &fakeActions{dispatchStatus: []int{http.StatusBadGateway, http.StatusNoContent}}
	gh := newGitHub(t, f, 3)
	if err := gh.Trigger(context.Background()); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if _, bodies, _ := f.snapshot(); len(bodies) != 2 {
		t.Fatalf("expected one retry, got %d dispatches", len(bodies))
	}
}

func TestGitHubTriggerDoesNotRetryClientErrors(t *testing.T) {
	f := &fakeActions{dispatchStatus: []int{http.StatusUnauthorized, http.StatusNoContent}}
	gh := newGitHub(t, f, 3)
	err := gh.Trigger(context.Background())
	if err == nil {
		t.Fatal("expected trigger to fail")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, bodies, _ := f.snapshot(); len(bodies) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(bodies))
	}
}

func TestGitHubTransportFailureIsQueryFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	gh := orchestrator.NewGitHub(orchestrator.GitHubOptions{
		APIURL:       server.URL,
		Repository:   "club/pipeline",
		Token:        "secret-pat",
		WorkflowName: "Procesar videos con FFmpeg",
	}, http.DefaultClient)
	_, err := gh.InProgress(context.Background())
	if !errors.Is(err, services.ErrOrchestratorQuery) {
		t.Fatalf("expected orchestrator query failure, got %v", err)
	}
}
