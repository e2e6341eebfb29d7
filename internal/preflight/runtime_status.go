package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"courtclip/internal/orchestrator"
	"courtclip/internal/services"
	"courtclip/internal/storage"
)

const probeTimeout = 15 * time.Second

// CheckStorage lists prefix once to confirm the backend is reachable and the
// credentials are accepted. A missing prefix still counts as reachable.
func CheckStorage(ctx context.Context, store storage.Store, prefix string) Result {
	const name = "Storage"
	if store == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	objects, err := store.List(checkCtx, prefix, false)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (%d entries)", prefix, len(objects))}
}

// CheckOrchestrator asks the orchestrator for the run state once.
func CheckOrchestrator(ctx context.Context, o orchestrator.Orchestrator) Result {
	const name = "Orchestrator"
	if o == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	if _, ok := o.(orchestrator.None); ok {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	busy, err := o.InProgress(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	if busy {
		return Result{Name: name, Passed: true, Detail: "Reachable (run in progress)"}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable (idle)"}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return err.Error()
}
