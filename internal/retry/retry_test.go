package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"courtclip/internal/config"
	"courtclip/internal/retry"
	"courtclip/internal/services"
)

func recordingPolicy(attempts int, delays *[]time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts:    attempts,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     25 * time.Millisecond,
	}.WithSleep(func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
}

func TestDoRetriesTransientErrorsWithCappedBackoff(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(4, &delays)
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return services.Wrap(services.ErrTransientIO, "fetch", "download", "flaky", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delays = %v, want %v", delays, want)
		}
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(5, &delays)
	sentinel := errors.New("bad credentials")
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return retry.Permanent(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if retry.IsPermanent(err) {
		t.Fatal("expected permanent wrapper to be removed from the returned error")
	}
	if calls != 1 || len(delays) != 0 {
		t.Fatalf("expected single attempt without sleeping, calls=%d delays=%v", calls, delays)
	}
}

func TestDoDoesNotRetryClassifiedNonTransientErrors(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(3, &delays)
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return services.Wrap(services.ErrEncodeFailure, "brand", "ffmpeg", "exit 1", nil)
	})
	if !errors.Is(err, services.ErrEncodeFailure) || calls != 1 {
		t.Fatalf("expected single encode failure, calls=%d err=%v", calls, err)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(3, &delays)
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	if err == nil || err.Error() != "connection reset" {
		t.Fatalf("unexpected error %v", err)
	}
	if calls != 3 || len(delays) != 2 {
		t.Fatalf("calls=%d delays=%v", calls, delays)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retry.Policy{MaxAttempts: 3}.Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) || calls != 0 {
		t.Fatalf("expected cancellation before first call, calls=%d err=%v", calls, err)
	}
}

func TestPollTimesOut(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(3, &delays)
	checks := 0
	err := policy.Poll(context.Background(), func(context.Context) (bool, error) {
		checks++
		return false, nil
	})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if checks != 3 {
		t.Fatalf("expected 3 checks, got %d", checks)
	}
}

func TestPollSucceeds(t *testing.T) {
	var delays []time.Duration
	policy := recordingPolicy(5, &delays)
	checks := 0
	err := policy.Poll(context.Background(), func(context.Context) (bool, error) {
		checks++
		return checks == 2, nil
	})
	if err != nil || checks != 2 {
		t.Fatalf("checks=%d err=%v", checks, err)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	policy := retry.FromConfig(cfg.Retry)
	if policy.MaxAttempts != cfg.Retry.MaxAttempts {
		t.Fatalf("unexpected attempts %d", policy.MaxAttempts)
	}
	if policy.InitialBackoff != 500*time.Millisecond || policy.MaxBackoff != 10*time.Second {
		t.Fatalf("unexpected backoff %+v", policy)
	}
	poll := retry.PollPolicy(cfg.Retry)
	if poll.InitialBackoff != 3*time.Second || poll.MaxAttempts != 10 {
		t.Fatalf("unexpected poll policy %+v", poll)
	}
}
