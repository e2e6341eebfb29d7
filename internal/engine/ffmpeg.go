package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"courtclip/internal/branding"
	"courtclip/internal/media/ffprobe"
	"courtclip/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the FFmpeg engine.
type Option func(*FFmpeg)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(f *FFmpeg) {
		if exec != nil {
			f.exec = exec
		}
	}
}

// WithProber injects a custom media prober (primarily for tests).
func WithProber(p ffprobe.Prober) Option {
	return func(f *FFmpeg) {
		if p != nil {
			f.probe = p
		}
	}
}

// FFmpeg implements Engine with the ffmpeg CLI.
type FFmpeg struct {
	binary  string
	threads int
	exec    Executor
	probe   ffprobe.Prober
}

// NewFFmpeg constructs an engine. threads caps ffmpeg's worker threads per
// invocation; zero leaves the choice to ffmpeg.
func NewFFmpeg(binary, ffprobeBinary string, threads int, opts ...Option) (*FFmpeg, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	if threads < 0 {
		return nil, fmt.Errorf("threads must be >= 0, got %d", threads)
	}
	f := &FFmpeg{
		binary:  binary,
		threads: threads,
		exec:    commandExecutor{},
		probe:   ffprobe.Binary{Path: ffprobeBinary},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FFmpeg) baseArgs() []string {
	return []string{"-y", "-hide_banner", "-loglevel", "error", "-fflags", "+genpts"}
}

func (f *FFmpeg) threadArgs() []string {
	if f.threads <= 0 {
		return nil
	}
	return []string{"-threads", strconv.Itoa(f.threads)}
}

// ApplyOverlays implements Engine.
func (f *FFmpeg) ApplyOverlays(ctx context.Context, input string, bundle branding.Bundle, output string) error {
	overlays := OverlaysFor(bundle)
	args := f.baseArgs()
	args = append(args, "-i", input)
	for _, o := range overlays {
		args = append(args, "-i", o.Path)
	}
	args = append(args,
		"-filter_complex", overlayGraph(overlays),
		"-map", "[v]", "-map", "0:a?",
		"-c:v", "libx264", "-c:a", "copy",
		"-movflags", "+faststart",
	)
	args = append(args, f.threadArgs()...)
	args = append(args, output)
	return f.run(ctx, "brand", "apply overlays", args)
}

// Concatenate implements Engine.
func (f *FFmpeg) Concatenate(ctx context.Context, segments []Segment, output string) error {
	if len(segments) == 0 {
		return services.Wrap(services.ErrEncodeFailure, "splice", "concatenate", "no segments", nil)
	}
	infos := make([]segmentInfo, len(segments))
	width, height := 0, 0
	refIndex := 0
	for i, seg := range segments {
		if seg.Reference {
			refIndex = i
			break
		}
	}
	for i, seg := range segments {
		result, err := f.probe.Inspect(ctx, seg.Path)
		if err != nil {
			return services.Wrap(services.ErrEncodeFailure, "splice", "probe segment", seg.Path, err)
		}
		infos[i] = segmentInfo{hasAudio: result.HasAudio(), duration: result.DurationSeconds()}
		if i == refIndex {
			width, height = result.Dimensions()
		}
		if !infos[i].hasAudio && infos[i].duration <= 0 {
			return services.Wrap(services.ErrEncodeFailure, "splice", "probe segment", fmt.Sprintf("%s has no audio and no known duration", seg.Path), nil)
		}
	}

	args := f.baseArgs()
	for _, seg := range segments {
		args = append(args, "-i", seg.Path)
	}
	args = append(args,
		"-filter_complex", concatGraph(width, height, infos),
		"-map", "[v]", "-map", "[a]",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "+faststart",
	)
	args = append(args, f.threadArgs()...)
	args = append(args, output)
	return f.run(ctx, "splice", "concatenate", args)
}

func (f *FFmpeg) run(ctx context.Context, stage, operation string, args []string) error {
	tail := newTail(20)
	if err := f.exec.Run(ctx, f.binary, args, tail.add); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := "ffmpeg failed"
		if out := tail.String(); out != "" {
			msg = msg + ": " + out
		}
		return services.Wrap(services.ErrEncodeFailure, stage, operation, msg, err)
	}
	return nil
}

// tail keeps the last n output lines for error messages.
type tail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTail(n int) *tail { return &tail{n: n} }

func (t *tail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
