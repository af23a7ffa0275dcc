package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime/debug"
	"runtime/metrics"
	"strings"
	"time"
)

const (
	modeRun      = "run"
	modeValidate = "validate"

	// exitMemory is the status of a worker that outgrew its memory ceiling.
	exitMemory = 3

	memoryPoll  = time.Millisecond
	workerGrace = time.Second
)

type request struct {
	Mode   string `json:"mode"`
	Source string `json:"source"`
	Script string `json:"script,omitempty"`
	Output string `json:"output,omitempty"`
	Limits Limits `json:"limits"`
}

type response struct {
	Result Result `json:"result"`
	Valid  bool   `json:"valid"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
	Script string `json:"script,omitempty"`
}

var errorKinds = []struct {
	kind string
	err  error
}{
	{"budget", ErrBudgetExceeded},
	{"output", ErrOutputLimit},
	{"memory", ErrMemoryLimit},
	{"novalidator", ErrNoValidator},
	{"deadline", context.DeadlineExceeded},
	{"canceled", context.Canceled},
}

// remoteError carries a worker error message with the sentinel it wrapped.
type remoteError struct {
	message string
	cause   error
}

func (e *remoteError) Error() string { return e.message }
func (e *remoteError) Unwrap() error { return e.cause }

func (resp *response) setError(err error) {
	resp.Error = err.Error()
	var scriptErr *ScriptError
	if errors.As(err, &scriptErr) {
		resp.Kind, resp.Script = "script", scriptErr.Message
		return
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			resp.Kind = k.kind
			return
		}
	}
	resp.Kind = "internal"
}

func (resp *response) err() error {
	if resp.Kind == "" {
		return nil
	}
	var cause error
	if resp.Kind == "script" {
		cause = &ScriptError{Message: resp.Script}
	}
	for _, k := range errorKinds {
		if k.kind == resp.Kind {
			cause = k.err
		}
	}
	switch {
	case cause == nil:
		return fmt.Errorf("%w: %s", ErrWorker, resp.Error)
	case cause.Error() == resp.Error:
		return cause
	}
	return &remoteError{message: resp.Error, cause: cause}
}

// remote runs one request in a fresh worker process.
func (r *Runner) remote(ctx context.Context, req request) (response, error) {
	req.Limits = r.limits
	body, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.limits.Timeout+workerGrace)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.worker[0], r.worker[1:]...)
	cmd.Stdin = bytes.NewReader(body)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return response{}, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) &&
			(exitErr.ExitCode() == exitMemory || strings.Contains(stderr.String(), "out of memory")) {
			return response{}, ErrMemoryLimit
		}
		return response{}, fmt.Errorf("%w: %v: %s", ErrWorker, runErr, strings.TrimSpace(stderr.String()))
	}

	var resp response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return response{}, fmt.Errorf("%w: bad response: %v", ErrWorker, err)
	}
	return resp, resp.err()
}

// ServeWorker reads one request from r, evaluates it in-process under the
// request's limits and writes the response to w. It is the body of the
// process named by WithWorker. When the heap outgrows Limits.MaxMemoryBytes
// the process exits with a dedicated status instead of returning.
func ServeWorker(ctx context.Context, r io.Reader, w io.Writer) error {
	var req request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	stop := watchMemory(req.Limits.MaxMemoryBytes, func() { os.Exit(exitMemory) })
	defer stop()

	runner := NewRunner(req.Limits)
	var resp response
	var err error
	switch req.Mode {
	case modeRun:
		resp.Result, err = runner.runLocal(ctx, req.Source)
	case modeValidate:
		resp.Valid, err = runner.validateLocal(ctx, req.Script, req.Output, req.Source)
	default:
		return fmt.Errorf("unknown mode %q", req.Mode)
	}
	if err != nil {
		resp.setError(err)
	}
	return json.NewEncoder(w).Encode(resp)
}

// watchMemory calls exceeded once the live heap passes ceiling.
func watchMemory(ceiling int64, exceeded func()) (stop func()) {
	if ceiling <= 0 {
		return func() {}
	}
	debug.SetMemoryLimit(ceiling)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(memoryPoll)
		defer ticker.Stop()
		sample := []metrics.Sample{{Name: "/memory/classes/heap/objects:bytes"}}
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				metrics.Read(sample)
				if sample[0].Value.Kind() == metrics.KindUint64 && int64(sample[0].Value.Uint64()) > ceiling {
					exceeded()
					return
				}
			}
		}
	}()
	return func() { close(done) }
}
