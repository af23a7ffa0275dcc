package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/go-lua"
)

var (
	ErrBudgetExceeded = errors.New("instruction budget exceeded")
	ErrOutputLimit    = errors.New("output limit exceeded")
	ErrMemoryLimit    = errors.New("memory limit exceeded")
	ErrNoValidator    = errors.New("script does not define validate")
	ErrWorker         = errors.New("sandbox worker failed")
)

// Instructions between two checks of the budget and the deadline.
const hookEvery = 1000

// Limits bound a single run. MaxMemoryBytes is only enforced by a worker
// process; see WithWorker.
type Limits struct {
	MaxInstructions int           `json:"maxInstructions"`
	MaxOutputBytes  int           `json:"maxOutputBytes"`
	MaxMemoryBytes  int64         `json:"maxMemoryBytes"`
	Timeout         time.Duration `json:"timeout"`
}

// DefaultLimits returns limits suited to short teaching exercises.
func DefaultLimits() Limits {
	return Limits{
		MaxInstructions: 5_000_000,
		MaxOutputBytes:  64 * 1024,
		MaxMemoryBytes:  64 << 20,
		Timeout:         2 * time.Second,
	}
}

// Result is the captured output of a run.
type Result struct {
	Output string   `json:"output"`
	Lines  []string `json:"lines"`
}

// ScriptError is a syntax or runtime error raised by the script itself.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return e.Message }

// Runner executes code in fresh sandboxes. It holds no per-run state and is
// safe for concurrent use.
type Runner struct {
	limits Limits
	worker []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorker runs every evaluation in a child process started as
// name args..., which must call ServeWorker. The child is held to
// Limits.MaxMemoryBytes; a runaway script kills the child, not the caller.
func WithWorker(name string, args ...string) Option {
	return func(r *Runner) {
		r.worker = append([]string{name}, args...)
	}
}

// NewRunner creates a runner. Zero limits take their defaults.
func NewRunner(limits Limits, opts ...Option) *Runner {
	def := DefaultLimits()
	if limits.MaxInstructions <= 0 {
		limits.MaxInstructions = def.MaxInstructions
	}
	if limits.MaxOutputBytes <= 0 {
		limits.MaxOutputBytes = def.MaxOutputBytes
	}
	if limits.MaxMemoryBytes <= 0 {
		limits.MaxMemoryBytes = def.MaxMemoryBytes
	}
	if limits.Timeout <= 0 {
		limits.Timeout = def.Timeout
	}
	r := &Runner{limits: limits}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Isolated reports whether evaluations run in a worker process.
func (r *Runner) Isolated() bool { return len(r.worker) > 0 }

// Run executes source and returns what it printed. Output printed before a
// failure is returned alongside the error.
func (r *Runner) Run(ctx context.Context, source string) (Result, error) {
	if r.Isolated() {
		resp, err := r.remote(ctx, request{Mode: modeRun, Source: source})
		return resp.Result, err
	}
	return r.runLocal(ctx, source)
}

// Validate runs a validator script against a submission's output and source.
func (r *Runner) Validate(ctx context.Context, script, output, source string) (bool, error) {
	if r.Isolated() {
		resp, err := r.remote(ctx, request{Mode: modeValidate, Script: script, Output: output, Source: source})
		return resp.Valid, err
	}
	return r.validateLocal(ctx, script, output, source)
}

func (r *Runner) runLocal(ctx context.Context, source string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.limits.Timeout)
	defer cancel()

	run := r.newRun(ctx)
	err := run.exec(source)
	return run.result(), err
}

func (r *Runner) validateLocal(ctx context.Context, script, output, source string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.limits.Timeout)
	defer cancel()

	run := r.newRun(ctx)
	if err := run.exec(script); err != nil {
		return false, fmt.Errorf("failed to load validator: %w", err)
	}

	l := run.state
	l.Global("validate")
	if !l.IsFunction(-1) {
		l.Pop(1)
		return false, ErrNoValidator
	}
	l.PushString(output)
	l.PushString(source)
	if err := l.ProtectedCall(2, 1, 0); err != nil {
		return false, run.classify(err)
	}
	ok := l.ToBoolean(-1)
	l.Pop(1)
	return ok, nil
}

type run struct {
	ctx    context.Context
	limits Limits
	state  *lua.State

	out    strings.Builder
	steps  int
	reason error
}

func (r *Runner) newRun(ctx context.Context) *run {
	ru := &run{ctx: ctx, limits: r.limits}
	ru.state = ru.open()
	return ru
}

// open builds the restricted interpreter.
func (ru *run) open() *lua.State {
	l := lua.NewState()

	libs := []struct {
		name string
		open lua.Function
	}{
		{"_G", lua.BaseOpen},
		{"string", lua.StringOpen},
		{"table", lua.TableOpen},
		{"math", lua.MathOpen},
	}
	for _, lib := range libs {
		lua.Require(l, lib.name, lib.open, true)
		if lib.name == "string" {
			l.PushNil()
			l.SetField(-2, "rep")
		}
		l.Pop(1)
	}

	for _, name := range []string{"load", "loadstring", "dofile", "loadfile", "require", "collectgarbage"} {
		l.PushNil()
		l.SetGlobal(name)
	}

	// A limit error must reach the top of the run even when the script
	// wraps the offending code in pcall.
	for _, name := range []string{"pcall", "xpcall"} {
		l.Global(name)
		l.PushGoClosure(ru.guard, 1)
		l.SetGlobal(name)
	}

	l.Register("print", ru.print)

	lua.SetDebugHook(l, ru.hook, lua.MaskCount, hookEvery)
	return l
}

func (ru *run) print(l *lua.State) int {
	n := l.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		s, ok := lua.ToStringMeta(l, i)
		l.Pop(1)
		if !ok {
			s = "?"
		}
		parts = append(parts, s)
	}
	line := strings.Join(parts, "\t") + "\n"
	if ru.out.Len()+len(line) > ru.limits.MaxOutputBytes {
		ru.reason = ErrOutputLimit
		lua.Errorf(l, "%s", ErrOutputLimit.Error())
	}
	ru.out.WriteString(line)
	return 0
}

// guard calls the protected-call builtin held in its upvalue and raises
// again once a limit has tripped.
func (ru *run) guard(l *lua.State) int {
	l.PushValue(lua.UpValueIndex(1))
	l.Insert(1)
	l.Call(l.Top()-1, lua.MultipleReturns)
	if ru.reason != nil {
		lua.Errorf(l, "%s", ru.reason.Error())
	}
	return l.Top()
}

func (ru *run) hook(l *lua.State, _ lua.Debug) {
	ru.steps += hookEvery
	if err := ru.ctx.Err(); err != nil {
		ru.reason = err
		lua.Errorf(l, "%s", err.Error())
	}
	if ru.steps > ru.limits.MaxInstructions {
		ru.reason = ErrBudgetExceeded
		lua.Errorf(l, "%s", ErrBudgetExceeded.Error())
	}
}

func (ru *run) exec(source string) error {
	if err := lua.LoadString(ru.state, source); err != nil {
		return &ScriptError{Message: err.Error()}
	}
	if err := ru.state.ProtectedCall(0, 0, 0); err != nil {
		return ru.classify(err)
	}
	return nil
}

// classify maps an interpreter error to the limit that raised it, if any.
func (ru *run) classify(err error) error {
	if ru.reason != nil {
		return ru.reason
	}
	return &ScriptError{Message: err.Error()}
}

func (ru *run) result() Result {
	output := ru.out.String()
	return Result{Output: output, Lines: SplitLines(output)}
}

// SplitLines splits output into lines without the trailing empty line.
func SplitLines(output string) []string {
	output = strings.TrimSuffix(output, "\n")
	if output == "" {
		return []string{}
	}
	return strings.Split(output, "\n")
}
