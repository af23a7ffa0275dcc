package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// workerEnv turns the test binary into a sandbox worker, the way the server
// binary serves its sandbox-worker subcommand.
const workerEnv = "CODEQUEST_SANDBOX_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		if err := ServeWorker(context.Background(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func isolatedRunner(t *testing.T, limits Limits) *Runner {
	t.Helper()
	t.Setenv(workerEnv, "1")
	r := NewRunner(limits, WithWorker(os.Args[0]))
	require.True(t, r.Isolated())
	return r
}

// runWithin fails the test if the run does not return in time.
func runWithin(t *testing.T, r *Runner, source string, wait time.Duration) (Result, error) {
	t.Helper()
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.Run(context.Background(), source)
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		return o.res, o.err
	case <-time.After(wait):
		t.Fatalf("Run did not return within %v", wait)
		return Result{}, nil
	}
}

func TestRun_CapturesPrint(t *testing.T) {
	r := NewRunner(DefaultLimits())

	res, err := r.Run(context.Background(), `
for i = 1, 3 do
  print("line", i)
end
print(string.upper("done"), math.max(1, 2))
`)
	require.NoError(t, err)
	assert.Equal(t, "line\t1\nline\t2\nline\t3\nDONE\t2\n", res.Output)
	assert.Equal(t, []string{"line\t1", "line\t2", "line\t3", "DONE\t2"}, res.Lines)
}

func TestRun_ScriptErrors(t *testing.T) {
	r := NewRunner(DefaultLimits())

	tests := []struct {
		name   string
		source string
	}{
		{"syntax", `print("unterminated`},
		{"runtime", `local t = nil; print(t.x)`},
		{"explicit", `error("boom")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tt.source)
			var se *ScriptError
			require.ErrorAs(t, err, &se)
			assert.NotEmpty(t, se.Message)
		})
	}
}

func TestRun_OutputBeforeError(t *testing.T) {
	r := NewRunner(DefaultLimits())
	res, err := r.Run(context.Background(), `print("before"); error("after")`)
	require.Error(t, err)
	assert.Equal(t, []string{"before"}, res.Lines)
}

func TestRun_RestrictedGlobals(t *testing.T) {
	r := NewRunner(DefaultLimits())

	for _, name := range []string{"load", "loadstring", "dofile", "loadfile", "require", "collectgarbage", "os", "io"} {
		t.Run(name, func(t *testing.T) {
			res, err := r.Run(context.Background(), `print(type(`+name+`))`)
			require.NoError(t, err)
			assert.Equal(t, "nil\n", res.Output)
		})
	}

	res, err := r.Run(context.Background(), `print(type(string.rep))`)
	require.NoError(t, err)
	assert.Equal(t, "nil\n", res.Output)
}

func TestRun_InstructionBudget(t *testing.T) {
	r := NewRunner(Limits{MaxInstructions: 10_000, Timeout: time.Minute})
	_, err := r.Run(context.Background(), `while true do end`)
	assert.True(t, errors.Is(err, ErrBudgetExceeded), "got %v", err)
}

func TestRun_LimitsEscapeProtectedCalls(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		source string
		want   error
	}{
		{
			name:   "pcall loop",
			limits: Limits{MaxInstructions: 100_000, Timeout: 500 * time.Millisecond},
			source: `while true do pcall(function() while true do end end) end`,
			want:   ErrBudgetExceeded,
		},
		{
			name:   "xpcall loop",
			limits: Limits{MaxInstructions: 100_000, Timeout: 500 * time.Millisecond},
			source: `while true do xpcall(function() while true do end end, function(e) return e end) end`,
			want:   ErrBudgetExceeded,
		},
		{
			name:   "nested pcall",
			limits: Limits{MaxInstructions: 100_000, Timeout: 500 * time.Millisecond},
			source: `while true do pcall(pcall, function() while true do end end) end`,
			want:   ErrBudgetExceeded,
		},
		{
			name:   "deadline",
			limits: Limits{MaxInstructions: 1 << 40, Timeout: 200 * time.Millisecond},
			source: `while true do pcall(function() while true do end end) end`,
			want:   context.DeadlineExceeded,
		},
		{
			name:   "output",
			limits: Limits{MaxOutputBytes: 32},
			source: `while true do pcall(print, "0123456789") end`,
			want:   ErrOutputLimit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWithin(t, NewRunner(tt.limits), tt.source, 5*time.Second)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRun_ProtectedCallsStillCatchScriptErrors(t *testing.T) {
	r := NewRunner(DefaultLimits())
	res, err := r.Run(context.Background(), `
local ok, e = pcall(function() error({code = 7}) end)
print(ok, e.code)
print(xpcall(function() error("x") end, function() return "handled" end))
print(pcall(function(a, b) return a + b end, 2, 3))
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"false\t7", "false\thandled", "true\t5"}, res.Lines)
}

func TestRun_OutputLimit(t *testing.T) {
	r := NewRunner(Limits{MaxOutputBytes: 16})
	res, err := r.Run(context.Background(), `for i = 1, 100 do print("0123456789") end`)
	assert.True(t, errors.Is(err, ErrOutputLimit), "got %v", err)
	assert.LessOrEqual(t, len(res.Output), 16)
}

func TestRun_ContextCancelled(t *testing.T) {
	r := NewRunner(Limits{MaxInstructions: 1 << 40, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, `while true do end`)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestValidate(t *testing.T) {
	r := NewRunner(DefaultLimits())
	script := `
function validate(output, source)
  return string.find(output, "42", 1, true) ~= nil and string.find(source, "for", 1, true) ~= nil
end
`
	ok, err := r.Validate(context.Background(), script, "answer: 42\n", "for i=1,2 do end")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Validate(context.Background(), script, "answer: 41\n", "for i=1,2 do end")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Validate(context.Background(), `x = 1`, "", "")
	assert.ErrorIs(t, err, ErrNoValidator)
}

func TestWorker_Run(t *testing.T) {
	r := isolatedRunner(t, DefaultLimits())
	ctx := context.Background()

	res, err := r.Run(ctx, `for i = 1, 2 do print("n", i) end`)
	require.NoError(t, err)
	assert.Equal(t, []string{"n\t1", "n\t2"}, res.Lines)

	res, err = r.Run(ctx, `print("before"); error("after")`)
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "after")
	assert.Equal(t, []string{"before"}, res.Lines)
}

func TestWorker_Limits(t *testing.T) {
	r := isolatedRunner(t, Limits{MaxInstructions: 10_000, Timeout: 5 * time.Second})
	_, err := r.Run(context.Background(), `while true do pcall(function() while true do end end) end`)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestWorker_MemoryCeiling(t *testing.T) {
	r := isolatedRunner(t, Limits{
		MaxInstructions: 100_000,
		MaxMemoryBytes:  32 << 20,
		Timeout:         20 * time.Second,
	})

	res, err := runWithin(t, r, `local s = "x" for i = 1, 40 do s = s .. s end print(#s)`, 30*time.Second)
	assert.ErrorIs(t, err, ErrMemoryLimit)
	assert.Empty(t, res.Output)

	// A well-behaved script in the same runner is unaffected.
	res, err = r.Run(context.Background(), `local s = "x" for i = 1, 10 do s = s .. s end print(#s)`)
	require.NoError(t, err)
	assert.Equal(t, "1024\n", res.Output)
}

func TestWorker_Validate(t *testing.T) {
	r := isolatedRunner(t, DefaultLimits())
	ctx := context.Background()

	ok, err := r.Validate(ctx, `function validate(output) return output == "42\n" end`, "42\n", "")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.Validate(ctx, `x = 1`, "", "")
	assert.ErrorIs(t, err, ErrNoValidator)

	_, err = r.Validate(ctx, `function validate(`, "", "")
	var se *ScriptError
	assert.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "failed to load validator")
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{}, SplitLines(""))
	assert.Equal(t, []string{"a"}, SplitLines("a\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb\n"))
}
