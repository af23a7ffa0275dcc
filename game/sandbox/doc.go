// Package sandbox runs player-submitted challenge code in a restricted Lua
// interpreter.
//
// A fresh interpreter is created for every run. Only the base, string, table
// and math libraries are opened, and the base functions that reach outside
// the interpreter (load, loadstring, dofile, loadfile, require,
// collectgarbage) are removed along with string.rep. print is captured
// instead of written to stdout.
//
// Every run has an instruction budget, an output cap and a deadline taken
// from the context and the runner's timeout, whichever is sooner. pcall and
// xpcall are wrapped so a script cannot swallow a limit error.
//
// The interpreter cannot account for the memory a script allocates. A runner
// built WithWorker evaluates each request in a child process that calls
// ServeWorker and exits once its heap passes Limits.MaxMemoryBytes; Run then
// returns ErrMemoryLimit. The server binary serves the worker from its
// hidden sandbox-worker subcommand.
//
// Usage:
//
//	r := sandbox.NewRunner(sandbox.DefaultLimits())
//	res, err := r.Run(ctx, `print("hello")`)
//	// res.Output == "hello\n"
//
// Isolated:
//
//	exe, _ := os.Executable()
//	r := sandbox.NewRunner(limits, sandbox.WithWorker(exe, "sandbox-worker"))
//
// Challenge validators are Lua scripts that define a global function
// validate(output, source) returning a boolean. Validate runs one in its own
// sandbox.
package sandbox
