// Package metrics forwards averaged distance readings, as line-protocol
// records, to an external writer process.
package metrics

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
)

// CommandExecutor runs one prepared command.
// This abstraction enables unit testing without real process execution.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)

	// SetStdin sets the stdin for the command.
	SetStdin(stdin []byte)
}

// CommandBuilder prepares commands bound to a context.
type CommandBuilder interface {
	BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor
}

// RealCommandExecutor wraps exec.Cmd to implement CommandExecutor.
type RealCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *RealCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// SetStdin sets stdin for the command.
func (r *RealCommandExecutor) SetStdin(stdin []byte) {
	r.cmd.Stdin = bytes.NewReader(stdin)
}

// RealCommandBuilder implements CommandBuilder using exec.CommandContext, so
// a cancelled context kills the process.
type RealCommandBuilder struct{}

// BuildCommand creates a CommandExecutor for the given command and arguments.
func (RealCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	return &RealCommandExecutor{cmd: exec.CommandContext(ctx, name, args...)}
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// Stdin holds the stdin data that was set.
	Stdin []byte
	// RunCalled indicates whether Run was called.
	RunCalled bool
}

// Run returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	return m.Output, m.Err
}

// SetStdin records the stdin data.
func (m *MockCommandExecutor) SetStdin(stdin []byte) {
	m.Stdin = stdin
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Name     string
	Args     []string
	Executor *MockCommandExecutor
}

// MockCommandBuilder implements CommandBuilder for testing. It is safe for
// use from the exporter's goroutines.
type MockCommandBuilder struct {
	mu       sync.Mutex
	commands []MockBuiltCommand
	// Output and Err are copied into every executor built.
	Output []byte
	Err    error
}

// BuildCommand records the command and returns a MockCommandExecutor.
func (b *MockCommandBuilder) BuildCommand(_ context.Context, name string, args ...string) CommandExecutor {
	b.mu.Lock()
	defer b.mu.Unlock()
	exec := &MockCommandExecutor{Output: b.Output, Err: b.Err}
	b.commands = append(b.commands, MockBuiltCommand{Name: name, Args: args, Executor: exec})
	return exec
}

// Commands returns the commands built so far.
func (b *MockCommandBuilder) Commands() []MockBuiltCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]MockBuiltCommand, len(b.commands))
	copy(out, b.commands)
	return out
}
