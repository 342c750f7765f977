package shell

import (
	"fmt"
	"strings"
	"sync"
)

// MockCommand is one canned response. Pattern is matched as a substring of
// the full command line; Effect, when set, runs before the response is
// returned so tests can create the files a real tool would produce.
type MockCommand struct {
	Pattern  string
	Output   string
	Stderr   string
	ExitCode int
	Error    error
	Effect   func(call Call) error
}

// Call records one command seen by a MockExecutor.
type Call struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

func (c Call) String() string {
	return CommandLine(c.Name, c.Args)
}

// MockExecutor answers commands from a fixed table and records every call.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	calls    []Call
}

func NewMockExecutor(commands []MockCommand) *MockExecutor {
	return &MockExecutor{commands: commands}
}

func (m *MockExecutor) Execute(dir string, env []string, name string, args []string) (*Result, error) {
	call := Call{Dir: dir, Env: env, Name: name, Args: append([]string(nil), args...)}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	line := call.String()
	for _, mc := range m.commands {
		if !strings.Contains(line, mc.Pattern) {
			continue
		}
		if mc.Effect != nil {
			if err := mc.Effect(call); err != nil {
				return nil, err
			}
		}
		if mc.Error != nil {
			return &Result{Stdout: mc.Output, Stderr: mc.Stderr, ExitCode: -1}, mc.Error
		}
		return &Result{Stdout: mc.Output, Stderr: mc.Stderr, ExitCode: mc.ExitCode}, nil
	}
	return nil, fmt.Errorf("no mock response for command %q", line)
}

// Calls returns a copy of the recorded calls in execution order.
func (m *MockExecutor) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsMatching returns the recorded calls whose command line contains pattern.
func (m *MockExecutor) CallsMatching(pattern string) []Call {
	var matched []Call
	for _, c := range m.Calls() {
		if strings.Contains(c.String(), pattern) {
			matched = append(matched, c)
		}
	}
	return matched
}
