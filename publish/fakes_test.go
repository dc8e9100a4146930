package publish

import (
	"strings"
	"sync"
	"time"

	"github.com/relvet/relvet/entities"
)

// fakeRunner scripts external command invocations so the pipeline runs
// without npm installed.
type fakeRunner struct {
	mu    sync.Mutex
	calls []fakeCall
	// handler scripts the result of each invocation. A nil handler answers
	// every command with success and empty output.
	handler func(dir, executable string, args []string) (stdout, stderr []byte, err error)
}

type fakeCall struct {
	dir        string
	executable string
	args       []string
}

func (c fakeCall) commandLine() string {
	return c.executable + " " + strings.Join(c.args, " ")
}

func (r *fakeRunner) Run(dir string, timeout time.Duration, executable string, args ...string) ([]byte, []byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, fakeCall{dir: dir, executable: executable, args: args})
	r.mu.Unlock()
	if executable == "npm" && len(args) == 1 && args[0] == "--version" {
		return []byte("10.2.0\n"), nil, nil
	}
	if r.handler == nil {
		return nil, nil, nil
	}
	return r.handler(dir, executable, args)
}

func (r *fakeRunner) countCommands(substring string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, call := range r.calls {
		if strings.Contains(call.commandLine(), substring) {
			count++
		}
	}
	return count
}

type fakeChangesets struct {
	status *entities.ChangesetStatus
	err    error
}

func (f *fakeChangesets) Status(packageManager, targetBranch string) (*entities.ChangesetStatus, error) {
	return f.status, f.err
}

type fakeWorkspace struct {
	dirs map[string]string
	err  error
}

func (f *fakeWorkspace) PackageDir(name string) (string, error) {
	return f.dirs[name], f.err
}

func noEnv(string) string {
	return ""
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}
