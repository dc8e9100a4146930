package utils

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CmdRunner runs an external command in a working directory and captures its
// combined output. Implementations must return the captured streams even when
// the command exits non-zero, so callers can classify the failure.
type CmdRunner interface {
	Run(dir string, timeout time.Duration, executable string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner is the default CmdRunner, backed by os/exec.
type ExecRunner struct {
	Log Log
}

func NewExecRunner(log Log) *ExecRunner {
	if log == nil {
		log = &NullLog{}
	}
	return &ExecRunner{Log: log}
}

func (r *ExecRunner) Run(dir string, timeout time.Duration, executable string, args ...string) (stdout, stderr []byte, err error) {
	executablePath, err := exec.LookPath(executable)
	if err != nil {
		return nil, nil, err
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	r.Log.Debug("Running '" + executable + " " + strings.Join(args, " ") + "' command.")
	command := exec.CommandContext(ctx, executablePath, args...)
	command.Dir = dir
	outBuffer := bytes.NewBuffer([]byte{})
	command.Stdout = outBuffer
	errBuffer := bytes.NewBuffer([]byte{})
	command.Stderr = errBuffer
	err = command.Run()
	stdout = outBuffer.Bytes()
	stderr = errBuffer.Bytes()
	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("command '%s %s' timed out after %s", executable, strings.Join(args, " "), timeout)
	}
	return
}
