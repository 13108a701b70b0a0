// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package subproc runs external commands under supervision: stdout and stderr
// are streamed line-by-line into a caller-provided log, a hard wall-clock
// timeout is enforced, and the child is killed on expiry.
package subproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrCommandTimeout is returned when a command exceeded its wall-clock limit
// and was killed.
var ErrCommandTimeout = errors.New("command timed out")

// Command describes one supervised execution.
type Command struct {
	// Name and Args form the argv. Name is resolved via PATH.
	Name string
	Args []string
	// Dir is the working directory; empty inherits the caller's.
	Dir string
	// Env entries are appended to the inherited environment.
	Env map[string]string
	// Timeout is the hard wall-clock limit. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Result reports one execution's outcome. Log lines are captured even when
// the command failed or timed out.
type Result struct {
	// Lines holds the interleaved stdout/stderr output, one entry per line.
	Lines []string
	// ExitCode is the process exit code; -1 when the process was killed.
	ExitCode int
	// Duration is the observed wall-clock time.
	Duration time.Duration
}

// Run executes one command under supervision. On timeout the child is killed
// and ErrCommandTimeout is returned together with the partial log.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Env = os.Environ()
	for k, v := range cmd.Env {
		execCmd.Env = append(execCmd.Env, k+"="+v)
	}

	stdout, err := execCmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("subproc: stdout pipe: %w", err)
	}
	stderr, err := execCmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("subproc: stderr pipe: %w", err)
	}

	start := time.Now()
	if err := execCmd.Start(); err != nil {
		return nil, fmt.Errorf("subproc: start %s: %w", cmd.Name, err)
	}

	result := &Result{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	collect := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(nil, 1_048_576) // 1MB line cap
		for scanner.Scan() {
			mu.Lock()
			result.Lines = append(result.Lines, scanner.Text())
			mu.Unlock()
		}
	}
	wg.Add(2)
	go collect(stdout)
	go collect(stderr)
	wg.Wait()

	waitErr := execCmd.Wait()
	result.Duration = time.Since(start)
	result.ExitCode = execCmd.ProcessState.ExitCode()

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		log.Warnf("subproc: %s killed after %s timeout", cmd.Name, cmd.Timeout)
		return result, fmt.Errorf("%w: %s after %s", ErrCommandTimeout, cmd.Name, cmd.Timeout)
	}
	if waitErr != nil {
		return result, fmt.Errorf("subproc: %s: %w", cmd.Name, waitErr)
	}
	return result, nil
}

// RunShell executes a shell command line under supervision.
func RunShell(ctx context.Context, line, dir string, env map[string]string, timeout time.Duration) (*Result, error) {
	return Run(ctx, Command{
		Name:    "sh",
		Args:    []string{"-c", line},
		Dir:     dir,
		Env:     env,
		Timeout: timeout,
	})
}

// Tail returns the last n log lines joined for compact error reporting.
func (r *Result) Tail(n int) string {
	if r == nil || len(r.Lines) == 0 {
		return ""
	}
	if n > len(r.Lines) {
		n = len(r.Lines)
	}
	return strings.Join(r.Lines[len(r.Lines)-n:], "\n")
}
