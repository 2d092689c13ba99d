// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner runs the git program in a local repository. go-git has no merge
// strategies, so merges go through the real binary.
type Runner struct {
	gitPath string
	Dir     string
}

func NewRunner(dir string) (*Runner, error) {
	p, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGit, err)
	}
	return &Runner{
		gitPath: p,
		Dir:     dir,
	}, nil
}

type RunResult struct {
	Stdout string
	Stderr string
}

// Run runs a git command. Omit the 'git' part of the command.
func (r *Runner) Run(ctx context.Context, args ...string) (RunResult, error) {
	cmd := exec.CommandContext(ctx, r.gitPath, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return RunResult{}, &ExecError{
			Args:   args,
			Err:    err,
			StdOut: stdout.String(),
			StdErr: stderr.String(),
		}
	}
	return RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}, nil
}

type ExecError struct {
	Args   []string
	Err    error
	StdErr string
	StdOut string
}

func (e *ExecError) Error() string {
	b := new(strings.Builder)
	b.WriteString("git ")
	b.WriteString(strings.Join(e.Args, " "))
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if stderr := strings.TrimSpace(e.StdErr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether the failed command stopped on conflicting hunks
// rather than failing outright.
func (e *ExecError) IsConflict() bool {
	return strings.Contains(e.StdOut, "CONFLICT") ||
		strings.Contains(e.StdOut, "Automatic merge failed") ||
		strings.Contains(e.StdErr, "Automatic merge failed")
}
