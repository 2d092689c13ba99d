// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrUnsupported   = errors.New("unsupported operation")
	ErrEmptyTarget   = errors.New("source target is empty")
	ErrInvalidTarget = errors.New("invalid source target")
	ErrNoRemote      = errors.New("source remote is empty")
	ErrNoChildren    = errors.New("multi source requires at least one child")
	ErrNonGitChild   = errors.New("multi source children must be git backed")
	ErrNoRelease     = errors.New("no standard release tag found")
)

// OperationError is a git, network or file system failure while operating on
// a source.
type OperationError struct {
	Op     string
	Source string
	Remote string
	Target string
	Err    error
}

func (e *OperationError) Error() string {
	b := new(strings.Builder)
	b.WriteString(e.Op)
	b.WriteString(" ")
	b.WriteString(e.Source)
	if e.Target != "" {
		b.WriteString(" (")
		b.WriteString(e.Target)
		if e.Remote != "" {
			b.WriteString(" from ")
			b.WriteString(e.Remote)
		}
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// fail logs and wraps err. Errors already wrapped by a nested source pass
// through unchanged.
func (e *Env) fail(op string, s Source, remote, target string, err error) error {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}

	e.log().Error("source operation failed",
		zap.String("op", op),
		zap.String("source", s.GetName()),
		zap.String("remote", remote),
		zap.String("target", target),
		zap.Error(err),
	)
	return &OperationError{
		Op:     op,
		Source: s.GetName(),
		Remote: remote,
		Target: target,
		Err:    err,
	}
}

func unsupported(s Source, what string) error {
	return fmt.Errorf("%w: %s for %s source of type %s", ErrUnsupported, what, s.GetKind(), s.GetType())
}
