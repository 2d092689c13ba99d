// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gim-launcher/gim/metrics"
	"github.com/gim-launcher/gim/workflow"
)

var (
	_ workflow.Executor = &WorkflowEngine{}

	ErrShutdown = errors.New("engine is shut down")
)

// Gate serializes workflows that touch the shared repository.
type Gate interface {
	Acquire(ctx context.Context) (func(), error)
}

type Config struct {
	Gate    Gate
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func NewWorkflowEngine(config Config) *WorkflowEngine {
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkflowEngine{
		gate:    config.Gate,
		metrics: config.Metrics,
		log:     log,
	}
}

// WorkflowEngine runs workflows, holding the repository gate for the ones
// that are bound to git. Workflows on file sources run without it.
type WorkflowEngine struct {
	gate    Gate
	metrics *metrics.Metrics
	log     *zap.Logger

	mu      sync.Mutex
	closed  bool
	running sync.WaitGroup
}

func (w *WorkflowEngine) Execute(ctx context.Context, wf workflow.Workflow) error {
	if !w.enter() {
		return ErrShutdown
	}
	defer w.running.Done()
	return w.execute(ctx, wf)
}

// Submit runs wf in the background. The returned channel receives its result
// and is then closed.
func (w *WorkflowEngine) Submit(ctx context.Context, wf workflow.Workflow) <-chan error {
	result := make(chan error, 1)
	if !w.enter() {
		result <- ErrShutdown
		close(result)
		return result
	}

	go func() {
		defer w.running.Done()
		defer close(result)
		result <- w.execute(ctx, wf)
	}()
	return result
}

// Shutdown refuses new workflows and waits for running ones until ctx is
// done.
func (w *WorkflowEngine) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WorkflowEngine) enter() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.running.Add(1)
	return true
}

func (w *WorkflowEngine) execute(ctx context.Context, wf workflow.Workflow) error {
	start := time.Now()
	err := w.run(ctx, wf)
	w.metrics.Operation(wf.Name(), err)

	if err != nil {
		w.log.Error("workflow failed",
			zap.String("workflow", wf.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	w.log.Debug("workflow finished",
		zap.String("workflow", wf.Name()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (w *WorkflowEngine) run(ctx context.Context, wf workflow.Workflow) error {
	if bound, ok := wf.(workflow.GitBound); ok && bound.NeedsRepository() && w.gate != nil {
		release, err := w.gate.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
	}
	return wf.Execute(ctx)
}
