// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package workflow

import "context"

// Workflow is one instance operation.
type Workflow interface {
	// Name labels the operation in logs and metrics.
	Name() string
	Execute(ctx context.Context) error
}

// GitBound is implemented by workflows that may need exclusive use of the
// shared repository while they run.
type GitBound interface {
	NeedsRepository() bool
}

type Executor interface {
	Execute(ctx context.Context, w Workflow) error
}
