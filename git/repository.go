// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package git

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5/plumbing"
)

var (
	ErrMergeConflict = errors.New("merge conflict")
	ErrRefNotFound   = errors.New("ref not advertised by remote")
	ErrNoGit         = errors.New("no 'git' program on path")
)

// Repository is the shared clone every git-backed source materializes into.
// Each source owns one private branch in it. The worktree is shared, so
// callers serialize whole operations with Acquire.
type Repository interface {
	Path() string
	// Acquire blocks until the caller holds the repository exclusively. The
	// returned func releases it.
	Acquire(ctx context.Context) (func(), error)

	// CreateBranch reserves a branch name derived from proposed, makes it an
	// unborn orphan, checks it out and clears the worktree.
	CreateBranch(ctx context.Context, proposed string) (string, error)
	DeleteBranch(ctx context.Context, name string) error
	// ResetBranch turns an existing branch back into an empty orphan.
	ResetBranch(ctx context.Context, name string) error
	Checkout(ctx context.Context, branch string) error
	SetBranch(ctx context.Context, branch string, commit plumbing.Hash) error
	Head(ctx context.Context, branch string) (plumbing.Hash, error)

	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
	Merge(ctx context.Context, req MergeRequest) (MergeResult, error)
	// ListRemote returns the refs advertised by uri.
	ListRemote(ctx context.Context, uri string) ([]*plumbing.Reference, error)
}

type FetchRequest struct {
	Remote string
	Ref    plumbing.ReferenceName
	Branch string
	// DryRun compares the advertised id with the last fetched one and
	// changes nothing locally.
	DryRun bool
}

type FetchResult struct {
	// Old is the ref id recorded by the previous fetch, or the zero hash.
	Old plumbing.Hash
	// New is the id the remote advertises now. For annotated tags this is
	// the tag object, not the commit.
	New plumbing.Hash
	// Commit is what the branch points at after the fetch. Zero on dry runs.
	Commit  plumbing.Hash
	Changed bool
}

type MergeStrategy string

const (
	StrategyRecursive MergeStrategy = "recursive"
	StrategyResolve   MergeStrategy = "resolve"
	StrategyOurs      MergeStrategy = "ours"
)

// ContentStrategy picks a side for conflicting hunks. The zero value leaves
// conflicts unresolved.
type ContentStrategy string

const (
	ContentConflict ContentStrategy = ""
	ContentOurs     ContentStrategy = "ours"
	ContentTheirs   ContentStrategy = "theirs"
)

func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case "", StrategyRecursive:
		return StrategyRecursive, nil
	case StrategyResolve, StrategyOurs:
		return MergeStrategy(s), nil
	}
	return "", errors.New("unknown merge strategy " + s)
}

func ParseContentStrategy(s string) (ContentStrategy, error) {
	switch ContentStrategy(s) {
	case ContentConflict, ContentOurs, ContentTheirs:
		return ContentStrategy(s), nil
	}
	return "", errors.New("unknown content strategy " + s)
}

// IsDefault reports whether the pair is the plain recursive merge that leaves
// conflicts unresolved.
func IsDefault(strategy MergeStrategy, content ContentStrategy) bool {
	return (strategy == "" || strategy == StrategyRecursive) && content == ContentConflict
}

type MergeRequest struct {
	Into     string
	From     string
	Strategy MergeStrategy
	Content  ContentStrategy
}

type MergeStatus int

const (
	UpToDate MergeStatus = iota
	FastForward
	Merged
	Conflicting
)

func (s MergeStatus) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case FastForward:
		return "fast-forward"
	case Merged:
		return "merged"
	case Conflicting:
		return "conflicting"
	}
	return "unknown"
}

type MergeResult struct {
	Status MergeStatus
	Commit plumbing.Hash
}
