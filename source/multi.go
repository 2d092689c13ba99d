// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/wrappers"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/localize"
)

const (
	childSyncShare  = 0.7
	childMergeShare = 0.3
)

var _ Source = &MultiSource{}

// MultiSource merges the branches of several git-backed children, in order,
// into its own branch. A child that conflicts is skipped.
type MultiSource struct {
	Base     `yaml:",inline"`
	Children []Envelope          `yaml:"children"`
	Branch   string              `yaml:"branch,omitempty"`
	Strategy git.MergeStrategy   `yaml:"strategy,omitempty"`
	Content  git.ContentStrategy `yaml:"content,omitempty"`
	Commit   string              `yaml:"commit,omitempty"`
	// Merged and Skipped name the children of the last create or update.
	Merged  []string `yaml:"merged,omitempty"`
	Skipped []string `yaml:"skipped,omitempty"`
}

func NewMultiSource(name string, children []Source, strategy git.MergeStrategy, content git.ContentStrategy) (*MultiSource, error) {
	if len(children) == 0 {
		return nil, ErrNoChildren
	}
	m := newMulti(name, strategy, content)
	for _, child := range children {
		if !child.IsGit() {
			return nil, fmt.Errorf("%w: %s", ErrNonGitChild, child.GetName())
		}
		m.Children = append(m.Children, Envelope{Source: child})
	}
	return m, nil
}

func newMulti(name string, strategy git.MergeStrategy, content git.ContentStrategy) *MultiSource {
	if strategy == "" {
		strategy = git.StrategyRecursive
	}
	return &MultiSource{
		Base:     newBase(name, MultipleSources),
		Strategy: strategy,
		Content:  content,
	}
}

func (m *MultiSource) GetKind() Kind         { return KindMulti }
func (m *MultiSource) GetBranchName() string { return m.Branch }
func (m *MultiSource) GetExecutable() string { return "" }
func (m *MultiSource) IsGit() bool           { return true }
func (m *MultiSource) CanBeBuilt() bool      { return true }

// Sources returns the children in merge order.
func (m *MultiSource) Sources() []Source {
	sources := make([]Source, len(m.Children))
	for i, child := range m.Children {
		sources[i] = child.Source
	}
	return sources
}

func (m *MultiSource) Create(ctx context.Context, env *Env) error {
	if m.Branch == "" {
		branch, err := env.Repository.CreateBranch(ctx, m.Name)
		if err != nil {
			return env.fail("create branch", m, "", m.Name, err)
		}
		m.Branch = branch
	}
	return m.mergeAll(ctx, env)
}

// Update rebuilds the branch from an empty orphan so children removed since
// the last run leave nothing behind.
func (m *MultiSource) Update(ctx context.Context, env *Env) error {
	if m.Branch == "" {
		return m.Create(ctx, env)
	}
	if err := env.Repository.ResetBranch(ctx, m.Branch); err != nil {
		return env.fail("reset branch", m, "", m.Branch, err)
	}
	return m.mergeAll(ctx, env)
}

// skippedEntry names a conflicting child, followed by the strategy it
// conflicted under when that is not the default one.
func (m *MultiSource) skippedEntry(name string) string {
	if git.IsDefault(m.Strategy, m.Content) {
		return name
	}
	strategy := string(m.Strategy)
	if m.Content != git.ContentConflict {
		strategy += "/" + string(m.Content)
	}
	return fmt.Sprintf("%s (%s)", name, strategy)
}

func (m *MultiSource) mergeAll(ctx context.Context, env *Env) error {
	if len(m.Children) == 0 {
		return ErrNoChildren
	}

	var merged, skipped []string
	share := 1 / float64(len(m.Children))
	for _, child := range m.Children {
		env.Tracker.BeginTask(share)
		err := m.mergeChild(ctx, env, child.Source)
		env.Tracker.EndTask()

		switch {
		case errors.Is(err, git.ErrMergeConflict):
			env.log().Warn("skipping conflicting source",
				zap.String("source", m.Name),
				zap.String("child", child.GetName()),
				zap.String("branch", child.GetBranchName()),
				zap.String("strategy", string(m.Strategy)),
				zap.String("content", string(m.Content)),
			)
			env.Metrics.MergeConflict()
			skipped = append(skipped, m.skippedEntry(child.GetName()))
		case err != nil:
			return err
		default:
			merged = append(merged, child.GetName())
		}
	}

	if err := env.Repository.Checkout(ctx, m.Branch); err != nil {
		return env.fail("checkout", m, "", m.Branch, err)
	}
	head, err := env.Repository.Head(ctx, m.Branch)
	if err != nil {
		return env.fail("resolve head", m, "", m.Branch, err)
	}

	m.Commit = head.String()
	m.Merged = merged
	m.Skipped = skipped
	m.stamp(env, fmt.Sprintf("%s (%d/%d)", abbreviate(m.Commit), len(merged), len(m.Children)))
	env.log().Info("merged sources",
		zap.String("source", m.Name),
		zap.Strings("merged", merged),
		zap.Strings("skipped", skipped),
		zap.String("commit", m.Commit),
	)
	return nil
}

func (m *MultiSource) mergeChild(ctx context.Context, env *Env, child Source) error {
	env.Tracker.BeginTask(childSyncShare)
	var err error
	if child.IsInitialized() {
		err = child.Update(ctx, env)
	} else {
		err = child.Create(ctx, env)
	}
	env.Tracker.EndTask()
	if err != nil {
		return err
	}

	env.Tracker.BeginTask(childMergeShare)
	defer env.Tracker.EndTask()
	result, err := env.Repository.Merge(ctx, git.MergeRequest{
		Into:     m.Branch,
		From:     child.GetBranchName(),
		Strategy: m.Strategy,
		Content:  m.Content,
	})
	if errors.Is(err, git.ErrMergeConflict) {
		return err
	}
	if err != nil {
		return env.fail("merge", m, child.GetName(), child.GetBranchName(), err)
	}
	env.log().Debug("merged source",
		zap.String("source", m.Name),
		zap.String("child", child.GetName()),
		zap.Stringer("status", result.Status),
	)
	return nil
}

// NeedsUpdate is true when any child needs an update.
func (m *MultiSource) NeedsUpdate(ctx context.Context, env *Env) (bool, error) {
	if !m.Initialized || m.Branch == "" {
		return true, nil
	}
	for _, child := range m.Children {
		needed, err := child.NeedsUpdate(ctx, env)
		if err != nil {
			return false, err
		}
		if needed {
			return true, nil
		}
	}
	return false, nil
}

func (m *MultiSource) Delete(ctx context.Context, env *Env) error {
	errs := wrappers.Errs{}
	for _, child := range m.Children {
		errs.Add(child.Delete(ctx, env))
	}
	if err := env.Repository.DeleteBranch(ctx, m.Branch); err != nil {
		errs.Add(env.fail("delete branch", m, "", m.Branch, err))
	}
	if err := env.Fs.RemoveAll(env.SourceDir(m)); err != nil {
		errs.Add(env.fail("delete", m, "", env.SourceDir(m), err))
	}
	if errs.Errored() {
		return errs.Err
	}

	m.Branch = ""
	m.Merged = nil
	m.Skipped = nil
	m.reset()
	return nil
}

func (m *MultiSource) GetPublicName(l localize.Localizer) (string, error) {
	return l.Localize(localize.SourceMultiple, len(m.Children)), nil
}

func (m *MultiSource) GetPublicVersion(l localize.Localizer) (string, error) {
	if !m.Initialized {
		return "", nil
	}
	return l.Localize(localize.VersionMerged, abbreviate(m.Commit), len(m.Merged), len(m.Children)), nil
}
