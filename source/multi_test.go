// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/git"
)

func newBranchSources(t *testing.T, names ...string) []Source {
	t.Helper()
	sources := make([]Source, len(names))
	for i, name := range names {
		s, err := NewGitSource(name, Branch, testRemote, name)
		require.NoError(t, err)
		sources[i] = s
	}
	return sources
}

// expectChildSync expects a fresh child to get its own branch and fetch.
func expectChildSync(te *testEnv, name string) {
	branch := name + "-branch"
	te.repo.EXPECT().CreateBranch(gomock.Any(), name).Return(branch, nil)
	te.repo.EXPECT().Fetch(gomock.Any(), git.FetchRequest{
		Remote: testRemote,
		Ref:    plumbing.NewBranchReferenceName(name),
		Branch: branch,
	}).Return(git.FetchResult{Commit: hashOf(name), Changed: true}, nil)
	te.repo.EXPECT().Checkout(gomock.Any(), branch).Return(nil)
}

func expectMerge(te *testEnv, into, from string, status git.MergeStatus, err error) *gomock.Call {
	return te.repo.EXPECT().Merge(gomock.Any(), git.MergeRequest{
		Into:     into,
		From:     from + "-branch",
		Strategy: git.StrategyRecursive,
	}).Return(git.MergeResult{Status: status}, err)
}

func TestMultiSource_SkippedRecordsStrategy(t *testing.T) {
	te := newTestEnv(t, afero.NewMemMapFs(), "/instances/merged")

	m, err := NewMultiSource("merged", newBranchSources(t, "a", "b"), git.StrategyResolve, git.ContentTheirs)
	require.NoError(t, err)

	te.repo.EXPECT().CreateBranch(gomock.Any(), "merged").Return("merged-branch", nil)
	for _, name := range []string{"a", "b"} {
		expectChildSync(te, name)
	}
	gomock.InOrder(
		te.repo.EXPECT().Merge(gomock.Any(), git.MergeRequest{
			Into:     "merged-branch",
			From:     "a-branch",
			Strategy: git.StrategyResolve,
			Content:  git.ContentTheirs,
		}).Return(git.MergeResult{Status: git.Merged}, nil),
		te.repo.EXPECT().Merge(gomock.Any(), git.MergeRequest{
			Into:     "merged-branch",
			From:     "b-branch",
			Strategy: git.StrategyResolve,
			Content:  git.ContentTheirs,
		}).Return(git.MergeResult{Status: git.Conflicting}, fmt.Errorf("%w: b into merged", git.ErrMergeConflict)),
	)
	te.repo.EXPECT().Checkout(gomock.Any(), "merged-branch").Return(nil)
	te.repo.EXPECT().Head(gomock.Any(), "merged-branch").Return(hashOf("merged"), nil)

	require.NoError(t, m.Create(context.Background(), te.Env))

	assert.Equal(t, []string{"a"}, m.Merged)
	assert.Equal(t, []string{"b (resolve/theirs)"}, m.Skipped)

	var skipped string
	for _, f := range Describe(m) {
		if f.Key == "skipped" {
			skipped = f.Value
		}
	}
	assert.Equal(t, "b (resolve/theirs)", skipped)
}

func TestMultiSource_SkipsConflictingChild(t *testing.T) {
	te := newTestEnv(t, afero.NewMemMapFs(), "/instances/merged")

	m, err := NewMultiSource("merged", newBranchSources(t, "a", "b", "c"), "", git.ContentConflict)
	require.NoError(t, err)

	te.repo.EXPECT().CreateBranch(gomock.Any(), "merged").Return("merged-branch", nil)
	gomock.InOrder(
		expectMerge(te, "merged-branch", "a", git.FastForward, nil),
		expectMerge(te, "merged-branch", "b", git.Conflicting, fmt.Errorf("%w: b into merged", git.ErrMergeConflict)),
		expectMerge(te, "merged-branch", "c", git.Merged, nil),
	)
	for _, name := range []string{"a", "b", "c"} {
		expectChildSync(te, name)
	}
	te.repo.EXPECT().Checkout(gomock.Any(), "merged-branch").Return(nil)
	te.repo.EXPECT().Head(gomock.Any(), "merged-branch").Return(hashOf("merged"), nil)

	require.NoError(t, m.Create(context.Background(), te.Env))

	assert.True(t, m.IsInitialized())
	assert.Equal(t, []string{"a", "c"}, m.Merged)
	assert.Equal(t, []string{"b"}, m.Skipped)
	assert.Equal(t, hashOf("merged").String(), m.Commit)
	assert.Equal(t, testNow, m.GetLastUpdated())

	warnings := te.logs.FilterMessage("skipping conflicting source").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zap.WarnLevel, warnings[0].Level)
	assert.Equal(t, "b", warnings[0].ContextMap()["child"])

	expected := `
# HELP gim_merge_conflicts_total Children skipped because their merge conflicted
# TYPE gim_merge_conflicts_total counter
gim_merge_conflicts_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(te.registry, strings.NewReader(expected), "gim_merge_conflicts_total"))

	l := newTestLocalizer(t)
	version, err := m.GetPublicVersion(l)
	require.NoError(t, err)
	assert.Equal(t, abbreviate(hashOf("merged").String())+", 2 of 3 merged", version)
}

func TestMultiSource_FailedChildAborts(t *testing.T) {
	te := newTestEnv(t, afero.NewMemMapFs(), "/instances/merged")

	m, err := NewMultiSource("merged", newBranchSources(t, "a", "b"), git.StrategyRecursive, git.ContentConflict)
	require.NoError(t, err)

	te.repo.EXPECT().CreateBranch(gomock.Any(), "merged").Return("merged-branch", nil)
	expectChildSync(te, "a")
	expectMerge(te, "merged-branch", "a", git.FastForward, nil)
	te.repo.EXPECT().CreateBranch(gomock.Any(), "b").Return("b-branch", nil)
	te.repo.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(git.FetchResult{}, git.ErrRefNotFound)

	err = m.Create(context.Background(), te.Env)
	require.ErrorIs(t, err, git.ErrRefNotFound)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "fetch", opErr.Op)
	assert.Equal(t, "b", opErr.Source)
	assert.False(t, m.IsInitialized())
}

func TestMultiSource_UpdateRebuildsFromOrphan(t *testing.T) {
	te := newTestEnv(t, afero.NewMemMapFs(), "/instances/merged")

	m, err := NewMultiSource("merged", newBranchSources(t, "a", "b"), git.StrategyResolve, git.ContentTheirs)
	require.NoError(t, err)
	m.Branch = "merged-branch"
	m.Initialized = true
	for _, child := range m.Children {
		g := child.Source.(*GitSource)
		g.Branch = g.Name + "-branch"
		g.Initialized = true
	}

	gomock.InOrder(
		te.repo.EXPECT().ResetBranch(gomock.Any(), "merged-branch").Return(nil),
		te.repo.EXPECT().Merge(gomock.Any(), git.MergeRequest{
			Into: "merged-branch", From: "a-branch", Strategy: git.StrategyResolve, Content: git.ContentTheirs,
		}).Return(git.MergeResult{Status: git.FastForward}, nil),
		te.repo.EXPECT().Merge(gomock.Any(), git.MergeRequest{
			Into: "merged-branch", From: "b-branch", Strategy: git.StrategyResolve, Content: git.ContentTheirs,
		}).Return(git.MergeResult{Status: git.Merged}, nil),
	)
	for _, name := range []string{"a", "b"} {
		te.repo.EXPECT().Fetch(gomock.Any(), git.FetchRequest{
			Remote: testRemote,
			Ref:    plumbing.NewBranchReferenceName(name),
			Branch: name + "-branch",
		}).Return(git.FetchResult{Commit: hashOf(name)}, nil)
		te.repo.EXPECT().Checkout(gomock.Any(), name+"-branch").Return(nil)
	}
	te.repo.EXPECT().Checkout(gomock.Any(), "merged-branch").Return(nil)
	te.repo.EXPECT().Head(gomock.Any(), "merged-branch").Return(hashOf("merged"), nil)

	require.NoError(t, m.Update(context.Background(), te.Env))
	assert.Equal(t, []string{"a", "b"}, m.Merged)
	assert.Empty(t, m.Skipped)
}

func TestNewMultiSource(t *testing.T) {
	file, err := NewFileSource("file", LocalExecutable, "/bin/game")
	require.NoError(t, err)

	tests := []struct {
		name     string
		children []Source
		wantErr  assert.ErrorAssertionFunc
	}{
		{
			name:     "git children",
			children: newBranchSources(t, "a", "b"),
			wantErr:  assert.NoError,
		},
		{
			name:     "no children",
			children: nil,
			wantErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorIs(t, err, ErrNoChildren)
			},
		},
		{
			name:     "file child",
			children: append(newBranchSources(t, "a"), file),
			wantErr: func(t assert.TestingT, err error, _ ...interface{}) bool {
				return assert.ErrorIs(t, err, ErrNonGitChild)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMultiSource("merged", tt.children, "", git.ContentConflict)
			if !tt.wantErr(t, err) || err != nil {
				return
			}
			assert.Equal(t, git.StrategyRecursive, m.Strategy)
			assert.Len(t, m.Sources(), len(tt.children))
			assert.True(t, m.IsGit())
			assert.True(t, m.CanBeBuilt())
		})
	}
}

func TestMultiSource_NeedsUpdate(t *testing.T) {
	te := newTestEnv(t, afero.NewMemMapFs(), "/instances/merged")

	m, err := NewMultiSource("merged", newBranchSources(t, "a", "b"), "", git.ContentConflict)
	require.NoError(t, err)

	needed, err := m.NeedsUpdate(context.Background(), te.Env)
	require.NoError(t, err)
	assert.True(t, needed, "uninitialized")

	m.Branch = "merged-branch"
	m.Initialized = true
	for _, child := range m.Children {
		g := child.Source.(*GitSource)
		g.Branch = g.Name + "-branch"
		g.ResolvedRef = plumbing.NewBranchReferenceName(g.Target).String()
		g.Initialized = true
	}

	te.repo.EXPECT().Fetch(gomock.Any(), git.FetchRequest{
		Remote: testRemote,
		Ref:    plumbing.NewBranchReferenceName("a"),
		Branch: "a-branch",
		DryRun: true,
	}).Return(git.FetchResult{Changed: false}, nil)
	te.repo.EXPECT().Fetch(gomock.Any(), git.FetchRequest{
		Remote: testRemote,
		Ref:    plumbing.NewBranchReferenceName("b"),
		Branch: "b-branch",
		DryRun: true,
	}).Return(git.FetchResult{Changed: true}, nil)

	needed, err = m.NeedsUpdate(context.Background(), te.Env)
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestMultiSource_Delete(t *testing.T) {
	fs := afero.NewMemMapFs()
	te := newTestEnv(t, fs, "/instances/merged")

	m, err := NewMultiSource("merged", newBranchSources(t, "a"), "", git.ContentConflict)
	require.NoError(t, err)
	m.Branch = "merged-branch"
	m.Initialized = true
	child := m.Children[0].Source.(*GitSource)
	child.Branch = "a-branch"
	child.Initialized = true
	require.NoError(t, fs.MkdirAll(te.SourceDir(m), 0o755))

	te.repo.EXPECT().DeleteBranch(gomock.Any(), "a-branch").Return(nil)
	te.repo.EXPECT().DeleteBranch(gomock.Any(), "merged-branch").Return(nil)

	require.NoError(t, m.Delete(context.Background(), te.Env))
	assert.False(t, m.IsInitialized())
	assert.Empty(t, m.GetBranchName())
	assert.Empty(t, child.GetBranchName())

	exists, err := afero.DirExists(fs, te.SourceDir(m))
	require.NoError(t, err)
	assert.False(t, exists)
}
