// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instance

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/golang/mock/gomock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gim-launcher/gim/build"
	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/progress"
	"github.com/gim-launcher/gim/source"
)

const (
	instancesDir = "/data/instances"
	localGame    = "/opt/game/game"
)

var testNow = time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu    sync.Mutex
	saved []byte
	saves int
	err   error
}

func (s *memStore) Load() ([]*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var instances []*Instance
	if err := yaml.Unmarshal(s.saved, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

func (s *memStore) Save(instances []*Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	b, err := yaml.Marshal(instances)
	if err != nil {
		return err
	}
	s.saved = b
	s.saves++
	return nil
}

type fixture struct {
	svc     *Services
	fs      afero.Fs
	store   *memStore
	repo    *git.MockRepository
	builder *build.MockBuilder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	fs := afero.NewMemMapFs()
	store := &memStore{}
	registry, err := NewRegistry(store, zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		fs:      fs,
		store:   store,
		repo:    git.NewMockRepository(ctrl),
		builder: build.NewMockBuilder(ctrl),
	}
	f.svc = &Services{
		Dir:        instancesDir,
		Fs:         fs,
		Repository: f.repo,
		Builder:    f.builder,
		Registry:   registry,
		Platform:   source.Platform{OS: "linux", Arch: "amd64"},
		Trunk:      "master",
		Log:        zap.NewNop(),
		Now:        func() time.Time { return testNow },
	}
	return f
}

func newLocalInstance(t *testing.T, f *fixture, name string) *Instance {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, localGame, []byte("v1"), 0o755))
	s, err := source.NewFileSource(name, source.LocalExecutable, localGame)
	require.NoError(t, err)
	return New(name, s)
}

func TestInstance_CreateFileSource(t *testing.T) {
	f := newFixture(t)
	i := newLocalInstance(t, f, "Stable")

	require.NoError(t, i.Create(context.Background(), f.svc))

	assert.True(t, f.svc.Registry.Contains("stable"))
	assert.Equal(t, 1, f.store.saves)
	assert.Equal(t, i.Source().GetExecutable(), i.Executable())
	assert.Equal(t, i.Source().GetVersion(), i.Version())
	assert.Equal(t, testNow, i.LastUpdated())
	assert.False(t, i.FailedUpdate())
	assert.False(t, i.IsGit())

	snapshot := i.Tracker().Snapshot()
	assert.Equal(t, progress.Done, snapshot.Progress)
	assert.False(t, snapshot.Working)

	exists, err := afero.DirExists(f.fs, filepath.Join(instancesDir, "stable"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInstance_CreateBuildsGitSource(t *testing.T) {
	f := newFixture(t)
	s, err := source.NewGitSource("dev", source.Branch, "https://example.com/game.git", "develop")
	require.NoError(t, err)
	i := New("dev", s)

	commit := plumbing.ComputeHash(plumbing.CommitObject, []byte("develop"))
	f.repo.EXPECT().CreateBranch(gomock.Any(), "dev").Return("mrsxm", nil)
	f.repo.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(git.FetchResult{Commit: commit}, nil)
	f.repo.EXPECT().Checkout(gomock.Any(), "mrsxm").Return(nil)
	f.repo.EXPECT().Path().Return("/data/repository")
	f.builder.EXPECT().Build(gomock.Any(), "/data/repository").DoAndReturn(func(context.Context, string) (string, error) {
		const built = "/data/repository/bin/game"
		return built, afero.WriteFile(f.fs, built, []byte("binary"), 0o755)
	})

	require.NoError(t, i.Create(context.Background(), f.svc))

	executable := filepath.Join(instancesDir, "dev", "game")
	assert.Equal(t, executable, i.Executable())
	content, err := afero.ReadFile(f.fs, executable)
	require.NoError(t, err)
	assert.Equal(t, "binary", string(content))
	assert.Equal(t, commit.String()[:7], i.Version())
	assert.True(t, i.IsGit())
}

func TestInstance_CreateFailure(t *testing.T) {
	f := newFixture(t)
	s, err := source.NewFileSource("broken", source.LocalExecutable, "/missing")
	require.NoError(t, err)
	i := New("broken", s)

	err = i.Create(context.Background(), f.svc)
	var opErr *source.OperationError
	require.ErrorAs(t, err, &opErr)

	assert.False(t, f.svc.Registry.Contains("broken"))
	assert.True(t, i.FailedUpdate())
	exists, err := afero.DirExists(f.fs, filepath.Join(instancesDir, "broken"))
	require.NoError(t, err)
	assert.False(t, exists)
	snapshot := i.Tracker().Snapshot()
	assert.True(t, snapshot.FailedUpdate)
	assert.False(t, snapshot.Working)
	assert.Equal(t, progress.Done, snapshot.Progress)
}

func TestInstance_CreateBuildFailure(t *testing.T) {
	f := newFixture(t)
	s, err := source.NewGitSource("dev", source.Branch, "https://example.com/game.git", "develop")
	require.NoError(t, err)
	i := New("dev", s)

	f.repo.EXPECT().CreateBranch(gomock.Any(), "dev").Return("mrsxm", nil)
	f.repo.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(git.FetchResult{}, nil)
	f.repo.EXPECT().Checkout(gomock.Any(), "mrsxm").Return(nil)
	f.repo.EXPECT().Path().Return("/data/repository")
	f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).Return("", errors.New("cmake failed: exit status 1"))
	f.repo.EXPECT().DeleteBranch(gomock.Any(), "mrsxm").Return(nil)

	err = i.Create(context.Background(), f.svc)
	assert.ErrorContains(t, err, "cmake failed")
	assert.False(t, f.svc.Registry.Contains("dev"))
	assert.True(t, i.FailedUpdate())

	assert.Empty(t, s.Branch)
	assert.False(t, s.IsInitialized())
	exists, err := afero.DirExists(f.fs, filepath.Join(instancesDir, "dev"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInstance_CreateDuplicateKeepsExisting(t *testing.T) {
	f := newFixture(t)
	existing := newLocalInstance(t, f, "stable")
	require.NoError(t, existing.Create(context.Background(), f.svc))

	again := newLocalInstance(t, f, "Stable")
	assert.ErrorIs(t, again.Create(context.Background(), f.svc), ErrDuplicateName)

	exists, err := afero.DirExists(f.fs, filepath.Join(instancesDir, "stable"))
	require.NoError(t, err)
	assert.True(t, exists)
}

// createGitInstance creates a branch-backed instance whose fetches are served
// by fetch.
func createGitInstance(t *testing.T, f *fixture, fetch func(git.FetchRequest) (git.FetchResult, error)) *Instance {
	t.Helper()
	s, err := source.NewGitSource("dev", source.Branch, "https://example.com/game.git", "develop")
	require.NoError(t, err)
	i := New("dev", s)

	f.repo.EXPECT().CreateBranch(gomock.Any(), "dev").Return("mrsxm", nil)
	f.repo.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req git.FetchRequest) (git.FetchResult, error) {
		return fetch(req)
	}).AnyTimes()
	f.repo.EXPECT().Checkout(gomock.Any(), "mrsxm").Return(nil).AnyTimes()
	f.repo.EXPECT().Path().Return("/data/repository").AnyTimes()
	f.builder.EXPECT().Build(gomock.Any(), "/data/repository").DoAndReturn(func(context.Context, string) (string, error) {
		const built = "/data/repository/bin/game"
		return built, afero.WriteFile(f.fs, built, []byte("v1"), 0o755)
	})

	require.NoError(t, i.Create(context.Background(), f.svc))
	return i
}

func TestInstance_RetriesFailedUpdate(t *testing.T) {
	f := newFixture(t)
	v1 := plumbing.ComputeHash(plumbing.CommitObject, []byte("v1"))
	v2 := plumbing.ComputeHash(plumbing.CommitObject, []byte("v2"))

	head := v1
	dryRuns := 0
	i := createGitInstance(t, f, func(req git.FetchRequest) (git.FetchResult, error) {
		if req.DryRun {
			dryRuns++
			// The failed attempt below already moved the tracking ref, so
			// only the first check sees a change.
			return git.FetchResult{Changed: dryRuns == 1}, nil
		}
		return git.FetchResult{Commit: head}, nil
	})
	assert.Equal(t, v1.String()[:7], i.Version())

	head = v2
	f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).Return("", errors.New("compile error"))
	_, err := i.Update(context.Background(), f.svc)
	require.ErrorContains(t, err, "compile error")
	assert.True(t, i.FailedUpdate())

	f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) (string, error) {
		const built = "/data/repository/bin/game"
		return built, afero.WriteFile(f.fs, built, []byte("v2"), 0o755)
	})
	updated, err := i.Update(context.Background(), f.svc)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 1, dryRuns)
	assert.False(t, i.FailedUpdate())
	assert.Equal(t, v2.String()[:7], i.Version())

	content, err := afero.ReadFile(f.fs, i.Executable())
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	reloaded, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.False(t, reloaded[0].FailedUpdate())
}

func TestInstance_SaveDoesNotWaitForRunningUpdate(t *testing.T) {
	f := newFixture(t)
	i := createGitInstance(t, f, func(req git.FetchRequest) (git.FetchResult, error) {
		if req.DryRun {
			return git.FetchResult{Changed: true}, nil
		}
		return git.FetchResult{Commit: plumbing.ComputeHash(plumbing.CommitObject, []byte("v1"))}, nil
	})
	require.NoError(t, f.svc.Registry.Register(newLocalInstance(t, f, "stable")))
	before := i.Version()

	building := make(chan struct{})
	release := make(chan struct{})
	f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) (string, error) {
		close(building)
		<-release
		return "", errors.New("compile error")
	})

	done := make(chan error, 1)
	go func() {
		_, err := i.Update(context.Background(), f.svc)
		done <- err
	}()
	<-building

	saved := make(chan error, 1)
	go func() {
		saved <- f.svc.Registry.Save()
	}()
	select {
	case err := <-saved:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("saving waited for the running update")
	}
	assert.Equal(t, before, i.Version())
	assert.False(t, i.FailedUpdate())

	close(release)
	assert.Error(t, <-done)
	assert.True(t, i.FailedUpdate())
}

func TestInstance_Close(t *testing.T) {
	f := newFixture(t)
	i := newLocalInstance(t, f, "stable")
	require.NoError(t, i.Create(context.Background(), f.svc))

	i.Close()
	i.Close()
	_, err := i.Update(context.Background(), f.svc)
	assert.ErrorIs(t, err, ErrBusy)

	unused := newLocalInstance(t, f, "unused")
	unused.Close()
	assert.Nil(t, unused.Tracker())
}

func TestInstance_Update(t *testing.T) {
	f := newFixture(t)
	i := newLocalInstance(t, f, "stable")
	require.NoError(t, i.Create(context.Background(), f.svc))
	before := i.Version()

	updated, err := i.Update(context.Background(), f.svc)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.False(t, i.Tracker().Snapshot().Updated)

	require.NoError(t, afero.WriteFile(f.fs, localGame, []byte("v2"), 0o755))
	updated, err = i.Update(context.Background(), f.svc)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NotEqual(t, before, i.Version())
	assert.True(t, i.Tracker().Snapshot().Updated)
	assert.Equal(t, 2, f.store.saves)
}

func TestInstance_UpdateFailure(t *testing.T) {
	f := newFixture(t)
	i := newLocalInstance(t, f, "stable")
	require.NoError(t, i.Create(context.Background(), f.svc))

	require.NoError(t, f.fs.Remove(localGame))
	_, err := i.Update(context.Background(), f.svc)
	require.Error(t, err)
	assert.True(t, i.FailedUpdate())
	assert.True(t, i.Tracker().Snapshot().FailedUpdate)

	reloaded, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.True(t, reloaded[0].FailedUpdate())
}

func TestInstance_Busy(t *testing.T) {
	f := newFixture(t)
	i := newLocalInstance(t, f, "stable")
	require.True(t, i.Tracker().TryStart())

	_, err := i.Update(context.Background(), f.svc)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, i.Create(context.Background(), f.svc), ErrBusy)
	assert.ErrorIs(t, i.Remove(context.Background(), f.svc), ErrBusy)
}

func TestInstance_Remove(t *testing.T) {
	f := newFixture(t)
	i := newLocalInstance(t, f, "stable")
	require.NoError(t, i.Create(context.Background(), f.svc))

	require.NoError(t, i.Remove(context.Background(), f.svc))
	assert.False(t, f.svc.Registry.Contains("stable"))
	exists, err := afero.DirExists(f.fs, filepath.Join(instancesDir, "stable"))
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.Exists(f.fs, localGame)
	require.NoError(t, err)
	assert.True(t, exists, "local executables are not owned by the instance")
}

func TestInstance_RemoveGitBranchFailure(t *testing.T) {
	f := newFixture(t)
	s, err := source.NewGitSource("dev", source.Branch, "https://example.com/game.git", "develop")
	require.NoError(t, err)
	s.Branch = "mrsxm"
	s.Initialized = true
	i := New("dev", s)
	require.NoError(t, f.svc.Registry.Register(i))

	f.repo.EXPECT().DeleteBranch(gomock.Any(), "mrsxm").Return(errors.New("locked"))
	require.Error(t, i.Remove(context.Background(), f.svc))
	assert.True(t, f.svc.Registry.Contains("dev"))

	f.repo.EXPECT().DeleteBranch(gomock.Any(), "mrsxm").Return(nil)
	require.NoError(t, i.Remove(context.Background(), f.svc))
	assert.False(t, f.svc.Registry.Contains("dev"))
}
