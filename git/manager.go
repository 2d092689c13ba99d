// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gim-launcher/gim/constant"
	"github.com/gim-launcher/gim/metrics"
)

const (
	remoteCacheSize = 64
	remoteCacheTTL  = 30 * time.Second
	suffixRange     = 1_000_000
)

var _ Repository = &Manager{}

type Committer struct {
	Name  string
	Email string
}

type Config struct {
	// Path is where the shared clone lives. It is cloned on first use.
	Path        string
	UpstreamURL string
	Trunk       string
	// Auth is used for every remote. Nil for anonymous access.
	Auth      transport.AuthMethod
	Committer Committer
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

// Manager owns the shared clone. Individual calls are mutually exclusive, but
// a caller doing several dependent calls must hold Acquire across them.
type Manager struct {
	path      string
	upstream  string
	trunk     plumbing.ReferenceName
	auth      transport.AuthMethod
	committer Committer
	log       *zap.Logger
	metrics   *metrics.Metrics
	gate      *semaphore.Weighted
	remotes   *expirable.LRU[string, []*plumbing.Reference]

	mu       sync.Mutex
	repo     *git.Repository
	runner   *Runner
	reserved map[string]struct{}
}

func NewManager(config Config) *Manager {
	trunk := config.Trunk
	if trunk == "" {
		trunk = constant.TrunkBranch
	}
	committer := config.Committer
	if committer.Name == "" {
		committer = Committer{Name: constant.CommitterName, Email: constant.CommitterEmail}
	}
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		path:      config.Path,
		upstream:  config.UpstreamURL,
		trunk:     plumbing.NewBranchReferenceName(trunk),
		auth:      config.Auth,
		committer: committer,
		log:       log,
		metrics:   config.Metrics,
		gate:      semaphore.NewWeighted(1),
		remotes:   expirable.NewLRU[string, []*plumbing.Reference](remoteCacheSize, nil, remoteCacheTTL),
		reserved:  make(map[string]struct{}),
	}
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Trunk() string {
	return m.trunk.Short()
}

func (m *Manager) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	if err := m.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	m.metrics.GateWait(time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() { m.gate.Release(1) })
	}, nil
}

// open clones the upstream trunk the first time it is needed. Callers hold mu.
func (m *Manager) open(ctx context.Context) (*git.Repository, error) {
	if m.repo != nil {
		return m.repo, nil
	}

	var repo *git.Repository
	switch _, err := os.Stat(m.path); {
	case err == nil:
		repo, err = git.PlainOpen(m.path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", m.path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		m.log.Info("cloning upstream",
			zap.String("url", m.upstream),
			zap.String("trunk", m.trunk.Short()),
			zap.String("path", m.path),
		)
		repo, err = git.PlainCloneContext(ctx, m.path, false, &git.CloneOptions{
			URL:           m.upstream,
			ReferenceName: m.trunk,
			SingleBranch:  true,
			Auth:          m.auth,
			Progress:      io.Discard,
			Tags:          git.NoTags,
		})
		if err != nil {
			_ = os.RemoveAll(m.path)
			return nil, fmt.Errorf("cloning %s: %w", m.upstream, err)
		}
	default:
		return nil, err
	}

	m.repo = repo
	return repo, nil
}

func (m *Manager) CreateBranch(ctx context.Context, proposed string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return "", err
	}

	base := BranchBaseName(proposed)
	name := base
	for m.taken(repo, name) {
		name = fmt.Sprintf("%s-%d", base, rand.IntN(suffixRange))
	}
	m.reserved[name] = struct{}{}

	if err := m.orphan(repo, name); err != nil {
		delete(m.reserved, name)
		return "", fmt.Errorf("creating branch %s: %w", name, err)
	}

	m.log.Debug("created branch", zap.String("branch", name), zap.String("for", proposed))
	return name, nil
}

// taken covers unborn branches through the reservation set, since they have
// no ref yet.
func (m *Manager) taken(repo *git.Repository, name string) bool {
	if _, ok := m.reserved[name]; ok {
		return true
	}
	ref := plumbing.NewBranchReferenceName(name)
	if ref == m.trunk {
		return true
	}
	_, err := repo.Reference(ref, false)
	return err == nil
}

func (m *Manager) orphan(repo *git.Repository, name string) error {
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(name))
	if err := repo.Storer.SetReference(head); err != nil {
		return err
	}
	return m.clear(repo)
}

// clear empties the worktree and the index, leaving .git alone.
func (m *Manager) clear(repo *git.Repository) error {
	entries, err := os.ReadDir(m.path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == git.GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.path, entry.Name())); err != nil {
			return err
		}
	}
	return repo.Storer.SetIndex(&index.Index{Version: 2})
}

func (m *Manager) DeleteBranch(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return err
	}
	delete(m.reserved, name)

	if err := m.checkout(repo, m.trunk); err != nil {
		return err
	}
	for _, ref := range []plumbing.ReferenceName{plumbing.NewBranchReferenceName(name), trackingRef(name)} {
		if err := m.remove(repo, ref); err != nil {
			return fmt.Errorf("deleting %s: %w", ref, err)
		}
	}

	m.log.Debug("deleted branch", zap.String("branch", name))
	return nil
}

func (m *Manager) remove(repo *git.Repository, ref plumbing.ReferenceName) error {
	_, err := repo.Reference(ref, false)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return nil
	case err != nil:
		return err
	}
	return repo.Storer.RemoveReference(ref)
}

func (m *Manager) ResetBranch(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return err
	}
	if err := m.remove(repo, plumbing.NewBranchReferenceName(name)); err != nil {
		return err
	}
	m.reserved[name] = struct{}{}
	return m.orphan(repo, name)
}

func (m *Manager) Checkout(ctx context.Context, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return err
	}
	return m.checkout(repo, plumbing.NewBranchReferenceName(branch))
}

func (m *Manager) checkout(repo *git.Repository, ref plumbing.ReferenceName) error {
	_, err := repo.Reference(ref, false)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// unborn
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref)); err != nil {
			return err
		}
		return m.clear(repo)
	case err != nil:
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: ref, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", ref.Short(), err)
	}
	return worktree.Clean(&git.CleanOptions{Dir: true})
}

func (m *Manager) SetBranch(ctx context.Context, branch string, commit plumbing.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return err
	}
	if _, err := repo.CommitObject(commit); err != nil {
		return fmt.Errorf("resolving commit %s: %w", commit, err)
	}
	return repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), commit))
}

func (m *Manager) Head(ctx context.Context, branch string) (plumbing.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving %s: %w", branch, err)
	}
	return ref.Hash(), nil
}

func (m *Manager) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	if req.DryRun {
		return m.dryRun(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return FetchResult{}, err
	}

	tracking := trackingRef(req.Branch)
	old := hashOf(repo, tracking)

	remote, err := m.remote(repo, req.Remote)
	if err != nil {
		return FetchResult{}, err
	}
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remote.Config().Name,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("+%s:%s", req.Ref, tracking))},
		Auth:       m.auth,
		Progress:   io.Discard,
		Tags:       git.NoTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return FetchResult{}, fmt.Errorf("fetching %s from %s: %w", req.Ref, req.Remote, err)
	}

	fetched, err := repo.Reference(tracking, true)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %s on %s", ErrRefNotFound, req.Ref, req.Remote)
	}
	commit, err := peel(repo, fetched.Hash())
	if err != nil {
		return FetchResult{}, err
	}
	branch := plumbing.NewBranchReferenceName(req.Branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branch, commit)); err != nil {
		return FetchResult{}, err
	}

	m.log.Debug("fetched",
		zap.String("remote", req.Remote),
		zap.String("ref", req.Ref.String()),
		zap.String("branch", req.Branch),
		zap.Stringer("commit", commit),
	)
	return FetchResult{
		Old:     old,
		New:     fetched.Hash(),
		Commit:  commit,
		Changed: old != fetched.Hash(),
	}, nil
}

// dryRun compares the advertised id with the tracking ref. Unequal ids mean
// the branch is behind.
func (m *Manager) dryRun(ctx context.Context, req FetchRequest) (FetchResult, error) {
	refs, err := m.listRemote(ctx, req.Remote, true)
	if err != nil {
		return FetchResult{}, err
	}
	advertised, ok := find(refs, req.Ref)
	if !ok {
		return FetchResult{}, fmt.Errorf("%w: %s on %s", ErrRefNotFound, req.Ref, req.Remote)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return FetchResult{}, err
	}
	old := hashOf(repo, trackingRef(req.Branch))
	return FetchResult{
		Old:     old,
		New:     advertised,
		Changed: old != advertised,
	}, nil
}

func (m *Manager) remote(repo *git.Repository, uri string) (*git.Remote, error) {
	name := remoteName(uri)
	if uri == m.upstream {
		name = upstreamRemote
	}

	remote, err := repo.Remote(name)
	switch {
	case err == nil:
		return remote, nil
	case !errors.Is(err, git.ErrRemoteNotFound):
		return nil, err
	}
	return repo.CreateRemote(&config.RemoteConfig{
		Name: name,
		URLs: []string{uri},
	})
}

func (m *Manager) ListRemote(ctx context.Context, uri string) ([]*plumbing.Reference, error) {
	return m.listRemote(ctx, uri, false)
}

func (m *Manager) listRemote(ctx context.Context, uri string, fresh bool) ([]*plumbing.Reference, error) {
	if !fresh {
		if refs, ok := m.remotes.Get(uri); ok {
			return refs, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "anonymous",
		URLs: []string{uri},
	})
	refs, err := remote.List(&git.ListOptions{Auth: m.auth})
	if err != nil {
		return nil, fmt.Errorf("listing refs of %s: %w", uri, err)
	}
	m.remotes.Add(uri, refs)
	return refs, nil
}

func (m *Manager) Merge(ctx context.Context, req MergeRequest) (MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open(ctx)
	if err != nil {
		return MergeResult{}, err
	}

	into := plumbing.NewBranchReferenceName(req.Into)
	from, err := repo.Reference(plumbing.NewBranchReferenceName(req.From), true)
	if err != nil {
		return MergeResult{}, fmt.Errorf("resolving %s: %w", req.From, err)
	}

	current, err := repo.Reference(into, true)
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return m.fastForward(repo, into, from.Hash())
	case err != nil:
		return MergeResult{}, err
	}
	if current.Hash() == from.Hash() {
		return MergeResult{Status: UpToDate, Commit: current.Hash()}, nil
	}

	ours, err := repo.CommitObject(current.Hash())
	if err != nil {
		return MergeResult{}, err
	}
	theirs, err := repo.CommitObject(from.Hash())
	if err != nil {
		return MergeResult{}, err
	}
	if merged, err := theirs.IsAncestor(ours); err != nil {
		return MergeResult{}, err
	} else if merged {
		return MergeResult{Status: UpToDate, Commit: ours.Hash}, nil
	}
	if behind, err := ours.IsAncestor(theirs); err != nil {
		return MergeResult{}, err
	} else if behind {
		return m.fastForward(repo, into, theirs.Hash)
	}

	return m.merge(ctx, repo, ours.Hash, req)
}

func (m *Manager) fastForward(repo *git.Repository, into plumbing.ReferenceName, commit plumbing.Hash) (MergeResult, error) {
	if err := repo.Storer.SetReference(plumbing.NewHashReference(into, commit)); err != nil {
		return MergeResult{}, err
	}
	if err := m.checkout(repo, into); err != nil {
		return MergeResult{}, err
	}
	return MergeResult{Status: FastForward, Commit: commit}, nil
}

func (m *Manager) merge(ctx context.Context, repo *git.Repository, base plumbing.Hash, req MergeRequest) (MergeResult, error) {
	runner, err := m.gitRunner()
	if err != nil {
		return MergeResult{}, err
	}
	into := plumbing.NewBranchReferenceName(req.Into)
	if err := m.checkout(repo, into); err != nil {
		return MergeResult{}, err
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyRecursive
	}
	args := []string{
		"-c", "user.name=" + m.committer.Name,
		"-c", "user.email=" + m.committer.Email,
		"-c", "commit.gpgsign=false",
		"merge", "--no-edit", "--allow-unrelated-histories",
		"-s", string(strategy),
	}
	if req.Content != ContentConflict {
		args = append(args, "-X", string(req.Content))
	}
	args = append(args,
		"-m", fmt.Sprintf("Merge %s into %s", req.From, req.Into),
		plumbing.NewBranchReferenceName(req.From).String(),
	)

	if _, err := runner.Run(ctx, args...); err != nil {
		if abortErr := m.abort(ctx, runner, base); abortErr != nil {
			m.log.Error("failed to reset after merge",
				zap.String("branch", req.Into),
				zap.Error(abortErr),
			)
		}

		var execErr *ExecError
		if errors.As(err, &execErr) && execErr.IsConflict() {
			return MergeResult{Status: Conflicting, Commit: base},
				fmt.Errorf("%w: %s into %s", ErrMergeConflict, req.From, req.Into)
		}
		return MergeResult{}, err
	}

	head, err := repo.Reference(into, true)
	if err != nil {
		return MergeResult{}, err
	}
	return MergeResult{Status: Merged, Commit: head.Hash()}, nil
}

// abort hard-resets the worktree and index to base so nothing from a failed
// merge survives.
func (m *Manager) abort(ctx context.Context, runner *Runner, base plumbing.Hash) error {
	ctx = context.WithoutCancel(ctx)
	_, _ = runner.Run(ctx, "merge", "--abort")
	if _, err := runner.Run(ctx, "reset", "--hard", base.String()); err != nil {
		return err
	}
	_, err := runner.Run(ctx, "clean", "-fd")
	return err
}

func (m *Manager) gitRunner() (*Runner, error) {
	if m.runner != nil {
		return m.runner, nil
	}
	runner, err := NewRunner(m.path)
	if err != nil {
		return nil, err
	}
	m.runner = runner
	return runner, nil
}

func hashOf(repo *git.Repository, ref plumbing.ReferenceName) plumbing.Hash {
	r, err := repo.Reference(ref, false)
	if err != nil {
		return plumbing.ZeroHash
	}
	return r.Hash()
}

// peel resolves annotated tags to the commit they point at.
func peel(repo *git.Repository, h plumbing.Hash) (plumbing.Hash, error) {
	tag, err := repo.TagObject(h)
	switch {
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return h, nil
	case err != nil:
		return plumbing.ZeroHash, err
	}
	commit, err := tag.Commit()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("peeling tag %s: %w", tag.Name, err)
	}
	return commit.Hash, nil
}

func find(refs []*plumbing.Reference, name plumbing.ReferenceName) (plumbing.Hash, bool) {
	for _, ref := range refs {
		if ref.Name() == name {
			return ref.Hash(), true
		}
	}
	return plumbing.ZeroHash, false
}
