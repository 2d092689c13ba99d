// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/localize"
	"github.com/gim-launcher/gim/versioning"
)

const (
	gitFetchShare    = 0.8
	gitCheckoutShare = 0.2

	shortCommit = 7
)

var (
	_ Source = &GitSource{}

	commitPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)
	numberPattern = regexp.MustCompile(`^[1-9][0-9]*$`)
)

// GitSource tracks one ref of a remote in a private branch of the shared
// repository.
type GitSource struct {
	Base   `yaml:",inline"`
	Remote string `yaml:"remote"`
	Target string `yaml:"target,omitempty"`
	Branch string `yaml:"branch,omitempty"`
	// Commit is the branch head after the last create or update.
	Commit string `yaml:"commit,omitempty"`
	// ResolvedRef is the remote ref the branch was last fetched from.
	ResolvedRef string `yaml:"resolvedRef,omitempty"`
}

func NewGitSource(name string, t Type, remote, target string) (*GitSource, error) {
	switch t {
	case Branch, Release:
		if strings.TrimSpace(target) == "" {
			return nil, ErrEmptyTarget
		}
	case PullRequest:
		if !numberPattern.MatchString(target) {
			return nil, fmt.Errorf("%w: %q is not a pull request number", ErrInvalidTarget, target)
		}
	case Commit:
		target = strings.ToLower(target)
		if !commitPattern.MatchString(target) {
			return nil, fmt.Errorf("%w: %q is not a full commit hash", ErrInvalidTarget, target)
		}
	case LatestRelease:
	default:
		return nil, fmt.Errorf("%w: git source of type %s", ErrUnsupported, t)
	}
	if remote == "" {
		return nil, ErrNoRemote
	}

	return &GitSource{
		Base:   newBase(name, t),
		Remote: remote,
		Target: target,
	}, nil
}

func (g *GitSource) GetKind() Kind         { return KindGit }
func (g *GitSource) GetBranchName() string { return g.Branch }
func (g *GitSource) GetExecutable() string { return "" }
func (g *GitSource) IsGit() bool           { return true }
func (g *GitSource) CanBeBuilt() bool      { return true }

// RemoteRefName maps the types whose ref does not depend on the remote's
// current state.
func RemoteRefName(t Type, target string) (plumbing.ReferenceName, error) {
	switch t {
	case Branch:
		return plumbing.NewBranchReferenceName(target), nil
	case PullRequest:
		return pullRef(target, "head"), nil
	case Release:
		return plumbing.NewTagReferenceName(target), nil
	}
	return "", fmt.Errorf("%w: no fixed remote ref for %s", ErrUnsupported, t)
}

// GetRemoteRefName is the ref the branch tracks. LATEST_RELEASE lists the
// remote's tags and COMMIT fetches trunk.
func (g *GitSource) GetRemoteRefName(ctx context.Context, env *Env) (plumbing.ReferenceName, error) {
	switch g.Type {
	case Commit:
		return plumbing.NewBranchReferenceName(env.trunk()), nil
	case LatestRelease:
		return latestTag(ctx, env, g.Remote)
	}
	return RemoteRefName(g.Type, g.Target)
}

func (g *GitSource) Create(ctx context.Context, env *Env) error {
	if g.Branch == "" {
		branch, err := env.Repository.CreateBranch(ctx, g.Name)
		if err != nil {
			return env.fail("create branch", g, g.Remote, g.Target, err)
		}
		g.Branch = branch
	}

	ref, err := g.GetRemoteRefName(ctx, env)
	if err != nil {
		return env.fail("resolve", g, g.Remote, g.Target, err)
	}

	env.Tracker.BeginTask(gitFetchShare)
	result, err := env.Repository.Fetch(ctx, git.FetchRequest{
		Remote: g.Remote,
		Ref:    ref,
		Branch: g.Branch,
	})
	env.Tracker.EndTask()
	if err != nil {
		return env.fail("fetch", g, g.Remote, ref.String(), err)
	}

	head := result.Commit
	if g.Type == Commit {
		head = plumbing.NewHash(g.Target)
		if err := env.Repository.SetBranch(ctx, g.Branch, head); err != nil {
			return env.fail("pin", g, g.Remote, g.Target, err)
		}
	}

	env.Tracker.BeginTask(gitCheckoutShare)
	err = env.Repository.Checkout(ctx, g.Branch)
	env.Tracker.EndTask()
	if err != nil {
		return env.fail("checkout", g, g.Remote, g.Branch, err)
	}

	g.Commit = head.String()
	g.ResolvedRef = ref.String()
	g.stamp(env, g.describeVersion())
	env.log().Info("git source ready",
		zap.String("source", g.Name),
		zap.String("remote", g.Remote),
		zap.String("ref", g.ResolvedRef),
		zap.String("commit", g.Commit),
	)
	return nil
}

func (g *GitSource) Update(ctx context.Context, env *Env) error {
	return g.Create(ctx, env)
}

// NeedsUpdate reports whether the remote ref moved since the last fetch. A
// LATEST_RELEASE source also needs an update when a newer tag appeared.
func (g *GitSource) NeedsUpdate(ctx context.Context, env *Env) (bool, error) {
	if !g.Initialized || g.Branch == "" {
		return true, nil
	}
	if g.Type == Commit {
		return false, nil
	}

	ref, err := g.GetRemoteRefName(ctx, env)
	if err != nil {
		return false, env.fail("resolve", g, g.Remote, g.Target, err)
	}
	if ref.String() != g.ResolvedRef {
		return true, nil
	}

	result, err := env.Repository.Fetch(ctx, git.FetchRequest{
		Remote: g.Remote,
		Ref:    ref,
		Branch: g.Branch,
		DryRun: true,
	})
	if err != nil {
		return false, env.fail("check", g, g.Remote, ref.String(), err)
	}
	return result.Changed, nil
}

func (g *GitSource) Delete(ctx context.Context, env *Env) error {
	if err := env.Repository.DeleteBranch(ctx, g.Branch); err != nil {
		return env.fail("delete branch", g, g.Remote, g.Branch, err)
	}
	if err := env.Fs.RemoveAll(env.SourceDir(g)); err != nil {
		return env.fail("delete", g, "", env.SourceDir(g), err)
	}
	g.Branch = ""
	g.reset()
	return nil
}

func (g *GitSource) GetPublicName(l localize.Localizer) (string, error) {
	switch g.Type {
	case Branch:
		return l.Localize(localize.SourceBranch, g.Target), nil
	case PullRequest:
		return l.Localize(localize.SourcePullRequest, g.Target), nil
	case Release:
		return l.Localize(localize.SourceRelease, g.Target), nil
	case LatestRelease:
		return l.Localize(localize.SourceLatestRelease), nil
	case Commit:
		return l.Localize(localize.SourceCommit, abbreviate(g.Target)), nil
	}
	return "", unsupported(g, "public name")
}

func (g *GitSource) GetPublicVersion(l localize.Localizer) (string, error) {
	if !g.Initialized {
		return "", nil
	}
	switch g.Type {
	case Release, LatestRelease:
		return l.Localize(localize.VersionRelease, versioning.Name(g.ResolvedRef)), nil
	}
	return l.Localize(localize.VersionCommit, abbreviate(g.Commit), plumbing.ReferenceName(g.ResolvedRef).Short()), nil
}

func (g *GitSource) describeVersion() string {
	switch g.Type {
	case Release, LatestRelease:
		return versioning.Name(g.ResolvedRef)
	}
	return abbreviate(g.Commit)
}

func pullRef(number, leaf string) plumbing.ReferenceName {
	return plumbing.ReferenceName(fmt.Sprintf("refs/pull/%s/%s", number, leaf))
}

func abbreviate(commit string) string {
	if len(commit) > shortCommit {
		return commit[:shortCommit]
	}
	return commit
}

// releaseTags returns the standard release tags among refs, latest first.
func releaseTags(refs []*plumbing.Reference) []*plumbing.Reference {
	var tags []*plumbing.Reference
	for _, ref := range refs {
		if ref.Name().IsTag() && versioning.IsStandardTag(ref.Name().String()) {
			tags = append(tags, ref)
		}
	}
	slices.SortStableFunc(tags, func(a, b *plumbing.Reference) int {
		return versioning.LatestFirst(a.Name().String(), b.Name().String())
	})
	return tags
}

func latestTag(ctx context.Context, env *Env, remote string) (plumbing.ReferenceName, error) {
	refs, err := env.Repository.ListRemote(ctx, remote)
	if err != nil {
		return "", err
	}
	tags := releaseTags(refs)
	if len(tags) == 0 {
		return "", fmt.Errorf("%w on %s", ErrNoRelease, remote)
	}
	return tags[0].Name(), nil
}

func findRef(refs []*plumbing.Reference, name plumbing.ReferenceName) (plumbing.Hash, bool) {
	for _, ref := range refs {
		if ref.Name() == name {
			return ref.Hash(), true
		}
	}
	return plumbing.ZeroHash, false
}
