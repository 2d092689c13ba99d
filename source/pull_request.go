// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/localize"
)

var _ Source = &PullRequestSource{}

// PullRequestSource installs the CI build of a pull request's head commit.
type PullRequestSource struct {
	Base       `yaml:",inline"`
	Remote     string `yaml:"remote"`
	Number     string `yaml:"number"`
	Head       string `yaml:"head,omitempty"`
	Executable string `yaml:"executable,omitempty"`
}

func NewPullRequestSource(name string, remote, number string) (*PullRequestSource, error) {
	if !numberPattern.MatchString(number) {
		return nil, fmt.Errorf("%w: %q is not a pull request number", ErrInvalidTarget, number)
	}
	if remote == "" {
		return nil, ErrNoRemote
	}

	return &PullRequestSource{
		Base:   newBase(name, PullRequest),
		Remote: remote,
		Number: number,
	}, nil
}

func (p *PullRequestSource) GetKind() Kind         { return KindPullRequest }
func (p *PullRequestSource) GetBranchName() string { return "" }
func (p *PullRequestSource) GetExecutable() string { return p.Executable }
func (p *PullRequestSource) IsGit() bool           { return false }
func (p *PullRequestSource) CanBeBuilt() bool      { return false }

func (p *PullRequestSource) head(ctx context.Context, env *Env) (plumbing.Hash, error) {
	refs, err := env.Repository.ListRemote(ctx, p.Remote)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	ref := pullRef(p.Number, "head")
	head, ok := findRef(refs, ref)
	if !ok {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s on %s", git.ErrRefNotFound, ref, p.Remote)
	}
	return head, nil
}

func (p *PullRequestSource) Create(ctx context.Context, env *Env) error {
	if p.Type != PullRequest {
		return unsupported(p, "create")
	}

	head, err := p.head(ctx, env)
	if err != nil {
		return env.fail("resolve", p, p.Remote, p.Number, err)
	}

	name, executable, err := env.Artifacts.CIArtifact(env.Platform.OS, env.Platform.Arch)
	if err != nil {
		return env.fail("resolve artifact", p, p.Remote, p.Number, err)
	}
	found, err := env.CI.FindArtifact(ctx, head.String(), name)
	if err != nil {
		return env.fail("find artifact", p, p.Remote, head.String(), err)
	}

	installed, err := install(ctx, env, p, artifact{
		url:        found.DownloadURL,
		fileName:   found.Name + ".zip",
		executable: executable,
		headers:    found.Headers,
	})
	if err != nil {
		return err
	}

	p.Head = head.String()
	p.Executable = installed
	p.stamp(env, abbreviate(p.Head))
	env.log().Info("pull request build installed",
		zap.String("source", p.Name),
		zap.String("number", p.Number),
		zap.String("head", p.Head),
		zap.Int64("run", found.RunID),
	)
	return nil
}

func (p *PullRequestSource) Update(ctx context.Context, env *Env) error {
	return p.Create(ctx, env)
}

// NeedsUpdate compares the advertised head with the installed one.
func (p *PullRequestSource) NeedsUpdate(ctx context.Context, env *Env) (bool, error) {
	if !p.Initialized {
		return true, nil
	}
	head, err := p.head(ctx, env)
	if err != nil {
		return false, env.fail("check", p, p.Remote, p.Number, err)
	}
	return head.String() != p.Head, nil
}

func (p *PullRequestSource) Delete(_ context.Context, env *Env) error {
	if err := env.Fs.RemoveAll(env.SourceDir(p)); err != nil {
		return env.fail("delete", p, "", env.SourceDir(p), err)
	}
	p.Executable = ""
	p.reset()
	return nil
}

func (p *PullRequestSource) GetPublicName(l localize.Localizer) (string, error) {
	return l.Localize(localize.SourcePullRequest, p.Number), nil
}

func (p *PullRequestSource) GetPublicVersion(l localize.Localizer) (string, error) {
	if !p.Initialized {
		return "", nil
	}
	return l.Localize(localize.VersionCommit, abbreviate(p.Head), pullRef(p.Number, "head").Short()), nil
}
