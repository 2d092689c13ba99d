// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/localize"
	"github.com/gim-launcher/gim/versioning"
)

var _ Source = &ReleaseSource{}

// ReleaseSource installs the prebuilt artifact published for a release tag.
// It is identified by the tag name and the id the remote advertises for it.
type ReleaseSource struct {
	Base   `yaml:",inline"`
	Remote string `yaml:"remote"`
	// Target is the requested tag. Empty for LATEST_RELEASE.
	Target     string `yaml:"target,omitempty"`
	Tag        string `yaml:"tag,omitempty"`
	TagID      string `yaml:"tagId,omitempty"`
	Executable string `yaml:"executable,omitempty"`
}

func NewReleaseSource(name string, t Type, remote, target string) (*ReleaseSource, error) {
	switch t {
	case Release:
		if strings.TrimSpace(target) == "" {
			return nil, ErrEmptyTarget
		}
	case LatestRelease:
		target = ""
	default:
		return nil, fmt.Errorf("%w: release source of type %s", ErrUnsupported, t)
	}
	if remote == "" {
		return nil, ErrNoRemote
	}

	return &ReleaseSource{
		Base:   newBase(name, t),
		Remote: remote,
		Target: target,
	}, nil
}

func (r *ReleaseSource) GetKind() Kind         { return KindRelease }
func (r *ReleaseSource) GetBranchName() string { return "" }
func (r *ReleaseSource) GetExecutable() string { return r.Executable }
func (r *ReleaseSource) IsGit() bool           { return false }
func (r *ReleaseSource) CanBeBuilt() bool      { return false }

// resolve returns the tag to install and its advertised id.
func (r *ReleaseSource) resolve(ctx context.Context, env *Env) (plumbing.ReferenceName, plumbing.Hash, error) {
	refs, err := env.Repository.ListRemote(ctx, r.Remote)
	if err != nil {
		return "", plumbing.ZeroHash, err
	}

	if r.Type == LatestRelease {
		tags := releaseTags(refs)
		if len(tags) == 0 {
			return "", plumbing.ZeroHash, fmt.Errorf("%w on %s", ErrNoRelease, r.Remote)
		}
		return tags[0].Name(), tags[0].Hash(), nil
	}

	name := plumbing.NewTagReferenceName(r.Target)
	id, ok := findRef(refs, name)
	if !ok {
		return "", plumbing.ZeroHash, fmt.Errorf("%w: %s on %s", git.ErrRefNotFound, name, r.Remote)
	}
	return name, id, nil
}

func (r *ReleaseSource) Create(ctx context.Context, env *Env) error {
	tag, id, err := r.resolve(ctx, env)
	if err != nil {
		return env.fail("resolve", r, r.Remote, r.Target, err)
	}

	resolved, err := env.Artifacts.Resolve(tag.String(), env.Platform.OS, env.Platform.Arch)
	if err != nil {
		return env.fail("resolve artifact", r, r.Remote, tag.Short(), err)
	}

	executable, err := install(ctx, env, r, artifact{
		url:        resolved.URL,
		fileName:   resolved.FileName,
		executable: resolved.Executable,
	})
	if err != nil {
		return err
	}

	r.Tag = tag.Short()
	r.TagID = id.String()
	r.Executable = executable
	r.stamp(env, r.Tag)
	env.log().Info("release installed",
		zap.String("source", r.Name),
		zap.String("tag", r.Tag),
		zap.String("executable", executable),
	)
	return nil
}

func (r *ReleaseSource) Update(ctx context.Context, env *Env) error {
	return r.Create(ctx, env)
}

// NeedsUpdate compares the resolved tag name and id with the installed ones.
func (r *ReleaseSource) NeedsUpdate(ctx context.Context, env *Env) (bool, error) {
	if !r.Initialized {
		return true, nil
	}
	tag, id, err := r.resolve(ctx, env)
	if err != nil {
		return false, env.fail("check", r, r.Remote, r.Target, err)
	}
	return tag.Short() != r.Tag || id.String() != r.TagID, nil
}

func (r *ReleaseSource) Delete(_ context.Context, env *Env) error {
	if err := env.Fs.RemoveAll(env.SourceDir(r)); err != nil {
		return env.fail("delete", r, "", env.SourceDir(r), err)
	}
	r.Executable = ""
	r.reset()
	return nil
}

func (r *ReleaseSource) GetPublicName(l localize.Localizer) (string, error) {
	switch r.Type {
	case Release:
		return l.Localize(localize.SourceRelease, r.Target), nil
	case LatestRelease:
		return l.Localize(localize.SourceLatestRelease), nil
	}
	return "", unsupported(r, "public name")
}

func (r *ReleaseSource) GetPublicVersion(l localize.Localizer) (string, error) {
	if !r.Initialized {
		return "", nil
	}
	return l.Localize(localize.VersionRelease, versioning.Name(r.Tag)), nil
}
