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
)

const pullPrefix = "refs/pull/"

var _ Source = &DynamicRefSource{}

// DynamicRefSource merges every branch, tag and pull request of a remote
// whose full ref name matches Pattern. The set of children is recomputed on
// every create and update.
type DynamicRefSource struct {
	Base    `yaml:",inline"`
	Remote  string       `yaml:"remote"`
	Pattern string       `yaml:"pattern"`
	Merge   *MultiSource `yaml:"merge"`
}

func NewDynamicRefSource(name, remote, pattern string, strategy git.MergeStrategy, content git.ContentStrategy) (*DynamicRefSource, error) {
	if remote == "" {
		return nil, ErrNoRemote
	}
	if _, err := compilePattern(pattern); err != nil {
		return nil, err
	}
	return &DynamicRefSource{
		Base:    newBase(name, DynamicRefs),
		Remote:  remote,
		Pattern: pattern,
		Merge:   newMulti(name, strategy, content),
	}, nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, ErrEmptyTarget
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	return re, nil
}

func (d *DynamicRefSource) GetKind() Kind         { return KindDynamic }
func (d *DynamicRefSource) GetBranchName() string { return d.Merge.Branch }
func (d *DynamicRefSource) GetExecutable() string { return "" }
func (d *DynamicRefSource) IsGit() bool           { return true }
func (d *DynamicRefSource) CanBeBuilt() bool      { return true }

// refKey normalizes a ref for comparison. Pull request heads compare equal to
// their merge refs.
func refKey(name plumbing.ReferenceName) string {
	s := name.String()
	if strings.HasPrefix(s, pullPrefix) && strings.HasSuffix(s, "/head") {
		return strings.TrimSuffix(s, "/head") + "/merge"
	}
	return s
}

func childKey(s Source) (string, bool) {
	g, ok := s.(*GitSource)
	if !ok {
		return "", false
	}
	ref, err := RemoteRefName(g.Type, g.Target)
	if err != nil {
		return "", false
	}
	return refKey(ref), true
}

// wanted lists the matching refs the remote advertises, keyed by refKey.
func (d *DynamicRefSource) wanted(ctx context.Context, env *Env) (map[string]plumbing.ReferenceName, error) {
	re, err := compilePattern(d.Pattern)
	if err != nil {
		return nil, err
	}
	refs, err := env.Repository.ListRemote(ctx, d.Remote)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]plumbing.ReferenceName)
	for _, ref := range refs {
		name := ref.Name()
		if !name.IsBranch() && !name.IsTag() && !strings.HasPrefix(name.String(), pullPrefix) {
			continue
		}
		if !re.MatchString(name.String()) {
			continue
		}
		key := refKey(name)
		if _, ok := wanted[key]; !ok || strings.HasSuffix(name.String(), "/head") {
			wanted[key] = name
		}
	}
	return wanted, nil
}

// diff splits the current children into kept and removed and returns the
// refs that have no child yet, sorted.
func (d *DynamicRefSource) diff(wanted map[string]plumbing.ReferenceName) (kept []Envelope, removed []Envelope, added []plumbing.ReferenceName) {
	seen := make(map[string]bool)
	for _, child := range d.Merge.Children {
		key, ok := childKey(child.Source)
		if ok && !seen[key] {
			if _, found := wanted[key]; found {
				seen[key] = true
				kept = append(kept, child)
				continue
			}
		}
		removed = append(removed, child)
	}
	for key, ref := range wanted {
		if !seen[key] {
			added = append(added, ref)
		}
	}
	slices.SortFunc(added, func(a, b plumbing.ReferenceName) int {
		return strings.Compare(a.String(), b.String())
	})
	return kept, removed, added
}

func (d *DynamicRefSource) childFor(ref plumbing.ReferenceName) (*GitSource, error) {
	name := ref.String()
	switch {
	case ref.IsBranch():
		return NewGitSource(d.Name+" "+ref.Short(), Branch, d.Remote, strings.TrimPrefix(name, "refs/heads/"))
	case ref.IsTag():
		return NewGitSource(d.Name+" "+ref.Short(), Release, d.Remote, strings.TrimPrefix(name, "refs/tags/"))
	case strings.HasPrefix(name, pullPrefix):
		number, _, _ := strings.Cut(strings.TrimPrefix(name, pullPrefix), "/")
		return NewGitSource(d.Name+" #"+number, PullRequest, d.Remote, number)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

// reconcile deletes children whose ref disappeared and appends one for each
// new matching ref.
func (d *DynamicRefSource) reconcile(ctx context.Context, env *Env) error {
	wanted, err := d.wanted(ctx, env)
	if err != nil {
		return env.fail("list refs", d, d.Remote, d.Pattern, err)
	}
	kept, removed, added := d.diff(wanted)

	for _, child := range removed {
		if err := child.Delete(ctx, env); err != nil {
			return err
		}
		env.log().Info("dropped ref",
			zap.String("source", d.Name),
			zap.String("child", child.GetName()),
		)
	}
	for _, ref := range added {
		child, err := d.childFor(ref)
		if err != nil {
			return env.fail("add ref", d, d.Remote, ref.String(), err)
		}
		kept = append(kept, Envelope{Source: child})
		env.log().Info("added ref",
			zap.String("source", d.Name),
			zap.String("ref", ref.String()),
		)
	}

	d.Merge.Children = kept
	if len(kept) == 0 {
		return env.fail("reconcile", d, d.Remote, d.Pattern, ErrNoChildren)
	}
	return nil
}

func (d *DynamicRefSource) Create(ctx context.Context, env *Env) error {
	if err := d.reconcile(ctx, env); err != nil {
		return err
	}
	if err := d.Merge.Create(ctx, env); err != nil {
		return err
	}
	d.stamp(env, d.Merge.Version)
	return nil
}

func (d *DynamicRefSource) Update(ctx context.Context, env *Env) error {
	if err := d.reconcile(ctx, env); err != nil {
		return err
	}
	if err := d.Merge.Update(ctx, env); err != nil {
		return err
	}
	d.stamp(env, d.Merge.Version)
	return nil
}

// NeedsUpdate is true when the set of matching refs changed or any existing
// child needs an update.
func (d *DynamicRefSource) NeedsUpdate(ctx context.Context, env *Env) (bool, error) {
	if !d.Initialized {
		return true, nil
	}
	wanted, err := d.wanted(ctx, env)
	if err != nil {
		return false, env.fail("list refs", d, d.Remote, d.Pattern, err)
	}
	if _, removed, added := d.diff(wanted); len(removed) > 0 || len(added) > 0 {
		return true, nil
	}
	return d.Merge.NeedsUpdate(ctx, env)
}

func (d *DynamicRefSource) Delete(ctx context.Context, env *Env) error {
	if err := d.Merge.Delete(ctx, env); err != nil {
		return err
	}
	if err := env.Fs.RemoveAll(env.SourceDir(d)); err != nil {
		return env.fail("delete", d, "", env.SourceDir(d), err)
	}
	d.reset()
	return nil
}

func (d *DynamicRefSource) GetPublicName(l localize.Localizer) (string, error) {
	return l.Localize(localize.SourceDynamicRefs, d.Pattern), nil
}

func (d *DynamicRefSource) GetPublicVersion(l localize.Localizer) (string, error) {
	return d.Merge.GetPublicVersion(l)
}
