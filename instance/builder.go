// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instance

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/source"
)

var (
	ErrInvalidName   = errors.New("invalid instance name")
	ErrDuplicateName = errors.New("instance name already in use")
	ErrNoSources     = errors.New("instance needs at least one source")
	ErrNonGitChild   = errors.New("only git sources can be combined")
)

// Builder collects what a new instance is made of. Several sources are
// merged into one MultiSource.
type Builder struct {
	Name     string
	Sources  []source.Source
	Strategy git.MergeStrategy
	Content  git.ContentStrategy

	registry *Registry
}

func NewBuilder(registry *Registry) *Builder {
	return &Builder{
		Strategy: git.StrategyRecursive,
		registry: registry,
	}
}

func (b *Builder) WithName(name string) *Builder {
	b.Name = name
	return b
}

func (b *Builder) AddSource(s source.Source) *Builder {
	b.Sources = append(b.Sources, s)
	return b
}

func (b *Builder) WithStrategy(strategy git.MergeStrategy, content git.ContentStrategy) *Builder {
	b.Strategy = strategy
	b.Content = content
	return b
}

// Validate returns the first reason the instance cannot be built.
func (b *Builder) Validate() error {
	name := strings.TrimSpace(b.Name)
	switch {
	case name == "":
		return fmt.Errorf("%w: name is blank", ErrInvalidName)
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, b.Name)
	case b.registry != nil && b.registry.Contains(name):
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	case len(b.Sources) == 0:
		return ErrNoSources
	}

	if len(b.Sources) > 1 {
		for _, s := range b.Sources {
			if !s.IsGit() {
				return fmt.Errorf("%w: %s", ErrNonGitChild, s.GetName())
			}
		}
	}
	return nil
}

func (b *Builder) IsValid() bool {
	return b.Validate() == nil
}

func (b *Builder) Build() (*Instance, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(b.Name)
	if len(b.Sources) == 1 {
		return New(name, b.Sources[0]), nil
	}
	multi, err := source.NewMultiSource(name, b.Sources, b.Strategy, b.Content)
	if err != nil {
		return nil, err
	}
	return New(name, multi), nil
}
