// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gim-launcher/gim/localize"
)

// Type is what a source tracks. Each variant supports a fixed subset.
type Type string

const (
	DirectDownload  Type = "DIRECT_DOWNLOAD"
	LocalExecutable Type = "LOCAL_EXECUTABLE"
	Branch          Type = "BRANCH"
	PullRequest     Type = "PULL_REQUEST"
	Release         Type = "RELEASE"
	LatestRelease   Type = "LATEST_RELEASE"
	Commit          Type = "COMMIT"
	MultipleSources Type = "MULTIPLE_SOURCES"
	DynamicRefs     Type = "DYNAMIC_REFS"
)

// Kind discriminates the concrete variant in persisted state.
type Kind string

const (
	KindFile        Kind = "file"
	KindGit         Kind = "git"
	KindRelease     Kind = "release"
	KindPullRequest Kind = "pull-request"
	KindMulti       Kind = "multi"
	KindDynamic     Kind = "dynamic-refs"
)

// Source describes where an instance's code or executable comes from and
// knows how to materialize it under the owning instance's directory.
//
// A source starts uninitialized. Create materializes it, after which
// NeedsUpdate and Update keep it in step with upstream. NeedsUpdate may talk
// to the network but never changes persisted state.
type Source interface {
	GetName() string
	GetType() Type
	GetKind() Kind
	GetInternalID() string
	IsInitialized() bool
	GetLastUpdated() time.Time
	GetVersion() string
	// GetBranchName is the private branch in the shared repository, empty for
	// sources that are not git backed.
	GetBranchName() string
	// GetExecutable is the ready-to-run executable, empty for sources that
	// must be built.
	GetExecutable() string
	IsGit() bool
	CanBeBuilt() bool

	Create(ctx context.Context, env *Env) error
	Update(ctx context.Context, env *Env) error
	NeedsUpdate(ctx context.Context, env *Env) (bool, error)
	Delete(ctx context.Context, env *Env) error

	GetPublicName(l localize.Localizer) (string, error)
	GetPublicVersion(l localize.Localizer) (string, error)
}

// Base carries the state shared by every variant.
type Base struct {
	Name        string    `yaml:"name"`
	Type        Type      `yaml:"type"`
	InternalID  string    `yaml:"internalId"`
	Initialized bool      `yaml:"initialized"`
	LastUpdated time.Time `yaml:"lastUpdated,omitempty"`
	Version     string    `yaml:"version,omitempty"`
}

func newBase(name string, t Type) Base {
	return Base{
		Name:       name,
		Type:       t,
		InternalID: uuid.NewString(),
	}
}

func (b *Base) GetName() string           { return b.Name }
func (b *Base) GetType() Type             { return b.Type }
func (b *Base) GetInternalID() string     { return b.InternalID }
func (b *Base) IsInitialized() bool       { return b.Initialized }
func (b *Base) GetLastUpdated() time.Time { return b.LastUpdated }
func (b *Base) GetVersion() string        { return b.Version }

func (b *Base) stamp(env *Env, version string) {
	b.Initialized = true
	b.LastUpdated = env.now()
	b.Version = version
}

func (b *Base) reset() {
	b.Initialized = false
	b.Version = ""
}

func shortHash(hash string) string {
	const n = 12
	if len(hash) > n {
		return hash[:n]
	}
	return hash
}
