// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/archive"
	"github.com/gim-launcher/gim/checksum"
	"github.com/gim-launcher/gim/ci"
	"github.com/gim-launcher/gim/config"
	"github.com/gim-launcher/gim/constant"
	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/metrics"
	"github.com/gim-launcher/gim/progress"
	"github.com/gim-launcher/gim/url"
)

const (
	// SourcesDir holds one working directory per source, named by internal id.
	SourcesDir = "sources"
	// ExecutableSlot is the stable path file sources expose their executable
	// at.
	ExecutableSlot = "executable"
	// InstallDir is where release and pull request artifacts are unpacked.
	InstallDir = "install"

	downloadDir = ".download"
	stagingDir  = ".staging"
)

type Platform struct {
	OS   string
	Arch string
}

func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Env is the owning instance's context. Sources receive it on every call and
// never keep it; nested sources share it.
type Env struct {
	// Dir is the owning instance's directory.
	Dir        string
	Fs         afero.Fs
	Repository git.Repository
	Downloader url.Client
	Unpacker   archive.Unpacker
	CI         ci.Client
	Checksum   checksum.Checksummer
	Artifacts  config.ArtifactTable
	Platform   Platform
	Trunk      string
	Tracker    *progress.Tracker
	Metrics    *metrics.Metrics
	Log        *zap.Logger
	Now        func() time.Time
}

// SourceDir is the working directory of s.
func (e *Env) SourceDir(s Source) string {
	return filepath.Join(e.Dir, SourcesDir, s.GetInternalID())
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Env) checksummer() checksum.Checksummer {
	if e.Checksum == nil {
		return checksum.NewSHA256(e.Fs)
	}
	return e.Checksum
}

func (e *Env) trunk() string {
	if e.Trunk == "" {
		return constant.TrunkBranch
	}
	return e.Trunk
}
