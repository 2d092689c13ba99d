// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instance

import (
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/archive"
	"github.com/gim-launcher/gim/build"
	"github.com/gim-launcher/gim/checksum"
	"github.com/gim-launcher/gim/ci"
	"github.com/gim-launcher/gim/config"
	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/metrics"
	"github.com/gim-launcher/gim/source"
	"github.com/gim-launcher/gim/url"
)

// Services are the collaborators instance operations run against.
type Services struct {
	// Dir is the root every instance directory is created under.
	Dir        string
	Fs         afero.Fs
	Repository git.Repository
	Downloader url.Client
	Unpacker   archive.Unpacker
	CI         ci.Client
	Checksum   checksum.Checksummer
	Artifacts  config.ArtifactTable
	Platform   source.Platform
	Trunk      string
	Builder    build.Builder
	Registry   *Registry
	Metrics    *metrics.Metrics
	Log        *zap.Logger
	Now        func() time.Time
}

func (s *Services) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Services) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
