// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/language"

	"github.com/gim-launcher/gim/archive"
	"github.com/gim-launcher/gim/ci"
	"github.com/gim-launcher/gim/config"
	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/localize"
	"github.com/gim-launcher/gim/metrics"
	"github.com/gim-launcher/gim/url"
)

const testRemote = "https://example.com/game.git"

var testNow = time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	*Env
	repo       *git.MockRepository
	downloader *url.MockClient
	unpacker   *archive.MockUnpacker
	ci         *ci.MockClient
	logs       *observer.ObservedLogs
	registry   *prometheus.Registry
}

func newTestEnv(t *testing.T, fs afero.Fs, dir string) *testEnv {
	t.Helper()

	ctrl := gomock.NewController(t)
	core, logs := observer.New(zap.DebugLevel)
	registry := prometheus.NewRegistry()
	m, err := metrics.New("gim", registry)
	require.NoError(t, err)

	te := &testEnv{
		repo:       git.NewMockRepository(ctrl),
		downloader: url.NewMockClient(ctrl),
		unpacker:   archive.NewMockUnpacker(ctrl),
		ci:         ci.NewMockClient(ctrl),
		logs:       logs,
		registry:   registry,
	}
	te.Env = &Env{
		Dir:        dir,
		Fs:         fs,
		Repository: te.repo,
		Downloader: te.downloader,
		Unpacker:   te.unpacker,
		CI:         te.ci,
		Artifacts:  config.DefaultArtifactTable(),
		Platform:   Platform{OS: "linux", Arch: "amd64"},
		Trunk:      "master",
		Metrics:    m,
		Log:        zap.New(core),
		Now:        func() time.Time { return testNow },
	}
	return te
}

func newTestLocalizer(t *testing.T) localize.Localizer {
	t.Helper()
	l, err := localize.New(language.English)
	require.NoError(t, err)
	return l
}

func hashOf(s string) plumbing.Hash {
	return plumbing.ComputeHash(plumbing.CommitObject, []byte(s))
}
