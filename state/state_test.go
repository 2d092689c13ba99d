// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/instance"
	"github.com/gim-launcher/gim/source"
)

func TestFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := New(fs, "/data")

	loaded, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	file, err := source.NewFileSource("nightly", source.DirectDownload, "https://example.com/game")
	require.NoError(t, err)
	a, err := source.NewGitSource("a", source.Branch, "https://example.com/game.git", "a")
	require.NoError(t, err)
	b, err := source.NewGitSource("b", source.Release, "https://example.com/game.git", "v0.10")
	require.NoError(t, err)
	multi, err := source.NewMultiSource("merged", []source.Source{a, b}, git.StrategyRecursive, git.ContentConflict)
	require.NoError(t, err)

	require.NoError(t, f.Save([]*instance.Instance{
		instance.New("nightly", file),
		instance.New("merged", multi),
	}))

	exists, err := afero.Exists(fs, "/data/gim.state.tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	loaded, err = f.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "nightly", loaded[0].Name())
	assert.Equal(t, file.GetInternalID(), loaded[0].Source().GetInternalID())

	gotMulti, ok := loaded[1].Source().(*source.MultiSource)
	require.True(t, ok)
	require.Len(t, gotMulti.Sources(), 2)
	assert.Equal(t, source.Release, gotMulti.Sources()[1].GetType())
}

func TestFile_NewerVersion(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/gim.state", []byte("version: 99\ninstances: []\n"), 0o644))

	_, err := New(fs, "/data").Load()
	assert.ErrorContains(t, err, "newer than supported")
}
