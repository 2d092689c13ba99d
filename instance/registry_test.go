// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/source"
)

func newFileInstance(t *testing.T, name string) *Instance {
	t.Helper()
	s, err := source.NewFileSource(name, source.DirectDownload, "https://example.com/"+name)
	require.NoError(t, err)
	return New(name, s)
}

func TestRegistry(t *testing.T) {
	store := &memStore{}
	r, err := NewRegistry(store, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, r.Register(newFileInstance(t, "Nightly")))
	require.NoError(t, r.Register(newFileInstance(t, "beta")))
	assert.ErrorIs(t, r.Register(newFileInstance(t, "NIGHTLY")), ErrDuplicateName)

	got, err := r.Get("nightly")
	require.NoError(t, err)
	assert.Equal(t, "Nightly", got.Name())

	var names []string
	for _, i := range r.List() {
		names = append(names, i.Name())
	}
	assert.Equal(t, []string{"beta", "Nightly"}, names)

	reloaded, err := NewRegistry(store, nil)
	require.NoError(t, err)
	assert.Len(t, reloaded.List(), 2)
	loaded, err := reloaded.Get("NIGHTLY")
	require.NoError(t, err)
	assert.Equal(t, source.KindFile, loaded.Source().GetKind())
	assert.Equal(t, got.Source().GetInternalID(), loaded.Source().GetInternalID())

	require.NoError(t, r.Unregister("BETA"))
	assert.False(t, r.Contains("beta"))
	_, err = r.Get("beta")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Unregister("beta"), ErrNotFound)
}

func TestRegistry_SaveFailureRollsBack(t *testing.T) {
	store := &memStore{}
	r, err := NewRegistry(store, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.Register(newFileInstance(t, "stable")))

	store.err = errors.New("disk full")
	assert.Error(t, r.Register(newFileInstance(t, "beta")))
	assert.False(t, r.Contains("beta"))

	assert.Error(t, r.Unregister("stable"))
	assert.True(t, r.Contains("stable"))
}
