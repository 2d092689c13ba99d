// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDetached(t *testing.T) {
	errRun := errors.New("update failed")

	t.Run("finishes before the signal", func(t *testing.T) {
		shutdowns := 0
		err := runDetached(context.Background(), func(context.Context) error {
			shutdowns++
			return nil
		}, func(context.Context) error {
			return errRun
		})
		assert.ErrorIs(t, err, errRun)
		assert.Zero(t, shutdowns)
	})

	t.Run("signal waits for the running operation", func(t *testing.T) {
		sig, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		release := make(chan struct{})
		shutdownCalled := make(chan struct{})

		result := make(chan error, 1)
		go func() {
			result <- runDetached(sig, func(ctx context.Context) error {
				assert.NoError(t, ctx.Err())
				close(shutdownCalled)
				return nil
			}, func(ctx context.Context) error {
				close(started)
				<-release
				return ctx.Err()
			})
		}()

		<-started
		cancel()
		<-shutdownCalled
		close(release)
		require.NoError(t, <-result)
	})
}
