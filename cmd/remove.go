// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gim-launcher/gim/gim"
)

func remove(fs afero.Fs) *cobra.Command {
	command := &cobra.Command{
		Use:   "remove <name>",
		Short: "Removes an instance and everything it downloaded",
		Args:  cobra.ExactArgs(1),
	}
	command.RunE = withApp(fs, func(ctx context.Context, app *gim.App, args []string) error {
		return app.Remove(ctx, args[0])
	})

	return command
}
