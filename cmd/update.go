// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"context"
	"errors"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gim-launcher/gim/gim"
)

func update(fs afero.Fs) *cobra.Command {
	all := false
	command := &cobra.Command{
		Use:   "update [name]",
		Short: "Updates an instance, or every instance with --all",
		Args:  cobra.MaximumNArgs(1),
	}
	command.Flags().BoolVar(&all, "all", false, "update every instance")
	command.RunE = withApp(fs, func(ctx context.Context, app *gim.App, args []string) error {
		if all {
			return app.UpdateAll(ctx)
		}
		if len(args) == 0 {
			return errors.New("an instance name or --all is required")
		}
		return app.Update(ctx, args[0])
	})

	return command
}
