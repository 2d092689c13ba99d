// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gim-launcher/gim/gim"
	"github.com/gim-launcher/gim/localize"
	"github.com/gim-launcher/gim/source"
)

func describe(fs afero.Fs) *cobra.Command {
	command := &cobra.Command{
		Use:   "describe <name>",
		Short: "Shows the source of an instance",
		Args:  cobra.ExactArgs(1),
	}
	command.RunE = withApp(fs, func(_ context.Context, app *gim.App, args []string) error {
		i, err := app.Get(args[0])
		if err != nil {
			return err
		}
		fields, err := app.Describe(args[0])
		if err != nil {
			return err
		}

		out := command.OutOrStdout()
		if err := printFields(out, fields); err != nil {
			return err
		}
		if i.FailedUpdate() {
			fmt.Fprintln(out, warning(app.Localizer().Localize(localize.InstanceFailed, i.Name())))
		}
		return nil
	})

	return command
}

func printFields(out io.Writer, fields []source.Field) error {
	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	for _, f := range fields {
		label := f.Label
		if f.Editable {
			label += " *"
		}
		fmt.Fprintf(w, "%s\t%s\n", labelStyle.Render(label), f.Value)
	}
	return w.Flush()
}
