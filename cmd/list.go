// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gim-launcher/gim/gim"
	"github.com/gim-launcher/gim/instance"
	"github.com/gim-launcher/gim/localize"
)

func list(fs afero.Fs) *cobra.Command {
	command := &cobra.Command{
		Use:   "list",
		Short: "Lists every instance",
		Args:  cobra.NoArgs,
	}
	command.RunE = withApp(fs, func(_ context.Context, app *gim.App, _ []string) error {
		return printInstances(command.OutOrStdout(), app.Localizer(), app.List())
	})

	return command
}

func printInstances(out io.Writer, l localize.Localizer, instances []*instance.Instance) error {
	w := tabwriter.NewWriter(out, 1, 1, 1, ' ', 0)
	fmt.Fprintln(w, "name\tsource\tversion\tupdated")
	failed := []string{}
	for _, i := range instances {
		updated := "never"
		if t := i.LastUpdated(); !t.IsZero() {
			updated = t.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", i.Name(), i.Source().GetType(), i.Version(), updated)
		if i.FailedUpdate() {
			failed = append(failed, i.Name())
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, name := range failed {
		fmt.Fprintln(out, warning(l.Localize(localize.InstanceFailed, name)))
	}
	return nil
}
