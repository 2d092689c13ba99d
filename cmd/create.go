// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gim-launcher/gim/gim"
	"github.com/gim-launcher/gim/git"
)

func create(fs afero.Fs) *cobra.Command {
	specs := []string{}
	remote := ""
	strategy := ""
	content := ""
	command := &cobra.Command{
		Use:   "create <name>",
		Short: "Creates an instance from one or more sources",
		Long: `Creates an instance from one or more sources. Each --source is kind:target:

  download:<url>       executable downloaded from a URL
  local:<path>         executable already on disk
  release:<tag>        prebuilt release artifact
  latest-release       newest prebuilt release artifact
  pr-build:<number>    CI build of a pull request
  branch:<name>        branch built from source
  tag:<tag>            release tag built from source
  latest-tag           newest release tag built from source
  commit:<hash>        commit built from source
  pr:<number>          pull request built from source
  refs:<pattern>       every ref matching the pattern, merged

Several git sources are merged into one tree in the given order.`,
		Args: cobra.ExactArgs(1),
	}
	command.Flags().StringArrayVar(&specs, "source", nil, "source as kind:target, repeatable")
	command.Flags().StringVar(&remote, "remote", "", "remote of git, release and pull request sources (defaults to the upstream url)")
	command.Flags().StringVar(&strategy, "strategy", string(git.StrategyRecursive), "merge strategy for several sources (recursive, resolve or ours)")
	command.Flags().StringVar(&content, "content", "", "side taken on conflicting hunks (ours or theirs)")

	command.RunE = withApp(fs, func(ctx context.Context, app *gim.App, args []string) error {
		if remote == "" {
			remote = viper.GetString(upstreamURLKey)
		}
		mergeStrategy, err := git.ParseMergeStrategy(strategy)
		if err != nil {
			return err
		}
		contentStrategy, err := git.ParseContentStrategy(content)
		if err != nil {
			return err
		}

		name := args[0]
		sources, err := parseSources(name, remote, specs, mergeStrategy, contentStrategy)
		if err != nil {
			return err
		}

		b := app.NewBuilder().WithName(name).WithStrategy(mergeStrategy, contentStrategy)
		for _, s := range sources {
			b.AddSource(s)
		}
		return app.Create(ctx, b)
	})
	return command
}
