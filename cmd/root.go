// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/build"
	"github.com/gim-launcher/gim/config"
	"github.com/gim-launcher/gim/constant"
	"github.com/gim-launcher/gim/gim"
	"github.com/gim-launcher/gim/localize"
)

var (
	homeDir = os.ExpandEnv("$HOME")
	gimDir  = filepath.Join(homeDir, fmt.Sprintf(".%s", constant.AppName))
)

const (
	configFileKey      = "config-file"
	dataDirKey         = "data-dir"
	upstreamURLKey     = "upstream-url"
	trunkKey           = "trunk"
	credentialsFileKey = "credentials-file"
	buildSystemKey     = "build-system"
	executableNameKey  = "executable-name"
	artifactTableKey   = "artifact-table"
	ciWorkflowKey      = "ci-workflow"
	metricsFileKey     = "metrics-file"
	verboseKey         = "verbose"

	envFile = ".env"
)

func New(fs afero.Fs) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:           constant.AppName,
		Short:         "gim installs and updates game builds from releases, branches and pull requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// we need to initialize our config here before each command starts,
			// since Cobra doesn't actually parse any of the flags until
			// cobra.Execute() is called.
			return initializeConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(configFileKey, "", "path to configuration file for gim")
	flags.String(dataDirKey, gimDir, "path to the directory gim keeps its instances in")
	flags.String(upstreamURLKey, constant.UpstreamURL, "repository git sources are fetched from")
	flags.String(trunkKey, constant.TrunkBranch, "trunk branch of the upstream repository")
	flags.String(credentialsFileKey, "", "path to credentials file")
	flags.String(buildSystemKey, string(build.CMake), "build system used for git sources (cmake or meson)")
	flags.String(executableNameKey, constant.ProjectName, "name of the executable the build produces")
	flags.String(artifactTableKey, "", "path to a YAML file overriding release artifact names")
	flags.String(ciWorkflowKey, constant.CIWorkflow, "workflow file publishing pull request builds")
	flags.String(metricsFileKey, "", "write metrics in the textfile collector format to this path")
	flags.Bool(verboseKey, false, "log debug output")

	errs := wrappers.Errs{}
	for _, key := range []string{
		configFileKey,
		dataDirKey,
		upstreamURLKey,
		trunkKey,
		credentialsFileKey,
		buildSystemKey,
		executableNameKey,
		artifactTableKey,
		ciWorkflowKey,
		metricsFileKey,
		verboseKey,
	} {
		errs.Add(viper.BindPFlag(key, flags.Lookup(key)))
	}
	if errs.Errored() {
		return nil, errs.Err
	}

	rootCmd.AddCommand(
		create(fs),
		update(fs),
		remove(fs),
		list(fs),
		describe(fs),
	)

	return rootCmd, nil
}

// initializes config from file, if available, and the environment from the
// data directory's .env file.
func initializeConfig() error {
	if viper.IsSet(configFileKey) {
		cfgFile := os.ExpandEnv(viper.GetString(configFileKey))
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}

	err := godotenv.Load(filepath.Join(viper.GetString(dataDirKey), envFile))
	if err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return err
	}
	return nil
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool(verboseKey) {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func initApp(ctx context.Context, fs afero.Fs, progressOut io.Writer) (*gim.App, error) {
	credentials, err := config.LoadCredential(fs, viper.GetString(credentialsFileKey))
	if err != nil {
		return nil, err
	}
	artifacts, err := config.LoadArtifactTable(fs, viper.GetString(artifactTableKey))
	if err != nil {
		return nil, err
	}
	system, err := build.ParseSystem(viper.GetString(buildSystemKey))
	if err != nil {
		return nil, err
	}
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	return gim.New(ctx, gim.Config{
		Directory:      viper.GetString(dataDirKey),
		UpstreamURL:    viper.GetString(upstreamURLKey),
		Trunk:          viper.GetString(trunkKey),
		Credential:     credentials,
		BuildSystem:    system,
		ExecutableName: viper.GetString(executableNameKey),
		Artifacts:      artifacts,
		CIWorkflow:     viper.GetString(ciWorkflowKey),
		Fs:             fs,
		Log:            log,
		Progress:       newProgressPrinter(progressOut).observe,
	})
}

// withApp runs f against a freshly opened App and shuts it down afterwards,
// waiting for every workflow f started. An interrupt does not cancel running
// workflows, it only stops new ones from starting.
func withApp(fs afero.Fs, f func(ctx context.Context, app *gim.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.WithoutCancel(cmd.Context())
		app, err := initApp(ctx, fs, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		runErr := runDetached(cmd.Context(), func(ctx context.Context) error {
			fmt.Fprintln(cmd.ErrOrStderr(), warning(app.Localizer().Localize(localize.ShutdownWaiting)))
			return app.Shutdown(ctx)
		}, func(ctx context.Context) error {
			return f(ctx, app, args)
		})

		errs := wrappers.Errs{}
		errs.Add(runErr)
		if path := viper.GetString(metricsFileKey); path != "" {
			errs.Add(app.WriteMetrics(path))
		}
		errs.Add(app.Shutdown(ctx))
		return errs.Err
	}
}

// runDetached runs run on a context that is never canceled by sig. When sig
// is done first, shutdown is called and run is still waited for.
func runDetached(sig context.Context, shutdown, run func(context.Context) error) error {
	ctx := context.WithoutCancel(sig)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-sig.Done():
	}

	errs := wrappers.Errs{}
	errs.Add(shutdown(ctx))
	errs.Add(<-done)
	return errs.Err
}
