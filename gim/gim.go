// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/utils/perms"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/juju/fslock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/gim-launcher/gim/archive"
	"github.com/gim-launcher/gim/build"
	"github.com/gim-launcher/gim/checksum"
	"github.com/gim-launcher/gim/ci"
	"github.com/gim-launcher/gim/config"
	"github.com/gim-launcher/gim/constant"
	"github.com/gim-launcher/gim/engine"
	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/instance"
	"github.com/gim-launcher/gim/localize"
	"github.com/gim-launcher/gim/metrics"
	"github.com/gim-launcher/gim/progress"
	"github.com/gim-launcher/gim/source"
	"github.com/gim-launcher/gim/state"
	"github.com/gim-launcher/gim/url"
	"github.com/gim-launcher/gim/workflow"
)

const (
	repositoryDir = "repository"
	instancesDir  = "instances"
	lockFile      = "gim.lock"
)

var ErrLocked = errors.New("another gim process is using the data directory")

// ProgressFunc is told about every progress change of the named instance. It
// may be called from several goroutines at once.
type ProgressFunc func(name string, s progress.Snapshot)

type Config struct {
	Directory   string
	UpstreamURL string
	Trunk       string
	Credential  config.Credential
	BuildSystem build.System
	// ExecutableName is the file the build system produces, without a
	// platform suffix.
	ExecutableName string
	Artifacts      config.ArtifactTable
	CIWorkflow     string
	Language       language.Tag
	Fs             afero.Fs
	Log            *zap.Logger
	// Out receives user-facing lines. Defaults to stdout.
	Out io.Writer
	// Progress, if set, follows every operation the App runs.
	Progress ProgressFunc

	// The collaborators below default to real implementations and are
	// overridden in tests.
	Repository git.Repository
	Downloader url.Client
	CI         ci.Client
	Builder    build.Builder
}

// App owns every collaborator of a gim process. Only one App may use a data
// directory at a time.
type App struct {
	services  *instance.Services
	registry  *instance.Registry
	engine    *engine.WorkflowEngine
	localizer localize.Localizer
	gatherer  prometheus.Gatherer
	out       io.Writer
	log       *zap.Logger

	progress ProgressFunc
	// observed holds the instances progress is already attached to.
	observedLock sync.Mutex
	observed     map[*instance.Instance]struct{}

	lock       *fslock.Lock
	unlockOnce sync.Once
}

func New(ctx context.Context, config Config) (*App, error) {
	fs := config.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}
	out := config.Out
	if out == nil {
		out = os.Stdout
	}
	if err := fs.MkdirAll(config.Directory, perms.ReadWriteExecute); err != nil {
		return nil, err
	}

	lock := fslock.New(filepath.Join(config.Directory, lockFile))
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, fslock.ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, config.Directory)
		}
		return nil, err
	}

	a, err := newApp(ctx, config, fs, log, out)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	a.lock = lock
	return a, nil
}

func newApp(ctx context.Context, config Config, fs afero.Fs, log *zap.Logger, out io.Writer) (*App, error) {
	registerer := prometheus.NewRegistry()
	m, err := metrics.New(constant.AppName, registerer)
	if err != nil {
		return nil, err
	}

	tag := config.Language
	if tag == language.Und {
		tag = language.English
	}
	localizer, err := localize.New(tag)
	if err != nil {
		return nil, err
	}

	artifacts := artifactTable(config.Artifacts)

	repo := config.Repository
	if repo == nil {
		upstream := config.UpstreamURL
		if upstream == "" {
			upstream = constant.UpstreamURL
		}
		repo = git.NewManager(git.Config{
			Path:        filepath.Join(config.Directory, repositoryDir),
			UpstreamURL: upstream,
			Trunk:       config.Trunk,
			Auth:        auth(config.Credential),
			Log:         log.Named("git"),
			Metrics:     m,
		})
	}

	downloader := config.Downloader
	if downloader == nil {
		downloader = url.NewClient(url.Config{Log: log.Named("download"), Metrics: m})
	}

	ciClient := config.CI
	if ciClient == nil {
		token := config.Credential.Token
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		workflowFile := config.CIWorkflow
		if workflowFile == "" {
			workflowFile = constant.CIWorkflow
		}
		ciClient, err = ci.NewGitHub(ctx, ci.Config{
			Repository: artifacts.Repository,
			Workflow:   workflowFile,
			Token:      token,
			Log:        log.Named("ci"),
		})
		if err != nil {
			return nil, err
		}
	}

	builder := config.Builder
	if builder == nil {
		system := config.BuildSystem
		if system == "" {
			system = build.CMake
		}
		executable := config.ExecutableName
		if executable == "" {
			executable = constant.ProjectName
		}
		builder, err = build.New(build.Config{
			System:     system,
			Executable: executable,
			Fs:         fs,
			Log:        log.Named("build"),
		})
		if err != nil {
			return nil, err
		}
	}

	registry, err := instance.NewRegistry(state.New(fs, config.Directory), log)
	if err != nil {
		return nil, err
	}

	services := &instance.Services{
		Dir:        filepath.Join(config.Directory, instancesDir),
		Fs:         fs,
		Repository: repo,
		Downloader: downloader,
		Unpacker:   archive.NewExtractor(fs),
		CI:         ciClient,
		Checksum:   checksum.NewSHA256(fs),
		Artifacts:  artifacts,
		Platform:   source.CurrentPlatform(),
		Trunk:      config.Trunk,
		Builder:    builder,
		Registry:   registry,
		Metrics:    m,
		Log:        log,
		Now:        time.Now,
	}

	return &App{
		services:  services,
		registry:  registry,
		engine:    engine.NewWorkflowEngine(engine.Config{Gate: repo, Metrics: m, Log: log}),
		localizer: localizer,
		gatherer:  registerer,
		out:       out,
		log:       log,
		progress:  config.Progress,
		observed:  make(map[*instance.Instance]struct{}),
	}, nil
}

func artifactTable(t config.ArtifactTable) config.ArtifactTable {
	if len(t.Platforms) == 0 {
		return config.DefaultArtifactTable()
	}
	return t
}

func auth(c config.Credential) transport.AuthMethod {
	if c.Username == "" && c.Password == "" {
		return nil
	}
	return &http.BasicAuth{Username: c.Username, Password: c.Password}
}

func (a *App) Localizer() localize.Localizer {
	return a.localizer
}

// NewBuilder starts describing a new instance.
func (a *App) NewBuilder() *instance.Builder {
	return instance.NewBuilder(a.registry)
}

// observe attaches the progress callback to i once.
func (a *App) observe(i *instance.Instance) {
	if a.progress == nil {
		return
	}

	a.observedLock.Lock()
	defer a.observedLock.Unlock()
	if _, ok := a.observed[i]; ok {
		return
	}
	a.observed[i] = struct{}{}

	name := i.Name()
	i.Tracker().Observe(func(s progress.Snapshot) {
		a.progress(name, s)
	})
}

// forget closes i once no operation can reach it anymore.
func (a *App) forget(i *instance.Instance) {
	a.observedLock.Lock()
	delete(a.observed, i)
	a.observedLock.Unlock()
	i.Close()
}

// Create builds and registers a new instance. An instance that fails to be
// created is discarded.
func (a *App) Create(ctx context.Context, b *instance.Builder) error {
	i, err := b.Build()
	if err != nil {
		return err
	}
	a.observe(i)
	err = a.engine.Execute(ctx, workflow.NewCreate(workflow.CreateConfig{
		Instance:  i,
		Services:  a.services,
		Localizer: a.localizer,
		Out:       a.out,
	}))
	if err != nil {
		a.forget(i)
	}
	return err
}

func (a *App) Update(ctx context.Context, name string) error {
	i, err := a.registry.Get(name)
	if err != nil {
		return err
	}
	a.observe(i)
	return a.engine.Execute(ctx, a.update(i))
}

// UpdateAll updates every instance concurrently. Git-backed instances still
// take turns on the shared repository. Every instance is attempted and the
// first failure is returned.
func (a *App) UpdateAll(ctx context.Context) error {
	g := errgroup.Group{}
	for _, i := range a.registry.List() {
		a.observe(i)
		wf := a.update(i)
		g.Go(func() error {
			return <-a.engine.Submit(ctx, wf)
		})
	}
	return g.Wait()
}

func (a *App) update(i *instance.Instance) workflow.Workflow {
	return workflow.NewUpdate(workflow.UpdateConfig{
		Instance:  i,
		Services:  a.services,
		Localizer: a.localizer,
		Out:       a.out,
	})
}

func (a *App) Remove(ctx context.Context, name string) error {
	i, err := a.registry.Get(name)
	if err != nil {
		return err
	}
	err = a.engine.Execute(ctx, workflow.NewRemove(workflow.RemoveConfig{
		Instance:  i,
		Services:  a.services,
		Localizer: a.localizer,
		Out:       a.out,
	}))
	if err != nil {
		return err
	}
	a.forget(i)
	return nil
}

func (a *App) List() []*instance.Instance {
	return a.registry.List()
}

func (a *App) Get(name string) (*instance.Instance, error) {
	return a.registry.Get(name)
}

// Describe lists the fields of the named instance's source.
func (a *App) Describe(name string) ([]source.Field, error) {
	i, err := a.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return source.Describe(i.Source()), nil
}

// WriteMetrics dumps the process metrics in the textfile collector format.
func (a *App) WriteMetrics(path string) error {
	return metrics.WriteTextfile(path, a.gatherer)
}

// Shutdown waits for running workflows, closes every instance and releases
// the data directory. Only the first call releases the lock.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.engine.Shutdown(ctx)
	a.unlockOnce.Do(func() {
		for _, i := range a.registry.List() {
			a.forget(i)
		}
		if a.lock == nil {
			return
		}
		if unlockErr := a.lock.Unlock(); err == nil {
			err = unlockErr
		}
	})
	return err
}
