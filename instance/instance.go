// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/utils/perms"
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gim-launcher/gim/progress"
	"github.com/gim-launcher/gim/source"
)

const (
	sourceShare     = 0.5
	buildShare      = 0.4
	executableShare = 0.1
)

var ErrBusy = errors.New("instance is busy")

// Record is the persisted form of an instance.
type Record struct {
	Name         string          `yaml:"name"`
	Source       source.Envelope `yaml:"source"`
	Executable   string          `yaml:"executable,omitempty"`
	LastUpdated  time.Time       `yaml:"lastUpdated,omitempty"`
	Version      string          `yaml:"version,omitempty"`
	FailedUpdate bool            `yaml:"failedUpdate,omitempty"`
}

// Instance is one installation of the game backed by a single source graph.
// Its operations are refused with ErrBusy while another one is running.
//
// mu is held for the whole of an operation, network and build included.
// Readers never take it: getters and MarshalYAML see the record as of the
// last commit.
type Instance struct {
	mu     sync.Mutex
	record Record

	viewMu  sync.RWMutex
	view    Record
	node    *yaml.Node
	nodeErr error

	trackerOnce sync.Once
	tracker     *progress.Tracker
}

func New(name string, s source.Source) *Instance {
	i := &Instance{
		record: Record{
			Name:   name,
			Source: source.Envelope{Source: s},
		},
	}
	i.commit()
	return i
}

// commit publishes the record to readers. Callers hold mu.
func (i *Instance) commit() {
	node := &yaml.Node{}
	err := node.Encode(i.record)

	i.viewMu.Lock()
	defer i.viewMu.Unlock()
	i.view = i.record
	i.node = node
	i.nodeErr = err
}

func (i *Instance) committed() Record {
	i.viewMu.RLock()
	defer i.viewMu.RUnlock()
	return i.view
}

func (i *Instance) Name() string {
	return i.committed().Name
}

func (i *Instance) Source() source.Source {
	return i.committed().Source.Source
}

func (i *Instance) Executable() string {
	return i.committed().Executable
}

func (i *Instance) LastUpdated() time.Time {
	return i.committed().LastUpdated
}

func (i *Instance) Version() string {
	return i.committed().Version
}

// FailedUpdate reports whether the last create or update failed.
func (i *Instance) FailedUpdate() bool {
	return i.committed().FailedUpdate
}

// IsGit reports whether operations on this instance need the shared
// repository.
func (i *Instance) IsGit() bool {
	return i.Source().IsGit()
}

// Tracker reports the progress of the running operation. It is not persisted.
// Once the instance is closed every operation fails with ErrBusy.
func (i *Instance) Tracker() *progress.Tracker {
	i.trackerOnce.Do(func() {
		i.tracker = progress.New()
	})
	return i.tracker
}

// Close stops the tracker. The instance accepts no operation afterwards.
func (i *Instance) Close() {
	i.trackerOnce.Do(func() {})
	i.tracker.Close()
}

// Dir is the instance's directory under the instances root.
func (i *Instance) Dir(svc *Services) string {
	return filepath.Join(svc.Dir, DirName(i.Name()))
}

// DirName is the directory an instance called name lives in.
func DirName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (i *Instance) MarshalYAML() (interface{}, error) {
	i.viewMu.RLock()
	defer i.viewMu.RUnlock()
	if i.nodeErr != nil {
		return nil, i.nodeErr
	}
	if i.node == nil {
		return i.view, nil
	}
	return i.node, nil
}

func (i *Instance) UnmarshalYAML(value *yaml.Node) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := value.Decode(&i.record); err != nil {
		return err
	}
	i.commit()
	return nil
}

// Create materializes the source, builds it if needed and registers the
// instance.
func (i *Instance) Create(ctx context.Context, svc *Services) error {
	tracker := i.Tracker()
	if !tracker.TryStart() {
		return ErrBusy
	}
	defer tracker.EndAll()

	if svc.Registry.Contains(i.Name()) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, i.Name())
	}

	err := i.create(ctx, svc)
	if err == nil {
		err = svc.Registry.Register(i)
	}
	if err != nil {
		tracker.SetFailedUpdate(true)
		i.setFailed(true)
		svc.log().Error("failed to create instance",
			zap.String("instance", i.Name()),
			zap.Error(err),
		)
		if errors.Is(err, ErrDuplicateName) {
			return err
		}
		if cleanupErr := i.discard(ctx, svc); cleanupErr != nil {
			svc.log().Warn("failed to clean up instance",
				zap.String("instance", i.Name()),
				zap.Error(cleanupErr),
			)
		}
		return err
	}

	svc.log().Info("created instance",
		zap.String("instance", i.Name()),
		zap.String("version", i.Version()),
		zap.String("executable", i.Executable()),
	)
	return nil
}

func (i *Instance) create(ctx context.Context, svc *Services) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	defer i.commit()

	dir := filepath.Join(svc.Dir, DirName(i.record.Name))
	if err := svc.Fs.MkdirAll(dir, perms.ReadWriteExecute); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	env := i.env(svc, dir)
	src := i.record.Source.Source
	env.Tracker.BeginTask(sourceShare)
	err := src.Create(ctx, env)
	env.Tracker.EndTask()
	if err != nil {
		return fmt.Errorf("creating source of %s: %w", i.record.Name, err)
	}
	return i.materialize(ctx, svc, env, dir)
}

// Update brings the instance in step with its source. It reports whether
// anything changed.
func (i *Instance) Update(ctx context.Context, svc *Services) (bool, error) {
	tracker := i.Tracker()
	if !tracker.TryStart() {
		return false, ErrBusy
	}
	defer tracker.EndAll()

	updated, err := i.update(ctx, svc)
	if err != nil {
		tracker.SetFailedUpdate(true)
		i.setFailed(true)
		if saveErr := svc.Registry.Save(); saveErr != nil {
			svc.log().Error("failed to persist failed update",
				zap.String("instance", i.Name()),
				zap.Error(saveErr),
			)
		}
		return false, err
	}
	if !updated {
		svc.log().Info("instance is up to date", zap.String("instance", i.Name()))
		return false, nil
	}

	tracker.SetUpdated(true)
	if err := svc.Registry.Save(); err != nil {
		return true, err
	}
	svc.log().Info("updated instance",
		zap.String("instance", i.Name()),
		zap.String("version", i.Version()),
	)
	return true, nil
}

func (i *Instance) update(ctx context.Context, svc *Services) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	defer i.commit()

	dir := filepath.Join(svc.Dir, DirName(i.record.Name))
	env := i.env(svc, dir)
	src := i.record.Source.Source

	// A failed attempt may already have moved the source, so its check would
	// report no change. Retry it unconditionally.
	needed := i.record.FailedUpdate
	if !needed {
		var err error
		needed, err = src.NeedsUpdate(ctx, env)
		if err != nil {
			return false, fmt.Errorf("checking %s for updates: %w", i.record.Name, err)
		}
	}
	if !needed {
		return false, nil
	}

	env.Tracker.BeginTask(sourceShare)
	err := src.Update(ctx, env)
	env.Tracker.EndTask()
	if err != nil {
		return false, fmt.Errorf("updating source of %s: %w", i.record.Name, err)
	}
	if err := i.materialize(ctx, svc, env, dir); err != nil {
		return false, err
	}
	i.record.FailedUpdate = false
	return true, nil
}

// materialize builds the source when it can be built and stamps the
// executable and version. Callers hold mu.
func (i *Instance) materialize(ctx context.Context, svc *Services, env *source.Env, dir string) error {
	src := i.record.Source.Source
	executable := src.GetExecutable()

	if src.CanBeBuilt() {
		env.Tracker.BeginTask(buildShare)
		built, err := svc.Builder.Build(ctx, svc.Repository.Path())
		env.Tracker.EndTask()
		if err != nil {
			return fmt.Errorf("building %s: %w", i.record.Name, err)
		}

		env.Tracker.BeginTask(executableShare)
		executable = filepath.Join(dir, filepath.Base(built))
		err = copyExecutable(svc, built, executable)
		env.Tracker.EndTask()
		if err != nil {
			return fmt.Errorf("copying executable of %s: %w", i.record.Name, err)
		}
	}

	i.record.Executable = executable
	i.record.Version = src.GetVersion()
	i.record.LastUpdated = svc.now()
	return nil
}

func copyExecutable(svc *Services, src, dst string) error {
	in, err := svc.Fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := svc.Fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perms.ReadWriteExecute)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Remove deletes the source graph, its branches and the instance directory,
// then unregisters the instance. A failure leaves it registered so the
// removal can be retried.
func (i *Instance) Remove(ctx context.Context, svc *Services) error {
	tracker := i.Tracker()
	if !tracker.TryStart() {
		return ErrBusy
	}
	defer tracker.EndAll()

	if err := i.remove(ctx, svc); err != nil {
		return err
	}
	if err := svc.Registry.Unregister(i.Name()); err != nil {
		return err
	}
	svc.log().Info("removed instance", zap.String("instance", i.Name()))
	return nil
}

func (i *Instance) remove(ctx context.Context, svc *Services) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	defer i.commit()

	dir := filepath.Join(svc.Dir, DirName(i.record.Name))
	if err := i.record.Source.Delete(ctx, i.env(svc, dir)); err != nil {
		return fmt.Errorf("deleting source of %s: %w", i.record.Name, err)
	}
	if err := svc.Fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting %s: %w", dir, err)
	}
	return nil
}

// discard deletes whatever a failed create left behind. The instance was
// never registered, so nothing else could remove it.
func (i *Instance) discard(ctx context.Context, svc *Services) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	defer i.commit()

	dir := filepath.Join(svc.Dir, DirName(i.record.Name))
	errs := wrappers.Errs{}
	errs.Add(i.record.Source.Delete(ctx, i.env(svc, dir)))
	if err := svc.Fs.RemoveAll(dir); err != nil {
		errs.Add(fmt.Errorf("deleting %s: %w", dir, err))
	}
	i.record.Executable = ""
	i.record.Version = ""
	return errs.Err
}

func (i *Instance) setFailed(failed bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.record.FailedUpdate = failed
	i.commit()
}

func (i *Instance) env(svc *Services, dir string) *source.Env {
	return &source.Env{
		Dir:        dir,
		Fs:         svc.Fs,
		Repository: svc.Repository,
		Downloader: svc.Downloader,
		Unpacker:   svc.Unpacker,
		CI:         svc.CI,
		Checksum:   svc.Checksum,
		Artifacts:  svc.Artifacts,
		Platform:   svc.Platform,
		Trunk:      svc.Trunk,
		Tracker:    i.Tracker(),
		Metrics:    svc.Metrics,
		Log:        svc.log().With(zap.String("instance", i.record.Name)),
		Now:        svc.Now,
	}
}
