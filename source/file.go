// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/ava-labs/avalanchego/utils/perms"
	"go.uber.org/zap"

	"github.com/gim-launcher/gim/checksum"
	"github.com/gim-launcher/gim/localize"
	"github.com/gim-launcher/gim/url"
)

const (
	defaultDownloadName = "download"
	checkPrefix         = ".check-"

	fileDownloadShare = 0.9
)

var _ Source = &FileSource{}

// FileSource is a single executable that is either downloaded or already on
// disk. It is identified by the SHA-256 of its content.
type FileSource struct {
	Base       `yaml:",inline"`
	Target     string `yaml:"target"`
	Hash       string `yaml:"hash,omitempty"`
	Executable string `yaml:"executable,omitempty"`
}

func NewFileSource(name string, t Type, target string) (*FileSource, error) {
	switch t {
	case DirectDownload, LocalExecutable:
	default:
		return nil, fmt.Errorf("%w: file source of type %s", ErrUnsupported, t)
	}
	if strings.TrimSpace(target) == "" {
		return nil, ErrEmptyTarget
	}

	return &FileSource{
		Base:   newBase(name, t),
		Target: target,
	}, nil
}

func (f *FileSource) GetKind() Kind         { return KindFile }
func (f *FileSource) GetBranchName() string { return "" }
func (f *FileSource) GetExecutable() string { return f.Executable }
func (f *FileSource) IsGit() bool           { return false }
func (f *FileSource) CanBeBuilt() bool      { return false }

func (f *FileSource) Create(ctx context.Context, env *Env) error {
	dir := env.SourceDir(f)
	if err := env.Fs.MkdirAll(dir, perms.ReadWriteExecute); err != nil {
		return env.fail("create", f, "", dir, err)
	}

	content, err := f.fetch(ctx, env, filepath.Join(dir, downloadName(f.Target)))
	if err != nil {
		return err
	}
	sum, err := env.checksummer().Checksum(content)
	if err != nil {
		return env.fail("hash", f, "", content, err)
	}

	slot := filepath.Join(dir, ExecutableSlot)
	if err := linkExecutable(env.Fs, content, slot); err != nil {
		return env.fail("link", f, "", slot, err)
	}

	f.Hash = checksum.String(sum)
	f.Executable = slot
	f.stamp(env, shortHash(f.Hash))
	env.log().Info("file source ready",
		zap.String("source", f.Name),
		zap.String("target", f.Target),
		zap.String("hash", f.Hash),
	)
	return nil
}

func (f *FileSource) Update(ctx context.Context, env *Env) error {
	return f.Create(ctx, env)
}

// NeedsUpdate hashes the current content, downloading it to a scratch file
// for DIRECT_DOWNLOAD, and compares it with the stored hash.
func (f *FileSource) NeedsUpdate(ctx context.Context, env *Env) (bool, error) {
	if !f.Initialized {
		return true, nil
	}

	var content string
	switch f.Type {
	case LocalExecutable:
		content = f.Target
	case DirectDownload:
		dir := env.SourceDir(f)
		if err := env.Fs.MkdirAll(dir, perms.ReadWriteExecute); err != nil {
			return false, env.fail("check", f, "", dir, err)
		}
		content = filepath.Join(dir, checkPrefix+downloadName(f.Target))
		defer func() { _ = env.Fs.Remove(content) }()
		if err := f.download(ctx, env, content); err != nil {
			return false, err
		}
	default:
		return false, unsupported(f, "update check")
	}

	sum, err := env.checksummer().Checksum(content)
	if err != nil {
		return false, env.fail("hash", f, "", content, err)
	}
	return checksum.String(sum) != f.Hash, nil
}

func (f *FileSource) Delete(_ context.Context, env *Env) error {
	if err := env.Fs.RemoveAll(env.SourceDir(f)); err != nil {
		return env.fail("delete", f, "", env.SourceDir(f), err)
	}
	f.Executable = ""
	f.reset()
	return nil
}

func (f *FileSource) GetPublicName(l localize.Localizer) (string, error) {
	switch f.Type {
	case DirectDownload:
		return l.Localize(localize.SourceDirectDownload, f.Target), nil
	case LocalExecutable:
		return l.Localize(localize.SourceLocalExecutable, f.Target), nil
	}
	return "", unsupported(f, "public name")
}

func (f *FileSource) GetPublicVersion(l localize.Localizer) (string, error) {
	if !f.Initialized {
		return "", nil
	}
	return l.Localize(localize.VersionContent, shortHash(f.Hash)), nil
}

// fetch returns the path of the content to expose. Downloads land at dst.
func (f *FileSource) fetch(ctx context.Context, env *Env, dst string) (string, error) {
	switch f.Type {
	case LocalExecutable:
		if _, err := env.Fs.Stat(f.Target); err != nil {
			return "", env.fail("stat", f, "", f.Target, err)
		}
		return f.Target, nil
	case DirectDownload:
		if err := f.download(ctx, env, dst); err != nil {
			return "", err
		}
		if err := env.Fs.Chmod(dst, perms.ReadWriteExecute); err != nil {
			return "", env.fail("chmod", f, "", dst, err)
		}
		return dst, nil
	}
	return "", unsupported(f, "create")
}

func (f *FileSource) download(ctx context.Context, env *Env, dst string) error {
	env.Tracker.BeginTask(fileDownloadShare)
	defer env.Tracker.EndTask()

	if err := env.Downloader.Download(ctx, f.Target, dst, url.WithProgress(env.Tracker.Advance)); err != nil {
		return env.fail("download", f, f.Target, dst, err)
	}
	return nil
}

// downloadName is the last path element of a URL, ignoring any query.
func downloadName(target string) string {
	target, _, _ = strings.Cut(target, "?")
	target, _, _ = strings.Cut(target, "#")
	name := path.Base(target)
	if name == "." || name == "/" || name == "" || strings.HasSuffix(target, "/") {
		return defaultDownloadName
	}
	if name == ExecutableSlot {
		return defaultDownloadName + "-" + name
	}
	return name
}
