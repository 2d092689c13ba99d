// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"context"
	"path/filepath"

	"github.com/ava-labs/avalanchego/utils/perms"

	"github.com/gim-launcher/gim/url"
)

const (
	installDownloadShare = 0.7
	installUnpackShare   = 0.2
	installReplaceShare  = 0.1
)

type artifact struct {
	url      string
	fileName string
	// executable is relative to the unpacked root.
	executable string
	headers    map[string]string
}

// install downloads a into s's directory, unpacks it and swaps it in as the
// install directory. It returns the executable path.
func install(ctx context.Context, env *Env, s Source, a artifact) (string, error) {
	dir := env.SourceDir(s)
	download := filepath.Join(dir, downloadDir, a.fileName)
	if err := env.Fs.MkdirAll(filepath.Dir(download), perms.ReadWriteExecute); err != nil {
		return "", env.fail("install", s, "", download, err)
	}
	defer func() { _ = env.Fs.RemoveAll(filepath.Join(dir, downloadDir)) }()

	opts := []url.Option{url.WithProgress(env.Tracker.Advance)}
	for key, value := range a.headers {
		opts = append(opts, url.WithHeader(key, value))
	}
	env.Tracker.BeginTask(installDownloadShare)
	err := env.Downloader.Download(ctx, a.url, download, opts...)
	env.Tracker.EndTask()
	if err != nil {
		return "", env.fail("download", s, a.url, download, err)
	}

	staging := filepath.Join(dir, stagingDir)
	if err := env.Fs.RemoveAll(staging); err != nil {
		return "", env.fail("unpack", s, "", staging, err)
	}
	env.Tracker.BeginTask(installUnpackShare)
	err = env.Unpacker.Unpack(ctx, download, staging)
	env.Tracker.EndTask()
	if err != nil {
		_ = env.Fs.RemoveAll(staging)
		return "", env.fail("unpack", s, "", download, err)
	}

	executable := filepath.Join(staging, filepath.FromSlash(a.executable))
	if _, err := env.Fs.Stat(executable); err != nil {
		_ = env.Fs.RemoveAll(staging)
		return "", env.fail("locate executable", s, "", a.executable, err)
	}

	target := filepath.Join(dir, InstallDir)
	env.Tracker.BeginTask(installReplaceShare)
	err = replaceDir(env.Fs, staging, target)
	env.Tracker.EndTask()
	if err != nil {
		return "", env.fail("replace", s, "", target, err)
	}

	executable = filepath.Join(target, filepath.FromSlash(a.executable))
	if err := env.Fs.Chmod(executable, perms.ReadWriteExecute); err != nil {
		return "", env.fail("chmod", s, "", executable, err)
	}
	return executable, nil
}
