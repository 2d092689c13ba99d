// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ava-labs/avalanchego/utils/perms"
	"github.com/otiai10/copy"
	"github.com/spf13/afero"
)

const backupSuffix = ".bak"

// linkExecutable points slot at target, copying when the file system cannot
// symlink.
func linkExecutable(fs afero.Fs, target, slot string) error {
	if err := fs.Remove(slot); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if linker, ok := fs.(afero.Linker); ok {
		if err := linker.SymlinkIfPossible(target, slot); err == nil {
			return nil
		}
	}
	return copyFile(fs, target, slot, perms.ReadWriteExecute)
}

func copyFile(fs afero.Fs, src, dst string, mode os.FileMode) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func copyTree(fs afero.Fs, src, dst string) error {
	if _, ok := fs.(*afero.OsFs); ok {
		return copy.Copy(src, dst, copy.Options{
			OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
		})
	}

	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, info.Mode().Perm()|perms.ReadWriteExecute)
		}
		return copyFile(fs, path, target, info.Mode().Perm())
	})
}

// replaceDir swaps the contents of target for staging. The previous target
// is kept as a backup until the copy succeeds and restored otherwise.
func replaceDir(fs afero.Fs, staging, target string) error {
	backup := target + backupSuffix
	if err := fs.RemoveAll(backup); err != nil {
		return err
	}

	hadTarget := false
	switch _, err := fs.Stat(target); {
	case err == nil:
		if err := fs.Rename(target, backup); err != nil {
			return err
		}
		hadTarget = true
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	if err := copyTree(fs, staging, target); err != nil {
		_ = fs.RemoveAll(target)
		if hadTarget {
			if restoreErr := fs.Rename(backup, target); restoreErr != nil {
				return fmt.Errorf("%w (restoring previous install failed: %v)", err, restoreErr)
			}
		}
		return err
	}

	if err := fs.RemoveAll(backup); err != nil {
		return err
	}
	return fs.RemoveAll(staging)
}
