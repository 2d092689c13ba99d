// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ava-labs/avalanchego/utils/perms"
	"github.com/spf13/afero"
)

var ErrUnsafePath = errors.New("archive entry escapes destination")

var tarSuffixes = []string{".tar", ".tar.gz", ".tgz", ".tar.xz", ".tar.bz2"}

type Unpacker interface {
	// Unpack extracts src into dst, creating dst if needed. Files that are
	// not archives are copied into dst unchanged.
	Unpack(ctx context.Context, src string, dst string) error
}

var _ Unpacker = &Extractor{}

type Extractor struct {
	Fs afero.Fs
}

func NewExtractor(fs afero.Fs) *Extractor {
	return &Extractor{Fs: fs}
}

func (e Extractor) Unpack(ctx context.Context, src string, dst string) error {
	if err := e.Fs.MkdirAll(dst, perms.ReadWriteExecute); err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(src, ".zip"):
		return e.unzip(src, dst)
	case isTar(src):
		return untar(ctx, src, dst)
	default:
		return e.copyFile(src, filepath.Join(dst, filepath.Base(src)))
	}
}

func isTar(path string) bool {
	for _, suffix := range tarSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// untar shells out like the rest of the install tooling does; compressed
// variants are detected by tar itself.
func untar(ctx context.Context, src string, dst string) error {
	cmd := exec.CommandContext(ctx, "tar", "xf", src, "-C", dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("extracting %s: %w: %s", src, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (e Extractor) unzip(src string, dst string) error {
	f, err := e.Fs.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	reader, err := zip.NewReader(f, info.Size())
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, src)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	for _, entry := range reader.File {
		target, err := within(dst, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := e.Fs.MkdirAll(target, perms.ReadWriteExecute); err != nil {
				return err
			}
			continue
		}
		if err := e.extract(entry, target); err != nil {
			return fmt.Errorf("extracting %s: %w", entry.Name, err)
		}
	}
	return nil
}

func (e Extractor) extract(entry *zip.File, target string) error {
	if err := e.Fs.MkdirAll(filepath.Dir(target), perms.ReadWriteExecute); err != nil {
		return err
	}
	in, err := entry.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = perms.ReadWrite
	}
	out, err := e.Fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (e Extractor) copyFile(src string, dst string) error {
	in, err := e.Fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := e.Fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perms.ReadWriteExecute)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// within joins name onto dst and refuses results outside dst.
func within(dst string, name string) (string, error) {
	target := filepath.Join(dst, name)
	rel, err := filepath.Rel(dst, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}
