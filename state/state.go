// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ava-labs/avalanchego/utils/perms"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/gim-launcher/gim/instance"
)

const (
	stateFile     = "gim.state"
	formatVersion = 1
)

var _ instance.Store = &File{}

// document is the on-disk layout of the state file.
type document struct {
	Version   int                  `yaml:"version"`
	Instances []*instance.Instance `yaml:"instances"`
}

// File stores the instance list as YAML at <dir>/gim.state.
type File struct {
	fs   afero.Fs
	path string
}

func New(fs afero.Fs, dir string) *File {
	return &File{
		fs:   fs,
		path: filepath.Join(dir, stateFile),
	}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Load() ([]*instance.Instance, error) {
	b, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		// The statefile doesn't exist yet; it is created by the first Save.
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	doc := document{}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	if doc.Version > formatVersion {
		return nil, fmt.Errorf("%s has format version %d, newer than supported version %d", f.path, doc.Version, formatVersion)
	}
	return doc.Instances, nil
}

// Save replaces the state file. The new content is written next to it and
// renamed into place.
func (f *File) Save(instances []*instance.Instance) error {
	bytes, err := yaml.Marshal(document{
		Version:   formatVersion,
		Instances: instances,
	})
	if err != nil {
		return err
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.path), perms.ReadWriteExecute); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, bytes, perms.ReadWrite); err != nil {
		return err
	}
	return f.fs.Rename(tmp, f.path)
}
