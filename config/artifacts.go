// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/gim-launcher/gim/constant"
	"github.com/gim-launcher/gim/versioning"
)

var ErrNoArtifact = errors.New("no artifact published for this platform")

const releaseURL = "https://github.com/{repository}/releases/download/{tag}/{file}"

// ArtifactTable names the prebuilt artifacts published for each platform.
// Releases older than Cutover use the legacy file names; the cutover release,
// every later one and continuous use the current names.
type ArtifactTable struct {
	Project     string             `yaml:"project"`
	Repository  string             `yaml:"repository"`
	DownloadURL string             `yaml:"downloadUrl"`
	Cutover     string             `yaml:"cutover"`
	Platforms   []PlatformArtifact `yaml:"platforms"`
}

type PlatformArtifact struct {
	OS         string `yaml:"os"`
	Arch       string `yaml:"arch"`
	Legacy     string `yaml:"legacy,omitempty"`
	Current    string `yaml:"current"`
	CI         string `yaml:"ci,omitempty"`
	Executable string `yaml:"executable"`
}

// Artifact is a resolved release download.
type Artifact struct {
	URL      string
	FileName string
	// Executable is relative to the unpacked archive root.
	Executable string
}

func DefaultArtifactTable() ArtifactTable {
	return ArtifactTable{
		Project:     constant.ProjectName,
		Repository:  constant.UpstreamRepository,
		DownloadURL: releaseURL,
		Cutover:     "0.10",
		Platforms: []PlatformArtifact{
			{
				OS:         "linux",
				Arch:       "amd64",
				Legacy:     "{project}-{version}-linux64.tar.gz",
				Current:    "{project}-linux-x86_64.tar.gz",
				CI:         "{project}-linux-x86_64",
				Executable: "bin/{project}",
			},
			{
				OS:         "linux",
				Arch:       "arm64",
				Current:    "{project}-linux-aarch64.tar.gz",
				CI:         "{project}-linux-aarch64",
				Executable: "bin/{project}",
			},
			{
				OS:         "darwin",
				Arch:       "amd64",
				Legacy:     "{project}-{version}-osx.zip",
				Current:    "{project}-macos.zip",
				CI:         "{project}-macos",
				Executable: "{project}.app/Contents/MacOS/{project}",
			},
			{
				OS:         "darwin",
				Arch:       "arm64",
				Current:    "{project}-macos.zip",
				CI:         "{project}-macos",
				Executable: "{project}.app/Contents/MacOS/{project}",
			},
			{
				OS:         "windows",
				Arch:       "amd64",
				Legacy:     "{project}-{version}-win64.zip",
				Current:    "{project}-windows-x86_64.zip",
				CI:         "{project}-windows-x86_64",
				Executable: "{project}.exe",
			},
			{
				OS:         "windows",
				Arch:       "386",
				Legacy:     "{project}-{version}-win32.zip",
				Current:    "{project}-windows-x86.zip",
				Executable: "{project}.exe",
			},
		},
	}
}

// LoadArtifactTable reads a table from path, or returns the default table when
// path is empty.
func LoadArtifactTable(fs afero.Fs, path string) (ArtifactTable, error) {
	if path == "" {
		return DefaultArtifactTable(), nil
	}

	bytes, err := afero.ReadFile(fs, path)
	if err != nil {
		return ArtifactTable{}, err
	}
	table := DefaultArtifactTable()
	if err := yaml.Unmarshal(bytes, &table); err != nil {
		return ArtifactTable{}, fmt.Errorf("parsing artifact table %s: %w", path, err)
	}
	return table, nil
}

func (t ArtifactTable) platform(goos, goarch string) (PlatformArtifact, error) {
	for _, p := range t.Platforms {
		if p.OS == goos && p.Arch == goarch {
			return p, nil
		}
	}
	return PlatformArtifact{}, fmt.Errorf("%w: %s/%s", ErrNoArtifact, goos, goarch)
}

// IsLegacy reports whether tag predates the cutover release.
func (t ArtifactTable) IsLegacy(tag string) bool {
	return t.Cutover != "" && versioning.IsNewerRelease(tag, t.Cutover)
}

// Resolve names the release artifact for tag on the given platform.
func (t ArtifactTable) Resolve(tag, goos, goarch string) (Artifact, error) {
	p, err := t.platform(goos, goarch)
	if err != nil {
		return Artifact{}, err
	}

	name := versioning.Name(tag)
	pattern := p.Current
	if t.IsLegacy(name) {
		pattern = p.Legacy
	}
	if pattern == "" {
		return Artifact{}, fmt.Errorf("%w: %s/%s at %s", ErrNoArtifact, goos, goarch, name)
	}

	file := t.expand(pattern, name)
	return Artifact{
		URL: strings.NewReplacer(
			"{repository}", t.Repository,
			"{tag}", name,
			"{file}", file,
		).Replace(t.DownloadURL),
		FileName:   file,
		Executable: t.expand(p.Executable, name),
	}, nil
}

// CIArtifact names the CI build artifact and the executable inside it.
func (t ArtifactTable) CIArtifact(goos, goarch string) (name string, executable string, err error) {
	p, err := t.platform(goos, goarch)
	if err != nil {
		return "", "", err
	}
	if p.CI == "" {
		return "", "", fmt.Errorf("%w: no CI build for %s/%s", ErrNoArtifact, goos, goarch)
	}
	return t.expand(p.CI, ""), t.expand(p.Executable, ""), nil
}

func (t ArtifactTable) expand(pattern, tag string) string {
	return strings.NewReplacer(
		"{project}", t.Project,
		"{tag}", tag,
		"{version}", strings.TrimPrefix(tag, "v"),
	).Replace(pattern)
}
