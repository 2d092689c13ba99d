// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactTable_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		goos    string
		goarch  string
		want    Artifact
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name:   "legacy",
			tag:    "refs/tags/v0.9.2",
			goos:   "linux",
			goarch: "amd64",
			want: Artifact{
				URL:        "https://github.com/gim-launcher/game/releases/download/v0.9.2/game-0.9.2-linux64.tar.gz",
				FileName:   "game-0.9.2-linux64.tar.gz",
				Executable: "bin/game",
			},
			wantErr: assert.NoError,
		},
		{
			name:   "cutover",
			tag:    "0.10",
			goos:   "windows",
			goarch: "amd64",
			want: Artifact{
				URL:        "https://github.com/gim-launcher/game/releases/download/0.10/game-windows-x86_64.zip",
				FileName:   "game-windows-x86_64.zip",
				Executable: "game.exe",
			},
			wantErr: assert.NoError,
		},
		{
			name:   "continuous",
			tag:    "continuous",
			goos:   "darwin",
			goarch: "arm64",
			want: Artifact{
				URL:        "https://github.com/gim-launcher/game/releases/download/continuous/game-macos.zip",
				FileName:   "game-macos.zip",
				Executable: "game.app/Contents/MacOS/game",
			},
			wantErr: assert.NoError,
		},
		{
			name:   "no legacy build",
			tag:    "0.9",
			goos:   "linux",
			goarch: "arm64",
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				return assert.ErrorIs(t, err, ErrNoArtifact, i...)
			},
		},
		{
			name:   "unknown platform",
			tag:    "0.11",
			goos:   "plan9",
			goarch: "amd64",
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				return assert.ErrorIs(t, err, ErrNoArtifact, i...)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultArtifactTable().Resolve(tt.tag, tt.goos, tt.goarch)
			if !tt.wantErr(t, err) {
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArtifactTable_CIArtifact(t *testing.T) {
	name, executable, err := DefaultArtifactTable().CIArtifact("linux", "amd64")
	require.NoError(t, err)
	assert.Equal(t, "game-linux-x86_64", name)
	assert.Equal(t, "bin/game", executable)

	_, _, err = DefaultArtifactTable().CIArtifact("windows", "386")
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestLoadArtifactTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/artifacts.yaml", []byte(`
project: fork
repository: someone/fork
cutover: "1.0"
platforms:
  - os: linux
    arch: amd64
    legacy: "{project}-{version}.tgz"
    current: "{project}.tgz"
    executable: "{project}"
`), 0o644))

	table, err := LoadArtifactTable(fs, "/etc/artifacts.yaml")
	require.NoError(t, err)

	got, err := table.Resolve("0.12", "linux", "amd64")
	require.NoError(t, err)
	assert.Equal(t, Artifact{
		URL:        "https://github.com/someone/fork/releases/download/0.12/fork-0.12.tgz",
		FileName:   "fork-0.12.tgz",
		Executable: "fork",
	}, got)

	table, err = LoadArtifactTable(fs, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultArtifactTable(), table)

	_, err = LoadArtifactTable(fs, "/etc/missing.yaml")
	assert.Error(t, err)
}

func TestLoadCredential(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/credentials.yaml", []byte("username: me\npassword: secret\ntoken: abc\n"), 0o600))

	got, err := LoadCredential(fs, "/etc/credentials.yaml")
	require.NoError(t, err)
	assert.Equal(t, Credential{Username: "me", Password: "secret", Token: "abc"}, got)

	got, err = LoadCredential(fs, "")
	require.NoError(t, err)
	assert.Equal(t, Credential{}, got)
}
