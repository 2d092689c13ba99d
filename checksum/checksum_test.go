// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checksum

import (
	"bytes"
	"crypto/sha256"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256_Checksum(t *testing.T) {
	large := bytes.Repeat([]byte("0123456789abcdef"), 3*ChunkSize/16+7)
	largeSum := sha256.Sum256(large)
	emptySum := sha256.Sum256(nil)

	tests := []struct {
		name    string
		setup   func(fs afero.Fs)
		path    string
		want    []byte
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name: "multiple chunks",
			setup: func(fs afero.Fs) {
				require.NoError(t, afero.WriteFile(fs, "/bin/game", large, 0o755))
			},
			path:    "/bin/game",
			want:    largeSum[:],
			wantErr: assert.NoError,
		},
		{
			name: "empty file",
			setup: func(fs afero.Fs) {
				require.NoError(t, afero.WriteFile(fs, "/bin/empty", nil, 0o755))
			},
			path:    "/bin/empty",
			want:    emptySum[:],
			wantErr: assert.NoError,
		},
		{
			name:  "missing file",
			setup: func(afero.Fs) {},
			path:  "/bin/missing",
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				return assert.ErrorIs(t, err, os.ErrNotExist, i...)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.setup(fs)

			got, err := NewSHA256(fs).Checksum(tt.path)
			if !tt.wantErr(t, err) {
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	sum := sha256.Sum256([]byte("game"))
	assert.Len(t, String(sum[:]), 64)
}
