// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// ChunkSize is the read size used while hashing.
const ChunkSize = 32 * 1024

type Checksummer interface {
	Checksum(path string) ([]byte, error)
}

var _ Checksummer = &SHA256{}

func NewSHA256(fs afero.Fs) *SHA256 {
	return &SHA256{
		Fs: fs,
	}
}

type SHA256 struct {
	Fs afero.Fs
}

func (s SHA256) Checksum(path string) ([]byte, error) {
	f, err := s.Fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return sum, nil
}

// Reader hashes r in ChunkSize reads.
func Reader(r io.Reader) ([]byte, error) {
	h := sha256.New()
	if _, err := io.CopyBuffer(h, r, make([]byte, ChunkSize)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func String(sum []byte) string {
	return hex.EncodeToString(sum)
}
