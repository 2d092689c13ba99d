// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type Credential struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Token authenticates against the CI API for pull request artifacts.
	Token string `yaml:"token,omitempty"`
}

// LoadCredential reads a credentials file. An empty path yields the zero
// Credential, which is safe to use for public repositories.
func LoadCredential(fs afero.Fs, path string) (Credential, error) {
	result := Credential{}
	if path == "" {
		return result, nil
	}

	bytes, err := afero.ReadFile(fs, path)
	if err != nil {
		return result, err
	}
	if err := yaml.Unmarshal(bytes, &result); err != nil {
		return Credential{}, err
	}
	return result, nil
}
