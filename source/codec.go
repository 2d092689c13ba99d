// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var ErrNoSource = errors.New("envelope holds no source")

// Envelope persists a Source as {kind, spec} so the concrete variant can be
// rebuilt on load.
type Envelope struct {
	Source
}

type rawEnvelope struct {
	Kind Kind      `yaml:"kind"`
	Spec yaml.Node `yaml:"spec"`
}

func (e Envelope) MarshalYAML() (interface{}, error) {
	if e.Source == nil {
		return nil, ErrNoSource
	}
	return struct {
		Kind Kind   `yaml:"kind"`
		Spec Source `yaml:"spec"`
	}{
		Kind: e.GetKind(),
		Spec: e.Source,
	}, nil
}

func (e *Envelope) UnmarshalYAML(value *yaml.Node) error {
	raw := rawEnvelope{}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s, err := newForKind(raw.Kind)
	if err != nil {
		return err
	}
	if err := raw.Spec.Decode(s); err != nil {
		return fmt.Errorf("decoding %s source: %w", raw.Kind, err)
	}
	e.Source = s
	return nil
}

func newForKind(kind Kind) (Source, error) {
	switch kind {
	case KindFile:
		return &FileSource{}, nil
	case KindGit:
		return &GitSource{}, nil
	case KindRelease:
		return &ReleaseSource{}, nil
	case KindPullRequest:
		return &PullRequestSource{}, nil
	case KindMulti:
		return &MultiSource{}, nil
	case KindDynamic:
		return &DynamicRefSource{Merge: &MultiSource{}}, nil
	}
	return nil, fmt.Errorf("%w: unknown source kind %q", ErrUnsupported, kind)
}
