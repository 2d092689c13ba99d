// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package source

import (
	"strconv"
	"strings"
	"time"
)

// Field is one displayable attribute of a source. Editable fields are the
// ones a user chose when creating the source.
type Field struct {
	Key      string
	Label    string
	Value    string
	Editable bool
}

// Describe lists the fields of s, variant specific ones after the common
// ones. Children of composite sources are not expanded.
func Describe(s Source) []Field {
	if e, ok := s.(Envelope); ok {
		s = e.Source
	}
	if e, ok := s.(*Envelope); ok {
		s = e.Source
	}

	fields := []Field{
		{Key: "name", Label: "Name", Value: s.GetName(), Editable: true},
		{Key: "type", Label: "Type", Value: string(s.GetType())},
		{Key: "kind", Label: "Kind", Value: string(s.GetKind())},
		{Key: "initialized", Label: "Initialized", Value: strconv.FormatBool(s.IsInitialized())},
		{Key: "version", Label: "Version", Value: s.GetVersion()},
	}
	if updated := s.GetLastUpdated(); !updated.IsZero() {
		fields = append(fields, Field{Key: "lastUpdated", Label: "Last updated", Value: updated.Format(time.RFC3339)})
	}

	switch v := s.(type) {
	case *FileSource:
		fields = append(fields,
			Field{Key: "target", Label: "Target", Value: v.Target, Editable: true},
			Field{Key: "hash", Label: "SHA-256", Value: v.Hash},
			Field{Key: "executable", Label: "Executable", Value: v.Executable},
		)
	case *GitSource:
		fields = append(fields,
			Field{Key: "remote", Label: "Remote", Value: v.Remote, Editable: true},
			Field{Key: "target", Label: "Target", Value: v.Target, Editable: v.Type != LatestRelease},
			Field{Key: "ref", Label: "Resolved ref", Value: v.ResolvedRef},
			Field{Key: "branch", Label: "Branch", Value: v.Branch},
			Field{Key: "commit", Label: "Commit", Value: v.Commit},
		)
	case *ReleaseSource:
		fields = append(fields,
			Field{Key: "remote", Label: "Remote", Value: v.Remote, Editable: true},
			Field{Key: "target", Label: "Target", Value: v.Target, Editable: v.Type == Release},
			Field{Key: "tag", Label: "Installed tag", Value: v.Tag},
			Field{Key: "executable", Label: "Executable", Value: v.Executable},
		)
	case *PullRequestSource:
		fields = append(fields,
			Field{Key: "remote", Label: "Remote", Value: v.Remote, Editable: true},
			Field{Key: "number", Label: "Pull request", Value: v.Number, Editable: true},
			Field{Key: "head", Label: "Head", Value: v.Head},
			Field{Key: "executable", Label: "Executable", Value: v.Executable},
		)
	case *MultiSource:
		fields = append(fields, multiFields(v)...)
	case *DynamicRefSource:
		fields = append(fields,
			Field{Key: "remote", Label: "Remote", Value: v.Remote, Editable: true},
			Field{Key: "pattern", Label: "Pattern", Value: v.Pattern, Editable: true},
		)
		fields = append(fields, multiFields(v.Merge)...)
	}
	return fields
}

func multiFields(m *MultiSource) []Field {
	names := make([]string, len(m.Children))
	for i, child := range m.Children {
		names[i] = child.GetName()
	}
	return []Field{
		{Key: "strategy", Label: "Merge strategy", Value: string(m.Strategy), Editable: true},
		{Key: "content", Label: "Content strategy", Value: string(m.Content), Editable: true},
		{Key: "children", Label: "Sources", Value: strings.Join(names, ", ")},
		{Key: "skipped", Label: "Skipped", Value: strings.Join(m.Skipped, ", ")},
		{Key: "branch", Label: "Branch", Value: m.Branch},
		{Key: "commit", Label: "Commit", Value: m.Commit},
	}
}
