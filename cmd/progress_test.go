// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gim-launcher/gim/progress"
)

func TestProgressPrinter(t *testing.T) {
	out := &bytes.Buffer{}
	p := newProgressPrinter(out)

	for _, s := range []progress.Snapshot{
		{Progress: progress.NotStarted},
		{Progress: 0, Working: true},
		{Progress: 0.004, Working: true},
		{Progress: 0.25, Working: true},
		{Progress: 0.251, Working: true},
		{Progress: 0.5, Working: true},
		{Progress: progress.Done},
	} {
		p.observe("dev", s)
	}
	p.observe("stable", progress.Snapshot{Progress: 0.1, Working: true})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "dev  25%")
	assert.Contains(t, lines[1], "dev  50%")
	assert.Contains(t, lines[2], "dev 100%")
	assert.Contains(t, lines[3], "stable  10%")

	out.Reset()
	p.observe("dev", progress.Snapshot{Progress: 0, Working: true})
	p.observe("dev", progress.Snapshot{Progress: 0.25, Working: true})
	p.observe("dev", progress.Snapshot{Progress: progress.Done, FailedUpdate: true})
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "dev  25%")
}
