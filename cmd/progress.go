// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/gim-launcher/gim/progress"
)

// progressPrinter writes a line whenever an instance's progress grows by at
// least one percent.
type progressPrinter struct {
	out io.Writer

	mu   sync.Mutex
	last map[string]int
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		out:  out,
		last: make(map[string]int),
	}
}

func (p *progressPrinter) observe(name string, s progress.Snapshot) {
	if s.Progress < 0 || s.FailedUpdate {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// A new operation starts over from zero.
	if s.Progress == 0 {
		p.last[name] = 0
		return
	}
	percent := int(s.Progress * 100)
	if percent <= p.last[name] {
		return
	}
	p.last[name] = percent
	fmt.Fprintln(p.out, progressStyle.Render(fmt.Sprintf("%s %3d%%", name, percent)))
}
