// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package workflow

import (
	"context"
	"fmt"
	"io"

	"github.com/gim-launcher/gim/instance"
	"github.com/gim-launcher/gim/localize"
)

var (
	_ Workflow = &Remove{}
	_ GitBound = &Remove{}
)

type RemoveConfig struct {
	Instance  *instance.Instance
	Services  *instance.Services
	Localizer localize.Localizer
	Out       io.Writer
}

func NewRemove(config RemoveConfig) *Remove {
	return &Remove{
		instance:  config.Instance,
		services:  config.Services,
		localizer: config.Localizer,
		out:       config.Out,
	}
}

type Remove struct {
	instance  *instance.Instance
	services  *instance.Services
	localizer localize.Localizer
	out       io.Writer
}

func (r Remove) Name() string {
	return "remove"
}

func (r Remove) NeedsRepository() bool {
	return r.instance.IsGit()
}

func (r Remove) Execute(ctx context.Context) error {
	if err := r.instance.Remove(ctx, r.services); err != nil {
		return fmt.Errorf("removing %s: %w", r.instance.Name(), err)
	}

	fmt.Fprintln(r.out, r.localizer.Localize(localize.InstanceRemoved, r.instance.Name()))
	return nil
}
