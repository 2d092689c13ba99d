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
	_ Workflow = &Update{}
	_ GitBound = &Update{}
)

type UpdateConfig struct {
	Instance  *instance.Instance
	Services  *instance.Services
	Localizer localize.Localizer
	Out       io.Writer
}

func NewUpdate(config UpdateConfig) *Update {
	return &Update{
		instance:  config.Instance,
		services:  config.Services,
		localizer: config.Localizer,
		out:       config.Out,
	}
}

type Update struct {
	instance  *instance.Instance
	services  *instance.Services
	localizer localize.Localizer
	out       io.Writer
}

func (u Update) Name() string {
	return "update"
}

func (u Update) NeedsRepository() bool {
	return u.instance.IsGit()
}

func (u Update) Execute(ctx context.Context) error {
	updated, err := u.instance.Update(ctx, u.services)
	if err != nil {
		return fmt.Errorf("updating %s: %w", u.instance.Name(), err)
	}

	if !updated {
		fmt.Fprintln(u.out, u.localizer.Localize(localize.InstanceUpToDate, u.instance.Name()))
		return nil
	}
	fmt.Fprintln(u.out, u.localizer.Localize(localize.InstanceUpdated, u.instance.Name(), u.instance.Version()))
	return nil
}
