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
	_ Workflow = &Create{}
	_ GitBound = &Create{}
)

type CreateConfig struct {
	Instance  *instance.Instance
	Services  *instance.Services
	Localizer localize.Localizer
	Out       io.Writer
}

func NewCreate(config CreateConfig) *Create {
	return &Create{
		instance:  config.Instance,
		services:  config.Services,
		localizer: config.Localizer,
		out:       config.Out,
	}
}

type Create struct {
	instance  *instance.Instance
	services  *instance.Services
	localizer localize.Localizer
	out       io.Writer
}

func (c Create) Name() string {
	return "create"
}

func (c Create) NeedsRepository() bool {
	return c.instance.IsGit()
}

func (c Create) Execute(ctx context.Context) error {
	if err := c.instance.Create(ctx, c.services); err != nil {
		return fmt.Errorf("creating %s: %w", c.instance.Name(), err)
	}

	fmt.Fprintln(c.out, c.localizer.Localize(localize.InstanceCreated, c.instance.Name(), c.instance.Dir(c.services)))
	return nil
}
