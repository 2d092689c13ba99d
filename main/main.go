// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/gim-launcher/gim/cmd"
)

func main() {
	gim, err := cmd.New(afero.NewOsFs())
	if err != nil {
		fmt.Printf("Failed to initialize the gim command %s.\n", err)
		os.Exit(1)
	}

	// A signal stops new workflows from starting. Running ones finish before
	// the command exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gim.ExecuteContext(ctx); err != nil {
		fmt.Printf("Unexpected error %s.\n", err)
		stop()
		os.Exit(1)
	}
}
