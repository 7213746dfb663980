// yuki - A terminal chat client for local OpenAI-compatible models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/yuki/internal/cli"
)

// Version information (set at build time)
var (
	Version = "0.1.0"
)

func init() {
	cli.Version = Version
}

func main() {
	// SIGINT is left to the REPL, where it cancels the reply in flight.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	cmd := cli.NewRootCommand()
	if err := cmd.Run(ctx, os.Args); err != nil {
		cli.DisplayError(os.Stderr, err)
		cancel()
		os.Exit(cli.GetExitCode(err))
	}
}
