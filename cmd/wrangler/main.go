// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// wrangler curates, builds, verifies, and deploys notebook
// environments described by spec documents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/wrangler/cmd/wrangler/cli"
	"github.com/bureau-foundation/wrangler/cmd/wrangler/commands"
)

func main() {
	if err := run(); err != nil {
		os.Exit(cli.ReportError(os.Stderr, err))
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
