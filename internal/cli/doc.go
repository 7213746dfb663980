// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the command-line interface for yuki.
//
// The root command starts the interactive chat REPL. Subcommands cover
// session management, configuration and diagnostics. Commands are built
// with urfave/cli; the REPL uses liner for line editing, tab completion and
// input history, and glamour for Markdown rendering of /history and session
// summaries on a terminal. Replies stream token by token.
//
// # Usage
//
//	cmd := cli.NewRootCommand()
//	if err := cmd.Run(ctx, os.Args); err != nil {
//	    cli.DisplayError(os.Stderr, err)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Commands Overview
//
//   - (none): Interactive chat, optionally opening --session directly
//   - sessions list|show|delete: Inspect and remove saved sessions
//   - config show|init|path: View or create the config file
//   - doctor: Check config, storage and server connectivity
//
// Session semantics live in the session package; this package only reads
// lines, forwards them to a session.Controller and renders its output.
package cli
