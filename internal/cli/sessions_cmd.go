// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jeranaias/yuki/internal/storage"
)

// newSessionsCommand returns the sessions subcommand.
func newSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage saved sessions",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all sessions",
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Print the context a session resumes with, as Markdown",
				ArgsUsage: "<name>",
				Action:    runSessionsShow,
			},
			{
				Name:      "delete",
				Usage:     "Back up and delete a session",
				ArgsUsage: "<name>",
				Action:    runSessionsDelete,
			},
		},
		DefaultCommand: "list",
	}
}

func runSessionsList(_ context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	text := storage.FormatSessionList(a.store.Sessions())
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	fmt.Fprint(stdout(cmd), text)
	return nil
}

func runSessionsShow(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: yuki sessions show <name>")
	}
	canon, err := storage.CanonicalName(name)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.store.Exists(canon) {
		return fmt.Errorf("session not found: %s", canon)
	}
	text := storage.FormatMarkdown(canon, a.store.Load(canon).Messages)
	if a.cfg.Chat.Markdown && IsStdoutTTY() {
		text = newMarkdownRenderer(GetTerminalWidth()-2, ColorsEnabled()).Render(text)
	}
	fmt.Fprint(stdout(cmd), text)
	return nil
}

func runSessionsDelete(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: yuki sessions delete <name>")
	}
	canon, err := storage.CanonicalName(name)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w := stdout(cmd)
	path, err := a.store.Backup(canon)
	if err != nil {
		return fmt.Errorf("delete aborted, backup failed: %w", err)
	}
	if path != "" {
		fmt.Fprintf(w, "Backed up to %s\n", path)
	}
	if err := a.store.Delete(canon); err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted session %s\n", canon)
	return nil
}
