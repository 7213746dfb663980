// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/urfave/cli/v3"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// NewRootCommand returns the top-level CLI command. Without a subcommand it
// starts the interactive chat.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "yuki",
		Usage:   "Chat with a local OpenAI-compatible model from the terminal",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default: ~/.yuki/config.toml)",
			},
			&cli.StringFlag{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "Open this session instead of prompting for a name",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "Model name sent with each request",
			},
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "Chat completions endpoint",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: runChat,
		Commands: []*cli.Command{
			newSessionsCommand(),
			newConfigCommand(),
			newDoctorCommand(),
		},
	}
}
