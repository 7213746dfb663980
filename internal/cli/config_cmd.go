// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Config command implementation for yuki.
//
// Subcommands:
//   show (default)      Print the effective configuration as TOML
//   init [--force]      Write a default config file
//   path                Print the config file path
//
// Configuration Keys:
//   server.url                   Chat completions endpoint
//   server.model                 Model name sent with requests
//   server.temperature           Sampling temperature (omitted when unset)
//   server.max_tokens            Reply length cap (0 = server default)
//   server.connect_timeout_secs  Dial and first-byte timeout
//   server.request_timeout_secs  Whole-request timeout
//   storage.root                 Session directory (default ~/.yuki)
//   logging.level                debug, info, warn or error
//   logging.encoding             console or json
//   logging.file                 Log file (default <root>/yuki.log)
//   chat.markdown                Render /history and summaries as Markdown on a terminal
//   chat.max_read_bytes          Size limit for /read
//   chat.input_history           Keep REPL input history between runs

package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jeranaias/yuki/internal/config"
)

func newConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "View or create the configuration file",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: runConfigShow,
			},
			{
				Name:  "init",
				Usage: "Write a default config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "path",
				Usage:  "Print the config file path",
				Action: runConfigPath,
			},
		},
		DefaultCommand: "show",
	}
}

func runConfigShow(_ context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := cfg.Encode()
	if err != nil {
		return err
	}

	w := stdout(cmd)
	fmt.Fprintf(w, "# %s\n", configSource(cfg.Path))
	fmt.Fprint(w, string(data))
	return nil
}

func runConfigInit(_ context.Context, cmd *cli.Command) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	if err := config.SaveTOML(config.Default(), path, cmd.Bool("force")); err != nil {
		return &config.ConfigError{Path: path, Err: err}
	}
	fmt.Fprintf(stdout(cmd), "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func runConfigPath(_ context.Context, cmd *cli.Command) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout(cmd), path)
	return nil
}

// configPath is --config when given, else the default path.
func configPath(cmd *cli.Command) (string, error) {
	if p := cmd.String("config"); p != "" {
		return p, nil
	}
	return config.DefaultPath()
}
