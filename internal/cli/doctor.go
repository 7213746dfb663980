// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation for yuki.
//
// Command: doctor
// Short:   Run health checks
//
// Health Checks Performed:
//   1. Config Valid      - Loads and validates the configuration
//   2. Storage Writable  - Opens the session store and writes a scratch file
//   3. Server Reachable  - GET /v1/models on the configured server
//   4. Model Available   - The configured model is advertised (warning only)
//
// Exit Codes:
//   0   All checks passed (warnings allowed)
//   1   One or more checks failed

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/jeranaias/yuki/internal/completion"
	"github.com/jeranaias/yuki/internal/config"
	"github.com/jeranaias/yuki/internal/storage"
)

// doctorTimeout bounds each network check.
const doctorTimeout = 5 * time.Second

var fixStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("245")).
	Italic(true).
	PaddingLeft(2)

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed successfully.
	CheckPass CheckStatus = iota
	// CheckWarn indicates the check passed with warnings.
	CheckWarn
	// CheckFail indicates the check failed.
	CheckFail
)

// String returns the string representation of the check status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "Pass"
	case CheckWarn:
		return "Warn"
	case CheckFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // Suggested fix
}

// Render returns a formatted string representation of the health check.
func (c HealthCheck) Render() string {
	tag := RenderStatus(strings.ToLower(c.Status.String()))
	result := fmt.Sprintf("%s %s %s", tag, RenderLabel(c.Name), ValueStyle.Render(c.Message))
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + fixStyle.Render("-> "+c.Fix)
	}
	return result
}

// =============================================================================
// DOCTOR COMMAND
// =============================================================================

func newDoctorCommand() *cli.Command {
	return &cli.Command{
		Name:    "doctor",
		Aliases: []string{"diag"},
		Usage:   "Check configuration, storage and server connectivity",
		Action:  runDoctor,
	}
}

func runDoctor(ctx context.Context, cmd *cli.Command) error {
	w := stdout(cmd)

	fmt.Fprintln(w, TitleStyle.Render("yuki doctor"))
	fmt.Fprintln(w, RenderSeparator(30))

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		check := HealthCheck{
			Name:    "Config",
			Status:  CheckFail,
			Message: err.Error(),
			Fix:     "Fix the file or run 'yuki config init --force'",
		}
		fmt.Fprintln(w, check.Render())
		return err
	}

	client := completion.NewClient(completion.SettingsFromConfig(cfg), nil)
	checks := runChecks(ctx, cfg, client)
	return reportChecks(w, checks)
}

// runChecks performs every check against an already loaded config.
func runChecks(ctx context.Context, cfg *config.Config, client *completion.Client) []HealthCheck {
	checks := []HealthCheck{{
		Name:    "Config",
		Status:  CheckPass,
		Message: configSource(cfg.Path),
	}}
	checks = append(checks, checkStorage(cfg))

	server := checkServer(ctx, cfg, client)
	checks = append(checks, server.HealthCheck)
	if server.Status != CheckFail {
		checks = append(checks, checkModel(cfg.Server.Model, server.models))
	}
	return checks
}

func reportChecks(w io.Writer, checks []HealthCheck) error {
	failed := 0
	for _, c := range checks {
		fmt.Fprintln(w, c.Render())
		if c.Status == CheckFail {
			failed++
		}
	}
	fmt.Fprintln(w)
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Fprintln(w, SuccessStyle.Render("All checks passed"))
	return nil
}

func configSource(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "defaults (no file at " + path + ")"
	}
	return path
}

func checkStorage(cfg *config.Config) HealthCheck {
	check := HealthCheck{Name: "Storage", Fix: "Check permissions on " + cfg.Storage.Root}
	store, err := storage.NewStore(cfg.Storage.Root, nil)
	if err != nil {
		check.Status = CheckFail
		check.Message = err.Error()
		return check
	}
	f, err := os.CreateTemp(store.Root(), ".doctor-*")
	if err != nil {
		check.Status = CheckFail
		check.Message = "not writable: " + err.Error()
		return check
	}
	f.Close()
	os.Remove(f.Name())

	check.Status = CheckPass
	check.Message = cfg.Storage.Root
	return check
}

type serverCheck struct {
	HealthCheck
	models []string
}

func checkServer(ctx context.Context, cfg *config.Config, client *completion.Client) serverCheck {
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	check := serverCheck{HealthCheck: HealthCheck{Name: "Server"}}
	models, err := client.Models(ctx)
	if err != nil {
		check.Status = CheckFail
		check.Message = err.Error()
		check.Fix = "Start the server or set server.url / YUKI_SERVER_URL (now " + cfg.Server.URL + ")"
		if completion.IsServer(err) {
			// Some servers answer chat requests but do not expose /v1/models.
			check.Status = CheckWarn
			check.Fix = "The server is up but has no model list; chat may still work"
		}
		return check
	}
	check.Status = CheckPass
	check.Message = cfg.Server.URL
	check.models = models
	return check
}

func checkModel(want string, models []string) HealthCheck {
	check := HealthCheck{Name: "Model"}
	switch {
	case len(models) == 0:
		check.Status = CheckWarn
		check.Message = "server did not list any models"
	case slices.Contains(models, want):
		check.Status = CheckPass
		check.Message = want
	default:
		// llama.cpp serves one model whatever the name, so this is a warning.
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("%q not listed (available: %s)", want, strings.Join(models, ", "))
		check.Fix = "Set server.model or pass --model"
	}
	return check
}
