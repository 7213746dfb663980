// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display for yuki.
//
// Commands return errors; main and the REPL decide how to show them.

package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeranaias/yuki/internal/completion"
	"github.com/jeranaias/yuki/internal/config"
	"github.com/jeranaias/yuki/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError covers every fatal error, configuration included
	ExitGeneralError = 1
)

// GetExitCode determines the exit code for an error returned by Run.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitGeneralError
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err in the REPL's error format, followed by a hint
// when one applies.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %v\n", ErrorStyle.Render("[Error]"), err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(w, "%s\n", DimStyle.Render("  "+hint))
	}
}

// errorHint suggests a next step for errors the user can act on.
func errorHint(err error) string {
	switch {
	case completion.IsCanceled(err):
		return ""
	case errors.Is(err, completion.ErrHeaderTimeout):
		return "The server accepted the connection but did not answer; it may still be loading the model."
	case errors.Is(err, completion.ErrRequestTimeout):
		return "Raise server.request_timeout_secs in the config file for long replies."
	case completion.IsNetwork(err):
		return "Is the completion server running? Check server.url or YUKI_SERVER_URL."
	case completion.IsServer(err):
		switch completion.StatusCode(err) {
		case http.StatusNotFound:
			return "The endpoint was not found; server.url should end in /v1/chat/completions."
		case http.StatusBadRequest:
			return "The server rejected the request; the context may be too long. Try /summarize."
		}
		return ""
	case errors.Is(err, completion.ErrTruncated):
		return "The reply was cut off before it finished and was not saved."
	case storage.IsStorageError(err):
		return "Check that the storage directory is writable and the disk is not full."
	case config.IsConfigError(err):
		return "Run 'yuki config init' to write a default config file."
	}
	return ""
}
