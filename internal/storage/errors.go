// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

// Operations reported in StorageError.Op.
const (
	OpInit           = "init"
	OpPersistHistory = "persist history"
	OpPersistMemory  = "persist memory"
	OpBackup         = "backup"
	OpDelete         = "delete"
)

// StorageError is returned by every failed write. Reads never fail; they
// log and report the part as absent.
type StorageError struct {
	Op   string
	Name string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	switch {
	case e.Name != "" && e.Path != "":
		return fmt.Sprintf("%s for session %q (%s): %v", e.Op, e.Name, e.Path, e.Err)
	case e.Name != "":
		return fmt.Sprintf("%s for session %q: %v", e.Op, e.Name, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
