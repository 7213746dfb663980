// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists named chat sessions as JSON files.
//
// Each session owns a conversation log (history) and at most one memory
// block (a summary that replaces the log as context). Both are JSON arrays
// of {"role", "content"} objects written atomically. Before anything
// destructive happens to a log, Backup copies it verbatim into backups/.
//
// # Key Types
//
//   - Store: name-keyed persistence for history, memory and backups
//   - Loaded: the context a session resumes with, and where it came from
//   - StorageError: returned by every failed write
//
// # Usage
//
//	store, err := storage.NewStore(cfg.Storage.Root, logger)
//	loaded := store.Load("work")
//	err = store.PersistHistory("work", msgs)
//
// # Names
//
// Every operation canonicalizes its name with CanonicalName first, so
// callers may pass user input directly.
package storage
