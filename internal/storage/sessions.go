// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists named chat sessions as JSON files.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/yuki/internal/logging"
	"github.com/jeranaias/yuki/internal/model"
	"github.com/jeranaias/yuki/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	historyDirName = "history"
	chatsDirName   = "chats"
	backupsDirName = "backups"

	historyPrefix = "history_"
	memoryPrefix  = "summary_"
	backupPrefix  = "log_"
	fileExt       = ".json"

	filePerm = 0644
	dirPerm  = 0755

	// maxBackupSuffix bounds the -N suffixes tried for same-second backups.
	maxBackupSuffix = 1000
)

// =============================================================================
// LOADED CONTEXT
// =============================================================================

// Source records where a loaded context came from.
type Source int

const (
	// SourceNone means nothing usable was persisted.
	SourceNone Source = iota
	// SourceHistory means the conversation log was loaded.
	SourceHistory
	// SourceMemory means the summary block was loaded.
	SourceMemory
)

func (s Source) String() string {
	switch s {
	case SourceHistory:
		return "history"
	case SourceMemory:
		return "memory"
	default:
		return "none"
	}
}

// Loaded is the context a session resumes with.
type Loaded struct {
	Messages []model.Message
	Source   Source
}

// SessionInfo summarizes one persisted session for listings.
type SessionInfo struct {
	Name      string
	Messages  int
	HasMemory bool
	UpdatedAt time.Time
	Preview   string // first user message
}

// =============================================================================
// STORE
// =============================================================================

// Store maps session names to their history file, memory file and backups.
//
// Layout under the root:
//
//	history/history_<name>.json   conversation log, JSON array of messages
//	chats/summary_<name>.json     memory block, JSON array of 0 or 1 message
//	backups/log_<name>_<unix>.json write-once copies of the history file
//
// A Store holds no in-memory state besides its paths and is not meant for
// concurrent use by several processes.
type Store struct {
	root       string
	historyDir string
	chatsDir   string
	backupsDir string
	logger     logging.Logger
	now        func() time.Time
}

// NewStore creates a store rooted at root, creating its directories.
func NewStore(root string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		root:       root,
		historyDir: filepath.Join(root, historyDirName),
		chatsDir:   filepath.Join(root, chatsDirName),
		backupsDir: filepath.Join(root, backupsDirName),
		logger:     logger.Named("storage"),
		now:        time.Now,
	}
	for _, dir := range []string{s.historyDir, s.chatsDir, s.backupsDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, &StorageError{Op: OpInit, Path: dir, Err: err}
		}
	}
	return s, nil
}

// Root returns the directory the store was created with.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) historyPath(name string) string {
	return filepath.Join(s.historyDir, historyPrefix+name+fileExt)
}

func (s *Store) memoryPath(name string) string {
	return filepath.Join(s.chatsDir, memoryPrefix+name+fileExt)
}

func (s *Store) backupPath(name string, unix int64, n int) string {
	base := fmt.Sprintf("%s%s_%d", backupPrefix, name, unix)
	if n > 0 {
		base = fmt.Sprintf("%s-%d", base, n)
	}
	return filepath.Join(s.backupsDir, base+fileExt)
}

// =============================================================================
// DISCOVERY
// =============================================================================

// ListSessions returns the names that have a history file, sorted.
// Files whose names are not canonical session keys are skipped.
func (s *Store) ListSessions() []string {
	entries, err := os.ReadDir(s.historyDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warnf(context.Background(), "list sessions: %v", err)
		}
		return []string{}
	}

	names := []string{}
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(file, historyPrefix) || !strings.HasSuffix(file, fileExt) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(file, historyPrefix), fileExt)
		if canon, err := CanonicalName(name); err != nil || canon != name {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sessions returns listing details for every session ListSessions reports.
func (s *Store) Sessions() []SessionInfo {
	names := s.ListSessions()
	infos := make([]SessionInfo, 0, len(names))
	for _, name := range names {
		info := SessionInfo{Name: name}
		if st, err := os.Stat(s.historyPath(name)); err == nil {
			info.UpdatedAt = st.ModTime()
		}
		if msgs, ok := s.ReadHistory(name); ok {
			info.Messages = len(msgs)
			for _, m := range msgs {
				if m.Role == model.RoleUser {
					info.Preview = util.Preview(m.Content, 40)
					break
				}
			}
		}
		if mem, ok := s.ReadMemory(name); ok {
			info.HasMemory = true
			if st, err := os.Stat(s.memoryPath(name)); err == nil && st.ModTime().After(info.UpdatedAt) {
				info.UpdatedAt = st.ModTime()
			}
			if info.Preview == "" {
				info.Preview = util.Preview(mem.Content, 40)
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Exists reports whether the session has a history or memory file.
func (s *Store) Exists(name string) bool {
	canon, err := CanonicalName(name)
	if err != nil {
		return false
	}
	for _, p := range []string{s.historyPath(canon), s.memoryPath(canon)} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Load returns the context a session resumes with: the memory block when one
// is persisted with content, else the history when present, else nothing.
// The two are never combined. Load never fails.
func (s *Store) Load(name string) Loaded {
	if mem, ok := s.ReadMemory(name); ok {
		return Loaded{Messages: []model.Message{*mem}, Source: SourceMemory}
	}
	if msgs, ok := s.ReadHistory(name); ok {
		return Loaded{Messages: msgs, Source: SourceHistory}
	}
	return Loaded{Messages: []model.Message{}, Source: SourceNone}
}

// ReadHistory returns the persisted conversation log. ok is false when the
// file is missing or unreadable.
func (s *Store) ReadHistory(name string) (msgs []model.Message, ok bool) {
	canon, err := CanonicalName(name)
	if err != nil {
		return nil, false
	}
	msgs, ok = s.readMessages(s.historyPath(canon))
	if !ok {
		return nil, false
	}
	return msgs, true
}

// ReadMemory returns the persisted memory block. ok is false when there is
// none or it has no content.
func (s *Store) ReadMemory(name string) (*model.Message, bool) {
	canon, err := CanonicalName(name)
	if err != nil {
		return nil, false
	}
	msgs, ok := s.readMessages(s.memoryPath(canon))
	if !ok || len(msgs) == 0 || msgs[0].IsEmpty() {
		return nil, false
	}
	if len(msgs) > 1 {
		s.logger.Warnf(context.Background(), "memory file for %s holds %d messages, using the first", canon, len(msgs))
	}
	mem := msgs[0]
	return &mem, true
}

func (s *Store) readMessages(path string) ([]model.Message, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warnf(context.Background(), "read %s: %v", path, err)
		}
		return nil, false
	}

	var msgs []model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		s.logger.Warnf(context.Background(), "parse %s, treating as absent: %v", path, err)
		return nil, false
	}
	for i, m := range msgs {
		if err := m.Validate(); err != nil {
			s.logger.Warnf(context.Background(), "parse %s message %d, treating file as absent: %v", path, i, err)
			return nil, false
		}
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, true
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// PersistHistory overwrites the session's conversation log atomically.
func (s *Store) PersistHistory(name string, msgs []model.Message) error {
	canon, err := CanonicalName(name)
	if err != nil {
		return &StorageError{Op: OpPersistHistory, Name: name, Err: err}
	}
	path := s.historyPath(canon)
	if err := s.writeMessages(path, model.Clone(msgs)); err != nil {
		return &StorageError{Op: OpPersistHistory, Name: canon, Path: path, Err: err}
	}
	s.logger.Debugf(context.Background(), "persisted %d messages to %s", len(msgs), path)
	return nil
}

// PersistMemory overwrites the session's memory block atomically. A nil
// message clears it (the file then holds an empty array).
func (s *Store) PersistMemory(name string, mem *model.Message) error {
	canon, err := CanonicalName(name)
	if err != nil {
		return &StorageError{Op: OpPersistMemory, Name: name, Err: err}
	}
	msgs := []model.Message{}
	if mem != nil {
		msgs = append(msgs, *mem)
	}
	path := s.memoryPath(canon)
	if err := s.writeMessages(path, msgs); err != nil {
		return &StorageError{Op: OpPersistMemory, Name: canon, Path: path, Err: err}
	}
	return nil
}

func (s *Store) writeMessages(path string, msgs []model.Message) error {
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	return util.AtomicWriteFileWithDir(path, data, filePerm, dirPerm)
}

// Backup copies the history file byte-for-byte into backups/ and returns the
// new path. Nothing is written (and no error returned) when there is no
// history or it holds no messages. Backups are never overwritten: a second
// backup in the same second gets a -N suffix.
func (s *Store) Backup(name string) (string, error) {
	canon, err := CanonicalName(name)
	if err != nil {
		return "", &StorageError{Op: OpBackup, Name: name, Err: err}
	}

	src := s.historyPath(canon)
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", &StorageError{Op: OpBackup, Name: canon, Path: src, Err: err}
	}

	// Unparseable history is still backed up verbatim.
	var msgs []model.Message
	if json.Unmarshal(data, &msgs) == nil && len(msgs) == 0 {
		return "", nil
	}

	unix := s.now().Unix()
	for n := 0; n < maxBackupSuffix; n++ {
		dst := s.backupPath(canon, unix, n)
		err := util.WriteFileExclusive(dst, data, filePerm)
		if err == nil {
			s.logger.Infof(context.Background(), "backed up %s to %s", src, dst)
			return dst, nil
		}
		if !errors.Is(err, util.ErrFileExists) {
			return "", &StorageError{Op: OpBackup, Name: canon, Path: dst, Err: err}
		}
	}
	return "", &StorageError{
		Op:   OpBackup,
		Name: canon,
		Path: s.backupPath(canon, unix, 0),
		Err:  fmt.Errorf("more than %d backups in one second", maxBackupSuffix),
	}
}

// Delete removes the session's history and memory files. Deleting a session
// that does not exist succeeds. Backups are kept.
func (s *Store) Delete(name string) error {
	canon, err := CanonicalName(name)
	if err != nil {
		return &StorageError{Op: OpDelete, Name: name, Err: err}
	}
	for _, path := range []string{s.historyPath(canon), s.memoryPath(canon)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &StorageError{Op: OpDelete, Name: canon, Path: path, Err: err}
		}
	}
	s.logger.Infof(context.Background(), "deleted session %s", canon)
	return nil
}

// Backups lists backup files for a session, oldest first.
func (s *Store) Backups(name string) []string {
	canon, err := CanonicalName(name)
	if err != nil {
		return nil
	}
	entries, err := os.ReadDir(s.backupsDir)
	if err != nil {
		return nil
	}

	type backup struct {
		path    string
		unix, n int64
	}
	var found []backup
	prefix := backupPrefix + canon + "_"
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(file, prefix) || !strings.HasSuffix(file, fileExt) {
			continue
		}
		// The remainder must be <unix> or <unix>-<n>, so "work" does not
		// pick up the backups of "work_2".
		stamp := strings.TrimSuffix(strings.TrimPrefix(file, prefix), fileExt)
		unixPart, nPart, hasN := strings.Cut(stamp, "-")
		unix, err := strconv.ParseInt(unixPart, 10, 64)
		if err != nil {
			continue
		}
		var n int64
		if hasN {
			if n, err = strconv.ParseInt(nPart, 10, 64); err != nil {
				continue
			}
		}
		found = append(found, backup{path: filepath.Join(s.backupsDir, file), unix: unix, n: n})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].unix != found[j].unix {
			return found[i].unix < found[j].unix
		}
		return found[i].n < found[j].n
	})
	paths := make([]string, len(found))
	for i, b := range found {
		paths[i] = b.path
	}
	return paths
}
