// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the longest session name in characters.
const MaxNameLength = 64

// ErrInvalidName is returned for names that cannot become a session key.
var ErrInvalidName = errors.New("invalid session name")

// CanonicalName turns user input into the session key used in file names.
//
// The name is trimmed, NFC-normalized and case-folded, so "Work", "WORK" and
// "work" are one session even on a case-insensitive filesystem. Allowed
// characters are letters, digits, '.', '_' and '-'; the name must not start
// with '.' and must be 1 to MaxNameLength characters long.
func CanonicalName(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = norm.NFC.String(cases.Fold().String(norm.NFC.String(s)))

	n := utf8.RuneCountInString(s)
	if n == 0 {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if n > MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	if strings.HasPrefix(s, ".") {
		return "", fmt.Errorf("%w: %q starts with '.'", ErrInvalidName, raw)
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			continue
		}
		return "", fmt.Errorf("%w: %q contains %q", ErrInvalidName, raw, r)
	}
	return s, nil
}
