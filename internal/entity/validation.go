// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package entity

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Validation limits for domain types.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 10000
	MaxTagCount          = 50
	MaxTagLength         = 64
)

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateName checks that a name is valid.
// Names must be non-empty, valid UTF-8, no control characters, and within length limit.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if !utf8.ValidString(name) {
		return &ValidationError{Field: "name", Message: "must be valid UTF-8"}
	}
	if len(name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("exceeds maximum length of %d", MaxNameLength)}
	}
	if hasControlChars(name) {
		return &ValidationError{Field: "name", Message: "cannot contain control characters"}
	}
	return nil
}

// ValidateDescription checks that a description is valid.
// Descriptions may be empty, must be valid UTF-8, no control characters
// (except newline/tab), and within length limit.
func ValidateDescription(desc string) error {
	if desc == "" {
		return nil
	}
	if !utf8.ValidString(desc) {
		return &ValidationError{Field: "description", Message: "must be valid UTF-8"}
	}
	if len(desc) > MaxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("exceeds maximum length of %d", MaxDescriptionLength)}
	}
	if hasControlCharsExceptWhitespace(desc) {
		return &ValidationError{Field: "description", Message: "cannot contain control characters (except newline/tab)"}
	}
	return nil
}

// ValidateTags checks that a tag set is valid.
// Each tag must be non-empty, valid UTF-8, within length limit, and unique.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTagCount {
		return &ValidationError{Field: "tags", Message: fmt.Sprintf("exceeds maximum count of %d", MaxTagCount)}
	}
	seen := make(map[string]bool, len(tags))
	for i, tag := range tags {
		if tag == "" {
			return &ValidationError{Field: "tags", Message: fmt.Sprintf("tag %d cannot be empty", i)}
		}
		if !utf8.ValidString(tag) {
			return &ValidationError{Field: "tags", Message: fmt.Sprintf("tag %d must be valid UTF-8", i)}
		}
		if len(tag) > MaxTagLength {
			return &ValidationError{Field: "tags", Message: fmt.Sprintf("tag %d exceeds maximum length of %d", i, MaxTagLength)}
		}
		if hasControlChars(tag) {
			return &ValidationError{Field: "tags", Message: fmt.Sprintf("tag %d cannot contain control characters", i)}
		}
		if seen[tag] {
			return &ValidationError{Field: "tags", Message: fmt.Sprintf("duplicate tag: %s", tag)}
		}
		seen[tag] = true
	}
	return nil
}

// ValidateType checks that an entity type is one of the known kinds.
func ValidateType(t Type) error {
	switch t {
	case TypeLocation, TypeCharacter, TypeItem, TypeFaction, TypeNote:
		return nil
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown entity type %q", t)}
	}
}

// hasControlChars returns true if the string contains control characters.
func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// hasControlCharsExceptWhitespace returns true if the string contains control
// characters other than newline, carriage return, and tab.
func hasControlCharsExceptWhitespace(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}
