// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package entity

import (
	"encoding/base64"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Pagination cursors are opaque to callers. Internally a cursor encodes
// the last-seen entity id; ULIDs embed creation time, so "id greater
// than cursor" pages in stable creation order.

// EncodeCursor returns the opaque cursor for the given last-seen id.
func EncodeCursor(id ulid.ULID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.String()))
}

// DecodeCursor parses an opaque cursor back into an entity id.
// An empty cursor yields the zero ULID, meaning "from the beginning".
func DecodeCursor(cursor string) (ulid.ULID, error) {
	if cursor == "" {
		return ulid.ULID{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return ulid.ULID{}, oops.Code("CURSOR_INVALID").With("cursor", cursor).Wrap(err)
	}
	id, err := ulid.Parse(string(raw))
	if err != nil {
		return ulid.ULID{}, oops.Code("CURSOR_INVALID").With("cursor", cursor).Wrap(err)
	}
	return id, nil
}
