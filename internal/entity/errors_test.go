// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Worldsmith Contributors

package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorSpecializations(t *testing.T) {
	assert.ErrorIs(t, ErrParentNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrWorldNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrHasChildren, ErrInvalidOperation)
	assert.ErrorIs(t, ErrCircularReference, ErrInvalidOperation)

	// The specializations stay distinguishable from each other.
	assert.NotErrorIs(t, ErrParentNotFound, ErrWorldNotFound)
	assert.NotErrorIs(t, ErrHasChildren, ErrCircularReference)
}
