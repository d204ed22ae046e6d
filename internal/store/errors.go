// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "errors"

var (
	// ErrNotFound indicates the requested entity id is unknown.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict indicates a uniqueness violation, e.g. a duplicate
	// (type, name) pair with divergent data.
	ErrConflict = errors.New("conflict")

	// ErrPreconditionFailed indicates the operation is forbidden by current
	// state, e.g. deleting an object type that still has objects.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrSchemaDowngrade indicates the database schema is newer than this
	// binary supports. Startup must abort with exit code 3.
	ErrSchemaDowngrade = errors.New("database schema is newer than supported")
)
