// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package services

import "errors"

// ErrInvalidArgument marks client input the store cannot be asked to accept:
// malformed regexes, bad template placeholders, unparsable ranges.
var ErrInvalidArgument = errors.New("invalid argument")
