// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding for control
// socket messages. The same logical data always produces identical
// bytes, which keeps responses diffable in tests and on the wire.
package codec
