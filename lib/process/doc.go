// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers: fatal error
// reporting to stderr when the structured logger is not yet
// initialized, and process exit after an unrecoverable error in
// main().
package process
