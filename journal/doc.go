// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal persists verification decisions to SQLite.
//
// Every protected request the gateway decides produces one row: the
// request identity (request ID, path), the verdict (outcome, reason,
// source, accepted key generation), and cost (candidate count,
// duration). The full attempt trace rides along as a deterministic
// CBOR blob in the detail column, so an operator can reconstruct
// exactly which candidates and key generations were tried without the
// journal schema growing a column per step.
//
// The journal is an audit surface, not a dependency of request
// handling: the gateway treats a failed write as a logged warning and
// serves the response regardless.
//
// Retention is time-based. [Store.PruneBefore] deletes rows older
// than a cutoff; [Store.RunRetention] runs it on a ticker derived
// from the retention window until the context is cancelled. Both take
// their notion of now from the injected clock, which is what makes
// retention behavior testable.
package journal
