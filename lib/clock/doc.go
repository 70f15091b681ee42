// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Verification deadlines and journal retention both depend on the
// current time; production code takes a Clock instead of calling
// time.Now or time.NewTicker so tests can pin and advance time
// deterministically. Real() is the standard library behavior; Fake()
// stands still until Advance is called.
//
// The usual wiring is a Clock field on the owning struct:
//
//	gate := gateway.New(cfg, keys, journal, clock.Real(), logger)
//
// and in tests:
//
//	c := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
//	c.Advance(time.Hour) // tokens sealed for less are now expired
//
// For code that waits on a ticker, WaitForTickers removes the race
// between the goroutine registering its ticker and the test advancing
// the clock.
package clock
