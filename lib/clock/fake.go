// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called; tickers fire only when the clock
// moves past their deadlines.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.tickersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for testing. Advance moves time
// forward and fires pending tickers in deadline order.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	tickers        []*fakeTicker
	tickersChanged *sync.Cond
}

// fakeTicker is one pending periodic waiter.
type fakeTicker struct {
	deadline time.Time
	interval time.Duration
	channel  chan time.Time

	// stopped is set by Ticker.Stop; stopped tickers are skipped
	// during Advance and dropped from the pending list.
	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker returns a Ticker that fires each time Advance moves the
// clock past a multiple of d. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ticker := &fakeTicker{
		deadline: c.current.Add(d),
		interval: d,
		channel:  make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ticker)
	c.tickersChanged.Broadcast()

	return &Ticker{
		C: ticker.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires every ticker whose
// deadline falls within the new time, in deadline order. An advance
// spanning multiple intervals fires once per interval; ticks that
// overflow the channel buffer are dropped, matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		expired := c.collectExpired(target)
		if len(expired) == 0 {
			return
		}
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})
		for _, ticker := range expired {
			select {
			case ticker.channel <- target:
			default:
			}
		}
	}
}

// collectExpired reschedules and returns the tickers due at or before
// target, dropping stopped ones. Acquires c.mu internally.
func (c *FakeClock) collectExpired(target time.Time) []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*fakeTicker
	var remaining []*fakeTicker
	for _, ticker := range c.tickers {
		if ticker.stopped {
			continue
		}
		if !ticker.deadline.After(target) {
			expired = append(expired, ticker)
		}
		remaining = append(remaining, ticker)
	}
	for _, ticker := range expired {
		ticker.deadline = ticker.deadline.Add(ticker.interval)
	}
	c.tickers = remaining
	return expired
}

// WaitForTickers blocks until at least n tickers are registered and
// unstopped. It removes the race between a goroutine creating its
// ticker and the test advancing the clock past the first interval.
func (c *FakeClock) WaitForTickers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.tickersChanged.Wait()
	}
}

// pendingLocked counts unstopped tickers. Caller holds c.mu.
func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, ticker := range c.tickers {
		if !ticker.stopped {
			count++
		}
	}
	return count
}
