// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package timer measures device phases with recyclable asynchronous
// elapsed-time queries.
//
// A Timer owns a small pool of queries. Lock/Unlock bracket one timed region;
// the query is then pending until the device reports it complete. Receive
// drains every completed query without blocking and folds the durations into
// running statistics. When every query is in flight, Lock silently skips the
// region so a slow device never stalls the frame.
package timer

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultPoolSize is the number of queries a Timer may have in flight.
const DefaultPoolSize = 5

// Query is one asynchronous elapsed-time measurement.
type Query interface {
	// Begin marks the start of the region in the device command stream.
	Begin()

	// End marks the end of the region.
	End()

	// Ready reports whether the device finished the region. It must not block.
	Ready() bool

	// Elapsed returns the measured duration. Only valid once Ready is true.
	Elapsed() time.Duration
}

// QuerySource creates queries for one device context.
type QuerySource interface {
	NewQuery() Query
}

// Context groups the timers that share one device context. Elapsed-time
// queries cannot nest within a context, so at most one region of any timer in
// the context may be active at a time.
type Context struct {
	source QuerySource
	active atomic.Pointer[Timer]
}

// NewContext creates a timer context backed by source.
func NewContext(source QuerySource) *Context {
	return &Context{source: source}
}

// NewTimer creates a named timer with poolSize recyclable queries.
// A poolSize of 0 or less uses DefaultPoolSize.
func (c *Context) NewTimer(name string, poolSize int) *Timer {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	t := &Timer{
		name:  name,
		ctx:   c,
		free:  make([]Query, 0, poolSize),
		stats: NewStats(DefaultWindow),
	}
	for range poolSize {
		t.free = append(t.free, c.source.NewQuery())
	}
	return t
}

// Active returns the timer whose region is currently open, or nil.
func (c *Context) Active() *Timer {
	return c.active.Load()
}

// Timer is a recyclable pool of elapsed-time queries for one named region.
//
// Timer is not safe for concurrent use; it is driven by the thread issuing
// device phases.
type Timer struct {
	name    string
	ctx     *Context
	free    []Query
	pending []Query
	current Query
	stats   *Stats
}

// Name returns the timer's region name.
func (t *Timer) Name() string {
	return t.name
}

// Lock opens a timed region. Opening a region while any region of the same
// context is open is a programming error and panics. If no query is free the
// region is not measured.
func (t *Timer) Lock() {
	if !t.ctx.active.CompareAndSwap(nil, t) {
		other := t.ctx.active.Load()
		panic(fmt.Sprintf("timer: Lock(%q) while region %q is active", t.name, other.name))
	}
	if len(t.free) == 0 {
		t.current = nil
		return
	}
	q := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	q.Begin()
	t.current = q
}

// Unlock closes the region opened by Lock and queues its query.
func (t *Timer) Unlock() {
	if !t.ctx.active.CompareAndSwap(t, nil) {
		panic(fmt.Sprintf("timer: Unlock(%q) without matching Lock", t.name))
	}
	if t.current == nil {
		return
	}
	t.current.End()
	t.pending = append(t.pending, t.current)
	t.current = nil
}

// Scope opens a region and returns the func that closes it:
//
//	defer tm.Scope()()
func (t *Timer) Scope() func() {
	t.Lock()
	return t.Unlock
}

// Receive drains completed queries in submission order without blocking,
// stopping at the first one still in flight. It returns the number of
// samples received.
func (t *Timer) Receive() int {
	n := 0
	for len(t.pending) > 0 {
		q := t.pending[0]
		if !q.Ready() {
			break
		}
		t.stats.Add(q.Elapsed())
		t.pending[0] = nil
		t.pending = t.pending[1:]
		t.free = append(t.free, q)
		n++
	}
	return n
}

// InFlight returns the number of queries waiting for the device.
func (t *Timer) InFlight() int {
	return len(t.pending)
}

// Stats returns a snapshot of the collected statistics.
func (t *Timer) Stats() Summary {
	return t.stats.Summary()
}

// Reset discards the collected statistics. Queries in flight are kept.
func (t *Timer) Reset() {
	t.stats.Reset()
}

// HostQuerySource measures regions with the host clock. A query becomes ready
// as soon as its region ends, which matches backends whose phases complete
// synchronously at the barrier that closes them.
type HostQuerySource struct {
	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time
}

// NewQuery implements QuerySource.
func (s *HostQuerySource) NewQuery() Query {
	return &hostQuery{src: s}
}

func (s *HostQuerySource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type hostQuery struct {
	src        *HostQuerySource
	start, end time.Time
	ended      bool
}

func (q *hostQuery) Begin() {
	q.start = q.src.now()
	q.ended = false
}

func (q *hostQuery) End() {
	q.end = q.src.now()
	q.ended = true
}

func (q *hostQuery) Ready() bool { return q.ended }

func (q *hostQuery) Elapsed() time.Duration { return q.end.Sub(q.start) }

// BusySource measures regions with a device busy clock: the accumulated time
// the device spent executing submitted work. A region's elapsed time is the
// busy time added between Begin and End, which leaves out host-side encoding
// and readback. Queries are ready when their region ends.
type BusySource struct {
	// Busy returns the device busy time so far. It must never decrease.
	Busy func() time.Duration
}

// NewQuery implements QuerySource.
func (s *BusySource) NewQuery() Query {
	return &busyQuery{src: s}
}

type busyQuery struct {
	src        *BusySource
	start, end time.Duration
	ended      bool
}

func (q *busyQuery) Begin() {
	q.start = q.src.Busy()
	q.ended = false
}

func (q *busyQuery) End() {
	q.end = q.src.Busy()
	q.ended = true
}

func (q *busyQuery) Ready() bool { return q.ended }

func (q *busyQuery) Elapsed() time.Duration { return q.end - q.start }
