// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel emulates data-parallel device dispatches on the host.
//
// A dispatch of N logical threads is split into workgroups that are fanned
// out across a work-stealing goroutine pool. Dispatch returns only after every
// workgroup has finished, so the return of a dispatch acts as the memory
// barrier between a writer phase and the next reader phase.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines executing workgroups.
//
// Each worker owns a queue and steals from the other queues when its own is
// empty, which balances workgroups of uneven cost (pixels with deep fragment
// lists next to empty ones).
//
// Thread safety: WorkerPool is safe for concurrent use. Dispatch must not be
// called from inside a kernel running on the same pool.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			if work != nil {
				work()
			}
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				if work != nil {
					work()
				}
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			if work != nil {
				work()
			}
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes work across workers and waits for all to complete.
// If the pool is closed, the work runs on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var completion sync.WaitGroup
	completion.Add(len(work))
	for i, fn := range work {
		workFn := fn
		wrapped := func() {
			defer completion.Done()
			workFn()
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	completion.Wait()
}

// Dispatch runs kernel once for every logical thread in [0, n), grouped into
// workgroups of groupSize threads, and returns when all threads finished.
// A groupSize of 0 or less runs the whole range as a single workgroup.
func (p *WorkerPool) Dispatch(n, groupSize int, kernel func(thread int)) {
	if n <= 0 {
		return
	}
	if groupSize <= 0 || groupSize > n {
		groupSize = n
	}
	groups := WorkgroupCount(n, groupSize)
	p.DispatchGroups(groups, func(group int) {
		start := group * groupSize
		end := min(start+groupSize, n)
		for i := start; i < end; i++ {
			kernel(i)
		}
	})
}

// DispatchGroups runs kernel once per workgroup index in [0, groups) and
// returns when all workgroups finished. Kernels that need workgroup-shared
// state (block scans) use this form.
func (p *WorkerPool) DispatchGroups(groups int, kernel func(group int)) {
	if groups <= 0 {
		return
	}
	if groups == 1 {
		kernel(0)
		return
	}
	work := make([]func(), groups)
	for g := range work {
		work[g] = func() { kernel(g) }
	}
	p.ExecuteAll(work)
}

// WorkgroupCount returns ceil(n / groupSize).
func WorkgroupCount(n, groupSize int) int {
	if n <= 0 || groupSize <= 0 {
		return 0
	}
	return (n + groupSize - 1) / groupSize
}

// Close stops the pool after the queued work completes.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
