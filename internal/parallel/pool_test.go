package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

func TestWorkerPool_CloseTwice(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	numTasks := 100
	work := make([]func(), numTasks)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.ExecuteAll(work)

	if counter.Load() != int64(numTasks) {
		t.Errorf("counter = %d, want %d", counter.Load(), numTasks)
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){})
}

func TestWorkerPool_ExecuteAll_AfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var ran atomic.Int32
	pool.ExecuteAll([]func(){func() { ran.Add(1) }, func() { ran.Add(1) }})
	if ran.Load() != 2 {
		t.Errorf("ran = %d, want 2 (inline execution after Close)", ran.Load())
	}
}

// =============================================================================
// Dispatch Tests
// =============================================================================

func TestWorkerPool_Dispatch_EveryThreadOnce(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	tests := []struct {
		n, group int
	}{
		{1, 64},
		{63, 64},
		{64, 64},
		{65, 64},
		{1000, 7},
		{4096, 256},
		{10, 0},
	}
	for _, tt := range tests {
		hits := make([]atomic.Int32, tt.n)
		pool.Dispatch(tt.n, tt.group, func(i int) { hits[i].Add(1) })
		for i := range hits {
			if got := hits[i].Load(); got != 1 {
				t.Fatalf("n=%d group=%d: thread %d ran %d times", tt.n, tt.group, i, got)
			}
		}
	}
}

func TestWorkerPool_Dispatch_IsBarrier(t *testing.T) {
	pool := NewWorkerPool(8)
	defer pool.Close()

	// Plain (non-atomic) writes in one dispatch must be visible after it
	// returns; go test -race flags a missing happens-before edge.
	data := make([]uint32, 5000)
	pool.Dispatch(len(data), 64, func(i int) { data[i] = uint32(i) * 3 })

	var sum uint64
	var mu sync.Mutex
	pool.Dispatch(len(data), 64, func(i int) {
		mu.Lock()
		sum += uint64(data[i])
		mu.Unlock()
	})

	want := uint64(3) * uint64(len(data)-1) * uint64(len(data)) / 2
	if sum != want {
		t.Errorf("sum = %d, want %d", sum, want)
	}
}

func TestWorkerPool_DispatchGroups(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	seen := make([]atomic.Bool, 17)
	pool.DispatchGroups(len(seen), func(g int) { seen[g].Store(true) })
	for g := range seen {
		if !seen[g].Load() {
			t.Errorf("group %d not executed", g)
		}
	}

	pool.DispatchGroups(0, func(int) { t.Error("kernel must not run for zero groups") })
}

func TestWorkgroupCount(t *testing.T) {
	tests := []struct {
		n, group, want int
	}{
		{0, 64, 0},
		{1, 64, 1},
		{64, 64, 1},
		{65, 64, 2},
		{256, 256, 1},
		{257, 256, 2},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := WorkgroupCount(tt.n, tt.group); got != tt.want {
			t.Errorf("WorkgroupCount(%d, %d) = %d, want %d", tt.n, tt.group, got, tt.want)
		}
	}
}

func BenchmarkDispatch(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	data := make([]uint32, 1920*1080)
	b.ResetTimer()
	for b.Loop() {
		pool.Dispatch(len(data), 256, func(i int) { data[i]++ })
	}
}
