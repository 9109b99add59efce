package scan

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gogpu/oit/internal/parallel"
)

func newTestEngine(t testing.TB, wg, per int) *Engine {
	t.Helper()
	pool := parallel.NewWorkerPool(4)
	t.Cleanup(pool.Close)
	return New(pool, wg, per)
}

// referenceScan is the mathematical exclusive prefix sum.
func referenceScan(a []uint32) ([]uint32, uint32) {
	out := make([]uint32, len(a))
	var sum uint32
	for i, v := range a {
		out[i] = sum
		sum += v
	}
	return out, sum
}

func TestScan_Example(t *testing.T) {
	e := newTestEngine(t, 2, 2)
	if err := e.Resize(4); err != nil {
		t.Fatal(err)
	}
	total, err := e.Run([]uint32{3, 0, 2, 5})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
	if got, want := e.Offsets(), []uint32{0, 3, 3, 5}; !slices.Equal(got, want) {
		t.Errorf("Offsets() = %v, want %v", got, want)
	}
}

// A one-element block cannot shrink the hierarchy; New widens it to two.
func TestScan_SingleElementBlock(t *testing.T) {
	e := newTestEngine(t, 1, 1)
	if got := e.BlockElems(); got != 2 {
		t.Errorf("BlockElems() = %d, want 2", got)
	}
	if err := e.Resize(4); err != nil {
		t.Fatal(err)
	}
	total, err := e.Run([]uint32{3, 0, 2, 5})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
	if got, want := e.Offsets(), []uint32{0, 3, 3, 5}; !slices.Equal(got, want) {
		t.Errorf("Offsets() = %v, want %v", got, want)
	}
}

func TestScan_MatchesReference(t *testing.T) {
	geometries := []struct {
		wg, per int
	}{
		{1, 1},
		{1, 2},
		{2, 2},
		{4, 4},
		{64, 4},
		{256, 1},
	}
	lengths := []int{1, 3, 16, 255, 256, 257, 1000, 65536 + 17}

	rng := rand.New(rand.NewPCG(1, 2))
	for _, g := range geometries {
		for _, n := range lengths {
			e := newTestEngine(t, g.wg, g.per)
			if err := e.Resize(n); err != nil {
				t.Fatal(err)
			}
			in := make([]uint32, n)
			for i := range in {
				in[i] = uint32(rng.IntN(9))
			}
			total, err := e.Run(in)
			if err != nil {
				t.Fatalf("wg=%d per=%d n=%d: Run() error = %v", g.wg, g.per, n, err)
			}
			want, wantTotal := referenceScan(in)
			if total != wantTotal {
				t.Errorf("wg=%d per=%d n=%d: total = %d, want %d", g.wg, g.per, n, total, wantTotal)
			}
			if !slices.Equal(e.Offsets(), want) {
				t.Errorf("wg=%d per=%d n=%d: offsets mismatch", g.wg, g.per, n)
			}
		}
	}
}

func TestScan_Idempotent(t *testing.T) {
	e := newTestEngine(t, 8, 2)
	in := make([]uint32, 777)
	for i := range in {
		in[i] = uint32(i % 5)
	}
	if err := e.Resize(len(in)); err != nil {
		t.Fatal(err)
	}

	t1, err := e.Run(in)
	if err != nil {
		t.Fatal(err)
	}
	first := slices.Clone(e.Offsets())

	t2, err := e.Run(in)
	if err != nil {
		t.Fatal(err)
	}
	if t1 != t2 {
		t.Errorf("totals differ: %d vs %d", t1, t2)
	}
	if !slices.Equal(first, e.Offsets()) {
		t.Error("offsets differ between identical runs")
	}
}

func TestScan_ShortInputIsZeroPadded(t *testing.T) {
	e := newTestEngine(t, 2, 2)
	if err := e.Resize(10); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(slices.Repeat([]uint32{9}, 10)); err != nil {
		t.Fatal(err)
	}
	total, err := e.Run([]uint32{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2 (stale data from previous run)", total)
	}
	if got := e.Offsets()[9]; got != 2 {
		t.Errorf("Offsets()[9] = %d, want 2", got)
	}
}

func TestScan_TooManyCounts(t *testing.T) {
	e := newTestEngine(t, 2, 2)
	if err := e.Resize(2); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run([]uint32{1, 2, 3}); err == nil {
		t.Error("Run() with more counts than the domain should fail")
	}
}

func TestScan_Overflow(t *testing.T) {
	e := newTestEngine(t, 2, 2)
	if err := e.Resize(8); err != nil {
		t.Fatal(err)
	}
	in := []uint32{math.MaxUint32, 1, 0, 0, 0, 0, 0, 0}
	if _, err := e.Run(in); !errors.Is(err, ErrOverflow) {
		t.Errorf("Run() error = %v, want ErrOverflow", err)
	}

	// Overflow of a block sum is caught one level up.
	in = []uint32{0, 0, 0, math.MaxUint32 - 1, 1, 1, 0, 0}
	if _, err := e.Run(in); !errors.Is(err, ErrOverflow) {
		t.Errorf("cross-block Run() error = %v, want ErrOverflow", err)
	}
}

func TestLevelSizes(t *testing.T) {
	tests := []struct {
		n, block int
		want     []int
	}{
		{0, 4, []int{4, 1}},
		{4, 4, []int{4, 1}},
		{5, 4, []int{8, 2, 1}},
		{64, 4, []int{64, 16, 4, 1}},
		{1920 * 1080, 256, []int{2073600, 8100, 32, 1}},
	}
	for _, tt := range tests {
		got := LevelSizes(tt.n, tt.block)
		if !slices.Equal(got, tt.want) {
			t.Errorf("LevelSizes(%d, %d) = %v, want %v", tt.n, tt.block, got, tt.want)
		}
		if got[len(got)-1] != 1 {
			t.Errorf("LevelSizes(%d, %d): top level = %d, want 1", tt.n, tt.block, got[len(got)-1])
		}
	}
}

func TestCheckCapacity(t *testing.T) {
	if err := CheckCapacity(1920*1080, 64); err != nil {
		t.Errorf("CheckCapacity(1080p, 64) = %v, want nil", err)
	}
	if err := CheckCapacity(1<<20, 1<<13); !errors.Is(err, ErrOverflow) {
		t.Errorf("CheckCapacity(2^20, 2^13) = %v, want ErrOverflow", err)
	}
}

func BenchmarkScan1080p(b *testing.B) {
	e := newTestEngine(b, DefaultWorkgroupSize, DefaultElemsPerThread)
	in := make([]uint32, 1920*1080)
	for i := range in {
		in[i] = uint32(i & 7)
	}
	if err := e.Resize(len(in)); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for b.Loop() {
		if _, err := e.Run(in); err != nil {
			b.Fatal(err)
		}
	}
}
