package oit

import (
	"errors"
	"testing"

	"github.com/gogpu/oit/internal/fragment"
	"github.com/gogpu/oit/internal/resolve"
)

// screenTri returns a clip-space triangle covering the whole viewport at the
// given NDC depth.
func screenTri(depth float64, c RGBA) Primitive {
	return Primitive{
		Clip: [3]Vec4{
			{X: -1, Y: -1, Z: depth, W: 1},
			{X: 3, Y: -1, Z: depth, W: 1},
			{X: -1, Y: 3, Z: depth, W: 1},
		},
		Key:   [3]float32{float32(depth), float32(depth), float32(depth)},
		Color: c.Packed(),
	}
}

// runPhases drives b through one frame the way Pipeline does.
func runPhases(t *testing.T, b *SoftwareBackend, cfg Config, opaque, transparent []Primitive, target *Pixmap) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(b.Clear(cfg.Background.Packed() | 0xff000000))
	must(b.Opaque(opaque))
	if cfg.Strategy == StrategyDynamic {
		must(b.Count(transparent))
		_, err := b.Scan()
		must(err)
		_, err = b.Grow()
		must(err)
	}
	must(b.Build(transparent))
	must(b.Resolve())
	must(b.Composite(target))
}

func TestSoftwareBackend_Phases(t *testing.T) {
	opaque := []Primitive{screenTri(0.9, Green)}
	transparent := []Primitive{
		screenTri(0.2, RGBAf(0, 0, 1, 0.5)),
		screenTri(0.5, RGBAf(1, 0, 0, 0.5)),
		screenTri(0.95, White), // behind the opaque layer
	}

	for _, s := range []Strategy{StrategyBounded, StrategyList, StrategyDynamic} {
		t.Run(s.String(), func(t *testing.T) {
			b := NewSoftwareBackend(3)
			defer b.Close()
			cfg := DefaultConfig()
			cfg.Strategy = s
			if err := b.Configure(cfg, 7, 5); err != nil {
				t.Fatal(err)
			}
			target := NewPixmap(7, 5)
			runPhases(t, b, cfg, opaque, transparent, target)

			checkAll(t, target, [3]uint8{64, 64, 128}, 3)
			st := b.Stats()
			if st.Fragments != 2*7*5 {
				t.Errorf("Fragments = %d, want %d", st.Fragments, 2*7*5)
			}
			if st.Dropped != 0 || st.Overflow != nil {
				t.Errorf("Dropped = %d, Overflow = %v", st.Dropped, st.Overflow)
			}
			if st.Capacity < st.Used {
				t.Errorf("Used %d exceeds Capacity %d", st.Used, st.Capacity)
			}
		})
	}
}

func TestSoftwareBackend_ListUnsortedMatchesSorted(t *testing.T) {
	// Submitted back to front, so newest first is nearest first.
	transparent := []Primitive{
		screenTri(0.5, RGBAf(1, 0, 0, 0.5)),
		screenTri(0.2, RGBAf(0, 0, 1, 0.5)),
	}
	render := func(mode ListSortMode) *Pixmap {
		b := NewSoftwareBackend(2)
		defer b.Close()
		cfg := DefaultConfig()
		cfg.Strategy = StrategyList
		cfg.ListSort = mode
		if err := b.Configure(cfg, 4, 4); err != nil {
			t.Fatal(err)
		}
		target := NewPixmap(4, 4)
		runPhases(t, b, cfg, nil, transparent, target)
		return target
	}
	sorted, unsorted := render(SortOnResolve), render(Unsorted)
	for i := range 16 {
		if sorted.Packed(i) != unsorted.Packed(i) {
			t.Fatalf("pixel %d: sorted %#x, unsorted %#x", i, sorted.Packed(i), unsorted.Packed(i))
		}
	}
}

func TestSoftwareBackend_DynamicPhasesNeedDynamicStrategy(t *testing.T) {
	b := NewSoftwareBackend(1)
	defer b.Close()
	if err := b.Configure(DefaultConfig(), 2, 2); err != nil {
		t.Fatal(err)
	}
	if err := b.Count(nil); err == nil {
		t.Error("Count with bounded strategy should fail")
	}
	if _, err := b.Scan(); err == nil {
		t.Error("Scan with bounded strategy should fail")
	}
	if _, err := b.Grow(); err == nil {
		t.Error("Grow with bounded strategy should fail")
	}
}

func TestSoftwareBackend_CompositeSizeMismatch(t *testing.T) {
	b := NewSoftwareBackend(1)
	defer b.Close()
	if err := b.Configure(DefaultConfig(), 4, 4); err != nil {
		t.Fatal(err)
	}
	if err := b.Composite(NewPixmap(3, 4)); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Composite(3x4) = %v, want ErrInvalidSize", err)
	}
}

func TestSoftwareBackend_ConfigureRejectsInvalid(t *testing.T) {
	b := NewSoftwareBackend(1)
	defer b.Close()
	cfg := DefaultConfig()
	cfg.Strategy = StrategyDynamic
	cfg.Backing = BackingTexture
	if err := b.Configure(cfg, 4, 4); !errors.Is(err, ErrUnsupportedBacking) {
		t.Errorf("Configure(dynamic texture) = %v, want ErrUnsupportedBacking", err)
	}
	if err := b.Configure(DefaultConfig(), 0, 4); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Configure(0x4) = %v, want ErrInvalidSize", err)
	}
}

func BenchmarkSoftwareBackend_Frame(b *testing.B) {
	for _, s := range []Strategy{StrategyBounded, StrategyList, StrategyDynamic} {
		b.Run(s.String(), func(b *testing.B) {
			cfg := DefaultConfig()
			cfg.Strategy = s
			p, err := NewPipeline(cfg)
			if err != nil {
				b.Fatal(err)
			}
			defer p.Close()
			target := NewPixmap(320, 240)
			scene, cam := layeredScene(), testCamera()
			for b.Loop() {
				if _, err := p.Render(scene, cam, target); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// The darkened background and the accumulation are summed before the only
// rounding to RGBA8. Rounding the darkened background separately would give
// 60 here instead of 59.
func TestSoftwareBackend_SingleQuantization(t *testing.T) {
	bg := RGB(0.2, 0.2, 0.2)
	near := RGBAf(0.2, 0.2, 0.2, 0.3)
	far := RGBAf(0.3, 0.3, 0.3, 0.5)

	b := NewSoftwareBackend(2)
	defer b.Close()
	cfg := DefaultConfig()
	if err := b.Configure(cfg, 4, 4); err != nil {
		t.Fatal(err)
	}
	target := NewPixmap(4, 4)
	runPhases(t, b, cfg,
		[]Primitive{screenTri(0.9, bg)},
		[]Primitive{screenTri(0.5, far), screenTri(0.2, near)},
		target)

	want := resolve.Pixel([]fragment.Sample{
		{Depth: 0.2, Color: near.Packed()},
		{Depth: 0.5, Color: far.Packed()},
	}, bg.Packed(), true)
	if want&0xff != 59 {
		t.Fatalf("reference red = %d, want 59", want&0xff)
	}
	for i := range 16 {
		if got := target.Packed(i); got != want {
			t.Fatalf("pixel %d = %#08x, want %#08x", i, got, want)
		}
	}
}
