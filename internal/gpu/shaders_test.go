//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"strings"
	"testing"
)

func TestKernels_Sources(t *testing.T) {
	if got := len(Kernels()); got != int(numKernels) {
		t.Fatalf("len(Kernels()) = %d, want %d", got, numKernels)
	}
	for _, k := range Kernels() {
		src := k.Source()
		if src == "" {
			t.Errorf("%s: empty source", k)
			continue
		}
		if !strings.Contains(src, "fn main(") {
			t.Errorf("%s: no main entry point", k)
		}
	}
}

// Every kernel declares Params at binding 0 plus one binding per slot.
func TestKernels_BindingsMatchSource(t *testing.T) {
	for _, k := range Kernels() {
		got := strings.Count(k.Source(), "@binding(")
		want := len(kernelBindings[k]) + 1
		if got != want {
			t.Errorf("%s: %d bindings in WGSL, %d in layout", k, got, want)
		}
		if n := len(bindGroupLayoutEntries(k)); n != want {
			t.Errorf("%s: %d layout entries, want %d", k, n, want)
		}
	}
}

func TestKernels_CompileSPIRV(t *testing.T) {
	for _, k := range Kernels() {
		t.Run(k.String(), func(t *testing.T) {
			words, err := CompileSPIRV(k)
			if err != nil {
				msg := err.Error()
				if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
					t.Skipf("Skipping: naga feature not yet implemented: %v", err)
				}
				t.Fatalf("CompileSPIRV(%s) error = %v", k, err)
			}
			if words[0] != spirvMagic {
				t.Errorf("magic = %#08x, want %#08x", words[0], spirvMagic)
			}
		})
	}
}

func TestKernel_String(t *testing.T) {
	tests := []struct {
		k    Kernel
		want string
	}{
		{KernelClear, "clear"},
		{KernelScanReduce, "scan_reduce"},
		{KernelBoundedBuild, "bounded_build"},
		{KernelComposite, "composite"},
		{Kernel(99), "Kernel(99)"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kernel(%d).String() = %q, want %q", int(tt.k), got, tt.want)
		}
	}
}

func TestParams_Layout(t *testing.T) {
	p := Params{
		Width: 1, Height: 2, Pixels: 3, NumFrags: 4,
		K: 5, Capacity: 6, Background: 7, Policy: 8,
		Mode: 9, Sort: 10, SrcOffset: 11, DstOffset: 12,
		SrcLen: 13, DstLen: 14, Block: 15,
	}
	buf := p.toBytes()
	if len(buf) != paramsSize {
		t.Fatalf("len = %d, want %d", len(buf), paramsSize)
	}
	for i := range 16 {
		want := uint32(i + 1)
		if i == 15 {
			want = 0
		}
		if got := binary.LittleEndian.Uint32(buf[i*4:]); got != want {
			t.Errorf("word %d = %d, want %d", i, got, want)
		}
	}
}

func TestWorkgroupCount(t *testing.T) {
	tests := []struct {
		k        Kernel
		elements uint32
		x, y     uint32
	}{
		{KernelResolve, 0, 0, 0},
		{KernelResolve, 1, 1, 1},
		{KernelResolve, 64, 1, 1},
		{KernelResolve, 65, 2, 1},
		{KernelBoundedBuild, 64 * 65535, 65535, 1},
		{KernelBoundedBuild, 64*65535 + 1, 65535, 2},
		{KernelScanTop, 1 << 20, 1, 1},
	}
	for _, tt := range tests {
		x, y := WorkgroupCount(tt.k, tt.elements)
		if x != tt.x || y != tt.y {
			t.Errorf("WorkgroupCount(%s, %d) = (%d, %d), want (%d, %d)", tt.k, tt.elements, x, y, tt.x, tt.y)
		}
		if tt.k != KernelScanTop && uint64(x)*uint64(y)*wgSize < uint64(tt.elements) {
			t.Errorf("WorkgroupCount(%s, %d) covers too few threads", tt.k, tt.elements)
		}
	}
}

func TestSlot_String(t *testing.T) {
	if got := SlotSamples.String(); got != "samples" {
		t.Errorf("SlotSamples.String() = %q", got)
	}
	if got := Slot(-1).String(); got != "Slot(-1)" {
		t.Errorf("Slot(-1).String() = %q", got)
	}
}

type fakeProvider struct {
	device, queue any
}

func (p fakeProvider) HalDevice() any { return p.device }
func (p fakeProvider) HalQueue() any  { return p.queue }

func TestDeviceFromProvider_Rejects(t *testing.T) {
	if _, err := DeviceFromProvider(struct{}{}); err == nil {
		t.Error("provider without HAL accessors should fail")
	}
	if _, err := DeviceFromProvider(fakeProvider{device: 1, queue: 2}); err == nil {
		t.Error("provider with non-HAL values should fail")
	}
}

// The dynamic store claims slots with a compare-exchange countdown that stops
// at zero. A plain decrement can wrap and index a neighbouring slice.
func TestKernel_DynamicStoreCountdownStopsAtZero(t *testing.T) {
	src := KernelDynamicStore.Source()
	if !strings.Contains(src, "atomicCompareExchangeWeak(&counts[f.pixel]") {
		t.Error("dynamic_store: countdown is not a compare-exchange loop")
	}
	if strings.Contains(src, "atomicSub(&counts") {
		t.Error("dynamic_store: countdown uses atomicSub")
	}
}
