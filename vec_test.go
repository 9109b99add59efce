package oit

import (
	"math"
	"testing"
)

func TestVec3(t *testing.T) {
	a, b := V3(1, 0, 0), V3(0, 1, 0)
	if got := a.Cross(b); got != V3(0, 0, 1) {
		t.Errorf("x cross y = %v, want z", got)
	}
	if got := a.Dot(b); got != 0 {
		t.Errorf("x dot y = %v, want 0", got)
	}
	if got := V3(3, 4, 0).Length(); got != 5 {
		t.Errorf("Length = %v, want 5", got)
	}
	if got := V3(0, 0, 2).Normalize(); got != V3(0, 0, 1) {
		t.Errorf("Normalize = %v, want (0,0,1)", got)
	}
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Errorf("Normalize(0) = %v, want 0", got)
	}
	if !a.Add(b).Sub(b).Approx(a, 1e-12) {
		t.Error("Add/Sub round trip failed")
	}
	if got := a.Mul(2).Point(); got != (Vec4{2, 0, 0, 1}) {
		t.Errorf("Point = %v", got)
	}
	if math.IsNaN(V3(1, 1, 1).Normalize().Length()) {
		t.Error("Normalize produced NaN")
	}
}
