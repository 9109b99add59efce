package oit

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/gogpu/oit/internal/timer"
)

// steppedSource is a host clock that advances one millisecond per reading.
func steppedSource() *timer.HostQuerySource {
	now := time.Unix(0, 0)
	return &timer.HostQuerySource{Now: func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}}
}

func TestWithBackend(t *testing.T) {
	b := NewSoftwareBackend(1)
	p := newTestPipeline(t, DefaultConfig(), WithBackend(b))
	if _, err := p.Render(SceneList{}, testCamera(), NewPixmap(2, 2)); err != nil {
		t.Fatal(err)
	}
	if p.backend != b {
		t.Error("pipeline should use the injected backend")
	}
}

func TestWithTimerSource(t *testing.T) {
	reg := NewMetricsRegistry()
	p := newTestPipeline(t, DefaultConfig(), WithTimerSource(steppedSource()), WithProfilingSink(reg))
	if _, err := p.Render(SceneList{}, testCamera(), NewPixmap(2, 2)); err != nil {
		t.Fatal(err)
	}
	snap := reg.Snapshot()
	if got := snap["opaque"].Latest; got != time.Millisecond {
		t.Errorf("opaque = %v, want 1ms (one clock step)", got)
	}
	// Five bounded phases, each reading the clock twice, inside the frame.
	if got := snap[FrameTimeName].Latest; got != 11*time.Millisecond {
		t.Errorf("time = %v, want 11ms", got)
	}
}

// busyBackend reports a device busy clock that only its Resolve advances.
type busyBackend struct {
	*SoftwareBackend
	busy time.Duration
}

func (b *busyBackend) Resolve() error {
	b.busy += 5 * time.Millisecond
	return b.SoftwareBackend.Resolve()
}

func (b *busyBackend) TimerSource() timer.QuerySource {
	return &timer.BusySource{Busy: func() time.Duration { return b.busy }}
}

func TestPipeline_UsesBackendTimerSource(t *testing.T) {
	reg := NewMetricsRegistry()
	b := &busyBackend{SoftwareBackend: NewSoftwareBackend(1)}
	p := newTestPipeline(t, DefaultConfig(), WithBackend(b), WithProfilingSink(reg))
	if _, err := p.Render(SceneList{}, testCamera(), NewPixmap(2, 2)); err != nil {
		t.Fatal(err)
	}
	snap := reg.Snapshot()
	if got := snap[PhaseResolve.String()].Latest; got != 5*time.Millisecond {
		t.Errorf("resolve = %v, want 5ms of device time", got)
	}
	if m := snap[PhaseOpaque.String()]; m.Count != 1 || m.Latest != 0 {
		t.Errorf("opaque = %+v, want one 0 sample (no device time)", m)
	}
}

func TestWithTimerSource_OverridesBackend(t *testing.T) {
	reg := NewMetricsRegistry()
	b := &busyBackend{SoftwareBackend: NewSoftwareBackend(1)}
	p := newTestPipeline(t, DefaultConfig(), WithBackend(b),
		WithTimerSource(steppedSource()), WithProfilingSink(reg))
	if _, err := p.Render(SceneList{}, testCamera(), NewPixmap(2, 2)); err != nil {
		t.Fatal(err)
	}
	if got := reg.Snapshot()[PhaseResolve.String()].Latest; got != time.Millisecond {
		t.Errorf("resolve = %v, want 1ms (one clock step)", got)
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { SetLogger(nil) })

	newTestPipeline(t, DefaultConfig(), WithLogger(l))
	if Logger() != l {
		t.Error("WithLogger should install the logger globally")
	}
	if !bytes.Contains(buf.Bytes(), []byte("pipeline created")) {
		t.Errorf("log output = %q, want pipeline creation", buf.String())
	}
}
