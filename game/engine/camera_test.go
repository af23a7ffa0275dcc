package engine

import (
	"testing"
	"time"
)

func TestCamera_CentersAndClamps(t *testing.T) {
	cam := NewCamera(100, 80, 400, 300, true, 30)

	tests := []struct {
		name   string
		anchor Vec
		want   Vec
	}{
		{"middle", Vec{X: 200, Y: 150}, Vec{X: 150, Y: 110}},
		{"top-left corner", Vec{X: 0, Y: 0}, Vec{X: 0, Y: 0}},
		{"bottom-right corner", Vec{X: 400, Y: 300}, Vec{X: 300, Y: 220}},
	}

	now := time.Duration(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now += time.Second
			if !cam.Update(now, tt.anchor, 1) {
				t.Fatal("update unexpectedly throttled")
			}
			if cam.Origin() != tt.want {
				t.Errorf("origin = %+v, want %+v", cam.Origin(), tt.want)
			}
		})
	}
}

func TestCamera_UnboundedSkipsClamp(t *testing.T) {
	cam := NewCamera(100, 80, 400, 300, false, 30)
	cam.Update(0, Vec{X: 0, Y: 0}, 1)
	if cam.Origin() != (Vec{X: -50, Y: -40}) {
		t.Errorf("open worlds should not clamp, got %+v", cam.Origin())
	}
}

func TestCamera_SmallWorldIsCentred(t *testing.T) {
	cam := NewCamera(200, 200, 100, 100, true, 30)
	cam.Update(0, Vec{X: 10, Y: 90}, 1)
	if cam.Origin() != (Vec{X: -50, Y: -50}) {
		t.Errorf("expected centred origin, got %+v", cam.Origin())
	}
}

func TestCamera_Throttle(t *testing.T) {
	cam := NewCamera(100, 100, 1000, 1000, true, 10)

	if !cam.Update(0, Vec{X: 500, Y: 500}, 1) {
		t.Fatal("first update must run")
	}
	if cam.Update(50*time.Millisecond, Vec{X: 600, Y: 600}, 1) {
		t.Error("update within the refresh interval should be skipped")
	}
	if cam.Origin() != (Vec{X: 450, Y: 450}) {
		t.Errorf("throttled update must not move the camera, got %+v", cam.Origin())
	}
	if !cam.Update(100*time.Millisecond, Vec{X: 600, Y: 600}, 1) {
		t.Error("update after the refresh interval should run")
	}
}

func TestCamera_Zoom(t *testing.T) {
	cam := NewCamera(100, 100, 1000, 1000, true, 30)
	cam.Update(0, Vec{X: 500, Y: 500}, 2)
	if cam.Origin() != (Vec{X: 475, Y: 475}) {
		t.Errorf("zoom 2 should halve the visible area, got %+v", cam.Origin())
	}
	w, h := cam.Viewport()
	if w != 50 || h != 50 {
		t.Errorf("viewport = %vx%v, want 50x50", w, h)
	}
}

func TestCamera_ZoomEasing(t *testing.T) {
	cam := NewCamera(100, 100, 1000, 1000, true, 30)
	cam.ZoomTo(2, time.Second)

	mid := cam.Step(500 * time.Millisecond)
	if mid <= 1 || mid >= 2 {
		t.Errorf("expected zoom between 1 and 2 mid-ease, got %v", mid)
	}
	if end := cam.Step(time.Second); end != 2 {
		t.Errorf("expected zoom 2 after easing, got %v", end)
	}

	cam.ZoomTo(3, 0)
	if got := cam.Step(time.Millisecond); got != 3 {
		t.Errorf("instant zoom should apply at once, got %v", got)
	}
}
