package engine

import (
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Camera keeps a viewport centred on an anchor.
type Camera struct {
	viewW, viewH   float64
	worldW, worldH float64
	bounded        bool

	minInterval time.Duration
	lastUpdate  time.Duration
	primed      bool

	origin Vec
	zoom   float64

	zoomTween  *gween.Tween
	zoomTarget float64
}

// NewCamera creates a camera for a viewport of viewW x viewH pixels. Updates
// closer together than 1/maxHz of simulation time are skipped.
func NewCamera(viewW, viewH, worldW, worldH float64, bounded bool, maxHz int) *Camera {
	if maxHz <= 0 {
		maxHz = DefaultCameraRefreshHz
	}
	return &Camera{
		viewW:       viewW,
		viewH:       viewH,
		worldW:      worldW,
		worldH:      worldH,
		bounded:     bounded,
		minInterval: time.Second / time.Duration(maxHz),
		zoom:        1,
		zoomTarget:  1,
	}
}

// Update recentres the viewport on anchor at the given zoom. It returns false
// when throttled.
func (c *Camera) Update(now time.Duration, anchor Vec, zoom float64) bool {
	if c.primed && now-c.lastUpdate < c.minInterval {
		return false
	}
	c.primed = true
	c.lastUpdate = now

	if zoom <= 0 {
		zoom = 1
	}
	c.zoom = zoom

	visW, visH := c.viewW/zoom, c.viewH/zoom
	origin := Vec{X: anchor.X - visW/2, Y: anchor.Y - visH/2}
	if c.bounded {
		origin.X = clampAxis(origin.X, visW, c.worldW)
		origin.Y = clampAxis(origin.Y, visH, c.worldH)
	}
	c.origin = origin
	return true
}

// clampAxis keeps a span inside [0, world]; a span wider than the world is
// centred instead.
func clampAxis(start, span, world float64) float64 {
	if span >= world {
		return (world - span) / 2
	}
	return clamp(start, 0, world-span)
}

// ZoomTo eases the zoom towards target over d.
func (c *Camera) ZoomTo(target float64, d time.Duration) {
	if target <= 0 {
		return
	}
	if d <= 0 {
		c.zoomTween = nil
		c.zoomTarget = target
		return
	}
	c.zoomTween = gween.New(float32(c.zoomTarget), float32(target), float32(d.Seconds()), ease.OutQuad)
	c.zoomTarget = target
}

// Step advances any zoom easing by dt and returns the zoom to render with.
func (c *Camera) Step(dt time.Duration) float64 {
	if c.zoomTween == nil {
		return c.zoomTarget
	}
	current, finished := c.zoomTween.Update(float32(dt.Seconds()))
	if finished {
		c.zoomTween = nil
		return c.zoomTarget
	}
	return float64(current)
}

// Origin returns the world position of the viewport's top-left corner.
func (c *Camera) Origin() Vec { return c.origin }

// Zoom returns the zoom used by the last update.
func (c *Camera) Zoom() float64 { return c.zoom }

// Viewport returns the size of the visible world area at the current zoom.
func (c *Camera) Viewport() (float64, float64) {
	return c.viewW / c.zoom, c.viewH / c.zoom
}
