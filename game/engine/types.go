package engine

import "math"

// Direction is the facing of an entity.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

const (
	// edgeEpsilon keeps the far edges of a hit-box out of the next tile when
	// the box ends exactly on a tile boundary.
	edgeEpsilon = 1e-6

	DefaultSpeed           = 96.0 // pixels per second
	DefaultInset           = 3.0
	DefaultCameraRefreshHz = 30
)

// Vec is a 2D vector in pixel space.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v+o.
func (v Vec) Add(o Vec) Vec { return Vec{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v-o.
func (v Vec) Sub(o Vec) Vec { return Vec{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v*s.
func (v Vec) Scale(s float64) Vec { return Vec{X: v.X * s, Y: v.Y * s} }

// Len returns the Euclidean length.
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }

// IsZero reports whether both components are zero.
func (v Vec) IsZero() bool { return v.X == 0 && v.Y == 0 }

// HitBox is the sprite rectangle anchored at its top-left corner. Inset
// shrinks it on every side for collision tests.
type HitBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Inset  float64 `json:"inset"`
}

// Center returns the centre of the box placed at pos.
func (h HitBox) Center(pos Vec) Vec {
	return Vec{X: pos.X + h.Width/2, Y: pos.Y + h.Height/2}
}

// corners returns the four inset corners at pos. A box whose inset swallows
// it collapses to its centre.
func (h HitBox) corners(pos Vec) [4]Vec {
	left, right := pos.X+h.Inset, pos.X+h.Width-h.Inset-edgeEpsilon
	top, bottom := pos.Y+h.Inset, pos.Y+h.Height-h.Inset-edgeEpsilon
	if right < left {
		left = pos.X + h.Width/2
		right = left
	}
	if bottom < top {
		top = pos.Y + h.Height/2
		bottom = top
	}
	return [4]Vec{
		{X: left, Y: top},
		{X: right, Y: top},
		{X: left, Y: bottom},
		{X: right, Y: bottom},
	}
}
