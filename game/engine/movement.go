package engine

import (
	"fmt"
	"math"
)

// NormalizeInput turns a digital input (each axis in -1..1) into a direction
// whose length never exceeds 1, so diagonals are not faster than axes.
func NormalizeInput(dx, dy int) Vec {
	v := Vec{X: float64(sign(dx)), Y: float64(sign(dy))}
	if v.X != 0 && v.Y != 0 {
		v = v.Scale(1 / math.Sqrt2)
	}
	return v
}

// FacingFor returns the direction an entity faces after an input. Horizontal
// input wins on diagonals; no input keeps the previous facing.
func FacingFor(dx, dy int, prev Direction) Direction {
	switch {
	case dx < 0:
		return Left
	case dx > 0:
		return Right
	case dy < 0:
		return Up
	case dy > 0:
		return Down
	}
	if prev == "" {
		return Down
	}
	return prev
}

// WalkAnimation names the walking animation for a facing.
func WalkAnimation(d Direction) string { return fmt.Sprintf("walk_%s", d) }

// IdleAnimation names the idle animation for a facing.
func IdleAnimation(d Direction) string { return fmt.Sprintf("idle_%s", d) }

// AttackAnimation names the attack animation for a facing.
func AttackAnimation(d Direction) string { return fmt.Sprintf("attack_%s", d) }

// ParseDirection accepts a persisted direction, defaulting to Down.
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case Up, Down, Left, Right:
		return Direction(s)
	}
	return Down
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
