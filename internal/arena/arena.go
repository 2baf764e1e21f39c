package arena

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidArena reports dimensions that violate the wall margin invariant.
var ErrInvalidArena = errors.New("invalid arena")

// Vec is a point or displacement in arena units.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the component-wise sum of two vectors.
func (v Vec) Add(o Vec) Vec { return Vec{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v minus o.
func (v Vec) Sub(o Vec) Vec { return Vec{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale multiplies both components by k.
func (v Vec) Scale(k float64) Vec { return Vec{X: v.X * k, Y: v.Y * k} }

// Dot returns the scalar product of two vectors.
func (v Vec) Dot(o Vec) float64 { return v.X*o.X + v.Y*o.Y }

// DistanceSquared returns the squared euclidean distance between two points.
func (v Vec) DistanceSquared(o Vec) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	return dx*dx + dy*dy
}

// Touching reports whether a and b lie closer than threshold on both axes.
func Touching(a, b Vec, threshold float64) bool {
	return math.Abs(a.X-b.X) < threshold && math.Abs(a.Y-b.Y) < threshold
}

// Heading is one of the four axis aligned movement directions.
type Heading struct {
	DX int `json:"x"`
	DY int `json:"y"`
}

var (
	Up    = Heading{DX: 0, DY: -1}
	Down  = Heading{DX: 0, DY: 1}
	Left  = Heading{DX: -1, DY: 0}
	Right = Heading{DX: 1, DY: 0}
)

// Headings lists every valid heading in a stable order.
var Headings = [4]Heading{Up, Down, Left, Right}

// Valid reports whether the heading points along exactly one axis.
func (h Heading) Valid() bool {
	return (h.DX == 0) != (h.DY == 0) && abs(h.DX)+abs(h.DY) == 1
}

// Reverse returns the opposite heading.
func (h Heading) Reverse() Heading { return Heading{DX: -h.DX, DY: -h.DY} }

// IsReverseOf reports whether h points exactly against o.
func (h Heading) IsReverseOf(o Heading) bool {
	return h.Valid() && h == o.Reverse()
}

// Vec converts the heading into a unit displacement.
func (h Heading) Vec() Vec { return Vec{X: float64(h.DX), Y: float64(h.DY)} }

// String names the heading for logs.
func (h Heading) String() string {
	switch h {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("(%d,%d)", h.DX, h.DY)
	}
}

// HeadingFrom converts client supplied components into a heading.
func HeadingFrom(dx, dy float64) (Heading, bool) {
	//1.- Reject anything that is not an exact unit step along one axis.
	if math.IsNaN(dx) || math.IsNaN(dy) || math.Abs(dx) > 1 || math.Abs(dy) > 1 || dx != math.Trunc(dx) || dy != math.Trunc(dy) {
		return Heading{}, false
	}
	h := Heading{DX: int(dx), DY: int(dy)}
	if !h.Valid() {
		return Heading{}, false
	}
	return h, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Arena is the bounded rectangle every snake lives in.
type Arena struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	WallMargin float64 `json:"wall_margin"`
}

// New builds and validates an arena.
func New(width, height, margin float64) (Arena, error) {
	a := Arena{Width: width, Height: height, WallMargin: margin}
	if err := a.Validate(); err != nil {
		return Arena{}, err
	}
	return a, nil
}

// Validate enforces positive dimensions and margin < min(width,height)/2.
func (a Arena) Validate() error {
	//1.- Reject non finite or non positive dimensions first.
	if !(a.Width > 0) || !(a.Height > 0) || math.IsInf(a.Width, 0) || math.IsInf(a.Height, 0) {
		return fmt.Errorf("%w: dimensions %vx%v must be positive", ErrInvalidArena, a.Width, a.Height)
	}
	if a.WallMargin < 0 || math.IsNaN(a.WallMargin) {
		return fmt.Errorf("%w: wall margin %v must not be negative", ErrInvalidArena, a.WallMargin)
	}
	//2.- The playable interior must remain non-empty on both axes.
	if a.WallMargin >= math.Min(a.Width, a.Height)/2 {
		return fmt.Errorf("%w: wall margin %v must be below half of %vx%v", ErrInvalidArena, a.WallMargin, a.Width, a.Height)
	}
	return nil
}

// InWall reports whether p lies inside the wall margin band.
func (a Arena) InWall(p Vec) bool {
	return p.X < a.WallMargin || p.X > a.Width-a.WallMargin ||
		p.Y < a.WallMargin || p.Y > a.Height-a.WallMargin
}

// Contains reports whether p lies inside the half-open arena rectangle [0,W)x[0,H).
func (a Arena) Contains(p Vec) bool {
	return p.X >= 0 && p.X < a.Width && p.Y >= 0 && p.Y < a.Height
}

// Center returns the midpoint of the arena.
func (a Arena) Center() Vec { return Vec{X: a.Width / 2, Y: a.Height / 2} }
