package arena

import (
	"fmt"
	"math/rand"
)

// Snake is an ordered body (head first) moving along a heading.
type Snake struct {
	Body         []Vec
	Heading      Heading
	TargetLength int
	Color        string

	// moved is the heading of the last Advance; turns may not reverse it either.
	moved Heading
}

// NewSnake lays out a straight body trailing behind head along the heading.
func NewSnake(head Vec, heading Heading, rules Rules, color string) *Snake {
	length := rules.StartLength
	if length < 1 {
		length = 1
	}
	//1.- Place segments behind the head, opposite to the direction of travel.
	body := make([]Vec, 0, length)
	back := heading.Reverse().Vec()
	for i := 0; i < length; i++ {
		body = append(body, head.Add(back.Scale(float64(i)*rules.SegmentSpacing)))
	}
	return &Snake{Body: body, Heading: heading, TargetLength: length, Color: color, moved: heading}
}

// Head returns the leading segment.
func (s *Snake) Head() Vec {
	if s == nil || len(s.Body) == 0 {
		return Vec{}
	}
	return s.Body[0]
}

// Advance moves the head by heading*speed*dt and trims the tail to the target length.
func (s *Snake) Advance(speed, dt float64) {
	if s == nil || len(s.Body) == 0 {
		return
	}
	//1.- Push the new head to the front of the body.
	next := s.Body[0].Add(s.Heading.Vec().Scale(speed * dt))
	s.Body = append(s.Body, Vec{})
	copy(s.Body[1:], s.Body)
	s.Body[0] = next
	s.moved = s.Heading
	//2.- Pop tail segments until the body matches the target length.
	if len(s.Body) > s.TargetLength {
		s.Body = s.Body[:s.TargetLength]
	}
}

// Grow raises the target length; the body catches up as the snake moves.
func (s *Snake) Grow(segments int) {
	if s == nil || segments <= 0 {
		return
	}
	s.TargetLength += segments
}

// Turn applies heading unless it is invalid, reverses the current one, or reverses the
// direction of the last move. Several turns may land between two moves.
func (s *Snake) Turn(heading Heading) bool {
	if s == nil || !heading.Valid() || heading.IsReverseOf(s.Heading) || heading.IsReverseOf(s.moved) {
		return false
	}
	s.Heading = heading
	return true
}

// Bounds returns the axis aligned box enclosing every segment.
func (s *Snake) Bounds() (min, max Vec) {
	if s == nil || len(s.Body) == 0 {
		return Vec{}, Vec{}
	}
	min, max = s.Body[0], s.Body[0]
	for _, p := range s.Body[1:] {
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
	}
	return min, max
}

// SpawnPoint draws a uniform point inside the arena shrunk by inset on every side.
func SpawnPoint(a Arena, inset float64, rng *rand.Rand) Vec {
	//1.- Fall back to the centre when the inset leaves no room.
	w := a.Width - 2*inset
	h := a.Height - 2*inset
	if w <= 0 || h <= 0 {
		return a.Center()
	}
	return Vec{X: inset + rng.Float64()*w, Y: inset + rng.Float64()*h}
}

// RandomColor returns an hsl colour tag with a random hue.
func RandomColor(rng *rand.Rand) string {
	return fmt.Sprintf("hsl(%d, 70%%, 50%%)", rng.Intn(360))
}
