package arena

import (
	"errors"
	"math/rand"
	"testing"
)

func TestValidateRejectsOversizedMargin(t *testing.T) {
	//1.- A margin equal to half the short side leaves no playable interior.
	if _, err := New(800, 600, 300); !errors.Is(err, ErrInvalidArena) {
		t.Fatalf("expected ErrInvalidArena, got %v", err)
	}
	if _, err := New(0, 600, 15); !errors.Is(err, ErrInvalidArena) {
		t.Fatalf("expected ErrInvalidArena for zero width, got %v", err)
	}
	if _, err := New(800, 600, -1); !errors.Is(err, ErrInvalidArena) {
		t.Fatalf("expected ErrInvalidArena for negative margin, got %v", err)
	}
	//2.- The default playfield must validate.
	if _, err := New(800, 600, 15); err != nil {
		t.Fatalf("unexpected error for default arena: %v", err)
	}
}

func TestInWallMatchesMarginExhaustively(t *testing.T) {
	a := Arena{Width: 800, Height: 600, WallMargin: 15}
	//1.- Sweep every half unit near each edge and compare against the band definition.
	for d := -5.0; d <= 40; d += 0.5 {
		cases := []struct {
			p    Vec
			want bool
		}{
			{Vec{X: d, Y: 300}, d < 15},
			{Vec{X: 800 - d, Y: 300}, 800-d > 785},
			{Vec{X: 400, Y: d}, d < 15},
			{Vec{X: 400, Y: 600 - d}, 600-d > 585},
		}
		for _, tc := range cases {
			if got := a.InWall(tc.p); got != tc.want {
				t.Fatalf("expected InWall(%v)=%v, got %v", tc.p, tc.want, got)
			}
		}
	}
}

func TestTouchingIsAxisWise(t *testing.T) {
	//1.- Diagonal offsets below the threshold on both axes count as contact.
	if !Touching(Vec{X: 0, Y: 0}, Vec{X: 7.9, Y: 7.9}, 8) {
		t.Fatalf("expected diagonal contact within threshold")
	}
	//2.- The threshold itself is exclusive.
	if Touching(Vec{X: 0, Y: 0}, Vec{X: 8, Y: 0}, 8) {
		t.Fatalf("expected no contact at exactly the threshold")
	}
}

func TestHeadingFromRejectsNonAxisVectors(t *testing.T) {
	for _, tc := range []struct {
		dx, dy float64
		ok     bool
	}{
		{1, 0, true}, {0, -1, true}, {1, 1, false}, {0, 0, false}, {0.5, 0, false}, {2, 0, false},
	} {
		if _, ok := HeadingFrom(tc.dx, tc.dy); ok != tc.ok {
			t.Fatalf("expected HeadingFrom(%v,%v) ok=%v, got %v", tc.dx, tc.dy, tc.ok, ok)
		}
	}
}

func TestContainsIsHalfOpen(t *testing.T) {
	a := Arena{Width: 800, Height: 600, WallMargin: 15}
	if !a.Contains(Vec{X: 0, Y: 0}) || !a.Contains(Vec{X: 799.9, Y: 599.9}) {
		t.Fatalf("expected the origin and the far interior corner to be inside")
	}
	if a.Contains(Vec{X: 800, Y: 10}) || a.Contains(Vec{X: 10, Y: -0.1}) {
		t.Fatalf("expected points on or beyond the far edges to be outside")
	}
}

func TestSnakeTurnNeverReverses(t *testing.T) {
	s := NewSnake(Vec{X: 100, Y: 100}, Right, DefaultRules(), "hsl(1, 70%, 50%)")
	rng := rand.New(rand.NewSource(7))
	//1.- Fire random heading requests and assert the result never negates the previous heading.
	for i := 0; i < 500; i++ {
		before := s.Heading
		s.Turn(Headings[rng.Intn(len(Headings))])
		if s.Heading == before.Reverse() {
			t.Fatalf("heading reversed from %v to %v", before, s.Heading)
		}
	}
}

func TestTurnsBetweenMovesCannotReverseTravel(t *testing.T) {
	s := NewSnake(Vec{X: 100, Y: 100}, Right, DefaultRules(), "")
	//1.- Up then Left before any move would net a reversal of the travel direction.
	if !s.Turn(Up) {
		t.Fatalf("expected perpendicular turn to be accepted")
	}
	if s.Turn(Left) || s.Heading != Up {
		t.Fatalf("expected left to be refused while still travelling right, got %v", s.Heading)
	}
	//2.- Once the snake has moved up, left is a legal turn.
	s.Advance(60, 0.1)
	if !s.Turn(Left) || s.Heading != Left {
		t.Fatalf("expected left after moving up, got %v", s.Heading)
	}
}

func TestAdvanceTrimsToTargetLength(t *testing.T) {
	rules := DefaultRules()
	s := NewSnake(Vec{X: 100, Y: 100}, Right, rules, "")
	if len(s.Body) != rules.StartLength {
		t.Fatalf("expected %d segments, got %d", rules.StartLength, len(s.Body))
	}
	if s.Body[1].X != 90 || s.Body[4].X != 60 {
		t.Fatalf("expected segments spaced behind the head, got %v", s.Body)
	}
	//1.- Growth lets the body lengthen by one segment per step until the target is reached.
	s.Grow(rules.Growth)
	for i := 0; i < 10; i++ {
		s.Advance(rules.Speed, 1.0/60)
		if len(s.Body) > s.TargetLength {
			t.Fatalf("body length %d exceeds target %d", len(s.Body), s.TargetLength)
		}
	}
	if len(s.Body) != rules.StartLength+rules.Growth {
		t.Fatalf("expected %d segments after growth, got %d", rules.StartLength+rules.Growth, len(s.Body))
	}
	//2.- The head moves speed*dt along the heading.
	head := s.Head()
	s.Advance(60, 0.5)
	if s.Head().X != head.X+30 || s.Head().Y != head.Y {
		t.Fatalf("expected head to move 30 units right, got %v -> %v", head, s.Head())
	}
}

func TestSpawnPointStaysInsideInset(t *testing.T) {
	a := Arena{Width: 800, Height: 600, WallMargin: 15}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		p := SpawnPoint(a, 50, rng)
		if p.X < 50 || p.X > 750 || p.Y < 50 || p.Y > 550 {
			t.Fatalf("spawn point %v escaped the inset", p)
		}
	}
}
