package collision

import (
	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/state"
)

// WallAhead reports whether travelling distance along the current heading reaches the wall band.
func WallAhead(a arena.Arena, s *arena.Snake, distance float64) bool {
	if s == nil {
		return false
	}
	probe := s.Head().Add(s.Heading.Vec().Scale(distance))
	return a.InWall(probe)
}

// SnakeAhead reports whether the probe point along the current heading touches any living snake.
func SnakeAhead(w *state.World, self *state.Entity, distance float64) bool {
	if w == nil || self == nil || self.Snake == nil {
		return false
	}
	probe := self.Snake.Head().Add(self.Snake.Heading.Vec().Scale(distance))
	return occupied(w, self, probe)
}

// SafeHeadings lists the non-reversing headings whose look-ahead point clears walls and snakes.
func SafeHeadings(w *state.World, self *state.Entity) []arena.Heading {
	if w == nil || self == nil || self.Snake == nil {
		return nil
	}
	head := self.Snake.Head()
	safe := make([]arena.Heading, 0, len(arena.Headings))
	for _, heading := range arena.Headings {
		if heading.IsReverseOf(self.Snake.Heading) {
			continue
		}
		probe := head.Add(heading.Vec().Scale(w.Rules.SafeProbe))
		if w.Arena.InWall(probe) || occupied(w, self, probe) {
			continue
		}
		safe = append(safe, heading)
	}
	return safe
}

// occupied checks the probe against every living body, skipping the self grace window.
func occupied(w *state.World, self *state.Entity, probe arena.Vec) bool {
	threshold := w.Rules.CollisionThreshold
	for _, other := range w.Entities.All() {
		if !other.Alive || other.Snake == nil {
			continue
		}
		start := 0
		if other == self {
			start = w.Rules.SelfSkip
		}
		for i := start; i < len(other.Snake.Body); i++ {
			if arena.Touching(probe, other.Snake.Body[i], threshold) {
				return true
			}
		}
	}
	return false
}
