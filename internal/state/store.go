package state

// EntityStore keeps entities keyed by identifier in insertion order.
//
// The store is owned by the tick driver and carries no lock.
type EntityStore struct {
	order []string
	byID  map[string]*Entity
}

// NewEntityStore constructs an empty store.
func NewEntityStore() *EntityStore {
	return &EntityStore{byID: make(map[string]*Entity)}
}

// Add inserts the entity, replacing any record with the same identifier in place.
func (s *EntityStore) Add(entity *Entity) {
	if s == nil || entity == nil || entity.ID == "" {
		return
	}
	if _, exists := s.byID[entity.ID]; !exists {
		s.order = append(s.order, entity.ID)
	}
	s.byID[entity.ID] = entity
}

// Get returns the entity for id.
func (s *EntityStore) Get(id string) (*Entity, bool) {
	if s == nil {
		return nil, false
	}
	entity, ok := s.byID[id]
	return entity, ok
}

// Remove deletes the entity and reports whether it existed.
func (s *EntityStore) Remove(id string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	//1.- Compact the order slice so iteration keeps insertion order.
	for i, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveIf deletes every entity match accepts and returns the removed identifiers.
func (s *EntityStore) RemoveIf(match func(*Entity) bool) []string {
	if s == nil || match == nil {
		return nil
	}
	var removed []string
	kept := s.order[:0]
	for _, id := range s.order {
		entity := s.byID[id]
		if match(entity) {
			removed = append(removed, id)
			delete(s.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// All returns the entities in insertion order.
func (s *EntityStore) All() []*Entity {
	if s == nil {
		return nil
	}
	out := make([]*Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len reports the number of stored entities.
func (s *EntityStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Clear drops every entity.
func (s *EntityStore) Clear() {
	if s == nil {
		return
	}
	s.order = nil
	s.byID = make(map[string]*Entity)
}

// Population summarises the store for the lifecycle and telemetry.
type Population struct {
	Humans          int
	ConnectedHumans int
	Bots            int
	Alive           int
	AliveHumans     int
}

// Total is humans plus bots.
func (p Population) Total() int { return p.Humans + p.Bots }

// Count tallies humans, bots and survivors in one pass.
func (s *EntityStore) Count() Population {
	var p Population
	if s == nil {
		return p
	}
	for _, id := range s.order {
		entity := s.byID[id]
		if entity.IsBot() {
			p.Bots++
		} else {
			p.Humans++
			if !entity.Disconnected {
				p.ConnectedHumans++
			}
			if entity.Alive {
				p.AliveHumans++
			}
		}
		if entity.Alive {
			p.Alive++
		}
	}
	return p
}
