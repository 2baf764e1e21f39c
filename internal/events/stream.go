package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Kind names a round lifecycle event.
type Kind string

const (
	KindRoundStarted    Kind = "round_started"
	KindRoundEnded      Kind = "round_ended"
	KindRoundRestarted  Kind = "round_restarted"
	KindEntityJoined    Kind = "entity_joined"
	KindEntityLeft      Kind = "entity_left"
	KindEntityDied      Kind = "entity_died"
	KindEntityRespawned Kind = "entity_respawned"
	KindKeynote         Kind = "keynote"
	KindPaused          Kind = "paused"
	KindPlayersCleared  Kind = "players_cleared"
)

// Envelope is one sequenced entry of the event log.
type Envelope struct {
	Sequence uint64          `json:"sequence"`
	Kind     Kind            `json:"kind"`
	Round    int             `json:"round"`
	EntityID string          `json:"entity_id,omitempty"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Clone duplicates the payload so a subscriber cannot mutate the stored copy.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Payload != nil {
		clone.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return &clone
}

// Config controls how many events the log retains.
type Config struct {
	Retain int
	Clock  func() time.Time
}

const defaultRetention = 512

var (
	// ErrOutOfOrderAck signals an acknowledgement that skips the next pending event.
	ErrOutOfOrderAck = errors.New("ack sequence must match the next pending event")
	// ErrNilStream guards calls on a missing stream.
	ErrNilStream = errors.New("nil stream")
)

// Stream is an ordered lifecycle event log with per-subscriber acknowledgements.
// Reconnecting subscribers replay every retained event they have not acknowledged.
type Stream struct {
	mu          sync.Mutex
	nextSeq     uint64
	retention   int
	now         func() time.Time
	logOrder    []uint64
	logPayloads map[uint64]*Envelope
	subscribers map[string]*subscriberState
}

type subscriberState struct {
	id      string
	pending []uint64
	lastAck uint64
	ch      chan *Envelope
	active  bool
}

// Subscription is one live attachment of a logical subscriber.
type Subscription struct {
	id     string
	stream *Stream
	events <-chan *Envelope
	once   sync.Once
}

// NewStream constructs an empty log.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Stream{
		retention:   retention,
		now:         clock,
		logPayloads: make(map[uint64]*Envelope),
		subscribers: make(map[string]*subscriberState),
	}
}

// Subscribe attaches subscriberID and replays its unacknowledged events.
func (s *Stream) Subscribe(ctx context.Context, subscriberID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, ErrNilStream
	}
	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}
	if buffer <= 0 {
		buffer = 32
	}

	s.mu.Lock()
	state, ok := s.subscribers[subscriberID]
	if !ok {
		//1.- New subscribers start at the head of the log and only see future events.
		state = &subscriberState{id: subscriberID, lastAck: s.nextSeq}
		s.subscribers[subscriberID] = state
	}
	if state.active && state.ch != nil {
		close(state.ch)
	}
	replay := s.replayLocked(state)
	//2.- Size the buffer so the replay never blocks and always precedes live events.
	ch := make(chan *Envelope, buffer+len(replay))
	state.ch = ch
	state.active = true
	state.pending = make([]uint64, 0, len(replay))
	for _, env := range replay {
		state.pending = append(state.pending, env.Sequence)
		ch <- env
	}
	s.mu.Unlock()

	sub := &Subscription{id: subscriberID, stream: s, events: ch}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub, nil
}

func (s *Stream) replayLocked(state *subscriberState) []*Envelope {
	replay := make([]*Envelope, 0)
	for _, seq := range s.logOrder {
		if seq <= state.lastAck {
			continue
		}
		if payload, ok := s.logPayloads[seq]; ok {
			replay = append(replay, payload.Clone())
		}
	}
	return replay
}

// Events is the ordered delivery channel. It is closed by Close or by a newer Subscribe.
func (s *Subscription) Events() <-chan *Envelope {
	if s == nil {
		return nil
	}
	return s.events
}

// ID returns the logical subscriber identifier.
func (s *Subscription) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Ack records that the subscriber processed sequence.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.ack(s.id, sequence)
}

// Close detaches the subscription while keeping its acknowledgement position.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() {
		s.stream.deactivate(s.id, s.events)
	})
}

// Publish appends an event whose payload is encoded as JSON.
func (s *Stream) Publish(kind Kind, round int, entityID string, payload any) (uint64, error) {
	if s == nil {
		return 0, ErrNilStream
	}
	if kind == "" {
		return 0, errors.New("event kind required")
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		raw = data
	}
	envelope := &Envelope{Kind: kind, Round: round, EntityID: entityID, Payload: raw}

	s.mu.Lock()
	s.nextSeq++
	envelope.Sequence = s.nextSeq
	envelope.At = s.now()
	s.logPayloads[envelope.Sequence] = envelope
	s.logOrder = append(s.logOrder, envelope.Sequence)

	deliveries := make([]delivery, 0, len(s.subscribers))
	for _, state := range s.subscribers {
		if !state.active || state.ch == nil {
			continue
		}
		state.pending = append(state.pending, envelope.Sequence)
		deliveries = append(deliveries, delivery{ch: state.ch, payload: envelope.Clone()})
	}
	s.enforceRetentionLocked()

	//1.- Slow subscribers miss the live copy and pick it up on their next Subscribe.
	for _, item := range deliveries {
		select {
		case item.ch <- item.payload:
		default:
		}
	}
	s.mu.Unlock()

	return envelope.Sequence, nil
}

type delivery struct {
	ch      chan<- *Envelope
	payload *Envelope
}

// Len reports how many events are currently retained.
func (s *Stream) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logOrder)
}

// LastSequence returns the most recent sequence number, zero when empty.
func (s *Stream) LastSequence() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

// Forget drops a subscriber together with its acknowledgement position.
func (s *Stream) Forget(subscriberID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.subscribers[subscriberID]; ok {
		if state.ch != nil {
			close(state.ch)
		}
		delete(s.subscribers, subscriberID)
	}
	s.enforceRetentionLocked()
}

// enforceRetentionLocked keeps at most retention events, and more only while an active subscriber
// still needs them.
func (s *Stream) enforceRetentionLocked() {
	if len(s.logOrder) <= s.retention {
		return
	}
	pruneThrough := s.logOrder[len(s.logOrder)-s.retention-1]
	for _, state := range s.subscribers {
		if state.active && state.lastAck < pruneThrough {
			pruneThrough = state.lastAck
		}
	}
	idx := sort.Search(len(s.logOrder), func(i int) bool { return s.logOrder[i] > pruneThrough })
	if idx == 0 {
		return
	}
	for _, seq := range s.logOrder[:idx] {
		delete(s.logPayloads, seq)
	}
	s.logOrder = append([]uint64(nil), s.logOrder[idx:]...)
	//1.- Inactive subscribers lose pruned history; move their cursor past it.
	for _, state := range s.subscribers {
		if !state.active && state.lastAck < pruneThrough {
			state.lastAck = pruneThrough
		}
	}
}

func (s *Stream) ack(subscriberID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	if !ok {
		return fmt.Errorf("unknown subscriber %q", subscriberID)
	}
	if len(state.pending) == 0 {
		if sequence <= state.lastAck {
			return nil
		}
		return ErrOutOfOrderAck
	}
	if sequence != state.pending[0] {
		if sequence <= state.lastAck {
			return nil
		}
		return ErrOutOfOrderAck
	}
	state.pending = state.pending[1:]
	state.lastAck = sequence
	s.enforceRetentionLocked()
	return nil
}

func (s *Stream) deactivate(subscriberID string, events <-chan *Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	//1.- A newer Subscribe already replaced this channel.
	if !ok || state.ch == nil || (<-chan *Envelope)(state.ch) != events {
		return
	}
	state.active = false
	close(state.ch)
	state.ch = nil
	state.pending = nil
}
