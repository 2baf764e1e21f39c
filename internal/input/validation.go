package input

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"snakeroyale/server/internal/arena"
	"snakeroyale/server/internal/logging"
)

// MaxNameRunes caps display names after sanitising.
const MaxNameRunes = 16

// ValidationReason identifies why an intent was rejected by the validator.
type ValidationReason string

const (
	ValidationReasonNone           ValidationReason = ""
	ValidationReasonMalformed      ValidationReason = "malformed"
	ValidationReasonUnknownType    ValidationReason = "unknown_type"
	ValidationReasonDirection      ValidationReason = "direction"
	ValidationReasonCooldownActive ValidationReason = "cooldown_active"
)

// Constraints configures the validator's burst and cooldown policy.
type Constraints struct {
	InvalidBurstLimit  int
	InvalidBurstWindow time.Duration
	CooldownDuration   time.Duration
	MaxCooldownStrikes int
}

// DefaultConstraints tolerates a few malformed frames before cooling a client down.
var DefaultConstraints = Constraints{
	InvalidBurstLimit:  5,
	InvalidBurstWindow: time.Second,
	CooldownDuration:   500 * time.Millisecond,
	MaxCooldownStrikes: 3,
}

// ValidationDecision summarises the result of a Validate call.
type ValidationDecision struct {
	Accepted   bool
	Reason     ValidationReason
	Warn       bool
	Disconnect bool
	Cooldown   time.Duration
	Heading    arena.Heading
}

// ValidationCounters aggregates per-client violation statistics.
type ValidationCounters struct {
	Violations  map[ValidationReason]uint64 `json:"violations,omitempty"`
	Cooldowns   uint64                      `json:"cooldowns"`
	Disconnects uint64                      `json:"disconnects"`
}

// ValidatorOption customises validator construction.
type ValidatorOption func(*Validator)

// Validator rejects malformed direction intents and escalates repeat offenders
// from warnings to cooldowns to a disconnect.
type Validator struct {
	mu      sync.Mutex
	cfg     Constraints
	clock   Clock
	logger  *logging.Logger
	clients map[string]*validatorClientState
	metrics map[string]ValidationCounters
}

type validatorClientState struct {
	firstInvalid  time.Time
	invalidCount  int
	cooldownUntil time.Time
	strikes       int
}

// WithValidatorClock overrides the clock used to determine cooldown windows.
func WithValidatorClock(clock Clock) ValidatorOption {
	return func(v *Validator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// NewValidator builds a validator, filling unset limits from DefaultConstraints.
func NewValidator(cfg Constraints, logger *logging.Logger, opts ...ValidatorOption) *Validator {
	if cfg.InvalidBurstLimit <= 0 {
		cfg.InvalidBurstLimit = DefaultConstraints.InvalidBurstLimit
	}
	if cfg.InvalidBurstWindow <= 0 {
		cfg.InvalidBurstWindow = DefaultConstraints.InvalidBurstWindow
	}
	if cfg.CooldownDuration <= 0 {
		cfg.CooldownDuration = DefaultConstraints.CooldownDuration
	}
	if cfg.MaxCooldownStrikes <= 0 {
		cfg.MaxCooldownStrikes = DefaultConstraints.MaxCooldownStrikes
	}
	if logger == nil {
		logger = logging.L()
	}
	validator := &Validator{
		cfg:     cfg,
		clock:   systemClock{},
		logger:  logger,
		clients: make(map[string]*validatorClientState),
		metrics: make(map[string]ValidationCounters),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	return validator
}

// ValidateDirection accepts unit axis vectors and returns the parsed heading.
func (v *Validator) ValidateDirection(clientID string, dx, dy float64) ValidationDecision {
	heading, ok := arena.HeadingFrom(dx, dy)
	if v == nil {
		return ValidationDecision{Accepted: ok, Heading: heading}
	}
	if blocked, decision := v.cooling(clientID); blocked {
		return decision
	}
	if !ok {
		return v.Reject(clientID, ValidationReasonDirection)
	}
	return ValidationDecision{Accepted: true, Heading: heading}
}

// Admit checks only the cooldown, for intents without a payload to validate.
func (v *Validator) Admit(clientID string) ValidationDecision {
	if v == nil {
		return ValidationDecision{Accepted: true}
	}
	if blocked, decision := v.cooling(clientID); blocked {
		return decision
	}
	return ValidationDecision{Accepted: true}
}

// Reject records a violation detected by the caller, such as undecodable JSON.
func (v *Validator) Reject(clientID string, reason ValidationReason) ValidationDecision {
	if v == nil {
		return ValidationDecision{Reason: reason}
	}
	now := v.clock.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registerViolationLocked(clientID, v.ensureStateLocked(clientID), now, reason)
}

// Forget clears all state for the specified client.
func (v *Validator) Forget(clientID string) {
	if v == nil || clientID == "" {
		return
	}
	v.mu.Lock()
	delete(v.clients, clientID)
	delete(v.metrics, clientID)
	v.mu.Unlock()
}

// Metrics returns a snapshot of per-client counters for diagnostics.
func (v *Validator) Metrics() map[string]ValidationCounters {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.metrics) == 0 {
		return nil
	}
	snapshot := make(map[string]ValidationCounters, len(v.metrics))
	for key, counters := range v.metrics {
		clone := ValidationCounters{Cooldowns: counters.Cooldowns, Disconnects: counters.Disconnects}
		if len(counters.Violations) > 0 {
			clone.Violations = make(map[ValidationReason]uint64, len(counters.Violations))
			for reason, count := range counters.Violations {
				clone.Violations[reason] = count
			}
		}
		snapshot[key] = clone
	}
	return snapshot
}

func (v *Validator) cooling(clientID string) (bool, ValidationDecision) {
	now := v.clock.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	state := v.clients[clientID]
	if state == nil || state.cooldownUntil.IsZero() || !now.Before(state.cooldownUntil) {
		return false, ValidationDecision{}
	}
	return true, ValidationDecision{Reason: ValidationReasonCooldownActive, Cooldown: state.cooldownUntil.Sub(now)}
}

func (v *Validator) ensureStateLocked(key string) *validatorClientState {
	state := v.clients[key]
	if state == nil {
		state = &validatorClientState{}
		v.clients[key] = state
	}
	return state
}

func (v *Validator) registerViolationLocked(key string, state *validatorClientState, now time.Time, reason ValidationReason) ValidationDecision {
	counters := v.metrics[key]
	if counters.Violations == nil {
		counters.Violations = make(map[ValidationReason]uint64)
	}
	counters.Violations[reason]++

	decision := ValidationDecision{Reason: reason}
	//1.- Count violations inside a sliding burst window.
	if state.invalidCount == 0 || now.Sub(state.firstInvalid) > v.cfg.InvalidBurstWindow {
		state.firstInvalid = now
		state.invalidCount = 1
	} else {
		state.invalidCount++
	}
	decision.Warn = v.cfg.InvalidBurstLimit-state.invalidCount == 1
	//2.- A full burst starts a cooldown; too many cooldowns end the session.
	if state.invalidCount >= v.cfg.InvalidBurstLimit {
		state.cooldownUntil = now.Add(v.cfg.CooldownDuration)
		state.invalidCount = 0
		state.firstInvalid = time.Time{}
		state.strikes++
		counters.Cooldowns++
		if state.strikes >= v.cfg.MaxCooldownStrikes {
			decision.Disconnect = true
			counters.Disconnects++
		}
		decision.Cooldown = v.cfg.CooldownDuration
		v.logger.Debug("intent validator cooldown",
			logging.String("client_id", key),
			logging.String("reason", string(reason)),
			logging.Duration("cooldown", v.cfg.CooldownDuration),
			logging.Int("strikes", state.strikes),
		)
	}
	v.metrics[key] = counters
	return decision
}

// SanitizeName trims whitespace, strips control characters and caps the
// result at MaxNameRunes. An empty result lets the engine pick a default.
func SanitizeName(raw string) string {
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, "")
	}
	var b strings.Builder
	count := 0
	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsControl(r) || r == utf8.RuneError {
			continue
		}
		if count == MaxNameRunes {
			break
		}
		b.WriteRune(r)
		count++
	}
	return strings.TrimSpace(b.String())
}

// DescribeDecision renders a rejected decision for client-facing error messages.
func DescribeDecision(decision ValidationDecision) string {
	if decision.Accepted {
		return ""
	}
	if decision.Reason == ValidationReasonCooldownActive {
		return fmt.Sprintf("too many invalid messages, retry in %dms", decision.Cooldown.Milliseconds())
	}
	return fmt.Sprintf("invalid message: %s", decision.Reason)
}
