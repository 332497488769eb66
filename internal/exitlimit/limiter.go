// Package exitlimit implements the linear-growth bucket that bounds how many exit
// (or consolidation) requests can be processed per unit of time.
//
// The bucket holds at most MaxExitRequestsLimit units and regains ExitsPerFrame
// units for every full FrameDurationSeconds elapsed since the last update. A zero
// MaxExitRequestsLimit disables limiting. Time is always passed in by the caller.
package exitlimit

import (
	"errors"
	"fmt"
	"math"
)

// Unlimited is the limit reported while limiting is disabled.
const Unlimited = math.MaxUint64

var (
	ErrExitRequestsLimitExceeded    = errors.New("exitlimit: exit requests limit exceeded")
	ErrTooLargeExitsPerFrame        = errors.New("exitlimit: exits per frame exceed max exit requests limit")
	ErrTooLargeMaxExitRequestsLimit = errors.New("exitlimit: max exit requests limit does not fit in uint32")
	ErrZeroFrameDuration            = errors.New("exitlimit: frame duration must be non-zero")
	ErrInvalidState                 = errors.New("exitlimit: invalid limiter state")
)

// LimitExceededError reports a consumption the bucket could not cover.
type LimitExceededError struct {
	Requested uint64
	Available uint64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("exitlimit: exit requests limit exceeded: requested %d, available %d", e.Requested, e.Available)
}

func (e *LimitExceededError) Is(target error) bool { return target == ErrExitRequestsLimitExceeded }

// State is the full persisted state of a limiter.
type State struct {
	MaxExitRequestsLimit  uint64 `json:"maxExitRequestsLimit"`
	ExitsPerFrame         uint64 `json:"exitsPerFrame"`
	FrameDurationSeconds  uint64 `json:"frameDurationSeconds"`
	PrevExitRequestsLimit uint64 `json:"prevExitRequestsLimit"`
	PrevTimestamp         uint64 `json:"prevTimestamp"`
}

func (s State) validate() error {
	if s.MaxExitRequestsLimit == 0 {
		return nil
	}
	if s.MaxExitRequestsLimit > math.MaxUint32 {
		return ErrTooLargeMaxExitRequestsLimit
	}
	if s.ExitsPerFrame > s.MaxExitRequestsLimit {
		return ErrTooLargeExitsPerFrame
	}
	if s.FrameDurationSeconds == 0 {
		return ErrZeroFrameDuration
	}
	if s.PrevExitRequestsLimit > s.MaxExitRequestsLimit {
		return fmt.Errorf("%w: previous limit %d above max %d", ErrInvalidState, s.PrevExitRequestsLimit, s.MaxExitRequestsLimit)
	}
	return nil
}

// LimitsUpdatedEvent is emitted on every successful reconfiguration.
type LimitsUpdatedEvent struct {
	MaxExitRequestsLimit uint64 `json:"maxExitRequestsLimit"`
	ExitsPerFrame        uint64 `json:"exitsPerFrame"`
	FrameDurationSeconds uint64 `json:"frameDurationSeconds"`
	Timestamp            uint64 `json:"timestamp"`
}

// Limiter is not safe for concurrent use; callers serialize access.
type Limiter struct {
	state State
}

// New creates a limiter configured at time now. The bucket starts full.
func New(now, maxExitRequestsLimit, exitsPerFrame, frameDurationSeconds uint64) (*Limiter, error) {
	l := &Limiter{}
	if _, err := l.SetExitRequestLimit(now, maxExitRequestsLimit, exitsPerFrame, frameDurationSeconds); err != nil {
		return nil, err
	}
	return l, nil
}

// Restore re-creates a limiter from persisted state.
func Restore(state State) (*Limiter, error) {
	if err := state.validate(); err != nil {
		return nil, err
	}
	return &Limiter{state: state}, nil
}

// Reset replaces the whole state. It is used to roll back a transition whose
// effects could not be persisted.
func (l *Limiter) Reset(state State) error {
	if err := state.validate(); err != nil {
		return err
	}
	l.state = state
	return nil
}

// State returns a copy of the current state.
func (l *Limiter) State() State { return l.state }

// IsLimitSet reports whether limiting is enabled.
func (l *Limiter) IsLimitSet() bool { return l.state.MaxExitRequestsLimit != 0 }

// CurrentLimit is the number of units available at now:
// min(max, prev + exitsPerFrame * floor((now - prevTimestamp) / frame)).
func (l *Limiter) CurrentLimit(now uint64) uint64 {
	s := l.state
	if s.MaxExitRequestsLimit == 0 {
		return Unlimited
	}
	if now <= s.PrevTimestamp || s.ExitsPerFrame == 0 || s.FrameDurationSeconds == 0 {
		return s.PrevExitRequestsLimit
	}

	frames := (now - s.PrevTimestamp) / s.FrameDurationSeconds
	headroom := s.MaxExitRequestsLimit - s.PrevExitRequestsLimit
	if frames > headroom/s.ExitsPerFrame {
		return s.MaxExitRequestsLimit
	}
	return s.PrevExitRequestsLimit + frames*s.ExitsPerFrame
}

// Consume takes count units at now. On failure nothing changes.
func (l *Limiter) Consume(now, count uint64) error {
	if !l.IsLimitSet() {
		return nil
	}
	current := l.CurrentLimit(now)
	if count > current {
		return &LimitExceededError{Requested: count, Available: current}
	}
	l.state.PrevExitRequestsLimit = current - count
	l.state.PrevTimestamp = max(l.state.PrevTimestamp, now)
	return nil
}

// SetExitRequestLimit reconfigures the limiter at now. The limit earned so far is
// carried over (clamped to the new maximum) before the new parameters apply.
// Enabling a previously disabled limiter starts with a full bucket.
func (l *Limiter) SetExitRequestLimit(now, maxExitRequestsLimit, exitsPerFrame, frameDurationSeconds uint64) (LimitsUpdatedEvent, error) {
	next := State{
		MaxExitRequestsLimit: maxExitRequestsLimit,
		ExitsPerFrame:        exitsPerFrame,
		FrameDurationSeconds: frameDurationSeconds,
	}
	if err := next.validate(); err != nil {
		return LimitsUpdatedEvent{}, err
	}

	next.PrevExitRequestsLimit = min(l.CurrentLimit(now), maxExitRequestsLimit)
	next.PrevTimestamp = max(l.state.PrevTimestamp, now)
	l.state = next

	return LimitsUpdatedEvent{
		MaxExitRequestsLimit: maxExitRequestsLimit,
		ExitsPerFrame:        exitsPerFrame,
		FrameDurationSeconds: frameDurationSeconds,
		Timestamp:            now,
	}, nil
}
