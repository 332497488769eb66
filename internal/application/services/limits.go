package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/exitlimit"
	"github.com/Marketen/exitbus-verifier/internal/logger"
)

// Limiter names. They key the persisted limiter states and the /limits routes.
const (
	LimiterExitBus       = "exit-bus"
	LimiterTrigger       = "trigger"
	LimiterConsolidation = "consolidation"
)

// Clock returns the current unix time in seconds.
type Clock func() uint64

func SystemClock() uint64 { return uint64(time.Now().Unix()) }

// LimitParams configures a limiter.
type LimitParams struct {
	MaxExitRequestsLimit uint64 `json:"maxExitRequestsLimit"`
	ExitsPerFrame        uint64 `json:"exitsPerFrame"`
	FrameDurationSeconds uint64 `json:"frameDurationSeconds"`
}

// LimitStatus is a limiter seen at one instant.
type LimitStatus struct {
	exitlimit.State
	IsLimitSet   bool   `json:"isLimitSet"`
	CurrentLimit uint64 `json:"currentLimit"`
}

// LimitController is implemented by every rate limited service.
type LimitController interface {
	LimiterName() string
	ExitRequestLimit() LimitStatus
	SetExitRequestLimit(p LimitParams) (exitlimit.LimitsUpdatedEvent, error)
}

// limited holds the state shared by the rate limited services: one limiter
// persisted under name, and the lock serializing every call of the service.
type limited struct {
	mu      sync.Mutex
	name    string
	limiter *exitlimit.Limiter
	store   ports.StateStore
	events  ports.EventSink
	clock   Clock
	log     *logger.Logger
}

func newLimited(name string, store ports.StateStore, events ports.EventSink, clock Clock, defaults LimitParams) (*limited, error) {
	if clock == nil {
		clock = SystemClock
	}
	l := &limited{
		name:   name,
		store:  store,
		events: events,
		clock:  clock,
		log:    logger.With(name),
	}

	state, err := store.GetLimiterState(name)
	switch {
	case err == nil:
		l.limiter, err = exitlimit.Restore(state)
		if err != nil {
			return nil, fmt.Errorf("restoring %s limiter: %w", name, err)
		}
		l.log.Info("Restored limiter: max %d, %d per %ds, %d left at %d",
			state.MaxExitRequestsLimit, state.ExitsPerFrame, state.FrameDurationSeconds,
			state.PrevExitRequestsLimit, state.PrevTimestamp)
	case errors.Is(err, ports.ErrNotFound):
		l.limiter, err = exitlimit.New(clock(), defaults.MaxExitRequestsLimit, defaults.ExitsPerFrame, defaults.FrameDurationSeconds)
		if err != nil {
			return nil, fmt.Errorf("configuring %s limiter: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("loading %s limiter: %w", name, err)
	}
	return l, nil
}

func (l *limited) LimiterName() string { return l.name }

// ExitRequestLimit reports the limiter at the current time.
func (l *limited) ExitRequestLimit() LimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status(l.clock())
}

func (l *limited) status(now uint64) LimitStatus {
	return LimitStatus{
		State:        l.limiter.State(),
		IsLimitSet:   l.limiter.IsLimitSet(),
		CurrentLimit: l.limiter.CurrentLimit(now),
	}
}

// SetExitRequestLimit reconfigures the limiter and persists it.
func (l *limited) SetExitRequestLimit(p LimitParams) (exitlimit.LimitsUpdatedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.limiter.State()
	ev, err := l.limiter.SetExitRequestLimit(l.clock(), p.MaxExitRequestsLimit, p.ExitsPerFrame, p.FrameDurationSeconds)
	if err != nil {
		return exitlimit.LimitsUpdatedEvent{}, err
	}

	tx := ports.NewStoreTx()
	tx.PutLimiter(l.name, l.limiter.State())
	if err := l.commit(tx, prev); err != nil {
		return exitlimit.LimitsUpdatedEvent{}, err
	}

	l.log.Info("Limits updated: max %d, %d per %ds", ev.MaxExitRequestsLimit, ev.ExitsPerFrame, ev.FrameDurationSeconds)
	l.events.LimitsUpdated(l.name, ev)
	return ev, nil
}

// commit persists tx. On failure the limiter goes back to prev so memory and
// store stay in step.
func (l *limited) commit(tx *ports.StoreTx, prev exitlimit.State) error {
	if err := l.store.Commit(tx); err != nil {
		if rerr := l.limiter.Reset(prev); rerr != nil {
			l.log.Error("Could not roll back limiter: %v", rerr)
		}
		return fmt.Errorf("persisting %s state: %w", l.name, err)
	}
	return nil
}
