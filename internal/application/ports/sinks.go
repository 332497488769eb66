package ports

import (
	"context"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/exitlimit"
)

// EventSink receives the events emitted by successful state transitions.
type EventSink interface {
	ValidatorExitRequested(ev domain.ValidatorExitRequestEvent)
	RequestsDelivered(ev domain.RequestsDeliveredEvent)
	LimitsUpdated(limiter string, ev exitlimit.LimitsUpdatedEvent)
}

// WithdrawalRequestSink forwards withdrawal requests to the execution layer
// (the withdrawal vault in the on-chain deployment).
type WithdrawalRequestSink interface {
	AddWithdrawalRequests(ctx context.Context, reqs []domain.WithdrawalRequest) error
}

// ConsolidationRequestSink forwards consolidation requests to the execution layer.
type ConsolidationRequestSink interface {
	AddConsolidationRequests(ctx context.Context, reqs []domain.ConsolidationRequest) error
}
