package services

import (
	"context"
	"fmt"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/requests"
)

// TriggerGateway forwards full withdrawal requests to the execution layer,
// bounded by its own limiter.
type TriggerGateway struct {
	*limited
	sink ports.WithdrawalRequestSink
}

func NewTriggerGateway(
	store ports.StateStore,
	events ports.EventSink,
	sink ports.WithdrawalRequestSink,
	clock Clock,
	limits LimitParams,
) (*TriggerGateway, error) {
	l, err := newLimited(LimiterTrigger, store, events, clock, limits)
	if err != nil {
		return nil, err
	}
	return &TriggerGateway{limited: l, sink: sink}, nil
}

// TriggerFullWithdrawals consumes one unit per pubkey and forwards a full
// withdrawal (amount 0) for each. Either all requests are forwarded or none.
func (g *TriggerGateway) TriggerFullWithdrawals(ctx context.Context, pubkeys []domain.BLSPubkey) ([]domain.WithdrawalRequest, error) {
	if len(pubkeys) == 0 {
		return nil, requests.ErrMalformedPubkeysArray
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	prev := g.limiter.State()
	if err := g.limiter.Consume(now, uint64(len(pubkeys))); err != nil {
		return nil, err
	}

	reqs := make([]domain.WithdrawalRequest, len(pubkeys))
	for i, pk := range pubkeys {
		reqs[i] = domain.WithdrawalRequest{Pubkey: pk}
	}
	if err := g.sink.AddWithdrawalRequests(ctx, reqs); err != nil {
		_ = g.limiter.Reset(prev)
		return nil, fmt.Errorf("forwarding withdrawal requests: %w", err)
	}

	tx := ports.NewStoreTx()
	tx.PutLimiter(g.name, g.limiter.State())
	if err := g.commit(tx, prev); err != nil {
		g.log.Error("%d withdrawal requests were forwarded but the limiter could not be persisted", len(reqs))
		return nil, err
	}

	g.log.Info("Triggered %d full withdrawals", len(reqs))
	return reqs, nil
}

// ConsolidationGateway forwards consolidation requests to the execution layer,
// bounded by its own limiter.
type ConsolidationGateway struct {
	*limited
	sink ports.ConsolidationRequestSink
}

func NewConsolidationGateway(
	store ports.StateStore,
	events ports.EventSink,
	sink ports.ConsolidationRequestSink,
	clock Clock,
	limits LimitParams,
) (*ConsolidationGateway, error) {
	l, err := newLimited(LimiterConsolidation, store, events, clock, limits)
	if err != nil {
		return nil, err
	}
	return &ConsolidationGateway{limited: l, sink: sink}, nil
}

// AddConsolidationRequests decodes packed consolidation entries, consumes one
// unit per entry and forwards them.
func (g *ConsolidationGateway) AddConsolidationRequests(ctx context.Context, data []byte) ([]domain.ConsolidationRequest, error) {
	reqs, err := requests.DecodeConsolidationRequests(data)
	if err != nil {
		return nil, err
	}
	if err := g.forward(ctx, reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// AddConsolidationPairs pairs two concatenated pubkey arrays position by position
// under one module and node operator.
func (g *ConsolidationGateway) AddConsolidationPairs(
	ctx context.Context,
	moduleID domain.ModuleID,
	nodeOperatorID domain.NodeOperatorID,
	sourcePubkeys, targetPubkeys []byte,
) ([]domain.ConsolidationRequest, error) {
	sources, err := requests.SplitPubkeys(sourcePubkeys)
	if err != nil {
		return nil, fmt.Errorf("source pubkeys: %w", err)
	}
	targets, err := requests.SplitPubkeys(targetPubkeys)
	if err != nil {
		return nil, fmt.Errorf("target pubkeys: %w", err)
	}
	if len(sources) != len(targets) {
		return nil, fmt.Errorf("%w: %d source and %d target pubkeys", requests.ErrMalformedPubkeysArray, len(sources), len(targets))
	}

	reqs := make([]domain.ConsolidationRequest, len(sources))
	for i := range sources {
		reqs[i] = domain.ConsolidationRequest{
			ModuleID:       moduleID,
			NodeOperatorID: nodeOperatorID,
			SourcePubkey:   sources[i],
			TargetPubkey:   targets[i],
		}
	}
	// round trip through the codec for the id range checks
	data, err := requests.EncodeConsolidationRequests(reqs)
	if err != nil {
		return nil, err
	}
	return g.AddConsolidationRequests(ctx, data)
}

func (g *ConsolidationGateway) forward(ctx context.Context, reqs []domain.ConsolidationRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	prev := g.limiter.State()
	if err := g.limiter.Consume(now, uint64(len(reqs))); err != nil {
		return err
	}
	if err := g.sink.AddConsolidationRequests(ctx, reqs); err != nil {
		_ = g.limiter.Reset(prev)
		return fmt.Errorf("forwarding consolidation requests: %w", err)
	}

	tx := ports.NewStoreTx()
	tx.PutLimiter(g.name, g.limiter.State())
	if err := g.commit(tx, prev); err != nil {
		g.log.Error("%d consolidation requests were forwarded but the limiter could not be persisted", len(reqs))
		return err
	}

	g.log.Info("Forwarded %d consolidation requests", len(reqs))
	return nil
}
