package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/requests"
)

// DefaultMaxValidatorsPerReport bounds the entries of one batch.
const DefaultMaxValidatorsPerReport = 600

// DeliveryResult describes one successful delivery call.
type DeliveryResult struct {
	Hash   common.Hash                        `json:"hash"`
	From   uint64                             `json:"from"`
	Count  uint64                             `json:"count"`
	Total  uint64                             `json:"total"`
	Events []domain.ValidatorExitRequestEvent `json:"events"`
}

// Complete reports whether the batch has no undelivered entries left.
func (r *DeliveryResult) Complete() bool { return r.From+r.Count >= r.Total }

// ExitBus registers exit batch hashes and delivers their entries as exit events,
// bounded by its limiter. Calls are serialized and either fully persist their
// effects or change nothing.
type ExitBus struct {
	*limited
	trigger                *TriggerGateway
	maxValidatorsPerReport uint64
}

// NewExitBus constructs an ExitBus with dependencies injected. The limiter is
// restored from store when present, otherwise created from limits.
func NewExitBus(
	store ports.StateStore,
	events ports.EventSink,
	trigger *TriggerGateway,
	clock Clock,
	limits LimitParams,
	maxValidatorsPerReport uint64,
) (*ExitBus, error) {
	l, err := newLimited(LimiterExitBus, store, events, clock, limits)
	if err != nil {
		return nil, err
	}
	return &ExitBus{
		limited:                l,
		trigger:                trigger,
		maxValidatorsPerReport: maxValidatorsPerReport,
	}, nil
}

// SubmitExitRequestsHash registers the hash of a batch whose data will be
// delivered later.
func (b *ExitBus) SubmitExitRequestsHash(hash common.Hash) (*domain.RequestStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.store.GetRequestStatus(hash)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExitHashAlreadySubmitted, hash)
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}

	status := &domain.RequestStatus{Hash: hash, SubmittedAt: b.clock()}
	tx := ports.NewStoreTx()
	tx.PutStatus(status)
	if err := b.store.Commit(tx); err != nil {
		return nil, fmt.Errorf("persisting exit hash %s: %w", hash, err)
	}
	b.log.Info("Exit requests hash %s submitted", hash)
	return status, nil
}

// SubmitExitRequestsData delivers as many undelivered entries of a registered
// batch as the limiter allows at the current time. Partially delivered batches
// are kept as pending for the DeliveryScheduler; a call that delivers nothing
// fails with ErrExitRequestsLimit and leaves no trace.
func (b *ExitBus) SubmitExitRequestsData(ctx context.Context, req domain.ExitRequestsData) (*DeliveryResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, status, err := b.lookup(req)
	if err != nil {
		return nil, err
	}
	reqs, err := requests.DecodeExitRequests(req.Data, req.DataFormat)
	if err != nil {
		return nil, err
	}
	if err := requests.ValidateExitRequests(reqs, b.maxValidatorsPerReport); err != nil {
		return nil, err
	}

	total := uint64(len(reqs))
	start := status.DeliveredCount()
	if start >= total {
		return nil, fmt.Errorf("%w: %s", ErrRequestsAlreadyDelivered, hash)
	}

	now := b.clock()
	available := b.limiter.CurrentLimit(now)
	count := min(total-start, available)
	if count == 0 {
		return nil, &ExitRequestsLimitError{Requested: total - start, Available: available}
	}

	prev := b.limiter.State()
	if err := b.limiter.Consume(now, count); err != nil {
		return nil, err
	}

	next := *status
	next.TotalItemsCount = total
	next.DeliveryHistory = append(append([]domain.DeliveryRecord(nil), status.DeliveryHistory...), domain.DeliveryRecord{
		Timestamp:             now,
		LastDeliveredKeyIndex: start + count - 1,
	})

	tx := ports.NewStoreTx()
	tx.PutLimiter(b.name, b.limiter.State())
	tx.PutStatus(&next)
	if next.Complete() {
		tx.DeletePending = append(tx.DeletePending, hash)
	} else {
		tx.PutPending = append(tx.PutPending, domain.PendingBatch{Hash: hash, Request: req})
	}
	if err := b.commit(tx, prev); err != nil {
		return nil, err
	}

	result := &DeliveryResult{Hash: hash, From: start, Count: count, Total: total}
	for _, r := range reqs[start : start+count] {
		ev := domain.ValidatorExitRequestEvent{
			ModuleID:       r.ModuleID,
			NodeOperatorID: r.NodeOperatorID,
			ValidatorIndex: r.ValidatorIndex,
			Pubkey:         r.Pubkey,
			Timestamp:      now,
		}
		result.Events = append(result.Events, ev)
		b.events.ValidatorExitRequested(ev)
	}
	b.events.RequestsDelivered(domain.RequestsDeliveredEvent{Hash: hash, From: start, Count: count, Timestamp: now})

	b.log.Info("Delivered requests %d..%d of %d for %s", start, start+count-1, total, hash)
	return result, nil
}

// TriggerExits asks the withdrawal gateway to fully withdraw the validators at
// the given positions of a batch. Only delivered entries can be triggered and
// positions must be strictly increasing.
func (b *ExitBus) TriggerExits(ctx context.Context, req domain.ExitRequestsData, exitDataIndexes []uint64) ([]domain.WithdrawalRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hash, status, err := b.lookup(req)
	if err != nil {
		return nil, err
	}
	if len(status.DeliveryHistory) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRequestsNotDelivered, hash)
	}
	if len(exitDataIndexes) == 0 {
		return nil, ErrNoExitDataIndexes
	}

	delivered := status.DeliveredCount()
	pubkeys := make([]domain.BLSPubkey, 0, len(exitDataIndexes))
	for i, index := range exitDataIndexes {
		if index >= delivered {
			return nil, &ExitDataIndexError{Index: index, Limit: delivered, Cause: ErrExitDataIndexOutOfRange}
		}
		if i > 0 && index <= exitDataIndexes[i-1] {
			return nil, &ExitDataIndexError{Index: index, Limit: exitDataIndexes[i-1], Cause: ErrInvalidExitDataIndexSortOrder}
		}
		r, err := requests.UnpackExitRequest(req.Data, req.DataFormat, index)
		if err != nil {
			return nil, err
		}
		pubkeys = append(pubkeys, r.Pubkey)
	}

	return b.trigger.TriggerFullWithdrawals(ctx, pubkeys)
}

// CheckExitRequestWitness ties a validator witness to the delivered batch entry
// at witness.ExitRequestIndex. The proof itself is checked by clproof.
func (b *ExitBus) CheckExitRequestWitness(req domain.ExitRequestsData, witness domain.ValidatorWitness) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	hash, status, err := b.lookup(req)
	if err != nil {
		return err
	}
	if len(status.DeliveryHistory) == 0 {
		return fmt.Errorf("%w: %s", ErrRequestsNotDelivered, hash)
	}
	if delivered := status.DeliveredCount(); witness.ExitRequestIndex >= delivered {
		return &ExitDataIndexError{Index: witness.ExitRequestIndex, Limit: delivered, Cause: ErrExitDataIndexOutOfRange}
	}
	r, err := requests.UnpackExitRequest(req.Data, req.DataFormat, witness.ExitRequestIndex)
	if err != nil {
		return err
	}
	if r.ValidatorIndex != witness.ValidatorIndex || r.Pubkey != witness.Pubkey {
		return fmt.Errorf("%w: entry %d is validator %d %s, witness is %d %s", ErrExitRequestWitnessMismatch,
			witness.ExitRequestIndex, r.ValidatorIndex, r.Pubkey, witness.ValidatorIndex, witness.Pubkey)
	}
	return nil
}

// GetDeliveryHistory returns the bookkeeping of a registered hash.
func (b *ExitBus) GetDeliveryHistory(hash common.Hash) (*domain.RequestStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	status, err := b.store.GetRequestStatus(hash)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExitHashNotSubmitted, hash)
	}
	return status, err
}

// PendingBatches lists the batches whose delivery is unfinished.
func (b *ExitBus) PendingBatches() ([]domain.PendingBatch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.ListPendingBatches()
}

// DropPending forgets a pending batch without touching its delivery history.
func (b *ExitBus) DropPending(hash common.Hash) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := ports.NewStoreTx()
	tx.DeletePending = append(tx.DeletePending, hash)
	return b.store.Commit(tx)
}

func (b *ExitBus) lookup(req domain.ExitRequestsData) (common.Hash, *domain.RequestStatus, error) {
	hash, err := requests.HashExitRequests(req)
	if err != nil {
		return common.Hash{}, nil, err
	}
	status, err := b.store.GetRequestStatus(hash)
	if errors.Is(err, ports.ErrNotFound) {
		return common.Hash{}, nil, fmt.Errorf("%w: %s", ErrExitHashNotSubmitted, hash)
	}
	if err != nil {
		return common.Hash{}, nil, err
	}
	return hash, status, nil
}
