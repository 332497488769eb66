package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/exitlimit"
)

type memStore struct {
	mu        sync.Mutex
	limiters  map[string]exitlimit.State
	statuses  map[common.Hash]domain.RequestStatus
	pending   map[common.Hash]domain.PendingBatch
	commitErr error
	commits   int
}

func newMemStore() *memStore {
	return &memStore{
		limiters: make(map[string]exitlimit.State),
		statuses: make(map[common.Hash]domain.RequestStatus),
		pending:  make(map[common.Hash]domain.PendingBatch),
	}
}

func (s *memStore) GetLimiterState(name string) (exitlimit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.limiters[name]
	if !ok {
		return exitlimit.State{}, ports.ErrNotFound
	}
	return st, nil
}

func (s *memStore) GetRequestStatus(hash common.Hash) (*domain.RequestStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[hash]
	if !ok {
		return nil, ports.ErrNotFound
	}
	st.DeliveryHistory = append([]domain.DeliveryRecord(nil), st.DeliveryHistory...)
	return &st, nil
}

func (s *memStore) ListPendingBatches() ([]domain.PendingBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingBatch, 0, len(s.pending))
	for _, b := range s.pending {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash.Cmp(out[j].Hash) < 0 })
	return out, nil
}

func (s *memStore) Commit(tx *ports.StoreTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	s.commits++
	for name, st := range tx.Limiters {
		s.limiters[name] = st
	}
	for _, st := range tx.Statuses {
		s.statuses[st.Hash] = *st
	}
	for _, b := range tx.PutPending {
		s.pending[b.Hash] = b
	}
	for _, h := range tx.DeletePending {
		delete(s.pending, h)
	}
	return nil
}

type recordingSink struct {
	exits     []domain.ValidatorExitRequestEvent
	delivered []domain.RequestsDeliveredEvent
	limits    map[string][]exitlimit.LimitsUpdatedEvent
}

func newRecordingSink() *recordingSink {
	return &recordingSink{limits: make(map[string][]exitlimit.LimitsUpdatedEvent)}
}

func (r *recordingSink) ValidatorExitRequested(ev domain.ValidatorExitRequestEvent) {
	r.exits = append(r.exits, ev)
}

func (r *recordingSink) RequestsDelivered(ev domain.RequestsDeliveredEvent) {
	r.delivered = append(r.delivered, ev)
}

func (r *recordingSink) LimitsUpdated(limiter string, ev exitlimit.LimitsUpdatedEvent) {
	r.limits[limiter] = append(r.limits[limiter], ev)
}

var errSinkDown = errors.New("sink down")

type requestSink struct {
	withdrawals    []domain.WithdrawalRequest
	consolidations []domain.ConsolidationRequest
	err            error
}

func (s *requestSink) AddWithdrawalRequests(_ context.Context, reqs []domain.WithdrawalRequest) error {
	if s.err != nil {
		return s.err
	}
	s.withdrawals = append(s.withdrawals, reqs...)
	return nil
}

func (s *requestSink) AddConsolidationRequests(_ context.Context, reqs []domain.ConsolidationRequest) error {
	if s.err != nil {
		return s.err
	}
	s.consolidations = append(s.consolidations, reqs...)
	return nil
}

type fakeClock struct{ now uint64 }

func (c *fakeClock) Now() uint64 { return c.now }
func (c *fakeClock) Advance(seconds uint64) { c.now += seconds }

type fakeBeacon struct {
	head domain.Slot
	err  error
}

func (b *fakeBeacon) GetHeadSlot(context.Context) (domain.Slot, error) { return b.head, b.err }

func (b *fakeBeacon) GetProvableHeader(context.Context, string) (domain.ProvableBeaconBlockHeader, error) {
	return domain.ProvableBeaconBlockHeader{}, errors.New("not implemented")
}
