package ports

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/exitlimit"
)

var ErrNotFound = errors.New("not found")

// StateStore persists limiter states and per-batch bookkeeping. Reads return
// ErrNotFound for missing keys; Commit applies a StoreTx atomically.
type StateStore interface {
	GetLimiterState(name string) (exitlimit.State, error)
	GetRequestStatus(hash common.Hash) (*domain.RequestStatus, error)
	ListPendingBatches() ([]domain.PendingBatch, error)
	Commit(tx *StoreTx) error
}

// StoreTx collects the writes of one call.
type StoreTx struct {
	Limiters      map[string]exitlimit.State
	Statuses      []*domain.RequestStatus
	PutPending    []domain.PendingBatch
	DeletePending []common.Hash
}

func NewStoreTx() *StoreTx {
	return &StoreTx{Limiters: make(map[string]exitlimit.State)}
}

func (tx *StoreTx) PutLimiter(name string, state exitlimit.State) {
	tx.Limiters[name] = state
}

func (tx *StoreTx) PutStatus(status *domain.RequestStatus) {
	tx.Statuses = append(tx.Statuses, status)
}
