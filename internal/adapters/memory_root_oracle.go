package adapters

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
)

// HistoryBufferLength is the number of roots the beacon roots contract keeps.
const HistoryBufferLength = 8191

var _ ports.BeaconBlockRootOracle = (*MemoryRootOracle)(nil)

// MemoryRootOracle mirrors the storage layout of the beacon roots contract: a
// ring buffer of (timestamp, root) pairs indexed by timestamp modulo
// HistoryBufferLength. A newer timestamp evicts the one sharing its slot.
type MemoryRootOracle struct {
	mu         sync.RWMutex
	timestamps [HistoryBufferLength]uint64
	roots      [HistoryBufferLength]common.Hash
}

func NewMemoryRootOracle() *MemoryRootOracle {
	return &MemoryRootOracle{}
}

// Set records root as the parent beacon block root of the execution block at timestamp.
func (o *MemoryRootOracle) Set(timestamp uint64, root common.Hash) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := timestamp % HistoryBufferLength
	o.timestamps[i] = timestamp
	o.roots[i] = root
}

func (o *MemoryRootOracle) GetBeaconBlockRoot(_ context.Context, timestamp uint64) (common.Hash, error) {
	if timestamp == 0 {
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp}
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	i := timestamp % HistoryBufferLength
	if o.timestamps[i] != timestamp {
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp}
	}
	return o.roots[i], nil
}
