package ports

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
)

// ErrNotCanonical reports a block that the chain has since reorged away.
var ErrNotCanonical = errors.New("block is not canonical")

// BeaconBlockRootOracle is the hexagonal port for the beacon roots history
// (EIP-4788). The proof verifier trusts only roots coming from here.
type BeaconBlockRootOracle interface {
	// GetBeaconBlockRoot returns the root published for timestamp. A missing or
	// expired entry is reported as *domain.RootNotFoundError.
	GetBeaconBlockRoot(ctx context.Context, timestamp uint64) (common.Hash, error)
}

// BeaconChainAdapter is the hexagonal port for reading headers from a beacon node.
// Services depend only on this interface, not on any concrete client.
type BeaconChainAdapter interface {
	// GetHeadSlot returns the slot of the current head.
	GetHeadSlot(ctx context.Context) (domain.Slot, error)

	// GetProvableHeader returns the header at blockID (slot, root, "head", "finalized")
	// along with the timestamp under which its root is published.
	GetProvableHeader(ctx context.Context, blockID string) (domain.ProvableBeaconBlockHeader, error)
}
