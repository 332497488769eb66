package adapters

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/logger"
)

// BeaconRootsAddress is the EIP-4788 beacon roots contract.
var BeaconRootsAddress = common.HexToAddress("0x000F3df6D732807Ef1319fB7B8bB8522d0Beac02")

var _ ports.BeaconBlockRootOracle = (*ExecutionRootOracle)(nil)

// ContractCaller is the part of an execution client the oracle needs.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ExecutionRootOracle reads beacon block roots from the beacon roots contract
// through eth_call at the latest block.
type ExecutionRootOracle struct {
	caller ContractCaller
	log    *logger.Logger
}

func NewExecutionRootOracle(caller ContractCaller) *ExecutionRootOracle {
	return &ExecutionRootOracle{caller: caller, log: logger.With("el-root-oracle")}
}

// DialExecutionRootOracle connects to the JSON-RPC endpoint at url.
func DialExecutionRootOracle(ctx context.Context, url string) (*ExecutionRootOracle, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dial execution node")
	}
	return NewExecutionRootOracle(client), client, nil
}

// GetBeaconBlockRoot calls the contract with the 32-byte big-endian timestamp.
// The contract reverts for unknown timestamps; any failure or an empty answer is
// reported as *domain.RootNotFoundError.
func (o *ExecutionRootOracle) GetBeaconBlockRoot(ctx context.Context, timestamp uint64) (common.Hash, error) {
	input := uint256.NewInt(timestamp).Bytes32()
	out, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &BeaconRootsAddress, Data: input[:]}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return common.Hash{}, ctx.Err()
		}
		o.log.Debug("beacon roots call for %d failed: %v", timestamp, err)
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp, Cause: errors.Wrap(err, "eth_call beacon roots")}
	}
	if len(out) != common.HashLength {
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp, Cause: errors.Errorf("unexpected output length %d", len(out))}
	}
	root := common.BytesToHash(out)
	if root == (common.Hash{}) {
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp}
	}
	return root, nil
}
