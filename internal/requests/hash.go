package requests

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
)

var hashArguments = func() abi.Arguments {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: bytesType}, {Type: uint256Type}}
}()

// HashExitRequests is the identifier a batch is registered under:
// keccak256(abi.encode(data, dataFormat)).
func HashExitRequests(req domain.ExitRequestsData) (common.Hash, error) {
	encoded, err := hashArguments.Pack([]byte(req.Data), new(big.Int).SetUint64(req.DataFormat))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}
