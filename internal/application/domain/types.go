package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Marketen/exitbus-verifier/internal/merkle"
)

// Basic consensus types
type Epoch uint64
type Slot uint64
type ValidatorIndex uint64
type Gwei uint64

// Exit bus identifiers
type ModuleID uint32       // 3 bytes on the wire
type NodeOperatorID uint64 // 5 bytes on the wire

const PubkeyLength = 48

// BLSPubkey is a validator public key.
type BLSPubkey [PubkeyLength]byte

func (p BLSPubkey) String() string { return hexutil.Encode(p[:]) }

func (p BLSPubkey) Bytes() []byte { return p[:] }

func (p BLSPubkey) MarshalText() ([]byte, error) {
	return hexutil.Bytes(p[:]).MarshalText()
}

func (p *BLSPubkey) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("BLSPubkey", input, p[:])
}

// BeaconBlockHeader mirrors the consensus-layer header container. Its root is
// always recomputed, never taken from the caller.
type BeaconBlockHeader struct {
	Slot          Slot           `json:"slot"`
	ProposerIndex ValidatorIndex `json:"proposerIndex"`
	ParentRoot    common.Hash    `json:"parentRoot"`
	StateRoot     common.Hash    `json:"stateRoot"`
	BodyRoot      common.Hash    `json:"bodyRoot"`
}

// ProvableBeaconBlockHeader is a header plus the timestamp under which the
// beacon roots oracle publishes its root.
type ProvableBeaconBlockHeader struct {
	Header         BeaconBlockHeader `json:"header"`
	RootsTimestamp uint64            `json:"rootsTimestamp"`
}

// ValidatorWitness proves a validator record under a state root.
type ValidatorWitness struct {
	// ExitRequestIndex points at the exit request entry this witness backs.
	ExitRequestIndex uint64 `json:"exitRequestIndex"`

	ValidatorIndex             ValidatorIndex `json:"validatorIndex"`
	Pubkey                     BLSPubkey      `json:"pubkey"`
	WithdrawalCredentials      common.Hash    `json:"withdrawalCredentials"`
	EffectiveBalance           Gwei           `json:"effectiveBalance"`
	Slashed                    bool           `json:"slashed"`
	ActivationEligibilityEpoch Epoch          `json:"activationEligibilityEpoch"`
	ActivationEpoch            Epoch          `json:"activationEpoch"`
	ExitEpoch                  Epoch          `json:"exitEpoch"`
	WithdrawableEpoch          Epoch          `json:"withdrawableEpoch"`
	ValidatorProof             []common.Hash  `json:"validatorProof"`
}

// HistoricalHeaderWitness proves an older header under the historical summaries
// of a newer, already authenticated state.
type HistoricalHeaderWitness struct {
	Header     BeaconBlockHeader `json:"header"`
	RootGIndex merkle.GIndex     `json:"rootGIndex"`
	Proof      []common.Hash     `json:"proof"`
}
