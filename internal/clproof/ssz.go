package clproof

import (
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	ssz "github.com/ferranbt/fastssz"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
)

// HeaderRoot is the SSZ hash tree root of a beacon block header.
func HeaderRoot(h domain.BeaconBlockHeader) (common.Hash, error) {
	header := phase0.BeaconBlockHeader{
		Slot:          phase0.Slot(h.Slot),
		ProposerIndex: phase0.ValidatorIndex(h.ProposerIndex),
		ParentRoot:    phase0.Root(h.ParentRoot),
		StateRoot:     phase0.Root(h.StateRoot),
		BodyRoot:      phase0.Root(h.BodyRoot),
	}
	root, err := header.HashTreeRoot()
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(root), nil
}

// ValidatorRoot is the SSZ hash tree root of the Validator container described
// by the witness.
func ValidatorRoot(w domain.ValidatorWitness) (common.Hash, error) {
	hh := ssz.DefaultHasherPool.Get()
	defer ssz.DefaultHasherPool.Put(hh)

	indx := hh.Index()
	hh.PutBytes(w.Pubkey[:])
	hh.PutBytes(w.WithdrawalCredentials[:])
	hh.PutUint64(uint64(w.EffectiveBalance))
	hh.PutBool(w.Slashed)
	hh.PutUint64(uint64(w.ActivationEligibilityEpoch))
	hh.PutUint64(uint64(w.ActivationEpoch))
	hh.PutUint64(uint64(w.ExitEpoch))
	hh.PutUint64(uint64(w.WithdrawableEpoch))
	hh.Merkleize(indx)

	root, err := hh.HashRoot()
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(root), nil
}
