package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrProofLengthMismatch  = errors.New("merkle: proof length does not match generalized index depth")
	ErrBranchHasMissingItem = fmt.Errorf("%w: branch has missing item", ErrProofLengthMismatch)
	ErrBranchHasExtraItem   = fmt.Errorf("%w: branch has extra item", ErrProofLengthMismatch)
)

// ComputeRoot folds proof into leaf along the path encoded by gIndex. Bit i of the
// index (from the least significant bit) tells whether the node at step i is a right
// child, in which case proof[i] is hashed on the left.
func ComputeRoot(leaf common.Hash, gIndex GIndex, proof []common.Hash) (common.Hash, error) {
	depth, err := gIndex.Depth()
	if err != nil {
		return common.Hash{}, err
	}
	if len(proof) < depth {
		return common.Hash{}, ErrBranchHasMissingItem
	}
	if len(proof) > depth {
		return common.Hash{}, ErrBranchHasExtraItem
	}
	if gIndex.IsRoot() {
		return leaf, nil
	}

	node := leaf
	for i, sibling := range proof {
		if gIndex.bit(i) {
			node = HashPair(sibling, node)
		} else {
			node = HashPair(node, sibling)
		}
	}
	return node, nil
}

// IsValidProof reports whether proof links leaf at gIndex to root. A well-formed but
// wrong proof yields false; malformed input (length or index) yields an error.
func IsValidProof(proof []common.Hash, root, leaf common.Hash, gIndex GIndex) (bool, error) {
	computed, err := ComputeRoot(leaf, gIndex, proof)
	if err != nil {
		return false, err
	}
	return computed == root, nil
}
