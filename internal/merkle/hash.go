package merkle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/minio/sha256-simd"
)

// HashPair combines two nodes of an SSZ Merkle tree: sha256(left ++ right).
func HashPair(left, right common.Hash) common.Hash {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return common.Hash(sha256.Sum256(buf[:]))
}
