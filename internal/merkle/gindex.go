package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// MaxIndexBits is the widest index a packed GIndex can hold; the low byte of the
// packed bytes32 stores the layer width exponent.
const MaxIndexBits = 248

var (
	ErrInvalidGIndex   = errors.New("merkle: generalized index must be non-zero")
	ErrIndexOutOfRange = errors.New("merkle: generalized index out of range")
)

// GIndex is a generalized index: the position of a node in a binary Merkle tree
// whose root is 1 and whose node n has children 2n and 2n+1. Pow is the log2 width
// of the list layer the index addresses and bounds Shr.
type GIndex struct {
	index uint256.Int
	pow   uint8
}

// NewGIndex builds a GIndex from a 64-bit index.
func NewGIndex(index uint64, pow uint8) GIndex {
	var g GIndex
	g.index.SetUint64(index)
	g.pow = pow
	return g
}

// NewGIndexFromInt builds a GIndex from a 256-bit index. Indices wider than
// MaxIndexBits are rejected.
func NewGIndexFromInt(index *uint256.Int, pow uint8) (GIndex, error) {
	if index.BitLen() > MaxIndexBits {
		return GIndex{}, ErrIndexOutOfRange
	}
	var g GIndex
	g.index.Set(index)
	g.pow = pow
	return g, nil
}

// Unpack decodes the bytes32 configuration form: index << 8 | pow.
func Unpack(packed common.Hash) GIndex {
	var g GIndex
	v := new(uint256.Int).SetBytes32(packed[:])
	g.pow = uint8(v.Uint64() & 0xff)
	g.index.Rsh(v, 8)
	return g
}

// Pack encodes g in its bytes32 configuration form.
func (g GIndex) Pack() common.Hash {
	v := new(uint256.Int).Lsh(&g.index, 8)
	v.Or(v, uint256.NewInt(uint64(g.pow)))
	return common.Hash(v.Bytes32())
}

// Index returns a copy of the raw index.
func (g GIndex) Index() *uint256.Int { return new(uint256.Int).Set(&g.index) }

func (g GIndex) Pow() uint8 { return g.pow }

// Width is the number of nodes in the list layer addressed by g.
func (g GIndex) Width() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), uint(g.pow))
}

func (g GIndex) IsZero() bool { return g.index.IsZero() }

// IsRoot reports whether g addresses the tree root.
func (g GIndex) IsRoot() bool { return g.index.Eq(uint256.NewInt(1)) }

// BitLength is the position of the highest set bit plus one. Zero for index 0.
func (g GIndex) BitLength() int { return g.index.BitLen() }

// Depth is the number of hashing steps between the node and the root.
func (g GIndex) Depth() (int, error) {
	if g.index.IsZero() {
		return 0, ErrInvalidGIndex
	}
	return g.index.BitLen() - 1, nil
}

// Concat returns the index of child, interpreted relative to a subtree rooted at g,
// in the outer tree: the path bits of child are appended to g. The result keeps the
// layer width of child.
func (g GIndex) Concat(child GIndex) (GIndex, error) {
	if g.index.IsZero() || child.index.IsZero() {
		return GIndex{}, ErrInvalidGIndex
	}
	parentBits := g.index.BitLen()
	childDepth := child.index.BitLen() - 1
	if parentBits+childDepth > MaxIndexBits {
		return GIndex{}, ErrIndexOutOfRange
	}

	mask := new(uint256.Int).Lsh(uint256.NewInt(1), uint(childDepth))
	mask.SubUint64(mask, 1)

	var out GIndex
	out.index.Lsh(&g.index, uint(childDepth))
	out.index.Or(&out.index, new(uint256.Int).And(&child.index, mask))
	out.pow = child.pow
	return out, nil
}

// Shr moves g n positions to the right within its list layer.
func (g GIndex) Shr(n uint64) (GIndex, error) {
	width := g.Width()
	pos := new(uint256.Int).Mod(&g.index, width)
	pos, overflow := pos.AddOverflow(pos, uint256.NewInt(n))
	if overflow || !pos.Lt(width) {
		return GIndex{}, ErrIndexOutOfRange
	}
	var out GIndex
	out.index.AddUint64(&g.index, n)
	out.pow = g.pow
	return out, nil
}

// IsParentOf reports whether child lies strictly below g.
func (g GIndex) IsParentOf(child GIndex) bool {
	if g.index.IsZero() || !g.index.Lt(&child.index) {
		return false
	}
	shift := child.index.BitLen() - g.index.BitLen()
	ancestor := new(uint256.Int).Rsh(&child.index, uint(shift))
	return ancestor.Eq(&g.index)
}

func (g GIndex) Equal(o GIndex) bool { return g.pow == o.pow && g.index.Eq(&o.index) }

// bit returns bit i of the index.
func (g GIndex) bit(i int) bool {
	return new(uint256.Int).Rsh(&g.index, uint(i)).Uint64()&1 == 1
}

func (g GIndex) String() string {
	return fmt.Sprintf("%s/%d", g.index.Hex(), g.pow)
}

// MarshalText encodes g in its packed bytes32 hex form.
func (g GIndex) MarshalText() ([]byte, error) {
	return hexutil.Bytes(g.Pack().Bytes()).MarshalText()
}

// UnmarshalText accepts the packed bytes32 hex form.
func (g *GIndex) UnmarshalText(input []byte) error {
	var packed common.Hash
	if err := packed.UnmarshalText(input); err != nil {
		return err
	}
	*g = Unpack(packed)
	return nil
}
