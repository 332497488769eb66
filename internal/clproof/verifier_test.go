package clproof

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/merkle"
)

const (
	firstSupportedSlot = domain.Slot(1000)
	pivotSlot          = domain.Slot(2000)

	// Deneb and Electra mainnet layouts
	giFirstValidatorPrev = uint64(0x56) << 40
	giFirstValidatorCurr = uint64(0x96) << 40
	giHistSummariesPrev  = uint64(0x3b)
	giHistSummariesCurr  = uint64(0x5b)
)

var errOracleDown = errors.New("connection refused")

type fakeOracle struct {
	roots map[uint64]common.Hash
	err   error
}

func (o *fakeOracle) GetBeaconBlockRoot(_ context.Context, timestamp uint64) (common.Hash, error) {
	if o.err != nil {
		return common.Hash{}, o.err
	}
	root, ok := o.roots[timestamp]
	if !ok {
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp}
	}
	return root, nil
}

func testConfig() Config {
	return Config{
		GIFirstValidatorPrev:      merkle.NewGIndex(giFirstValidatorPrev, 40),
		GIFirstValidatorCurr:      merkle.NewGIndex(giFirstValidatorCurr, 40),
		GIHistoricalSummariesPrev: merkle.NewGIndex(giHistSummariesPrev, 0),
		GIHistoricalSummariesCurr: merkle.NewGIndex(giHistSummariesCurr, 0),
		FirstSupportedSlot:        firstSupportedSlot,
		PivotSlot:                 pivotSlot,
	}
}

// branchTo hangs leaf at gIndex under random siblings and returns the resulting
// root with the proof.
func branchTo(rng *rand.Rand, leaf common.Hash, gIndex uint64) (common.Hash, []common.Hash) {
	node := [32]byte(leaf)
	var proof []common.Hash
	for g := gIndex; g > 1; g >>= 1 {
		var sibling common.Hash
		rng.Read(sibling[:])
		proof = append(proof, sibling)
		if g&1 == 1 {
			node = sszPair(sibling, node)
		} else {
			node = sszPair(node, sibling)
		}
	}
	return common.Hash(node), proof
}

func randomHash(rng *rand.Rand) common.Hash {
	var h common.Hash
	rng.Read(h[:])
	return h
}

type fixture struct {
	rng      *rand.Rand
	oracle   *fakeOracle
	verifier *Verifier
}

func newFixture(t *testing.T, seed int64) *fixture {
	t.Helper()
	oracle := &fakeOracle{roots: make(map[uint64]common.Hash)}
	v, err := New(testConfig(), oracle)
	require.NoError(t, err)
	return &fixture{rng: rand.New(rand.NewSource(seed)), oracle: oracle, verifier: v}
}

func (f *fixture) witness(t *testing.T, index domain.ValidatorIndex) domain.ValidatorWitness {
	t.Helper()
	w := domain.ValidatorWitness{
		ValidatorIndex:             index,
		WithdrawalCredentials:      randomHash(f.rng),
		EffectiveBalance:           32_000_000_000,
		ActivationEligibilityEpoch: 10,
		ActivationEpoch:            11,
		ExitEpoch:                  1<<64 - 1,
		WithdrawableEpoch:          1<<64 - 1,
	}
	f.rng.Read(w.Pubkey[:])
	return w
}

// stateWithValidator proves w under a fresh state root using the layout of slot.
func (f *fixture) stateWithValidator(t *testing.T, w *domain.ValidatorWitness, slot domain.Slot) common.Hash {
	t.Helper()
	base := giFirstValidatorCurr
	if slot < pivotSlot {
		base = giFirstValidatorPrev
	}
	leaf, err := ValidatorRoot(*w)
	require.NoError(t, err)
	root, proof := branchTo(f.rng, leaf, base+uint64(w.ValidatorIndex))
	w.ValidatorProof = proof
	return root
}

func (f *fixture) publish(t *testing.T, h domain.BeaconBlockHeader, timestamp uint64) domain.ProvableBeaconBlockHeader {
	t.Helper()
	root, err := HeaderRoot(h)
	require.NoError(t, err)
	f.oracle.roots[timestamp] = root
	return domain.ProvableBeaconBlockHeader{Header: h, RootsTimestamp: timestamp}
}

func (f *fixture) header(slot domain.Slot, stateRoot common.Hash) domain.BeaconBlockHeader {
	return domain.BeaconBlockHeader{
		Slot:          slot,
		ProposerIndex: 31337,
		ParentRoot:    randomHash(f.rng),
		StateRoot:     stateRoot,
		BodyRoot:      randomHash(f.rng),
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.FirstSupportedSlot = cfg.PivotSlot + 1
	_, err := New(cfg, &fakeOracle{})
	assert.ErrorIs(t, err, ErrInvalidPivotSlot)

	cfg = testConfig()
	cfg.FirstSupportedSlot = cfg.PivotSlot
	_, err = New(cfg, &fakeOracle{})
	assert.NoError(t, err)

	cfg = testConfig()
	cfg.GIHistoricalSummariesCurr = merkle.GIndex{}
	_, err = New(cfg, &fakeOracle{})
	assert.ErrorIs(t, err, ErrZeroGIndex)
}

func TestSelectGIndicesForkBoundary(t *testing.T) {
	f := newFixture(t, 1)
	cfg := testConfig()

	firstValidator, summaries, err := f.verifier.SelectGIndices(pivotSlot - 1)
	require.NoError(t, err)
	assert.True(t, firstValidator.Equal(cfg.GIFirstValidatorPrev))
	assert.True(t, summaries.Equal(cfg.GIHistoricalSummariesPrev))

	firstValidator, summaries, err = f.verifier.SelectGIndices(pivotSlot)
	require.NoError(t, err)
	assert.True(t, firstValidator.Equal(cfg.GIFirstValidatorCurr))
	assert.True(t, summaries.Equal(cfg.GIHistoricalSummariesCurr))

	_, _, err = f.verifier.SelectGIndices(firstSupportedSlot)
	require.NoError(t, err)

	_, _, err = f.verifier.SelectGIndices(firstSupportedSlot - 1)
	require.ErrorIs(t, err, ErrUnsupportedSlot)
	var unsupported *UnsupportedSlotError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, firstSupportedSlot-1, unsupported.Slot)
	assert.Equal(t, firstSupportedSlot, unsupported.FirstSupported)
}

func TestVerifyValidatorProof(t *testing.T) {
	for _, slot := range []domain.Slot{firstSupportedSlot, pivotSlot - 1, pivotSlot, pivotSlot + 500_000} {
		f := newFixture(t, int64(slot))
		w := f.witness(t, 1_234_567)
		block := f.publish(t, f.header(slot, f.stateWithValidator(t, &w, slot)), 1_700_000_000)

		assert.NoError(t, f.verifier.VerifyValidatorProof(context.Background(), block, w), "slot %d", slot)
	}
}

func TestVerifyValidatorProofUsesLayoutOfSlot(t *testing.T) {
	f := newFixture(t, 2)
	w := f.witness(t, 77)
	// proven with the previous layout but claimed at the pivot
	stateRoot := f.stateWithValidator(t, &w, pivotSlot-1)
	block := f.publish(t, f.header(pivotSlot, stateRoot), 1_700_000_012)

	// the registry sits one level deeper in the current layout
	err := f.verifier.VerifyValidatorProof(context.Background(), block, w)
	assert.ErrorIs(t, err, merkle.ErrProofLengthMismatch)
}

func TestVerifyValidatorProofFailures(t *testing.T) {
	const ts = uint64(1_700_000_000)
	ctx := context.Background()

	t.Run("root not found", func(t *testing.T) {
		f := newFixture(t, 3)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)
		block.RootsTimestamp = ts + 12

		err := f.verifier.VerifyValidatorProof(ctx, block, w)
		require.ErrorIs(t, err, domain.ErrRootNotFound)
		var notFound *domain.RootNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, ts+12, notFound.Timestamp)
	})

	t.Run("oracle failure", func(t *testing.T) {
		f := newFixture(t, 4)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)
		f.oracle.err = errOracleDown

		err := f.verifier.VerifyValidatorProof(ctx, block, w)
		assert.ErrorIs(t, err, domain.ErrRootNotFound)
		assert.ErrorIs(t, err, errOracleDown)
	})

	t.Run("empty root", func(t *testing.T) {
		f := newFixture(t, 5)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)
		f.oracle.roots[ts] = common.Hash{}

		err := f.verifier.VerifyValidatorProof(ctx, block, w)
		assert.ErrorIs(t, err, domain.ErrRootNotFound)
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t, 6)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)
		f.oracle.err = context.Canceled
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := f.verifier.VerifyValidatorProof(cancelled, block, w)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrRootNotFound)
	})

	t.Run("header mismatch", func(t *testing.T) {
		f := newFixture(t, 7)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)
		block.Header.ProposerIndex++

		err := f.verifier.VerifyValidatorProof(ctx, block, w)
		assert.ErrorIs(t, err, ErrInvalidBlockHeader)
	})

	t.Run("unsupported slot", func(t *testing.T) {
		f := newFixture(t, 8)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(firstSupportedSlot-1, f.stateWithValidator(t, &w, pivotSlot-1)), ts)

		err := f.verifier.VerifyValidatorProof(ctx, block, w)
		assert.ErrorIs(t, err, ErrUnsupportedSlot)
	})

	t.Run("wrong validator index", func(t *testing.T) {
		f := newFixture(t, 9)
		w := f.witness(t, 100)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)
		w.ValidatorIndex = 101

		err := f.verifier.VerifyValidatorProof(ctx, block, w)
		assert.ErrorIs(t, err, ErrProofVerificationFailed)
	})

	t.Run("validator index outside registry", func(t *testing.T) {
		f := newFixture(t, 10)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)
		w.ValidatorIndex = 1 << 40

		err := f.verifier.VerifyValidatorProof(ctx, block, w)
		assert.ErrorIs(t, err, merkle.ErrIndexOutOfRange)
	})

	t.Run("short proof", func(t *testing.T) {
		f := newFixture(t, 11)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)
		w.ValidatorProof = w.ValidatorProof[1:]

		err := f.verifier.VerifyValidatorProof(ctx, block, w)
		assert.ErrorIs(t, err, merkle.ErrProofLengthMismatch)
	})

	t.Run("field tampering", func(t *testing.T) {
		f := newFixture(t, 12)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)

		mutations := []func(*domain.ValidatorWitness){
			func(w *domain.ValidatorWitness) { w.Pubkey[47] ^= 1 },
			func(w *domain.ValidatorWitness) { w.WithdrawalCredentials[0] ^= 1 },
			func(w *domain.ValidatorWitness) { w.EffectiveBalance++ },
			func(w *domain.ValidatorWitness) { w.Slashed = true },
			func(w *domain.ValidatorWitness) { w.ActivationEligibilityEpoch++ },
			func(w *domain.ValidatorWitness) { w.ActivationEpoch++ },
			func(w *domain.ValidatorWitness) { w.ExitEpoch-- },
			func(w *domain.ValidatorWitness) { w.WithdrawableEpoch-- },
		}
		for i, mutate := range mutations {
			tampered := w
			tampered.ValidatorProof = append([]common.Hash(nil), w.ValidatorProof...)
			mutate(&tampered)
			err := f.verifier.VerifyValidatorProof(ctx, block, tampered)
			assert.ErrorIs(t, err, ErrProofVerificationFailed, "mutation %d", i)
		}
	})

	t.Run("any proof byte", func(t *testing.T) {
		f := newFixture(t, 13)
		w := f.witness(t, 1)
		block := f.publish(t, f.header(pivotSlot, f.stateWithValidator(t, &w, pivotSlot)), ts)

		for i := range w.ValidatorProof {
			for b := 0; b < common.HashLength; b += 7 {
				tampered := w
				tampered.ValidatorProof = append([]common.Hash(nil), w.ValidatorProof...)
				tampered.ValidatorProof[i][b] ^= 0x40
				err := f.verifier.VerifyValidatorProof(ctx, block, tampered)
				assert.ErrorIs(t, err, ErrProofVerificationFailed, "proof[%d][%d]", i, b)
			}
		}
	})
}

type historicalCase struct {
	block    domain.ProvableBeaconBlockHeader
	oldBlock domain.HistoricalHeaderWitness
	witness  domain.ValidatorWitness
}

// historical builds a new block at newSlot whose historical summaries contain
// an old block at oldSlot, which in turn contains a validator.
func (f *fixture) historical(t *testing.T, newSlot, oldSlot domain.Slot) historicalCase {
	t.Helper()
	w := f.witness(t, 4242)
	oldHeader := f.header(oldSlot, f.stateWithValidator(t, &w, oldSlot))
	oldRoot, err := HeaderRoot(oldHeader)
	require.NoError(t, err)

	summaries := merkle.NewGIndex(giHistSummariesCurr, 0)
	if newSlot < pivotSlot {
		summaries = merkle.NewGIndex(giHistSummariesPrev, 0)
	}
	// list data root, summary 17 of 2^24, block_summary_root, block root 4000 of 8192
	inList := uint64(2)
	inList = inList<<24 | 17
	inList = inList<<1 | 0
	inList = inList<<13 | 4000
	rootGIndex, err := summaries.Concat(merkle.NewGIndex(inList, 0))
	require.NoError(t, err)

	stateRoot, proof := branchTo(f.rng, oldRoot, rootGIndex.Index().Uint64())
	block := f.publish(t, f.header(newSlot, stateRoot), 1_800_000_000)
	return historicalCase{
		block:    block,
		oldBlock: domain.HistoricalHeaderWitness{Header: oldHeader, RootGIndex: rootGIndex, Proof: proof},
		witness:  w,
	}
}

func TestVerifyHistoricalValidatorProof(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name             string
		newSlot, oldSlot domain.Slot
	}{
		{"both current layout", pivotSlot + 100_000, pivotSlot + 10},
		{"old block before pivot", pivotSlot + 100_000, pivotSlot - 1},
		{"both previous layout", pivotSlot - 1, firstSupportedSlot},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, int64(100+i))
			c := f.historical(t, tt.newSlot, tt.oldSlot)
			assert.NoError(t, f.verifier.VerifyHistoricalValidatorProof(ctx, c.block, c.oldBlock, c.witness))
		})
	}
}

func TestVerifyHistoricalValidatorProofFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("new block header mismatch", func(t *testing.T) {
		f := newFixture(t, 200)
		c := f.historical(t, pivotSlot+10, pivotSlot)
		c.block.Header.BodyRoot[0] ^= 1
		err := f.verifier.VerifyHistoricalValidatorProof(ctx, c.block, c.oldBlock, c.witness)
		assert.ErrorIs(t, err, ErrInvalidBlockHeader)
	})

	t.Run("old block unsupported", func(t *testing.T) {
		f := newFixture(t, 201)
		c := f.historical(t, pivotSlot+10, firstSupportedSlot-1)
		err := f.verifier.VerifyHistoricalValidatorProof(ctx, c.block, c.oldBlock, c.witness)
		require.ErrorIs(t, err, ErrUnsupportedSlot)
		var unsupported *UnsupportedSlotError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, firstSupportedSlot-1, unsupported.Slot)
	})

	t.Run("root gindex outside summaries", func(t *testing.T) {
		f := newFixture(t, 202)
		c := f.historical(t, pivotSlot+10, pivotSlot)
		// same position under the previous layout's summaries
		inList := merkle.NewGIndex(2<<38|17<<14|4000, 0)
		var err error
		c.oldBlock.RootGIndex, err = merkle.NewGIndex(giHistSummariesPrev, 0).Concat(inList)
		require.NoError(t, err)

		err = f.verifier.VerifyHistoricalValidatorProof(ctx, c.block, c.oldBlock, c.witness)
		assert.ErrorIs(t, err, ErrInvalidGIndex)
	})

	t.Run("summaries root itself", func(t *testing.T) {
		f := newFixture(t, 203)
		c := f.historical(t, pivotSlot+10, pivotSlot)
		c.oldBlock.RootGIndex = merkle.NewGIndex(giHistSummariesCurr, 0)
		err := f.verifier.VerifyHistoricalValidatorProof(ctx, c.block, c.oldBlock, c.witness)
		assert.ErrorIs(t, err, ErrInvalidGIndex)
	})

	t.Run("old block proof corrupted", func(t *testing.T) {
		f := newFixture(t, 204)
		c := f.historical(t, pivotSlot+10, pivotSlot)
		for i := range c.oldBlock.Proof {
			tampered := c.oldBlock
			tampered.Proof = append([]common.Hash(nil), c.oldBlock.Proof...)
			tampered.Proof[i][31] ^= 1
			err := f.verifier.VerifyHistoricalValidatorProof(ctx, c.block, tampered, c.witness)
			assert.ErrorIs(t, err, ErrProofVerificationFailed, "proof[%d]", i)
		}
	})

	t.Run("old header tampered", func(t *testing.T) {
		f := newFixture(t, 205)
		c := f.historical(t, pivotSlot+10, pivotSlot)
		c.oldBlock.Header.ProposerIndex++
		err := f.verifier.VerifyHistoricalValidatorProof(ctx, c.block, c.oldBlock, c.witness)
		assert.ErrorIs(t, err, ErrProofVerificationFailed)
	})

	t.Run("validator proof corrupted", func(t *testing.T) {
		f := newFixture(t, 206)
		c := f.historical(t, pivotSlot+10, pivotSlot)
		c.witness.ValidatorProof[len(c.witness.ValidatorProof)-1][0] ^= 1
		err := f.verifier.VerifyHistoricalValidatorProof(ctx, c.block, c.oldBlock, c.witness)
		assert.ErrorIs(t, err, ErrProofVerificationFailed)
	})

	t.Run("validator proven under new block only", func(t *testing.T) {
		f := newFixture(t, 207)
		c := f.historical(t, pivotSlot+10, pivotSlot)
		err := f.verifier.VerifyValidatorProof(ctx, c.block, c.witness)
		assert.ErrorIs(t, err, ErrProofVerificationFailed)
	})
}
