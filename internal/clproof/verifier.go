// Package clproof authenticates consensus-layer data against beacon block roots
// published by the beacon roots oracle.
//
// A call first fetches the trusted root for the caller's timestamp and checks the
// supplied header against it. Everything else (validators, historical headers) is
// then proven by Merkle branches under that header's state root. Generalized
// indices depend on the beacon state layout, which changed at a hard fork: slots
// below the pivot use the previous layout, the rest use the current one.
package clproof

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/merkle"
)

var (
	ErrInvalidPivotSlot        = errors.New("clproof: first supported slot is after pivot slot")
	ErrZeroGIndex              = errors.New("clproof: generalized index is not configured")
	ErrUnsupportedSlot         = errors.New("clproof: unsupported slot")
	ErrInvalidBlockHeader      = errors.New("clproof: block header does not match beacon block root")
	ErrInvalidGIndex           = errors.New("clproof: generalized index is outside historical summaries")
	ErrProofVerificationFailed = errors.New("clproof: proof verification failed")
)

// UnsupportedSlotError reports a slot older than the first supported one.
type UnsupportedSlotError struct {
	Slot           domain.Slot
	FirstSupported domain.Slot
}

func (e *UnsupportedSlotError) Error() string {
	return fmt.Sprintf("clproof: unsupported slot %d, first supported slot is %d", e.Slot, e.FirstSupported)
}

func (e *UnsupportedSlotError) Is(target error) bool { return target == ErrUnsupportedSlot }

// Config holds the immutable tree layout parameters.
type Config struct {
	GIFirstValidatorPrev      merkle.GIndex
	GIFirstValidatorCurr      merkle.GIndex
	GIHistoricalSummariesPrev merkle.GIndex
	GIHistoricalSummariesCurr merkle.GIndex
	FirstSupportedSlot        domain.Slot
	PivotSlot                 domain.Slot
}

func (c Config) validate() error {
	if c.FirstSupportedSlot > c.PivotSlot {
		return fmt.Errorf("%w: %d > %d", ErrInvalidPivotSlot, c.FirstSupportedSlot, c.PivotSlot)
	}
	for name, g := range map[string]merkle.GIndex{
		"first validator (prev)":      c.GIFirstValidatorPrev,
		"first validator (curr)":      c.GIFirstValidatorCurr,
		"historical summaries (prev)": c.GIHistoricalSummariesPrev,
		"historical summaries (curr)": c.GIHistoricalSummariesCurr,
	} {
		if g.IsZero() {
			return fmt.Errorf("%w: %s", ErrZeroGIndex, name)
		}
	}
	return nil
}

// Verifier is stateless apart from its configuration and is safe for concurrent use.
type Verifier struct {
	cfg    Config
	oracle ports.BeaconBlockRootOracle
}

// New validates cfg and builds a verifier reading roots from oracle.
func New(cfg Config, oracle ports.BeaconBlockRootOracle) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Verifier{cfg: cfg, oracle: oracle}, nil
}

// SelectGIndices returns the first-validator and historical-summaries indices of
// the state layout in force at slot.
func (v *Verifier) SelectGIndices(slot domain.Slot) (firstValidator, historicalSummaries merkle.GIndex, err error) {
	if slot < v.cfg.FirstSupportedSlot {
		return merkle.GIndex{}, merkle.GIndex{}, &UnsupportedSlotError{Slot: slot, FirstSupported: v.cfg.FirstSupportedSlot}
	}
	if slot < v.cfg.PivotSlot {
		return v.cfg.GIFirstValidatorPrev, v.cfg.GIHistoricalSummariesPrev, nil
	}
	return v.cfg.GIFirstValidatorCurr, v.cfg.GIHistoricalSummariesCurr, nil
}

// VerifyValidatorProof proves witness under the state root of beaconBlock.
func (v *Verifier) VerifyValidatorProof(
	ctx context.Context,
	beaconBlock domain.ProvableBeaconBlockHeader,
	witness domain.ValidatorWitness,
) error {
	if err := v.authenticateHeader(ctx, beaconBlock); err != nil {
		return err
	}
	return v.verifyValidator(beaconBlock.Header, witness)
}

// VerifyHistoricalValidatorProof proves oldBlock under the historical summaries
// of beaconBlock's state, then witness under oldBlock's state root.
func (v *Verifier) VerifyHistoricalValidatorProof(
	ctx context.Context,
	beaconBlock domain.ProvableBeaconBlockHeader,
	oldBlock domain.HistoricalHeaderWitness,
	witness domain.ValidatorWitness,
) error {
	if err := v.authenticateHeader(ctx, beaconBlock); err != nil {
		return err
	}

	_, gIHistoricalSummaries, err := v.SelectGIndices(beaconBlock.Header.Slot)
	if err != nil {
		return err
	}
	if oldBlock.Header.Slot < v.cfg.FirstSupportedSlot {
		return &UnsupportedSlotError{Slot: oldBlock.Header.Slot, FirstSupported: v.cfg.FirstSupportedSlot}
	}
	if !gIHistoricalSummaries.IsParentOf(oldBlock.RootGIndex) {
		return fmt.Errorf("%w: %s not under %s", ErrInvalidGIndex, oldBlock.RootGIndex, gIHistoricalSummaries)
	}

	oldRoot, err := HeaderRoot(oldBlock.Header)
	if err != nil {
		return err
	}
	if err := verifyProof(oldBlock.Proof, beaconBlock.Header.StateRoot, oldRoot, oldBlock.RootGIndex); err != nil {
		return fmt.Errorf("historical header at slot %d: %w", oldBlock.Header.Slot, err)
	}

	return v.verifyValidator(oldBlock.Header, witness)
}

func (v *Verifier) authenticateHeader(ctx context.Context, beaconBlock domain.ProvableBeaconBlockHeader) error {
	expected, err := v.fetchRoot(ctx, beaconBlock.RootsTimestamp)
	if err != nil {
		return err
	}
	root, err := HeaderRoot(beaconBlock.Header)
	if err != nil {
		return err
	}
	if root != expected {
		return fmt.Errorf("%w: slot %d root %s, expected %s", ErrInvalidBlockHeader, beaconBlock.Header.Slot, root, expected)
	}
	return nil
}

// fetchRoot asks the oracle for the root at timestamp. Any oracle failure other
// than the caller's own cancellation is a RootNotFoundError.
func (v *Verifier) fetchRoot(ctx context.Context, timestamp uint64) (common.Hash, error) {
	root, err := v.oracle.GetBeaconBlockRoot(ctx, timestamp)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return common.Hash{}, ctxErr
		}
		var notFound *domain.RootNotFoundError
		if errors.As(err, &notFound) {
			return common.Hash{}, err
		}
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp, Cause: err}
	}
	if root == (common.Hash{}) {
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp}
	}
	return root, nil
}

func (v *Verifier) verifyValidator(header domain.BeaconBlockHeader, witness domain.ValidatorWitness) error {
	gIFirstValidator, _, err := v.SelectGIndices(header.Slot)
	if err != nil {
		return err
	}
	gIndex, err := gIFirstValidator.Shr(uint64(witness.ValidatorIndex))
	if err != nil {
		return fmt.Errorf("validator %d: %w", witness.ValidatorIndex, err)
	}

	leaf, err := ValidatorRoot(witness)
	if err != nil {
		return err
	}
	if err := verifyProof(witness.ValidatorProof, header.StateRoot, leaf, gIndex); err != nil {
		return fmt.Errorf("validator %d at slot %d: %w", witness.ValidatorIndex, header.Slot, err)
	}
	return nil
}

func verifyProof(proof []common.Hash, root, leaf common.Hash, gIndex merkle.GIndex) error {
	ok, err := merkle.IsValidProof(proof, root, leaf, gIndex)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProofVerificationFailed
	}
	return nil
}
