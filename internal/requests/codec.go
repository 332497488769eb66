// Package requests packs and unpacks exit and consolidation request batches.
//
// An exit request entry is 64 bytes, big-endian and without delimiters:
//
//	moduleId (3) | nodeOperatorId (5) | validatorIndex (8) | pubkey (48)
//
// A consolidation entry drops the validator index and carries two keys:
//
//	moduleId (3) | nodeOperatorId (5) | sourcePubkey (48) | targetPubkey (48)
package requests

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
)

const (
	// DataFormatList is the only supported batch encoding: packed fixed-width entries.
	DataFormatList = 1

	ExitRequestLength          = 3 + 5 + 8 + domain.PubkeyLength
	ConsolidationRequestLength = 3 + 5 + 2*domain.PubkeyLength

	maxModuleID       = 1<<24 - 1
	maxNodeOperatorID = 1<<40 - 1
)

var (
	ErrUnsupportedRequestsDataFormat = errors.New("requests: unsupported requests data format")
	ErrInvalidRequestsDataLength     = errors.New("requests: invalid requests data length")
	ErrInvalidRequestsDataSortOrder  = errors.New("requests: requests data is not sorted")
	ErrInvalidModuleID               = errors.New("requests: invalid module id")
	ErrInvalidNodeOperatorID         = errors.New("requests: node operator id does not fit in 5 bytes")
	ErrKeyIndexOutOfRange            = errors.New("requests: key index out of range")
	ErrTooManyExitRequestsInReport   = errors.New("requests: too many exit requests in report")
	ErrMalformedPubkeysArray         = errors.New("requests: malformed pubkeys array")
)

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putUint40(b []byte, v uint64) {
	for i := 4; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func uint40(b []byte) uint64 {
	var v uint64
	for i := 0; i < 5; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func checkIDs(moduleID domain.ModuleID, nodeOperatorID domain.NodeOperatorID) error {
	if moduleID == 0 || moduleID > maxModuleID {
		return fmt.Errorf("%w: %d", ErrInvalidModuleID, moduleID)
	}
	if nodeOperatorID > maxNodeOperatorID {
		return fmt.Errorf("%w: %d", ErrInvalidNodeOperatorID, nodeOperatorID)
	}
	return nil
}

// EncodeExitRequests packs entries in the list data format.
func EncodeExitRequests(reqs []domain.ExitRequest) ([]byte, error) {
	out := make([]byte, len(reqs)*ExitRequestLength)
	for i, r := range reqs {
		if err := checkIDs(r.ModuleID, r.NodeOperatorID); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		b := out[i*ExitRequestLength:]
		putUint24(b[0:3], uint32(r.ModuleID))
		putUint40(b[3:8], uint64(r.NodeOperatorID))
		binary.BigEndian.PutUint64(b[8:16], uint64(r.ValidatorIndex))
		copy(b[16:64], r.Pubkey[:])
	}
	return out, nil
}

func decodeExitRequest(b []byte) domain.ExitRequest {
	var r domain.ExitRequest
	r.ModuleID = domain.ModuleID(uint24(b[0:3]))
	r.NodeOperatorID = domain.NodeOperatorID(uint40(b[3:8]))
	r.ValidatorIndex = domain.ValidatorIndex(binary.BigEndian.Uint64(b[8:16]))
	copy(r.Pubkey[:], b[16:64])
	return r
}

// CountExitRequests validates the data length and returns the number of entries.
func CountExitRequests(data []byte, format uint64) (uint64, error) {
	if format != DataFormatList {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedRequestsDataFormat, format)
	}
	if len(data) == 0 || len(data)%ExitRequestLength != 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRequestsDataLength, len(data))
	}
	return uint64(len(data) / ExitRequestLength), nil
}

// DecodeExitRequests unpacks every entry of a batch.
func DecodeExitRequests(data []byte, format uint64) ([]domain.ExitRequest, error) {
	count, err := CountExitRequests(data, format)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ExitRequest, count)
	for i := range out {
		out[i] = decodeExitRequest(data[i*ExitRequestLength:])
	}
	return out, nil
}

// UnpackExitRequest returns the entry at index without decoding the whole batch.
func UnpackExitRequest(data []byte, format uint64, index uint64) (domain.ExitRequest, error) {
	count, err := CountExitRequests(data, format)
	if err != nil {
		return domain.ExitRequest{}, err
	}
	if index >= count {
		return domain.ExitRequest{}, fmt.Errorf("%w: %d of %d", ErrKeyIndexOutOfRange, index, count)
	}
	return decodeExitRequest(data[index*ExitRequestLength:]), nil
}

// ValidateExitRequests checks a decoded batch: non-zero module ids and entries
// strictly ascending by (moduleId, nodeOperatorId, validatorIndex). A zero
// maxPerReport disables the size check.
func ValidateExitRequests(reqs []domain.ExitRequest, maxPerReport uint64) error {
	if maxPerReport != 0 && uint64(len(reqs)) > maxPerReport {
		return fmt.Errorf("%w: %d > %d", ErrTooManyExitRequestsInReport, len(reqs), maxPerReport)
	}
	for i, r := range reqs {
		if r.ModuleID == 0 {
			return fmt.Errorf("entry %d: %w: 0", i, ErrInvalidModuleID)
		}
		if i > 0 && !exitRequestLess(reqs[i-1], r) {
			return fmt.Errorf("%w: entry %d", ErrInvalidRequestsDataSortOrder, i)
		}
	}
	return nil
}

func exitRequestLess(a, b domain.ExitRequest) bool {
	if a.ModuleID != b.ModuleID {
		return a.ModuleID < b.ModuleID
	}
	if a.NodeOperatorID != b.NodeOperatorID {
		return a.NodeOperatorID < b.NodeOperatorID
	}
	return a.ValidatorIndex < b.ValidatorIndex
}

// EncodeConsolidationRequests packs consolidation entries.
func EncodeConsolidationRequests(reqs []domain.ConsolidationRequest) ([]byte, error) {
	out := make([]byte, len(reqs)*ConsolidationRequestLength)
	for i, r := range reqs {
		if err := checkIDs(r.ModuleID, r.NodeOperatorID); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		b := out[i*ConsolidationRequestLength:]
		putUint24(b[0:3], uint32(r.ModuleID))
		putUint40(b[3:8], uint64(r.NodeOperatorID))
		copy(b[8:56], r.SourcePubkey[:])
		copy(b[56:104], r.TargetPubkey[:])
	}
	return out, nil
}

// DecodeConsolidationRequests unpacks a consolidation batch.
func DecodeConsolidationRequests(data []byte) ([]domain.ConsolidationRequest, error) {
	if len(data) == 0 || len(data)%ConsolidationRequestLength != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRequestsDataLength, len(data))
	}
	out := make([]domain.ConsolidationRequest, len(data)/ConsolidationRequestLength)
	for i := range out {
		b := data[i*ConsolidationRequestLength:]
		out[i].ModuleID = domain.ModuleID(uint24(b[0:3]))
		out[i].NodeOperatorID = domain.NodeOperatorID(uint40(b[3:8]))
		copy(out[i].SourcePubkey[:], b[8:56])
		copy(out[i].TargetPubkey[:], b[56:104])
		if out[i].ModuleID == 0 {
			return nil, fmt.Errorf("entry %d: %w: 0", i, ErrInvalidModuleID)
		}
	}
	return out, nil
}

// SplitPubkeys cuts a concatenated pubkey array into keys.
func SplitPubkeys(data []byte) ([]domain.BLSPubkey, error) {
	if len(data) == 0 || len(data)%domain.PubkeyLength != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrMalformedPubkeysArray, len(data))
	}
	out := make([]domain.BLSPubkey, len(data)/domain.PubkeyLength)
	for i := range out {
		copy(out[i][:], data[i*domain.PubkeyLength:])
	}
	return out, nil
}
