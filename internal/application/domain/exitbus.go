package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ExitRequest is one decoded entry of an exit requests batch.
type ExitRequest struct {
	ModuleID       ModuleID       `json:"moduleId"`
	NodeOperatorID NodeOperatorID `json:"nodeOperatorId"`
	ValidatorIndex ValidatorIndex `json:"validatorIndex"`
	Pubkey         BLSPubkey      `json:"pubkey"`
}

// ConsolidationRequest moves the balance of SourcePubkey onto TargetPubkey.
type ConsolidationRequest struct {
	ModuleID       ModuleID       `json:"moduleId"`
	NodeOperatorID NodeOperatorID `json:"nodeOperatorId"`
	SourcePubkey   BLSPubkey      `json:"sourcePubkey"`
	TargetPubkey   BLSPubkey      `json:"targetPubkey"`
}

// ExitRequestsData is a packed batch together with its encoding format.
type ExitRequestsData struct {
	Data       hexutil.Bytes `json:"data"`
	DataFormat uint64        `json:"dataFormat"`
}

// DeliveryRecord marks how far into a batch delivery got at Timestamp.
type DeliveryRecord struct {
	Timestamp             uint64 `json:"timestamp"`
	LastDeliveredKeyIndex uint64 `json:"lastDeliveredKeyIndex"`
}

// RequestStatus is the bookkeeping kept per submitted batch hash.
type RequestStatus struct {
	Hash            common.Hash      `json:"hash"`
	SubmittedAt     uint64           `json:"submittedAt"`
	TotalItemsCount uint64           `json:"totalItemsCount"`
	DeliveryHistory []DeliveryRecord `json:"deliveryHistory"`
}

// DeliveredCount is the number of entries delivered so far.
func (s *RequestStatus) DeliveredCount() uint64 {
	if len(s.DeliveryHistory) == 0 {
		return 0
	}
	return s.DeliveryHistory[len(s.DeliveryHistory)-1].LastDeliveredKeyIndex + 1
}

// Complete reports whether every entry of the batch has been delivered.
func (s *RequestStatus) Complete() bool {
	return len(s.DeliveryHistory) > 0 && s.DeliveredCount() >= s.TotalItemsCount
}

// ValidatorExitRequestEvent is emitted once per delivered exit request entry.
type ValidatorExitRequestEvent struct {
	ModuleID       ModuleID       `json:"moduleId"`
	NodeOperatorID NodeOperatorID `json:"nodeOperatorId"`
	ValidatorIndex ValidatorIndex `json:"validatorIndex"`
	Pubkey         BLSPubkey      `json:"pubkey"`
	Timestamp      uint64         `json:"timestamp"`
}

// RequestsDeliveredEvent closes one delivery call for a batch.
type RequestsDeliveredEvent struct {
	Hash      common.Hash `json:"hash"`
	From      uint64      `json:"from"`
	Count     uint64      `json:"count"`
	Timestamp uint64      `json:"timestamp"`
}

// WithdrawalRequest asks the execution layer to withdraw Amount gwei from the
// validator. A zero amount is a full exit.
type WithdrawalRequest struct {
	Pubkey BLSPubkey `json:"pubkey"`
	Amount Gwei      `json:"amount"`
}

// PendingBatch is submitted batch data whose delivery stopped at the limit.
type PendingBatch struct {
	Hash    common.Hash      `json:"hash"`
	Request ExitRequestsData `json:"request"`
}
