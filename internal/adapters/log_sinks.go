package adapters

import (
	"context"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/exitlimit"
	"github.com/Marketen/exitbus-verifier/internal/logger"
)

var (
	_ ports.EventSink                = (*LogEventSink)(nil)
	_ ports.WithdrawalRequestSink    = (*LogRequestSink)(nil)
	_ ports.ConsolidationRequestSink = (*LogRequestSink)(nil)
)

// LogEventSink writes every emitted event to the log.
type LogEventSink struct {
	log *logger.Logger
}

func NewLogEventSink() *LogEventSink {
	return &LogEventSink{log: logger.With("events")}
}

func (s *LogEventSink) ValidatorExitRequested(ev domain.ValidatorExitRequestEvent) {
	s.log.Info("ValidatorExitRequest module=%d operator=%d validator=%d pubkey=%s ts=%d",
		ev.ModuleID, ev.NodeOperatorID, ev.ValidatorIndex, ev.Pubkey, ev.Timestamp)
}

func (s *LogEventSink) RequestsDelivered(ev domain.RequestsDeliveredEvent) {
	s.log.Info("ExitDataProcessing hash=%s from=%d count=%d ts=%d", ev.Hash.Hex(), ev.From, ev.Count, ev.Timestamp)
}

func (s *LogEventSink) LimitsUpdated(limiter string, ev exitlimit.LimitsUpdatedEvent) {
	s.log.Info("ExitRequestsLimitSet limiter=%s max=%d perFrame=%d frame=%ds",
		limiter, ev.MaxExitRequestsLimit, ev.ExitsPerFrame, ev.FrameDurationSeconds)
}

// LogRequestSink stands in for the execution layer request contracts: requests
// are logged and accepted.
type LogRequestSink struct {
	log *logger.Logger
}

func NewLogRequestSink() *LogRequestSink {
	return &LogRequestSink{log: logger.With("el-requests")}
}

func (s *LogRequestSink) AddWithdrawalRequests(ctx context.Context, reqs []domain.WithdrawalRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range reqs {
		s.log.Info("Withdrawal request pubkey=%s amount=%d", r.Pubkey, r.Amount)
	}
	return nil
}

func (s *LogRequestSink) AddConsolidationRequests(ctx context.Context, reqs []domain.ConsolidationRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range reqs {
		s.log.Info("Consolidation request module=%d operator=%d source=%s target=%s",
			r.ModuleID, r.NodeOperatorID, r.SourcePubkey, r.TargetPubkey)
	}
	return nil
}
