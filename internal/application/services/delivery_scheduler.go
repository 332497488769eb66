package services

import (
	"context"
	"errors"
	"time"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/logger"
)

// DeliveryScheduler retries delivery of pending batches as the exit bus limiter
// refills.
type DeliveryScheduler struct {
	ExitBus       *ExitBus
	BeaconAdapter ports.BeaconChainAdapter // optional
	PollInterval  time.Duration

	lastHeadSlot domain.Slot
	log          *logger.Logger
}

// NewDeliveryScheduler constructs a DeliveryScheduler with dependencies injected.
// With a beacon adapter, a tick only does work once the head has moved.
func NewDeliveryScheduler(
	exitBus *ExitBus,
	beacon ports.BeaconChainAdapter,
	pollInterval time.Duration,
) *DeliveryScheduler {
	return &DeliveryScheduler{
		ExitBus:       exitBus,
		BeaconAdapter: beacon,
		PollInterval:  pollInterval,
		log:           logger.With("scheduler"),
	}
}

// Run starts the periodic delivery loop. If at interval, ticker ticks but the
// previous round has not ended, we won't start a new one, we will just wait for
// the next tick.
func (s *DeliveryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.headAdvanced(ctx) {
				s.DeliverPending(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *DeliveryScheduler) headAdvanced(ctx context.Context) bool {
	if s.BeaconAdapter == nil {
		return true
	}
	head, err := s.BeaconAdapter.GetHeadSlot(ctx)
	if err != nil {
		s.log.Error("Error fetching head slot: %v", err)
		return false
	}
	if head == s.lastHeadSlot {
		s.log.Debug("Head slot %d unchanged, skipping delivery round.", head)
		return false
	}
	s.lastHeadSlot = head
	return true
}

// DeliverPending makes one delivery attempt per pending batch and returns the
// number of entries delivered.
func (s *DeliveryScheduler) DeliverPending(ctx context.Context) uint64 {
	batches, err := s.ExitBus.PendingBatches()
	if err != nil {
		s.log.Error("Error listing pending batches: %v", err)
		return 0
	}
	if len(batches) == 0 {
		s.log.Debug("No pending batches.")
		return 0
	}

	var delivered uint64
	for _, batch := range batches {
		if ctx.Err() != nil {
			return delivered
		}
		res, err := s.ExitBus.SubmitExitRequestsData(ctx, batch.Request)
		switch {
		case err == nil:
			delivered += res.Count
			if res.Complete() {
				s.log.Info("Batch %s fully delivered (%d requests)", batch.Hash, res.Total)
			} else {
				s.log.Info("Batch %s: %d of %d requests delivered", batch.Hash, res.From+res.Count, res.Total)
			}
		case errors.Is(err, ErrExitRequestsLimit):
			s.log.Debug("Batch %s waiting for limit: %v", batch.Hash, err)
			// nothing left for the remaining batches either
			return delivered
		case errors.Is(err, ErrRequestsAlreadyDelivered), errors.Is(err, ErrExitHashNotSubmitted):
			s.log.Warn("Dropping pending batch %s: %v", batch.Hash, err)
			if err := s.ExitBus.DropPending(batch.Hash); err != nil {
				s.log.Error("Error dropping pending batch %s: %v", batch.Hash, err)
			}
		default:
			s.log.Error("Error delivering batch %s: %v", batch.Hash, err)
		}
	}
	return delivered
}
