package metrics

import (
	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/exitlimit"
)

type eventSink struct {
	next ports.EventSink
}

// EventSink counts events on their way to next.
func EventSink(next ports.EventSink) ports.EventSink {
	return &eventSink{next: next}
}

func (s *eventSink) ValidatorExitRequested(ev domain.ValidatorExitRequestEvent) {
	ExitRequestsDelivered.Inc()
	s.next.ValidatorExitRequested(ev)
}

func (s *eventSink) RequestsDelivered(ev domain.RequestsDeliveredEvent) {
	Deliveries.Inc()
	s.next.RequestsDelivered(ev)
}

func (s *eventSink) LimitsUpdated(limiter string, ev exitlimit.LimitsUpdatedEvent) {
	LimitUpdates.WithLabelValues(limiter).Inc()
	LimitMax.WithLabelValues(limiter).Set(float64(ev.MaxExitRequestsLimit))
	s.next.LimitsUpdated(limiter, ev)
}
