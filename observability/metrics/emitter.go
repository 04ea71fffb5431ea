package metrics

import (
	"workmesh/core/events"
	"workmesh/core/types"
	"workmesh/native/buyback"
	"workmesh/native/escrow"
	"workmesh/native/mission"
)

type attributeCarrier interface {
	Event() *types.Event
}

// Emitter translates marketplace events into Prometheus counter updates. It
// is attached alongside other subscribers via events.Multi.
type Emitter struct {
	metrics *MarketMetrics
}

// NewEmitter returns an emitter recording onto the process-wide marketplace
// metrics.
func NewEmitter() *Emitter {
	return &Emitter{metrics: Market()}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || e.metrics == nil || evt == nil {
		return
	}
	attrs := map[string]string{}
	if carrier, ok := evt.(attributeCarrier); ok {
		if payload := carrier.Event(); payload != nil && payload.Attributes != nil {
			attrs = payload.Attributes
		}
	}
	switch evt.EventType() {
	case escrow.EventTypeOfferSubmitted:
		e.metrics.ObserveOfferSubmitted()
	case escrow.EventTypeOfferCancelled:
		e.metrics.ObserveOfferCancelled()
	case escrow.EventTypeEscrowFunded:
		e.metrics.ObserveEscrowOpened(attrs["asset"])
	case escrow.EventTypeEscrowCompleted:
		e.metrics.ObserveEscrowSettled(attrs["asset"])
	case escrow.EventTypeEscrowDisputed:
		e.metrics.ObserveDisputeOpened(attrs["asset"])
	case escrow.EventTypeEscrowResolved:
		e.metrics.ObserveDisputeResolved(attrs["outcome"])
	case buyback.TypeBuybackExecuted:
		e.metrics.ObserveBuybackRun(attrs["result"])
	case mission.TypeMissionRecorded:
		e.metrics.ObserveMissionRecorded(attrs["disputed"])
	}
}
