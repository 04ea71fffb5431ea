package escrow

import (
	"encoding/hex"
	"strconv"

	"workmesh/core/events"
	"workmesh/core/types"
)

const (
	EventTypeOfferSubmitted  = "escrow.offer.submitted"
	EventTypeOfferCancelled  = "escrow.offer.cancelled"
	EventTypeEscrowFunded    = "escrow.funded"
	EventTypeEscrowValidated = "escrow.validated"
	EventTypeEscrowCompleted = "escrow.completed"
	EventTypeEscrowDisputed  = "escrow.disputed"
	EventTypeEscrowAppealed  = "escrow.appealed"
	EventTypeEscrowResolved  = "escrow.resolved"
)

// NewOfferSubmittedEvent returns the canonical payload for a recorded offer.
func NewOfferSubmittedEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferSubmitted, o)
}

// NewOfferCancelledEvent returns the canonical payload emitted when an offer
// is withdrawn before acceptance.
func NewOfferCancelledEvent(o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferCancelled, o)
}

// NewFundedEvent returns the canonical payload emitted when an escrow is
// opened and funded.
func NewFundedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowFunded, e) }

// NewValidatedEvent returns the payload emitted on every validation call,
// including repeated calls by the same party.
func NewValidatedEvent(e *Escrow, validator [20]byte) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowValidated, e)
	evt.Attributes["validator"] = hex.EncodeToString(validator[:])
	return evt
}

// NewCompletedEvent returns the payload emitted when dual validation settles
// the escrow.
func NewCompletedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCompleted, e) }

// NewDisputedEvent returns the payload emitted when a participant opens a
// dispute.
func NewDisputedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowDisputed, e)
	evt.Attributes["openedBy"] = hex.EncodeToString(e.DisputedBy[:])
	return evt
}

// NewAppealedEvent returns the payload emitted when an appeal entry is
// attached to a disputed escrow.
func NewAppealedEvent(a *Appeal) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["offerId"] = strconv.FormatUint(a.OfferID, 10)
		attrs["seq"] = strconv.FormatUint(a.Seq, 10)
		attrs["filedBy"] = hex.EncodeToString(a.FiledBy[:])
		attrs["reference"] = a.Reference
	}
	return &types.Event{Type: EventTypeEscrowAppealed, Attributes: attrs}
}

// NewResolvedEvent returns the payload emitted when an arbitrated outcome is
// applied to a disputed escrow.
func NewResolvedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowResolved, e)
	evt.Attributes["outcome"] = e.Outcome.String()
	return evt
}

func newOfferEvent(eventType string, o *Offer) *types.Event {
	attrs := make(map[string]string)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerId"] = strconv.FormatUint(o.ID, 10)
	attrs["listingId"] = strconv.FormatUint(o.ListingID, 10)
	attrs["proposer"] = hex.EncodeToString(o.Proposer[:])
	attrs["asset"] = o.Asset.String()
	attrs["amount"] = events.FormatAmount(o.Amount)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerId"] = strconv.FormatUint(e.OfferID, 10)
	attrs["client"] = hex.EncodeToString(e.Client[:])
	attrs["provider"] = hex.EncodeToString(e.Provider[:])
	attrs["asset"] = e.Asset.String()
	attrs["amount"] = events.FormatAmount(e.Amount)
	attrs["fee"] = events.FormatAmount(e.FeeAmount)
	attrs["status"] = e.Status.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
