package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"workmesh/native/assets"
)

// Status represents the lifecycle states of a funded escrow.
type Status uint8

const (
	StatusNone Status = iota
	StatusInProgress
	StatusCompleted
	StatusDisputed
	StatusResolved
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusInProgress, StatusCompleted, StatusDisputed, StatusResolved:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusResolved
}

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Outcome tags the arbitrated resolution applied to a disputed escrow.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeRefundClient
	OutcomeSplit
	OutcomePayProvider
)

// Valid reports whether the outcome is one of the three resolution branches.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeRefundClient, OutcomeSplit, OutcomePayProvider:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeRefundClient:
		return "refund_client"
	case OutcomeSplit:
		return "split"
	case OutcomePayProvider:
		return "pay_provider"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// ParseOutcome maps the wire form of a resolution outcome back to its tag.
func ParseOutcome(value string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "refund_client":
		return OutcomeRefundClient, nil
	case "split":
		return OutcomeSplit, nil
	case "pay_provider":
		return OutcomePayProvider, nil
	default:
		return OutcomeNone, fmt.Errorf("escrow: invalid resolution outcome %q", value)
	}
}

// Offer identifies a proposed engagement against a listing. Once accepted the
// record is immutable; cancellation is reachable only strictly before
// acceptance.
type Offer struct {
	ID        uint64
	ListingID uint64
	Proposer  [20]byte
	Amount    *big.Int
	Asset     assets.Asset
	Accepted  bool
	Cancelled bool
}

// Clone returns a deep copy so callers can mutate the copy safely.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Amount != nil {
		clone.Amount = new(big.Int).Set(o.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeOffer validates and normalises an offer definition, returning a
// cloned instance. The original value is not mutated.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("escrow: nil offer")
	}
	clone := o.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("escrow: offer id required")
	}
	if clone.Proposer == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: offer proposer required")
	}
	if err := clone.Asset.Valid(); err != nil {
		return nil, err
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: offer amount must be positive")
	}
	return clone, nil
}

// Escrow tracks one accepted offer from funding through settlement or dispute
// resolution. It is keyed 1:1 by the offer id.
type Escrow struct {
	OfferID           uint64
	Client            [20]byte
	Provider          [20]byte
	Asset             assets.Asset
	Amount            *big.Int
	FeeAmount         *big.Int
	Status            Status
	ClientValidated   bool
	ProviderValidated bool
	Outcome           Outcome
	DisputedBy        [20]byte
	CreatedAt         int64
}

// Clone returns a deep copy of the escrow record.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if e.FeeAmount != nil {
		clone.FeeAmount = new(big.Int).Set(e.FeeAmount)
	} else {
		clone.FeeAmount = big.NewInt(0)
	}
	return &clone
}

// SanitizeEscrow validates the supplied escrow record and returns a cloned
// instance with non-nil amount fields.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil escrow")
	}
	clone := e.Clone()
	if clone.OfferID == 0 {
		return nil, fmt.Errorf("escrow: offer id required")
	}
	if err := clone.Asset.Valid(); err != nil {
		return nil, err
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow: amount must be non-negative")
	}
	if clone.FeeAmount.Sign() < 0 {
		return nil, fmt.Errorf("escrow: fee must be non-negative")
	}
	if clone.FeeAmount.Cmp(clone.Amount) >= 0 && clone.Amount.Sign() > 0 {
		return nil, fmt.Errorf("escrow: fee must be less than amount")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %d", clone.Status)
	}
	return clone, nil
}

// DisputeEntry is one record of the marketplace-wide append-only dispute log,
// keyed by a monotonic sequence number.
type DisputeEntry struct {
	Seq      uint64
	OfferID  uint64
	OpenedBy [20]byte
	OpenedAt int64
}

// Appeal is an informational off-chain-reference entry attached to a disputed
// escrow. Appeals never alter the state machine.
type Appeal struct {
	Seq       uint64
	OfferID   uint64
	FiledBy   [20]byte
	Reference string
	FiledAt   int64
}
