package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"workmesh/core/events"
	"workmesh/core/types"
	"workmesh/native/assets"
	"workmesh/native/buyback"
	"workmesh/native/common"
	"workmesh/native/fees"
	"workmesh/native/mission"
)

var (
	errNilState       = errors.New("escrow engine: state not configured")
	errNilLedger      = errors.New("escrow engine: asset ledger not configured")
	errNilTreasury    = errors.New("escrow engine: fee treasury not configured")
	errOfferNotFound  = errors.New("escrow engine: offer not found")
	errEscrowNotFound = errors.New("escrow engine: escrow not found")
	errUnauthorized   = errors.New("escrow engine: unauthorized caller")
)

// MaxLogPage bounds paginated reads of the dispute log and appeal lists.
const MaxLogPage = 100

const (
	disputeSeqName  = "escrow.disputes"
	feeConfigParam  = "escrow.fees"
	buybackVaultTag = "buyback.vault"
	escrowVaultTag  = "escrow.vault"
)

type engineState interface {
	OfferPut(*Offer) error
	OfferGet(id uint64) (*Offer, bool, error)
	EscrowPut(*Escrow) error
	EscrowGet(offerID uint64) (*Escrow, bool, error)
	EscrowCredit(offerID uint64, asset string, amount *big.Int) error
	EscrowDebit(offerID uint64, asset string, amount *big.Int) error
	VaultAddress(tag string, asset string) ([20]byte, error)
	NextSequence(name string) (uint64, error)
	DisputeLogPut(*DisputeEntry) error
	DisputeLogGet(seq uint64) (*DisputeEntry, bool, error)
	AppealPut(*Appeal) error
	AppealGet(offerID, seq uint64) (*Appeal, bool, error)
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// ReputationHook is the badge/reputation collaborator notified once per
// participant on every terminal transition. The core depends on no data from
// it; a nil hook is skipped.
type ReputationHook interface {
	OnMission(participant [20]byte, disputed bool)
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine owns the offer and escrow records of one marketplace instance and
// drives the funded → settled/disputed/resolved lifecycle. The execution
// environment runs one state-changing operation at a time to completion, so
// the engine carries no locks; every entry point persists the new status
// before performing external value transfers, which makes re-entrant
// invocation observe the already-updated status and fail its precondition.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	ledger     *assets.Ledger
	buyback    *buyback.Engine
	missions   *mission.Recorder
	reputation ReputationHook
	pauses     common.PauseView
	feeConfig  fees.Config
	owner      [20]byte
	arbitrator [20]byte
	treasury   [20]byte
	nowFn      func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Collaborators are
// attached via the Set methods before first use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the asset ledger used for value transfers.
func (e *Engine) SetLedger(ledger *assets.Ledger) { e.ledger = ledger }

// SetBuyback attaches the buyback adapter fee burn portions are routed
// through. A nil adapter leaves the burn portion on the direct treasury
// remittance path.
func (e *Engine) SetBuyback(adapter *buyback.Engine) { e.buyback = adapter }

// SetMissions attaches the mission recorder invoked on terminal transitions.
func (e *Engine) SetMissions(recorder *mission.Recorder) { e.missions = recorder }

// SetReputationHook attaches the fire-and-forget badge collaborator.
func (e *Engine) SetReputationHook(hook ReputationHook) { e.reputation = hook }

// SetPauses configures the system-wide pause switch consulted by fund-moving
// operations.
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }

// SetOwner configures the address allowed to change fee rates.
func (e *Engine) SetOwner(addr [20]byte) { e.owner = addr }

// SetArbitrator configures the address allowed to resolve disputes.
func (e *Engine) SetArbitrator(addr [20]byte) { e.arbitrator = addr }

// SetFeeTreasury configures the address receiving treasury fee portions.
func (e *Engine) SetFeeTreasury(addr [20]byte) { e.treasury = addr }

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetFeeConfig replaces the fee rates. Only the configured owner may change
// them; the new rates are persisted so a restarted instance keeps them.
func (e *Engine) SetFeeConfig(caller [20]byte, cfg fees.Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.owner == ([20]byte{}) || caller != e.owner {
		return fmt.Errorf("%w: fee configuration requires owner", errUnauthorized)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	encoded := []byte(fmt.Sprintf("%d/%d", cfg.AssetFeeBps, cfg.TokenFeeBps))
	if err := e.state.ParamStoreSet(feeConfigParam, encoded); err != nil {
		return err
	}
	e.feeConfig = cfg
	return nil
}

// LoadFeeConfig restores persisted fee rates, falling back to the supplied
// defaults when none are stored.
func (e *Engine) LoadFeeConfig(defaults fees.Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := defaults.Validate(); err != nil {
		return err
	}
	e.feeConfig = defaults
	raw, ok, err := e.state.ParamStoreGet(feeConfigParam)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var stored fees.Config
	if _, err := fmt.Sscanf(strings.TrimSpace(string(raw)), "%d/%d", &stored.AssetFeeBps, &stored.TokenFeeBps); err != nil {
		return fmt.Errorf("escrow engine: decode fee config: %w", err)
	}
	if err := stored.Validate(); err != nil {
		return err
	}
	e.feeConfig = stored
	return nil
}

// FeeConfig returns the active fee rates.
func (e *Engine) FeeConfig() fees.Config { return e.feeConfig }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) checkCore() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

func (e *Engine) loadEscrow(offerID uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok, err := e.state.EscrowGet(offerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errEscrowNotFound
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.EscrowPut(esc)
}

func (e *Engine) escrowVault(asset assets.Asset) ([20]byte, error) {
	return e.state.VaultAddress(escrowVaultTag, asset.StateKey())
}

// SubmitOffer records a proposed engagement so it can later be accepted into
// an escrow or cancelled by its proposer.
func (e *Engine) SubmitOffer(offer *Offer) (*Offer, error) {
	if err := e.checkCore(); err != nil {
		return nil, err
	}
	sanitized, err := SanitizeOffer(offer)
	if err != nil {
		return nil, err
	}
	if sanitized.Accepted || sanitized.Cancelled {
		return nil, fmt.Errorf("escrow: offer lifecycle flags must be unset on submission")
	}
	if _, ok, err := e.state.OfferGet(sanitized.ID); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("escrow: offer %d already exists", sanitized.ID)
	}
	if err := e.state.OfferPut(sanitized); err != nil {
		return nil, err
	}
	e.emit(NewOfferSubmittedEvent(sanitized))
	return sanitized.Clone(), nil
}

// CancelOffer withdraws an offer strictly before acceptance. Only the
// proposer may cancel. Repeating the call on an already cancelled offer is a
// harmless no-op.
func (e *Engine) CancelOffer(offerID uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	offer, ok, err := e.state.OfferGet(offerID)
	if err != nil {
		return err
	}
	if !ok {
		return errOfferNotFound
	}
	if offer.Cancelled {
		return nil
	}
	if offer.Accepted {
		return fmt.Errorf("escrow: offer %d already accepted", offerID)
	}
	if caller != offer.Proposer {
		return fmt.Errorf("%w: only the proposer may cancel", errUnauthorized)
	}
	offer.Cancelled = true
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(offer))
	return nil
}

// OpenEscrow accepts an offer and opens the funded escrow for it: the gross
// amount is pulled from the client, the fee is computed from the rate
// selected by payment-asset identity, and the escrow enters IN_PROGRESS.
// nativeValue is the native-asset value attached to the call and must match
// the offer amount exactly for native-asset offers (and be absent otherwise).
func (e *Engine) OpenEscrow(offerID uint64, client, provider [20]byte, nativeValue *big.Int) (*Escrow, error) {
	if err := e.checkCore(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return nil, err
	}
	offer, ok, err := e.state.OfferGet(offerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errOfferNotFound
	}
	if offer.Cancelled {
		return nil, fmt.Errorf("escrow: offer %d is cancelled", offerID)
	}
	if offer.Accepted {
		return nil, fmt.Errorf("escrow: offer %d already accepted", offerID)
	}
	if _, ok, err := e.state.EscrowGet(offerID); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("escrow: escrow already exists for offer %d", offerID)
	}
	if client == ([20]byte{}) || provider == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: client and provider required")
	}
	if client == provider {
		return nil, fmt.Errorf("escrow: client and provider must differ")
	}
	if offer.Proposer != client && offer.Proposer != provider {
		return nil, fmt.Errorf("escrow: offer proposer is not a participant")
	}
	amount := new(big.Int).Set(offer.Amount)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow: amount must be positive")
	}
	fee := e.feeConfig.FeeFor(offer.Asset, amount)
	if fee.Cmp(amount) >= 0 {
		return nil, fmt.Errorf("escrow: fee %s must be less than amount %s", fee, amount)
	}
	if offer.Asset.IsNative() {
		if nativeValue == nil || nativeValue.Cmp(amount) != 0 {
			return nil, fmt.Errorf("escrow: attached value must equal offer amount")
		}
	} else if nativeValue != nil && nativeValue.Sign() != 0 {
		return nil, fmt.Errorf("escrow: token offers carry no native value")
	}
	vault, err := e.escrowVault(offer.Asset)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Pull(client, vault, offer.Asset, amount); err != nil {
		return nil, err
	}
	if err := e.state.EscrowCredit(offerID, offer.Asset.StateKey(), amount); err != nil {
		return nil, err
	}
	offer.Accepted = true
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	esc := &Escrow{
		OfferID:   offerID,
		Client:    client,
		Provider:  provider,
		Asset:     offer.Asset,
		Amount:    amount,
		FeeAmount: fee,
		Status:    StatusInProgress,
		CreatedAt: e.now(),
	}
	if err := e.storeEscrow(esc); err != nil {
		return nil, err
	}
	e.emit(NewFundedEvent(esc))
	return esc.Clone(), nil
}

// Validate records the caller's completion confirmation. Repeated calls by
// the same party leave the flags unchanged but still emit the status event.
// When both parties have validated, settlement runs inline and atomically.
func (e *Engine) Validate(offerID uint64, caller [20]byte) error {
	if err := e.checkCore(); err != nil {
		return err
	}
	esc, err := e.loadEscrow(offerID)
	if err != nil {
		return err
	}
	if esc.Status != StatusInProgress {
		return fmt.Errorf("escrow: cannot validate in status %s", esc.Status)
	}
	switch caller {
	case esc.Client:
		esc.ClientValidated = true
	case esc.Provider:
		esc.ProviderValidated = true
	default:
		return fmt.Errorf("%w: only the client or provider may validate", errUnauthorized)
	}
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewValidatedEvent(esc, caller))
	if esc.ClientValidated && esc.ProviderValidated {
		return e.complete(esc)
	}
	return nil
}

// complete settles a dually-validated escrow: the status flips to COMPLETED
// before any value leaves the vault, the provider receives amount-fee, and
// the fee is routed through the split/buyback path.
func (e *Engine) complete(esc *Escrow) error {
	if err := e.ensureTreasuryForFee(esc.FeeAmount); err != nil {
		return err
	}
	esc.Status = StatusCompleted
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	vault, err := e.escrowVault(esc.Asset)
	if err != nil {
		return err
	}
	payout := new(big.Int).Sub(esc.Amount, esc.FeeAmount)
	if payout.Sign() > 0 {
		if err := e.ledger.Push(vault, esc.Provider, esc.Asset, payout); err != nil {
			return err
		}
	}
	if err := e.routeFee(esc, vault); err != nil {
		return err
	}
	if err := e.state.EscrowDebit(esc.OfferID, esc.Asset.StateKey(), esc.Amount); err != nil {
		return err
	}
	if err := e.recordMission(esc, false); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(esc))
	return nil
}

// OpenDispute moves an in-progress escrow into arbitration. Any partial
// validation flags become irrelevant once disputed; settlement is only
// reachable again through resolution.
func (e *Engine) OpenDispute(offerID uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	esc, err := e.loadEscrow(offerID)
	if err != nil {
		return err
	}
	if esc.Status != StatusInProgress {
		return fmt.Errorf("escrow: cannot dispute in status %s", esc.Status)
	}
	if caller != esc.Client && caller != esc.Provider {
		return fmt.Errorf("%w: only a participant may dispute", errUnauthorized)
	}
	esc.Status = StatusDisputed
	esc.DisputedBy = caller
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	seq, err := e.state.NextSequence(disputeSeqName)
	if err != nil {
		return err
	}
	entry := &DisputeEntry{Seq: seq, OfferID: offerID, OpenedBy: caller, OpenedAt: e.now()}
	if err := e.state.DisputeLogPut(entry); err != nil {
		return err
	}
	e.emit(NewDisputedEvent(esc))
	return nil
}

// ResolveDispute applies the arbitrated outcome to a disputed escrow. Only
// the configured arbitrator may resolve. The disputed mission record and
// counters are written for both parties regardless of which side prevailed.
func (e *Engine) ResolveDispute(offerID uint64, caller [20]byte, outcome Outcome) error {
	if err := e.checkCore(); err != nil {
		return err
	}
	if e.arbitrator == ([20]byte{}) || caller != e.arbitrator {
		return fmt.Errorf("%w: resolution requires the arbitrator", errUnauthorized)
	}
	if !outcome.Valid() {
		return fmt.Errorf("escrow: invalid resolution outcome %d", outcome)
	}
	esc, err := e.loadEscrow(offerID)
	if err != nil {
		return err
	}
	if esc.Status != StatusDisputed {
		return fmt.Errorf("escrow: cannot resolve in status %s", esc.Status)
	}
	if outcome == OutcomeRefundClient {
		// A refund does not also charge a protocol fee.
		esc.FeeAmount = big.NewInt(0)
	}
	if err := e.ensureTreasuryForFee(esc.FeeAmount); err != nil {
		return err
	}
	esc.Status = StatusResolved
	esc.Outcome = outcome
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	vault, err := e.escrowVault(esc.Asset)
	if err != nil {
		return err
	}
	amount := new(big.Int).Set(esc.Amount)
	fee := new(big.Int).Set(esc.FeeAmount)
	switch outcome {
	case OutcomeRefundClient:
		if err := e.ledger.Push(vault, esc.Client, esc.Asset, amount); err != nil {
			return err
		}
	case OutcomeSplit:
		work := new(big.Int).Sub(amount, fee)
		half := new(big.Int).Rsh(work, 1)
		if half.Sign() > 0 {
			if err := e.ledger.Push(vault, esc.Provider, esc.Asset, half); err != nil {
				return err
			}
		}
		clientShare := new(big.Int).Sub(amount, half)
		clientShare.Sub(clientShare, fee)
		if clientShare.Sign() > 0 {
			if err := e.ledger.Push(vault, esc.Client, esc.Asset, clientShare); err != nil {
				return err
			}
		}
	case OutcomePayProvider:
		work := new(big.Int).Sub(amount, fee)
		if work.Sign() > 0 {
			if err := e.ledger.Push(vault, esc.Provider, esc.Asset, work); err != nil {
				return err
			}
		}
	}
	if err := e.routeFee(esc, vault); err != nil {
		return err
	}
	if err := e.state.EscrowDebit(esc.OfferID, esc.Asset.StateKey(), amount); err != nil {
		return err
	}
	if err := e.recordMission(esc, true); err != nil {
		return err
	}
	e.emit(NewResolvedEvent(esc))
	return nil
}

// AppendAppeal attaches an informational off-chain reference to a disputed
// escrow. Only a participant other than the dispute opener may appeal; the
// entry never alters the state machine.
func (e *Engine) AppendAppeal(offerID uint64, caller [20]byte, reference string) (*Appeal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, fmt.Errorf("escrow: appeal reference required")
	}
	esc, err := e.loadEscrow(offerID)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusDisputed {
		return nil, fmt.Errorf("escrow: cannot appeal in status %s", esc.Status)
	}
	if caller != esc.Client && caller != esc.Provider {
		return nil, fmt.Errorf("%w: only a participant may appeal", errUnauthorized)
	}
	if caller == esc.DisputedBy {
		return nil, fmt.Errorf("escrow: the dispute opener cannot appeal")
	}
	seq, err := e.state.NextSequence(appealSeqName(offerID))
	if err != nil {
		return nil, err
	}
	appeal := &Appeal{
		Seq:       seq,
		OfferID:   offerID,
		FiledBy:   caller,
		Reference: trimmed,
		FiledAt:   e.now(),
	}
	if err := e.state.AppealPut(appeal); err != nil {
		return nil, err
	}
	e.emit(NewAppealedEvent(appeal))
	return appeal, nil
}

func appealSeqName(offerID uint64) string {
	return fmt.Sprintf("escrow.appeals.%d", offerID)
}

// DisputeLog returns up to limit entries of the marketplace-wide dispute log
// starting after the given offset. Page sizes are clamped to MaxLogPage.
func (e *Engine) DisputeLog(offset, limit uint64) ([]*DisputeEntry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	limit = clampPage(limit)
	entries := make([]*DisputeEntry, 0, limit)
	for i := uint64(0); i < limit; i++ {
		entry, ok, err := e.state.DisputeLogGet(offset + i + 1)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Appeals returns up to limit appeal entries for the escrow starting after
// the given offset.
func (e *Engine) Appeals(offerID, offset, limit uint64) ([]*Appeal, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	limit = clampPage(limit)
	entries := make([]*Appeal, 0, limit)
	for i := uint64(0); i < limit; i++ {
		appeal, ok, err := e.state.AppealGet(offerID, offset+i+1)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		entries = append(entries, appeal)
	}
	return entries, nil
}

// Escrow returns a copy of the stored escrow record.
func (e *Engine) Escrow(offerID uint64) (*Escrow, error) {
	esc, err := e.loadEscrow(offerID)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// Offer returns a copy of the stored offer record.
func (e *Engine) Offer(offerID uint64) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, ok, err := e.state.OfferGet(offerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errOfferNotFound
	}
	return offer.Clone(), nil
}

func clampPage(limit uint64) uint64 {
	if limit == 0 || limit > MaxLogPage {
		return MaxLogPage
	}
	return limit
}

func (e *Engine) ensureTreasuryForFee(fee *big.Int) error {
	if fee == nil || fee.Sign() == 0 {
		return nil
	}
	if e.treasury == ([20]byte{}) {
		return errNilTreasury
	}
	return nil
}

// routeFee distributes the escrow fee: the treasury portion is pushed
// directly, the burn portion is destroyed in place for protocol-token fees
// and routed through the buyback adapter for every other asset. Without an
// adapter the burn portion joins the treasury remittance.
func (e *Engine) routeFee(esc *Escrow, vault [20]byte) error {
	fee := esc.FeeAmount
	if fee == nil || fee.Sign() == 0 {
		return nil
	}
	burnPortion, treasuryPortion := fees.Split(fee)
	if treasuryPortion.Sign() > 0 {
		if err := e.ledger.Push(vault, e.treasury, esc.Asset, treasuryPortion); err != nil {
			return err
		}
	}
	if burnPortion.Sign() == 0 {
		return nil
	}
	if esc.Asset.IsProtocolToken() {
		return e.ledger.Burn(vault, burnPortion)
	}
	if e.buyback == nil {
		return e.ledger.Push(vault, e.treasury, esc.Asset, burnPortion)
	}
	if err := e.ledger.Push(vault, e.buyback.Vault(), esc.Asset, burnPortion); err != nil {
		return err
	}
	if esc.Asset.IsNative() {
		_, err := e.buyback.ConvertNativeAndBurn(burnPortion)
		return err
	}
	_, err := e.buyback.ConvertTokenAndBurn(esc.Asset, burnPortion)
	return err
}

func (e *Engine) recordMission(esc *Escrow, disputed bool) error {
	if e.missions != nil {
		m := &mission.Mission{
			OfferID:     esc.OfferID,
			Client:      esc.Client,
			Provider:    esc.Provider,
			Asset:       esc.Asset.String(),
			Amount:      new(big.Int).Set(esc.Amount),
			Disputed:    disputed,
			CompletedAt: e.now(),
		}
		if err := e.missions.Record(m); err != nil {
			return err
		}
	}
	if e.reputation != nil {
		e.reputation.OnMission(esc.Client, disputed)
		e.reputation.OnMission(esc.Provider, disputed)
	}
	return nil
}
