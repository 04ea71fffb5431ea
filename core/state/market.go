package state

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"workmesh/native/assets"
	"workmesh/native/escrow"
)

// The marketplace bindings persist offers, escrows, vault accounting and the
// dispute log for the escrow engine. Stored forms convert signed timestamps
// to unsigned integers because the RLP codec only encodes unsigned values.

func offerKey(id uint64) []byte {
	return []byte(fmt.Sprintf("market/offer/%d", id))
}

func escrowKey(offerID uint64) []byte {
	return []byte(fmt.Sprintf("market/escrow/%d", offerID))
}

func escrowVaultBalanceKey(offerID uint64, asset string) []byte {
	return []byte(fmt.Sprintf("market/escrow/%d/vault/%s", offerID, asset))
}

func disputeLogKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("market/disputes/%d", seq))
}

func appealKey(offerID, seq uint64) []byte {
	return []byte(fmt.Sprintf("market/escrow/%d/appeal/%d", offerID, seq))
}

func paramKey(name string) []byte {
	return []byte("params/" + name)
}

type storedOffer struct {
	ID          uint64
	ListingID   uint64
	Proposer    [20]byte
	AssetKind   uint8
	AssetSymbol string
	Amount      *big.Int
	Accepted    bool
	Cancelled   bool
}

type storedEscrow struct {
	OfferID           uint64
	Client            [20]byte
	Provider          [20]byte
	AssetKind         uint8
	AssetSymbol       string
	Amount            *big.Int
	FeeAmount         *big.Int
	Status            uint8
	ClientValidated   bool
	ProviderValidated bool
	Outcome           uint8
	DisputedBy        [20]byte
	CreatedAt         uint64
}

type storedDisputeEntry struct {
	Seq      uint64
	OfferID  uint64
	OpenedBy [20]byte
	OpenedAt uint64
}

type storedAppeal struct {
	Seq       uint64
	OfferID   uint64
	FiledBy   [20]byte
	Reference string
	FiledAt   uint64
}

// OfferPut persists a sanitised offer record.
func (m *Manager) OfferPut(o *escrow.Offer) error {
	sanitized, err := escrow.SanitizeOffer(o)
	if err != nil {
		return err
	}
	stored := &storedOffer{
		ID:          sanitized.ID,
		ListingID:   sanitized.ListingID,
		Proposer:    sanitized.Proposer,
		AssetKind:   uint8(sanitized.Asset.Kind),
		AssetSymbol: sanitized.Asset.Symbol,
		Amount:      sanitized.Amount,
		Accepted:    sanitized.Accepted,
		Cancelled:   sanitized.Cancelled,
	}
	return m.KVPut(offerKey(stored.ID), stored)
}

// OfferGet loads the offer stored under the given id.
func (m *Manager) OfferGet(id uint64) (*escrow.Offer, bool, error) {
	var stored storedOffer
	ok, err := m.KVGet(offerKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	offer := &escrow.Offer{
		ID:        stored.ID,
		ListingID: stored.ListingID,
		Proposer:  stored.Proposer,
		Amount:    amountOrZero(stored.Amount),
		Accepted:  stored.Accepted,
		Cancelled: stored.Cancelled,
	}
	offer.Asset = assets.Asset{Kind: assets.Kind(stored.AssetKind), Symbol: stored.AssetSymbol}
	return offer, true, nil
}

// EscrowPut persists a sanitised escrow record.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	stored := &storedEscrow{
		OfferID:           sanitized.OfferID,
		Client:            sanitized.Client,
		Provider:          sanitized.Provider,
		AssetKind:         uint8(sanitized.Asset.Kind),
		AssetSymbol:       sanitized.Asset.Symbol,
		Amount:            sanitized.Amount,
		FeeAmount:         sanitized.FeeAmount,
		Status:            uint8(sanitized.Status),
		ClientValidated:   sanitized.ClientValidated,
		ProviderValidated: sanitized.ProviderValidated,
		Outcome:           uint8(sanitized.Outcome),
		DisputedBy:        sanitized.DisputedBy,
	}
	if sanitized.CreatedAt > 0 {
		stored.CreatedAt = uint64(sanitized.CreatedAt)
	}
	return m.KVPut(escrowKey(stored.OfferID), stored)
}

// EscrowGet loads the escrow keyed by the given offer id.
func (m *Manager) EscrowGet(offerID uint64) (*escrow.Escrow, bool, error) {
	var stored storedEscrow
	ok, err := m.KVGet(escrowKey(offerID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	esc := &escrow.Escrow{
		OfferID:           stored.OfferID,
		Client:            stored.Client,
		Provider:          stored.Provider,
		Amount:            amountOrZero(stored.Amount),
		FeeAmount:         amountOrZero(stored.FeeAmount),
		Status:            escrow.Status(stored.Status),
		ClientValidated:   stored.ClientValidated,
		ProviderValidated: stored.ProviderValidated,
		Outcome:           escrow.Outcome(stored.Outcome),
		DisputedBy:        stored.DisputedBy,
		CreatedAt:         int64(stored.CreatedAt),
	}
	esc.Asset = assets.Asset{Kind: assets.Kind(stored.AssetKind), Symbol: stored.AssetSymbol}
	return esc, true, nil
}

// EscrowCredit records funds entering the escrow's vault accounting.
func (m *Manager) EscrowCredit(offerID uint64, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative escrow credit")
	}
	current, err := m.escrowVaultBalance(offerID, asset)
	if err != nil {
		return err
	}
	return m.KVPut(escrowVaultBalanceKey(offerID, asset), new(big.Int).Add(current, amount))
}

// EscrowDebit records funds leaving the escrow's vault accounting, failing
// when the escrow never held that much.
func (m *Manager) EscrowDebit(offerID uint64, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative escrow debit")
	}
	current, err := m.escrowVaultBalance(offerID, asset)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("state: escrow %d vault underflow", offerID)
	}
	return m.KVPut(escrowVaultBalanceKey(offerID, asset), new(big.Int).Sub(current, amount))
}

// EscrowBalance returns the amount currently attributed to the escrow inside
// the vault.
func (m *Manager) EscrowBalance(offerID uint64, asset string) (*big.Int, error) {
	return m.escrowVaultBalance(offerID, asset)
}

func (m *Manager) escrowVaultBalance(offerID uint64, asset string) (*big.Int, error) {
	key, err := normalizeAssetKey(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	ok, err := m.KVGet(escrowVaultBalanceKey(offerID, key), value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// VaultAddress derives the deterministic module account for the given vault
// tag and asset.
func (m *Manager) VaultAddress(tag string, asset string) ([20]byte, error) {
	if strings.TrimSpace(tag) == "" {
		return [20]byte{}, fmt.Errorf("state: vault tag required")
	}
	key, err := normalizeAssetKey(asset)
	if err != nil {
		return [20]byte{}, err
	}
	return ModuleAddress(tag + "/" + key), nil
}

// ModuleAddress derives the deterministic account address owned by a named
// module of this marketplace instance.
func ModuleAddress(name string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("workmesh/module/" + name))
	var addr [20]byte
	copy(addr[:], digest[len(digest)-20:])
	return addr
}

// DisputeLogPut appends an entry of the marketplace-wide dispute log. Entries
// are immutable once written.
func (m *Manager) DisputeLogPut(entry *escrow.DisputeEntry) error {
	if entry == nil {
		return fmt.Errorf("state: nil dispute entry")
	}
	if entry.Seq == 0 {
		return fmt.Errorf("state: dispute entry sequence required")
	}
	key := disputeLogKey(entry.Seq)
	if ok, err := m.KVGet(key, nil); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("state: dispute entry %d already written", entry.Seq)
	}
	stored := &storedDisputeEntry{Seq: entry.Seq, OfferID: entry.OfferID, OpenedBy: entry.OpenedBy}
	if entry.OpenedAt > 0 {
		stored.OpenedAt = uint64(entry.OpenedAt)
	}
	return m.KVPut(key, stored)
}

// DisputeLogGet loads the dispute log entry with the given sequence number.
func (m *Manager) DisputeLogGet(seq uint64) (*escrow.DisputeEntry, bool, error) {
	var stored storedDisputeEntry
	ok, err := m.KVGet(disputeLogKey(seq), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &escrow.DisputeEntry{
		Seq:      stored.Seq,
		OfferID:  stored.OfferID,
		OpenedBy: stored.OpenedBy,
		OpenedAt: int64(stored.OpenedAt),
	}, true, nil
}

// AppealPut persists an appeal entry under its per-escrow sequence number.
func (m *Manager) AppealPut(appeal *escrow.Appeal) error {
	if appeal == nil {
		return fmt.Errorf("state: nil appeal")
	}
	if appeal.Seq == 0 {
		return fmt.Errorf("state: appeal sequence required")
	}
	stored := &storedAppeal{
		Seq:       appeal.Seq,
		OfferID:   appeal.OfferID,
		FiledBy:   appeal.FiledBy,
		Reference: appeal.Reference,
	}
	if appeal.FiledAt > 0 {
		stored.FiledAt = uint64(appeal.FiledAt)
	}
	return m.KVPut(appealKey(appeal.OfferID, appeal.Seq), stored)
}

// AppealGet loads the appeal entry for an escrow by sequence number.
func (m *Manager) AppealGet(offerID, seq uint64) (*escrow.Appeal, bool, error) {
	var stored storedAppeal
	ok, err := m.KVGet(appealKey(offerID, seq), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &escrow.Appeal{
		Seq:       stored.Seq,
		OfferID:   stored.OfferID,
		FiledBy:   stored.FiledBy,
		Reference: stored.Reference,
		FiledAt:   int64(stored.FiledAt),
	}, true, nil
}

// ParamStoreSet persists a governance-controlled parameter value.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	if name == "" {
		return fmt.Errorf("state: param name required")
	}
	return m.KVPut(paramKey(name), value)
}

// ParamStoreGet loads a governance-controlled parameter value.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("state: param name required")
	}
	var value []byte
	ok, err := m.KVGet(paramKey(name), &value)
	if err != nil || !ok {
		return nil, false, err
	}
	return value, true, nil
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
