package assets

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState     = errors.New("assets: ledger state not configured")
	errNegativeMove = errors.New("assets: transfer amount must be non-negative")
)

// ledgerState captures the balance-slot capabilities the asset ledger needs
// from the state manager.
type ledgerState interface {
	Balance(addr [20]byte, asset string) (*big.Int, error)
	SetBalance(addr [20]byte, asset string, amount *big.Int) error
	Supply(asset string) (*big.Int, error)
	SetSupply(asset string, amount *big.Int) error
	ReduceSupply(asset string, amount *big.Int) error
}

// Ledger moves value between accounts across the closed set of payment
// assets. Payment assets are assumed to be standard fungible tokens: a
// transfer delivers exactly the requested amount, so received amounts are not
// re-measured after a pull. Fee-on-transfer or rebasing tokens are outside
// the supported asset set.
type Ledger struct {
	state ledgerState
}

// NewLedger constructs a ledger bound to the provided state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

func (l *Ledger) transfer(from, to [20]byte, asset Asset, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := asset.Valid(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeMove
	}
	key := asset.StateKey()
	fromBal, err := l.state.Balance(from, key)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("assets: insufficient %s balance", asset)
	}
	toBal, err := l.state.Balance(to, key)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(from, key, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.state.SetBalance(to, key, new(big.Int).Add(toBal, amount))
}

// Pull moves amount of asset from the payer into the recipient, modelling the
// pull-transfer primitive exposed by fungible assets.
func (l *Ledger) Pull(from, to [20]byte, asset Asset, amount *big.Int) error {
	return l.transfer(from, to, asset, amount)
}

// Push moves amount of asset from the holder to the recipient, modelling the
// push-transfer primitive.
func (l *Ledger) Push(from, to [20]byte, asset Asset, amount *big.Int) error {
	return l.transfer(from, to, asset, amount)
}

// Balance returns the balance held by addr in the given asset.
func (l *Ledger) Balance(addr [20]byte, asset Asset) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	if err := asset.Valid(); err != nil {
		return nil, err
	}
	return l.state.Balance(addr, asset.StateKey())
}

// Mint credits amount of asset to addr. For the protocol token the tracked
// supply grows by the same amount so later burns stay balance-observable.
func (l *Ledger) Mint(addr [20]byte, asset Asset, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := asset.Valid(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeMove
	}
	key := asset.StateKey()
	current, err := l.state.Balance(addr, key)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(addr, key, new(big.Int).Add(current, amount)); err != nil {
		return err
	}
	if asset.IsProtocolToken() {
		supply, err := l.state.Supply(key)
		if err != nil {
			return err
		}
		return l.state.SetSupply(key, new(big.Int).Add(supply, amount))
	}
	return nil
}

// Burn irreversibly destroys amount of the protocol token held by addr. The
// operation is all-or-nothing: both the balance debit and the supply
// reduction must succeed.
func (l *Ledger) Burn(addr [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeMove
	}
	key := Protocol().StateKey()
	current, err := l.state.Balance(addr, key)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("assets: burn exceeds %s balance", ProtocolToken)
	}
	if err := l.state.ReduceSupply(key, amount); err != nil {
		return err
	}
	return l.state.SetBalance(addr, key, new(big.Int).Sub(current, amount))
}

// Burnable reports whether the asset supports the burn primitive.
func Burnable(asset Asset) bool { return asset.IsProtocolToken() }
