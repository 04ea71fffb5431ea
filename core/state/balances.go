package state

import (
	"fmt"
	"math/big"
	"strings"
)

var (
	balancePrefix = []byte("balance:")
	supplyPrefix  = []byte("supply:")
)

func balanceKey(addr [20]byte, asset string) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(asset)+1+len(addr))
	buf = append(buf, balancePrefix...)
	buf = append(buf, asset...)
	buf = append(buf, ':')
	buf = append(buf, addr[:]...)
	return buf
}

func supplyKey(asset string) []byte {
	buf := make([]byte, 0, len(supplyPrefix)+len(asset))
	buf = append(buf, supplyPrefix...)
	buf = append(buf, asset...)
	return buf
}

func normalizeAssetKey(asset string) (string, error) {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "", fmt.Errorf("state: asset key required")
	}
	return trimmed, nil
}

// Balance returns the balance held by addr in the given asset. Missing slots
// read as zero.
func (m *Manager) Balance(addr [20]byte, asset string) (*big.Int, error) {
	key, err := normalizeAssetKey(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	ok, err := m.KVGet(balanceKey(addr, key), value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// SetBalance overwrites the balance slot for addr in the given asset.
func (m *Manager) SetBalance(addr [20]byte, asset string, amount *big.Int) error {
	key, err := normalizeAssetKey(asset)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	return m.KVPut(balanceKey(addr, key), amount)
}

// Credit adds amount to addr's balance in the given asset.
func (m *Manager) Credit(addr [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	current, err := m.Balance(addr, asset)
	if err != nil {
		return err
	}
	return m.SetBalance(addr, asset, new(big.Int).Add(current, amount))
}

// Debit subtracts amount from addr's balance in the given asset, failing when
// the balance is insufficient.
func (m *Manager) Debit(addr [20]byte, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: debit amount must be non-negative")
	}
	current, err := m.Balance(addr, asset)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("state: insufficient balance")
	}
	return m.SetBalance(addr, asset, new(big.Int).Sub(current, amount))
}

// Supply returns the tracked circulating supply for the given asset. Only
// assets whose supply the ledger manages (the protocol token) have a non-zero
// entry.
func (m *Manager) Supply(asset string) (*big.Int, error) {
	key, err := normalizeAssetKey(asset)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	ok, err := m.KVGet(supplyKey(key), value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// SetSupply overwrites the tracked supply for the given asset.
func (m *Manager) SetSupply(asset string, amount *big.Int) error {
	key, err := normalizeAssetKey(asset)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: supply must be non-negative")
	}
	return m.KVPut(supplyKey(key), amount)
}

// ReduceSupply decrements the tracked supply for the given asset. Burns are
// all-or-nothing: reducing below zero is rejected without a partial write.
func (m *Manager) ReduceSupply(asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: burn amount must be non-negative")
	}
	current, err := m.Supply(asset)
	if err != nil {
		return err
	}
	if current.Cmp(amount) < 0 {
		return fmt.Errorf("state: burn exceeds tracked supply")
	}
	return m.SetSupply(asset, new(big.Int).Sub(current, amount))
}
