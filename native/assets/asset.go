package assets

import (
	"fmt"
	"strings"
)

// ProtocolToken is the symbol of the marketplace's own burnable token. Fees
// denominated in it are burned in place instead of routed through the buyback
// adapter.
const ProtocolToken = "WMESH"

// nativeStateKey is the balance-slot key reserved for the native asset. Token
// symbols are normalised to upper case, so the lower-case key can never
// collide with a listed token.
const nativeStateKey = "native"

// Kind discriminates the closed set of payment-asset variants.
type Kind uint8

const (
	KindNative Kind = iota
	KindToken
)

// Asset is the payment-asset selector carried by offers and escrows: either
// the native asset sentinel or a fungible token identified by symbol.
type Asset struct {
	Kind   Kind
	Symbol string
}

// Native returns the native-asset sentinel.
func Native() Asset { return Asset{Kind: KindNative} }

// Token builds a token asset from the supplied symbol, normalising it to the
// canonical upper-case form.
func Token(symbol string) (Asset, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return Asset{}, fmt.Errorf("assets: token symbol required")
	}
	return Asset{Kind: KindToken, Symbol: trimmed}, nil
}

// MustToken is a test and wiring helper that panics on an invalid symbol.
func MustToken(symbol string) Asset {
	asset, err := Token(symbol)
	if err != nil {
		panic(err)
	}
	return asset
}

// Protocol returns the protocol burnable token as an asset selector.
func Protocol() Asset { return Asset{Kind: KindToken, Symbol: ProtocolToken} }

// IsNative reports whether the selector is the native asset sentinel.
func (a Asset) IsNative() bool { return a.Kind == KindNative }

// IsProtocolToken reports whether the selector is the protocol burnable token.
func (a Asset) IsProtocolToken() bool {
	return a.Kind == KindToken && a.Symbol == ProtocolToken
}

// StateKey returns the balance-slot key for the asset.
func (a Asset) StateKey() string {
	if a.Kind == KindNative {
		return nativeStateKey
	}
	return a.Symbol
}

// String renders the selector for events and errors.
func (a Asset) String() string {
	if a.Kind == KindNative {
		return "NATIVE"
	}
	return a.Symbol
}

// Valid reports whether the selector is well formed.
func (a Asset) Valid() error {
	switch a.Kind {
	case KindNative:
		if a.Symbol != "" {
			return fmt.Errorf("assets: native asset carries no symbol")
		}
		return nil
	case KindToken:
		if strings.TrimSpace(a.Symbol) == "" {
			return fmt.Errorf("assets: token symbol required")
		}
		if a.Symbol != strings.ToUpper(a.Symbol) {
			return fmt.Errorf("assets: token symbol not normalised: %s", a.Symbol)
		}
		return nil
	default:
		return fmt.Errorf("assets: unknown asset kind %d", a.Kind)
	}
}
