package fees

import (
	"fmt"
	"math/big"

	"workmesh/native/assets"
)

// BurnRatioBps is the share of every protocol fee routed to the burn/buyback
// path, in basis points. The remainder goes to the treasury. The ratio is
// uniform across all fee-paying assets.
const BurnRatioBps = 5_000

// MaxFeeBps caps each configurable fee rate.
const MaxFeeBps = 2_500

const bpsDenominator = 10_000

// Config carries the two independently capped marketplace fee rates: one for
// generic payment assets (native asset and listed tokens) and one for the
// protocol's own token.
type Config struct {
	AssetFeeBps uint32
	TokenFeeBps uint32
}

// Validate enforces the per-rate caps.
func (c Config) Validate() error {
	if c.AssetFeeBps > MaxFeeBps {
		return fmt.Errorf("fees: asset fee %d bps exceeds cap %d", c.AssetFeeBps, MaxFeeBps)
	}
	if c.TokenFeeBps > MaxFeeBps {
		return fmt.Errorf("fees: token fee %d bps exceeds cap %d", c.TokenFeeBps, MaxFeeBps)
	}
	return nil
}

// RateFor selects the fee rate by payment-asset identity: the protocol-token
// rate when the asset is the marketplace's own burnable token, the generic
// rate otherwise.
func (c Config) RateFor(asset assets.Asset) uint32 {
	if asset.IsProtocolToken() {
		return c.TokenFeeBps
	}
	return c.AssetFeeBps
}

// FeeFor computes the fee owed on a gross amount for the given asset. The
// caller enforces fee < amount; this function only does the arithmetic.
func (c Config) FeeFor(asset assets.Asset, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	rate := c.RateFor(asset)
	if rate == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(rate)))
	return fee.Div(fee, big.NewInt(bpsDenominator))
}

// Split divides a fee amount into its burn and treasury portions. The two
// portions always sum exactly to the input: the burn portion is floored and
// the treasury takes the remainder, so no unit is ever lost to rounding.
func Split(amount *big.Int) (burn, treasury *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	burn = new(big.Int).Mul(amount, big.NewInt(BurnRatioBps))
	burn.Div(burn, big.NewInt(bpsDenominator))
	treasury = new(big.Int).Sub(amount, burn)
	return burn, treasury
}
