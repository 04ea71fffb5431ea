package buyback

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"workmesh/core/events"
	"workmesh/native/assets"
)

var (
	errNilLedger   = errors.New("buyback: asset ledger not configured")
	errNilTreasury = errors.New("buyback: treasury not configured")
	errNilVault    = errors.New("buyback: vault not configured")
)

// Venue is the external swap capability the adapter converts fee amounts
// through. Both entry points are best-effort: the adapter never forwards a
// minimum-output requirement and treats any returned error as a recoverable
// swap failure.
type Venue interface {
	SwapNativeForToken(via string, amountIn, minOut *big.Int) (*big.Int, error)
	SwapTokenForToken(from, via string, amountIn, minOut *big.Int) (*big.Int, error)
}

// Route describes the optional conversion path. Conversion is enabled only
// when both the venue and the intermediate asset are present; otherwise every
// fee amount is remitted to the treasury unchanged.
type Route struct {
	Venue        Venue
	Intermediate string
}

// Enabled reports whether on-venue conversion is configured.
func (r Route) Enabled() bool {
	return r.Venue != nil && strings.TrimSpace(r.Intermediate) != ""
}

// Engine converts held fee amounts into the protocol token and burns the
// proceeds. Fee amounts are pushed into the engine's vault account by the
// settlement path before conversion is invoked. Failure of the external venue
// is expected and degrades to direct treasury remittance; funds are never
// left inside the vault after a conversion call returns.
type Engine struct {
	ledger   *assets.Ledger
	emitter  events.Emitter
	route    Route
	treasury [20]byte
	vault    [20]byte
}

// NewEngine creates a buyback engine with a no-op emitter and no route, i.e.
// remittance-only mode.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetLedger configures the asset ledger used to move and burn value.
func (e *Engine) SetLedger(ledger *assets.Ledger) { e.ledger = ledger }

// SetTreasury configures the address receiving unburned fee portions.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetVault configures the holding account fee amounts are converted out of.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetRoute configures the optional swap route.
func (e *Engine) SetRoute(route Route) { e.route = route }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Vault returns the holding account the settlement path funds before calling
// a conversion entry point.
func (e *Engine) Vault() [20]byte { return e.vault }

func (e *Engine) checkConfigured() error {
	if e == nil || e.ledger == nil {
		return errNilLedger
	}
	if e.treasury == ([20]byte{}) {
		return errNilTreasury
	}
	if e.vault == ([20]byte{}) {
		return errNilVault
	}
	return nil
}

// ConvertNativeAndBurn converts a native-asset fee amount held in the vault
// into the protocol token and burns the proceeds, falling back to treasury
// remittance when no route is configured or the venue fails.
func (e *Engine) ConvertNativeAndBurn(amount *big.Int) (*big.Int, error) {
	return e.convert(assets.Native(), amount)
}

// ConvertTokenAndBurn is the token-denominated counterpart of
// ConvertNativeAndBurn.
func (e *Engine) ConvertTokenAndBurn(asset assets.Asset, amount *big.Int) (*big.Int, error) {
	if asset.IsNative() {
		return nil, fmt.Errorf("buyback: use ConvertNativeAndBurn for the native asset")
	}
	return e.convert(asset, amount)
}

func (e *Engine) convert(asset assets.Asset, amount *big.Int) (*big.Int, error) {
	if err := e.checkConfigured(); err != nil {
		return nil, err
	}
	if err := asset.Valid(); err != nil {
		return nil, err
	}
	if amount != nil && amount.Sign() < 0 {
		return nil, fmt.Errorf("buyback: amount must be non-negative")
	}
	if amount == nil || amount.Sign() == 0 {
		e.emitExecuted(asset, big.NewInt(0), big.NewInt(0), ResultNoop)
		return big.NewInt(0), nil
	}
	amount = new(big.Int).Set(amount)

	// Fees already denominated in the protocol token need no conversion.
	if asset.IsProtocolToken() {
		if err := e.ledger.Burn(e.vault, amount); err != nil {
			return nil, err
		}
		e.emitExecuted(asset, amount, amount, ResultBurned)
		return amount, nil
	}

	if !e.route.Enabled() {
		if err := e.remit(asset, amount); err != nil {
			return nil, err
		}
		e.emitExecuted(asset, amount, big.NewInt(0), ResultDisabled)
		return big.NewInt(0), nil
	}

	before, err := e.ledger.Balance(e.vault, assets.Protocol())
	if err != nil {
		return nil, err
	}
	if swapErr := e.swap(asset, amount); swapErr != nil {
		// Venue failure is recoverable: the original amount is remitted
		// to the treasury instead of being stranded in the vault.
		if err := e.remit(asset, amount); err != nil {
			return nil, err
		}
		e.emitExecuted(asset, amount, big.NewInt(0), ResultFallback)
		return big.NewInt(0), nil
	}
	after, err := e.ledger.Balance(e.vault, assets.Protocol())
	if err != nil {
		return nil, err
	}
	burned := new(big.Int).Sub(after, before)
	if burned.Sign() < 0 {
		burned = big.NewInt(0)
	}
	if err := e.ledger.Burn(e.vault, burned); err != nil {
		return nil, err
	}
	e.emitExecuted(asset, amount, burned, ResultBurned)
	return burned, nil
}

func (e *Engine) swap(asset assets.Asset, amount *big.Int) error {
	minOut := big.NewInt(0)
	if asset.IsNative() {
		_, err := e.route.Venue.SwapNativeForToken(e.route.Intermediate, amount, minOut)
		return err
	}
	_, err := e.route.Venue.SwapTokenForToken(asset.Symbol, e.route.Intermediate, amount, minOut)
	return err
}

func (e *Engine) remit(asset assets.Asset, amount *big.Int) error {
	return e.ledger.Push(e.vault, e.treasury, asset, amount)
}

func (e *Engine) emitExecuted(asset assets.Asset, amountIn, burned *big.Int, result string) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(Executed{
		Asset:    asset.String(),
		AmountIn: amountIn,
		Burned:   burned,
		Result:   result,
	})
}
