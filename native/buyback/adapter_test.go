package buyback

import (
	"fmt"
	"math/big"
	"testing"

	"workmesh/core/events"
	"workmesh/core/types"
	"workmesh/native/assets"
)

type memLedgerState struct {
	balances map[string]*big.Int
	supplies map[string]*big.Int
}

func newMemLedgerState() *memLedgerState {
	return &memLedgerState{
		balances: make(map[string]*big.Int),
		supplies: make(map[string]*big.Int),
	}
}

func slotKey(addr [20]byte, asset string) string {
	return fmt.Sprintf("%x/%s", addr, asset)
}

func (s *memLedgerState) Balance(addr [20]byte, asset string) (*big.Int, error) {
	if bal, ok := s.balances[slotKey(addr, asset)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (s *memLedgerState) SetBalance(addr [20]byte, asset string, amount *big.Int) error {
	s.balances[slotKey(addr, asset)] = new(big.Int).Set(amount)
	return nil
}

func (s *memLedgerState) Supply(asset string) (*big.Int, error) {
	if supply, ok := s.supplies[asset]; ok {
		return new(big.Int).Set(supply), nil
	}
	return big.NewInt(0), nil
}

func (s *memLedgerState) SetSupply(asset string, amount *big.Int) error {
	s.supplies[asset] = new(big.Int).Set(amount)
	return nil
}

func (s *memLedgerState) ReduceSupply(asset string, amount *big.Int) error {
	supply, _ := s.Supply(asset)
	if supply.Cmp(amount) < 0 {
		return fmt.Errorf("burn exceeds supply")
	}
	s.supplies[asset] = supply.Sub(supply, amount)
	return nil
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) last(t *testing.T) Executed {
	t.Helper()
	if len(c.events) == 0 {
		t.Fatalf("no events emitted")
	}
	executed, ok := c.events[len(c.events)-1].(Executed)
	if !ok {
		t.Fatalf("unexpected event type %T", c.events[len(c.events)-1])
	}
	return executed
}

// stubVenue simulates an external swap venue. On success it removes the input
// from the vault and credits the configured protocol-token proceeds.
type stubVenue struct {
	ledger   *assets.Ledger
	vault    [20]byte
	proceeds int64
	err      error
	calls    int
}

func (v *stubVenue) execute(asset assets.Asset, amountIn *big.Int) (*big.Int, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	sink := [20]byte{0xfe}
	if err := v.ledger.Push(v.vault, sink, asset, amountIn); err != nil {
		return nil, err
	}
	out := big.NewInt(v.proceeds)
	if err := v.ledger.Mint(v.vault, assets.Protocol(), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (v *stubVenue) SwapNativeForToken(via string, amountIn, minOut *big.Int) (*big.Int, error) {
	return v.execute(assets.Native(), amountIn)
}

func (v *stubVenue) SwapTokenForToken(from, via string, amountIn, minOut *big.Int) (*big.Int, error) {
	return v.execute(assets.MustToken(from), amountIn)
}

var (
	vaultAddr    = [20]byte{0x01}
	treasuryAddr = [20]byte{0x02}
)

func newTestEngine(t *testing.T) (*Engine, *assets.Ledger, *capturingEmitter) {
	t.Helper()
	ledger := assets.NewLedger(newMemLedgerState())
	emitter := &capturingEmitter{}
	engine := NewEngine()
	engine.SetLedger(ledger)
	engine.SetTreasury(treasuryAddr)
	engine.SetVault(vaultAddr)
	engine.SetEmitter(emitter)
	return engine, ledger, emitter
}

func TestConvertZeroAmountEmitsNoop(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	burned, err := engine.ConvertNativeAndBurn(big.NewInt(0))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if burned.Sign() != 0 {
		t.Fatalf("burned: got %s, want 0", burned)
	}
	if got := emitter.last(t).Result; got != ResultNoop {
		t.Fatalf("result: got %s, want %s", got, ResultNoop)
	}
}

func TestConvertProtocolTokenBurnsInPlace(t *testing.T) {
	engine, ledger, emitter := newTestEngine(t)
	if err := ledger.Mint(vaultAddr, assets.Protocol(), big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	burned, err := engine.ConvertTokenAndBurn(assets.Protocol(), big.NewInt(100))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if burned.Int64() != 100 {
		t.Fatalf("burned: got %s, want 100", burned)
	}
	balance, _ := ledger.Balance(vaultAddr, assets.Protocol())
	if balance.Sign() != 0 {
		t.Fatalf("vault must be emptied, holds %s", balance)
	}
	if got := emitter.last(t).Result; got != ResultBurned {
		t.Fatalf("result: got %s, want %s", got, ResultBurned)
	}
}

func TestConvertWithoutRouteRemitsToTreasury(t *testing.T) {
	engine, ledger, emitter := newTestEngine(t)
	if err := ledger.Mint(vaultAddr, assets.Native(), big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	burned, err := engine.ConvertNativeAndBurn(big.NewInt(100))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if burned.Sign() != 0 {
		t.Fatalf("burned: got %s, want 0", burned)
	}
	treasuryBal, _ := ledger.Balance(treasuryAddr, assets.Native())
	if treasuryBal.Int64() != 100 {
		t.Fatalf("treasury: got %s, want 100", treasuryBal)
	}
	vaultBal, _ := ledger.Balance(vaultAddr, assets.Native())
	if vaultBal.Sign() != 0 {
		t.Fatalf("vault must not strand funds, holds %s", vaultBal)
	}
	if got := emitter.last(t).Result; got != ResultDisabled {
		t.Fatalf("result: got %s, want %s", got, ResultDisabled)
	}
}

func TestConvertVenueFailureFallsBack(t *testing.T) {
	engine, ledger, emitter := newTestEngine(t)
	venue := &stubVenue{ledger: ledger, vault: vaultAddr, err: fmt.Errorf("venue down")}
	engine.SetRoute(Route{Venue: venue, Intermediate: "USDX"})
	if err := ledger.Mint(vaultAddr, assets.Native(), big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	burned, err := engine.ConvertNativeAndBurn(big.NewInt(100))
	if err != nil {
		t.Fatalf("venue failure must not surface an error: %v", err)
	}
	if burned.Sign() != 0 {
		t.Fatalf("burned: got %s, want 0", burned)
	}
	if venue.calls != 1 {
		t.Fatalf("venue calls: got %d, want 1", venue.calls)
	}
	treasuryBal, _ := ledger.Balance(treasuryAddr, assets.Native())
	if treasuryBal.Int64() != 100 {
		t.Fatalf("treasury: got %s, want 100", treasuryBal)
	}
	if got := emitter.last(t).Result; got != ResultFallback {
		t.Fatalf("result: got %s, want %s", got, ResultFallback)
	}
}

func TestConvertMeasuresProceedsByBalanceDelta(t *testing.T) {
	engine, ledger, emitter := newTestEngine(t)
	venue := &stubVenue{ledger: ledger, vault: vaultAddr, proceeds: 55}
	engine.SetRoute(Route{Venue: venue, Intermediate: "USDX"})
	if err := ledger.Mint(vaultAddr, assets.Native(), big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	burned, err := engine.ConvertNativeAndBurn(big.NewInt(100))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if burned.Int64() != 55 {
		t.Fatalf("burned: got %s, want 55", burned)
	}
	protocolBal, _ := ledger.Balance(vaultAddr, assets.Protocol())
	if protocolBal.Sign() != 0 {
		t.Fatalf("proceeds must be fully burned, vault holds %s", protocolBal)
	}
	executed := emitter.last(t)
	if executed.Result != ResultBurned {
		t.Fatalf("result: got %s, want %s", executed.Result, ResultBurned)
	}
	if executed.Burned.Int64() != 55 {
		t.Fatalf("event burned: got %s, want 55", executed.Burned)
	}
}

func TestConvertTokenRejectsNativeSelector(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.ConvertTokenAndBurn(assets.Native(), big.NewInt(1)); err == nil {
		t.Fatalf("expected native selector to be rejected")
	}
}

func TestConvertRejectsNegativeAmount(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.ConvertNativeAndBurn(big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative amount to be rejected")
	}
}

func TestExecutedEventPayload(t *testing.T) {
	executed := Executed{
		Asset:    "NATIVE",
		AmountIn: big.NewInt(10),
		Burned:   big.NewInt(4),
		Result:   ResultBurned,
	}
	var payload *types.Event = executed.Event()
	if payload.Type != TypeBuybackExecuted {
		t.Fatalf("type: got %s", payload.Type)
	}
	if payload.Attributes["amountIn"] != "10" || payload.Attributes["burned"] != "4" {
		t.Fatalf("attributes: %v", payload.Attributes)
	}
}
