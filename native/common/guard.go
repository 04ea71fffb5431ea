package common

import "errors"

// ErrModulePaused is returned when a fund-moving operation is attempted while
// its module is suspended by the system-wide pause switch.
var ErrModulePaused = errors.New("module paused")

// Module identifiers recognised by the pause switch. Only operations that
// move new funds into the system are gated; validate and dispute paths on
// already-funded escrows stay reachable while paused.
const (
	ModuleEscrow  = "escrow"
	ModuleBuyback = "buyback"
)

// PauseView reports whether a module is currently suspended.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is paused. A nil view or empty
// module name means no gating.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
