package types

// Event represents a typed event emitted during a ledger state transition.
// External indexers rely on the attribute set of each event type being stable.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
