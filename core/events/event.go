package events

// Event represents a structured state change emitted by the marketplace
// ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (metrics, indexers,
// audit logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for engines whose caller has not attached a subscriber.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Multi fans a single emit out to every supplied emitter. Nil entries are
// skipped.
type Multi []Emitter

func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
