// Package events defines the structured event surface of the vault engine.
// Every successful state-mutating operation emits exactly one event after
// all invariant-affecting changes have been applied; the events are the
// audit trail consumed by indexers and relayers.
package events

// Event is a typed state change with string-encoded attributes.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding all events. Engines default
// to it so event wiring stays optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter records emitted events in order. Intended for tests.
type MemoryEmitter struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	m.Events = append(m.Events, evt)
}

// ByType returns the recorded events matching the supplied type.
func (m *MemoryEmitter) ByType(eventType string) []Event {
	var out []Event
	for _, evt := range m.Events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
