package events

// Event represents a structured state change emitted by the bridge core.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the ingestion
// pipeline and the persistence projection).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder buffers events until the enclosing operation commits. Engines use
// it to guarantee that a failed batch emits nothing.
type Recorder struct {
	buffered []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(e Event) {
	if r == nil || e == nil {
		return
	}
	r.buffered = append(r.buffered, e)
}

// Flush forwards every buffered event to the sink and clears the buffer.
func (r *Recorder) Flush(sink Emitter) {
	if r == nil {
		return
	}
	if sink != nil {
		for _, e := range r.buffered {
			sink.Emit(e)
		}
	}
	r.buffered = nil
}

// Discard drops all buffered events without emitting them.
func (r *Recorder) Discard() {
	if r == nil {
		return
	}
	r.buffered = nil
}
