package progress

import "sync"

// Delivery is one event as seen on one channel
type Delivery struct {
	Channel string
	Event   Event
}

// Recorder keeps every emitted event in memory.
// OnEmit, when set, is called synchronously for each delivery.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	OnEmit     func(channel string, event Event)
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Name returns the sink name
func (r *Recorder) Name() string {
	return "recorder"
}

// Emit records the delivery
func (r *Recorder) Emit(channel string, event Event) error {
	r.mu.Lock()
	r.deliveries = append(r.deliveries, Delivery{Channel: channel, Event: event})
	onEmit := r.OnEmit
	r.mu.Unlock()

	if onEmit != nil {
		onEmit(channel, event)
	}
	return nil
}

// Deliveries returns a copy of everything recorded so far
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// Channel returns the events delivered on one channel, in order
func (r *Recorder) Channel(channel string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, d := range r.deliveries {
		if d.Channel == channel {
			out = append(out, d.Event)
		}
	}
	return out
}

// Terminal returns the terminal events delivered on one channel
func (r *Recorder) Terminal(channel string) []Event {
	var out []Event
	for _, ev := range r.Channel(channel) {
		if ev.Stage.IsTerminal() {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops everything recorded
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.deliveries = nil
	r.mu.Unlock()
}
