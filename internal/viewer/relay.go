package viewer

import (
	"sync"
	"sync/atomic"
)

// DefaultEventPrefix namespaces relayed engine events on the outward surface.
const DefaultEventPrefix = "dxf-"

// CoordinateUpdateEvent is emitted with a WorldPoint payload after every
// successful pointer mapping.
const CoordinateUpdateEvent = "coordinate-update"

// Event is a single outward notification to the embedding application.
type Event struct {
	Name    string
	Payload any
}

// Publisher receives outward events. Publish must not block for long; it
// runs on the goroutine that delivered the engine event.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(e Event) { f(e) }

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// RelayedEvents lists the engine events republished by the relay, in
// subscription order.
var RelayedEvents = [...]EventName{
	EventLoaded,
	EventCleared,
	EventDestroyed,
	EventResized,
	EventPointerDown,
	EventPointerUp,
	EventViewChanged,
	EventMessage,
}

// relayTable maps each relayed engine event to its outward name.
type relayTable map[EventName]string

func newRelayTable(prefix string) relayTable {
	t := make(relayTable, len(RelayedEvents))
	for _, name := range RelayedEvents {
		t[name] = prefix + string(name)
	}
	return t
}

// Relay republishes the fixed engine event set one to one.
type Relay struct {
	table  relayTable
	pub    Publisher
	closed atomic.Bool

	mu     sync.Mutex
	unsubs []func()
}

// NewRelay subscribes to every relayed event on e and forwards them to pub
// under prefix+name with the payload untouched.
func NewRelay(e Engine, prefix string, pub Publisher) *Relay {
	if pub == nil {
		pub = noopPublisher{}
	}
	r := &Relay{table: newRelayTable(prefix), pub: pub}
	for _, name := range RelayedEvents {
		outward := r.table[name]
		r.unsubs = append(r.unsubs, e.Subscribe(name, func(payload any) {
			if r.closed.Load() {
				return
			}
			r.pub.Publish(Event{Name: outward, Payload: payload})
		}))
	}
	return r
}

// OutwardName returns the namespaced name for an engine event.
func (r *Relay) OutwardName(name EventName) (string, bool) {
	outward, ok := r.table[name]
	return outward, ok
}

// Close removes every subscription. Events delivered concurrently with Close
// are dropped. Close is idempotent.
func (r *Relay) Close() {
	if r.closed.Swap(true) {
		return
	}
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()

	for _, unsub := range unsubs {
		if unsub != nil {
			unsub()
		}
	}
}
