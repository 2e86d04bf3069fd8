package annotation

import "sync"

// Document-level events a selection listens for.
const (
	EventPointerDown = "pointerdown"
	EventTouchStart  = "touchstart"
)

// Listener receives the id of the element an event targeted.
type Listener func(target string)

// ListenerRegistry attaches document-level listeners. The returned func
// detaches the listener and is safe to call more than once.
type ListenerRegistry interface {
	Add(event string, fn Listener) (remove func())
}

// Listeners is an in-memory ListenerRegistry.
type Listeners struct {
	mu   sync.Mutex
	next int
	subs map[int]subscription
}

type subscription struct {
	event string
	fn    Listener
}

// NewListeners creates an empty registry.
func NewListeners() *Listeners {
	return &Listeners{subs: make(map[int]subscription)}
}

// Add registers fn for event.
func (l *Listeners) Add(event string, fn Listener) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = subscription{event: event, fn: fn}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

// Dispatch invokes every listener registered for event. Listeners may
// detach themselves while being dispatched.
func (l *Listeners) Dispatch(event, target string) {
	l.mu.Lock()
	fns := make([]Listener, 0, len(l.subs))
	for _, s := range l.subs {
		if s.event == event {
			fns = append(fns, s.fn)
		}
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(target)
	}
}

// Len returns the number of attached listeners.
func (l *Listeners) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
