package conversation

import (
	"sync"

	"mediachat/pkg/mediatypes"
)

// EventKind identifies what changed in a conversation.
type EventKind string

// Event kinds.
const (
	EventMessage EventKind = "message"
	EventStatus  EventKind = "status"
)

// Event describes one change. Message is set for EventMessage, Status for
// EventStatus.
type Event struct {
	ConversationID string
	Kind           EventKind
	Message        mediatypes.Message
	Status         mediatypes.GenerationStatus
}

// Observer receives conversation events. Observers are called synchronously
// and must not call Submit on the same conversation.
type Observer func(Event)

type observerList struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]Observer
	order  []int
}

func (l *observerList) add(fn Observer) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.byID == nil {
		l.byID = make(map[int]Observer)
	}
	id := l.nextID
	l.nextID++
	l.byID[id] = fn
	l.order = append(l.order, id)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.byID, id)
		for i, existing := range l.order {
			if existing == id {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}
}

func (l *observerList) notify(event Event) {
	l.mu.RLock()
	observers := make([]Observer, 0, len(l.order))
	for _, id := range l.order {
		observers = append(observers, l.byID[id])
	}
	l.mu.RUnlock()

	for _, fn := range observers {
		fn(event)
	}
}
