package server

import (
	"sync"

	"mediachat/internal/assets"
	"mediachat/pkg/mediatypes"
)

// retention keeps the videos of the visible conversation in an evicting
// store and drops the videos of deleted conversations.
type retention struct {
	store assets.Retainer

	mu       sync.Mutex
	retained map[string]bool
}

func newRetention(store assets.Retainer) *retention {
	return &retention{store: store, retained: make(map[string]bool)}
}

// observe retains every video in snapshot and lifts retention from the rest.
func (r *retention) observe(snapshot mediatypes.Snapshot) {
	visible := make(map[string]bool)
	for _, handle := range videoHandles(snapshot.Messages) {
		visible[handle] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for handle := range r.retained {
		if !visible[handle] {
			r.store.Retain(handle, false)
			delete(r.retained, handle)
		}
	}
	for handle := range visible {
		if !r.retained[handle] {
			r.store.Retain(handle, true)
			r.retained[handle] = true
		}
	}
}

// release drops handles from the store.
func (r *retention) release(handles []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, handle := range handles {
		delete(r.retained, handle)
		r.store.Release(handle)
	}
}

func videoHandles(messages []mediatypes.Message) []string {
	var handles []string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if part.Kind == mediatypes.PartVideo {
				handles = append(handles, part.Content)
			}
		}
	}
	return handles
}
