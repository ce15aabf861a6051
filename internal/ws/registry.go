package ws

import "sync"

// Subscriber receives push events for chats it registered interest in.
type Subscriber interface {
	Send(v any)
}

// Registry is the process-wide chat id → subscriber set mapping used for
// broadcast fan-out. Purely in-memory: registrations are lost on reconnect
// and clients re-subscribe. Safe for concurrent add/remove/broadcast from
// many connections.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[Subscriber]struct{}
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]map[Subscriber]struct{})}
}

// Subscribe adds the subscriber to a chat's broadcast set.
func (r *Registry) Subscribe(chatID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[chatID]
	if !ok {
		set = make(map[Subscriber]struct{})
		r.subs[chatID] = set
	}
	set[sub] = struct{}{}
}

// Unsubscribe removes the subscriber from a chat's broadcast set.
func (r *Registry) Unsubscribe(chatID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.subs[chatID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, chatID)
		}
	}
}

// RemoveAll drops the subscriber from every chat. Called on disconnect so
// no dangling broadcast targets remain.
func (r *Registry) RemoveAll(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for chatID, set := range r.subs {
		delete(set, sub)
		if len(set) == 0 {
			delete(r.subs, chatID)
		}
	}
}

// Broadcast delivers a push event to every subscriber of the chat.
// Delivery order across subscribers is unspecified.
func (r *Registry) Broadcast(chatID string, event Notification) {
	r.mu.RLock()
	targets := make([]Subscriber, 0, len(r.subs[chatID]))
	for sub := range r.subs[chatID] {
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	for _, sub := range targets {
		sub.Send(event)
	}
}

// Count reports the size of a chat's subscriber set.
func (r *Registry) Count(chatID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[chatID])
}
