// Package eventhub dispatches named hooks registered against named events,
// the generalization of mini-rpc's middleware.Chain (ordered composition of
// callbacks around one handler signature) from "wrap a single RPC handler"
// to "call every hook registered against an event name, in registration
// order, ignoring event names with no hooks."
//
// Grounded on the original Python reference's Client/Server add_hook /
// _call_hook methods (hyphen0/hyphen0/client.py, hyphen0/hyphen0/server.py):
// hooks are stored per event under a caller-supplied name so a duplicate
// registration replaces rather than stacks, and every hook for an event
// fires in the order it was added. This package drops the Python original's
// extra "subclass method named _event_<name>" fallback dispatch — Go has no
// dynamic-attribute equivalent, and internal/handshake's static Emitter
// interface already generalizes that half of the pattern.
package eventhub

import "sync"

// Hook is a callback registered against an event name. args mirrors the
// variadic payload the original hooks received (e.g. the selected cipher
// name for "crypt_modeselected").
type Hook func(args ...any)

// Hub is a registry of named hooks; a Client owns one, and a Server shares
// one across all of its connections. The zero value is ready to use. A Hub
// is safe for concurrent use since handshake/endpoint code emits from
// goroutines driving independent sockets.
type Hub struct {
	mu    sync.Mutex
	order map[string][]string
	hooks map[string]map[string]Hook
}

// On registers callable under name for event, replacing any previously
// registered hook with the same name for the same event. Hooks for an event
// fire in the order their name was first added.
func (h *Hub) On(event, name string, callable Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hooks == nil {
		h.hooks = make(map[string]map[string]Hook)
		h.order = make(map[string][]string)
	}
	if h.hooks[event] == nil {
		h.hooks[event] = make(map[string]Hook)
	}
	if _, exists := h.hooks[event][name]; !exists {
		h.order[event] = append(h.order[event], name)
	}
	h.hooks[event][name] = callable
}

// Off removes the hook registered under name for event, if any.
func (h *Hub) Off(event, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hooks[event] == nil {
		return
	}
	delete(h.hooks[event], name)
	names := h.order[event]
	for i, n := range names {
		if n == name {
			h.order[event] = append(names[:i], names[i+1:]...)
			break
		}
	}
}

// Emit calls every hook registered for event, in registration order, with
// args. An event with no registered hooks is a silent no-op, matching the
// original reference's "no hook" early return. Emit satisfies
// internal/handshake.Emitter.
func (h *Hub) Emit(event string, args ...any) {
	h.mu.Lock()
	names := append([]string(nil), h.order[event]...)
	hooks := h.hooks[event]
	h.mu.Unlock()

	for _, name := range names {
		if hook, ok := hooks[name]; ok {
			hook(args...)
		}
	}
}
