package main

import (
	"sync"
	"time"

	"github.com/dougsko/rx320d/pkg/device"
	"github.com/dougsko/rx320d/pkg/rx320"
)

type smeterMessage struct {
	Type      string    `json:"type"`
	Strength  int       `json:"strength"`
	Timestamp time.Time `json:"timestamp"`
}

// smeterHub fans strength readings out to websocket clients. Slow clients
// miss readings instead of stalling the device read loop.
type smeterHub struct {
	mutex   sync.Mutex
	clients map[chan smeterMessage]struct{}
	closed  bool
}

func newSMeterHub() *smeterHub {
	return &smeterHub{clients: make(map[chan smeterMessage]struct{})}
}

// Observe is registered as a device session observer
func (h *smeterHub) Observe(event device.Event) {
	if event.Kind != rx320.ResponseStrength {
		return
	}
	msg := smeterMessage{Type: "smeter", Strength: event.Strength, Timestamp: event.Time}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *smeterHub) subscribe() (chan smeterMessage, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan smeterMessage, 16)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *smeterHub) unsubscribe(ch chan smeterMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *smeterHub) count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber
func (h *smeterHub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}
