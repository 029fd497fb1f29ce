package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	sseChannelBuffer = 16
	sseHeartbeat     = 30 * time.Second
)

// message is one SSE frame.
type message struct {
	event string
	data  []byte
}

// subscriber is a single SSE connection.
type subscriber struct {
	ch     chan message
	gameID string
}

// Broadcaster fans game events out to SSE subscribers.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribe adds a subscriber for a game and returns it.
func (b *Broadcaster) Subscribe(gameID string) *subscriber {
	s := &subscriber{
		ch:     make(chan message, sseChannelBuffer),
		gameID: gameID,
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(s *subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to every subscriber of a game. It never blocks:
// slow subscribers miss events.
func (b *Broadcaster) Publish(gameID string, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("game", gameID).Msg("marshal event")
		return
	}
	msg := message{event: evt.Type, data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if s.gameID != gameID {
			continue
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
}

// Publisher returns a publish func bound to one game.
func (b *Broadcaster) Publisher(gameID string) func(Event) {
	return func(e Event) { b.Publish(gameID, e) }
}

// SubscriberCount returns the number of subscribers for a game.
func (b *Broadcaster) SubscriberCount(gameID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for s := range b.subs {
		if s.gameID == gameID {
			n++
		}
	}
	return n
}

// ServeSSE streams a game's events until the client goes away. initial,
// if non-nil, is sent first.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, gameID string, initial func() (string, any)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := b.Subscribe(gameID)
	defer b.Unsubscribe(s)

	if initial != nil {
		name, v := initial()
		if data, err := json.Marshal(v); err == nil {
			writeSSE(w, message{event: name, data: data})
			flusher.Flush()
		}
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-s.ch:
			if !ok {
				return
			}
			writeSSE(w, msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, m message) {
	if m.event != "" {
		fmt.Fprintf(w, "event: %s\n", m.event)
	}
	fmt.Fprintf(w, "data: %s\n\n", m.data)
}
