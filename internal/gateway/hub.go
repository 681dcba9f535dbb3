// Package gateway streams run events to dashboard WebSocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"forwardtest/internal/notification"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Channel names used in envelopes.
const (
	ChannelResults = "results"
)

// NotifyChannel returns the channel a notification kind is broadcast on.
func NotifyChannel(k notification.Kind) string { return "notify:" + string(k) }

// Hub fans envelopes out to connected clients. New clients receive the
// latest envelope of every channel; clients that reconnect with ?since=<seq>
// get the buffered envelopes after seq instead.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64
	replay  *ReplayBuffer

	// OnClientCount is called with the new count on every connect/disconnect.
	OnClientCount func(n int)
}

type latestEntry struct {
	Envelope []byte
	Seq      int64
}

var _ notification.Notifier = (*Hub)(nil)

// NewHub creates a hub keeping replaySize envelopes for reconnecting clients.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(replaySize),
	}
}

// Send broadcasts a notification message, satisfying notification.Notifier.
func (h *Hub) Send(ctx context.Context, msg notification.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return &notification.Error{Kind: msg.Kind, Channel: "websocket", Err: err}
	}
	h.Broadcast(NotifyChannel(msg.Kind), data)
	return nil
}

// BroadcastJSON marshals v and broadcasts it on channel.
func (h *Hub) BroadcastJSON(channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gateway marshal %s: %w", channel, err)
	}
	h.Broadcast(channel, data)
	return nil
}

// Publish broadcasts run results on ChannelResults.
func (h *Hub) Publish(ctx context.Context, v any) error {
	return h.BroadcastJSON(ChannelResults, v)
}

// Broadcast wraps data in an envelope and queues it to every client.
// Slow clients whose buffer is full miss the envelope.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	env := buildEnvelope(channel, data, now, h.seq)
	h.latest[channel] = latestEntry{Envelope: env, Seq: h.seq}
	h.replay.Push(h.seq, env)

	for client := range h.clients {
		select {
		case client.send <- env:
		default:
		}
	}
}

// buildEnvelope hand-crafts {"channel":...,"data":...,"ts":...,"seq":N}.
// data must be valid JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	ch, _ := json.Marshal(channel)
	buf := make([]byte, 0, len(ch)+len(data)+96)
	buf = append(buf, `{"channel":`...)
	buf = append(buf, ch...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// HandleWS upgrades the request and registers the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	var since int64 = -1
	if s := r.URL.Query().Get("since"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
			since = v
		}
	}
	h.register(conn, since)
}

func (h *Hub) register(conn *websocket.Conn, since int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	// Initial state is queued under the same lock Broadcast takes, so
	// replayed envelopes always precede live ones.
	h.mu.Lock()
	for _, env := range h.initialState(since) {
		select {
		case client.send <- env:
		default:
		}
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go client.writePump()
	go client.readPump()
}

// initialState returns what a new client is sent first. Callers hold h.mu.
func (h *Hub) initialState(since int64) [][]byte {
	if since >= 0 {
		entries := h.replay.Since(since)
		out := make([][]byte, len(entries))
		for i, e := range entries {
			out[i] = e.Data
		}
		return out
	}
	entries := make([]latestEntry, 0, len(h.latest))
	for _, e := range h.latest {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Envelope
	}
	return out
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}
