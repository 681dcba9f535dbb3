package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forwardtest/internal/notification"
)

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 1, 0, time.UTC)
	buf := buildEnvelope(`notify:"odd"`, []byte(`{"x":1}`), now, 42)

	var env envelope
	require.NoError(t, json.Unmarshal(buf, &env), "raw: %s", buf)
	assert.Equal(t, `notify:"odd"`, env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.JSONEq(t, `{"x":1}`, string(env.Data))

	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}

func startHub(t *testing.T, h *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelopes reads frames until n envelopes arrived; frames may carry
// several newline-separated envelopes.
func readEnvelopes(t *testing.T, conn *websocket.Conn, n int) []envelope {
	t.Helper()
	var out []envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(out) < n {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			var env envelope
			require.NoError(t, json.Unmarshal(line, &env))
			out = append(out, env)
		}
	}
	return out
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_NewClientGetsLatestPerChannel(t *testing.T) {
	h := NewHub(10)
	url := startHub(t, h)

	require.NoError(t, h.BroadcastJSON(ChannelResults, map[string]int{"v": 1}))
	require.NoError(t, h.Send(context.Background(), notification.Message{Kind: notification.KindTradeSignal, Title: "a"}))
	require.NoError(t, h.BroadcastJSON(ChannelResults, map[string]int{"v": 2}))

	conn := dial(t, url)
	got := readEnvelopes(t, conn, 2)

	require.Len(t, got, 2)
	assert.Equal(t, NotifyChannel(notification.KindTradeSignal), got[0].Channel)
	assert.Equal(t, int64(2), got[0].Seq)
	assert.Equal(t, ChannelResults, got[1].Channel)
	assert.JSONEq(t, `{"v":2}`, string(got[1].Data))
}

func TestHub_SinceReplaysBufferedEnvelopes(t *testing.T) {
	h := NewHub(10)
	url := startHub(t, h)

	for i := 1; i <= 4; i++ {
		require.NoError(t, h.BroadcastJSON(ChannelResults, map[string]int{"v": i}))
	}

	conn := dial(t, url+"?since=2")
	got := readEnvelopes(t, conn, 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Seq)
	assert.Equal(t, int64(4), got[1].Seq)
}

func TestHub_LiveBroadcastInOrder(t *testing.T) {
	h := NewHub(10)
	var mu sync.Mutex
	var counts []int
	h.OnClientCount = func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}
	url := startHub(t, h)

	conn := dial(t, url)
	waitClients(t, h, 1)

	for _, title := range []string{"one", "two", "three"} {
		require.NoError(t, h.Send(context.Background(), notification.Message{Kind: notification.KindTradeClose, Title: title}))
	}

	got := readEnvelopes(t, conn, 3)
	var titles []string
	for _, env := range got {
		var msg notification.Message
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		titles = append(titles, msg.Title)
	}
	assert.Equal(t, []string{"one", "two", "three"}, titles)

	conn.Close()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(counts) == 2
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{1, 0}, counts)
	mu.Unlock()
}

func TestHub_PingGetsPong(t *testing.T) {
	h := NewHub(10)
	conn := dial(t, startHub(t, h))
	waitClients(t, h, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":123}`)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	require.NoError(t, json.Unmarshal(frame, &pong))
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, int64(123), pong.Ping)
}
