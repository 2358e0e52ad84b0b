package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/vitalink/events"
	"github.com/srg/vitalink/internal/device"
	"github.com/srg/vitalink/internal/testutils"
)

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(s.handleWS))
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastReachesClient(t *testing.T) {
	s := NewServer(testutils.QuietLogger(), ":0")
	conn := dialTestServer(t, s)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	bus := events.NewBus(testutils.QuietLogger())
	s.Attach(bus)
	bus.Publish(events.ConnectionStatus{
		Address: device.Address("AABBCCDDEE01"),
		Name:    "cuff",
		Status:  events.StatusConnected,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Topic   string          `json:"topic"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg, &frame))
	assert.Equal(t, "connection-status", frame.Topic)
	assert.Contains(t, string(frame.Payload), "AABBCCDDEE01")
}

func TestDeadClientIsDropped(t *testing.T) {
	s := NewServer(testutils.QuietLogger(), ":0")
	conn := dialTestServer(t, s)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	conn.Close()
	// The first write after close may still land in the OS buffer, so
	// broadcast until the server notices.
	require.Eventually(t, func() bool {
		s.Broadcast(events.ConnectionStatus{Status: events.StatusDisconnected})
		return s.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPublishAfterShutdownIsSafe(t *testing.T) {
	s := NewServer(testutils.QuietLogger(), ":0")
	bus := events.NewBus(testutils.QuietLogger())
	s.Attach(bus)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	// A late bus event after the pump drained must be discarded, not panic.
	assert.NotPanics(t, func() {
		bus.Publish(events.ConnectionStatus{Status: events.StatusConnecting})
	})
}

func TestBroadcastWithoutClients(t *testing.T) {
	s := NewServer(testutils.QuietLogger(), ":0")
	s.Broadcast(events.ConnectionStatus{Status: events.StatusConnecting})
	assert.Equal(t, 0, s.ClientCount())
}
