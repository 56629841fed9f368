package eventstream_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/coredefense/internal/eventstream"
	"github.com/cory-johannsen/coredefense/internal/game/events"
)

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + eventstream.Path + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var e events.Event
	require.NoError(t, json.Unmarshal(msg, &e))
	return e
}

func TestServer_StreamsEventsAsJSON(t *testing.T) {
	bus := events.NewBus(nil)
	srv := eventstream.NewServer(bus, 16, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	sent := events.New(events.WaveStarted, 17)
	sent.Wave, sent.Amount = 2, 12
	bus.Emit(sent)

	got := readEvent(t, conn)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, events.WaveStarted, got.Type)
	assert.Equal(t, int64(17), got.Tick)
	assert.Equal(t, 2, got.Wave)
	assert.Equal(t, 12, got.Amount)
}

func TestServer_FiltersByTypeQuery(t *testing.T) {
	bus := events.NewBus(nil)
	srv := eventstream.NewServer(bus, 16, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "?types=core_damaged,core_destroyed")
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	bus.Emit(events.New(events.WaveWarning, 1))
	bus.Emit(events.New(events.HostileKilled, 2))
	hit := events.New(events.CoreDamaged, 3)
	hit.Amount = 4
	bus.Emit(hit)

	got := readEvent(t, conn)
	assert.Equal(t, events.CoreDamaged, got.Type)
	assert.Equal(t, 4, got.Amount)
}

func TestServer_DisconnectReleasesSubscription(t *testing.T) {
	bus := events.NewBus(nil)
	srv := eventstream.NewServer(bus, 16, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts, "")
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestNewServer_PanicsOnNilSource(t *testing.T) {
	assert.Panics(t, func() { eventstream.NewServer(nil, 1, nil) })
}
