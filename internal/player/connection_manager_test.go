package player

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/harmony-go/internal/apperrors"
)

func newTestServer(t *testing.T) (*ConnectionManager, *httptest.Server) {
	t.Helper()
	manager := NewConnectionManager(Options{PingInterval: time.Hour})
	router := chi.NewRouter()
	RegisterRoutes(router, manager)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		manager.Close()
		server.Close()
	})
	return manager, server
}

func dialPlayer(t *testing.T, manager *ConnectionManager, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/player"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, manager.IsConnected, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestConnectionManager_Deliver_SendsMessage(t *testing.T) {
	manager, server := newTestServer(t)
	conn := dialPlayer(t, manager, server)

	err := manager.Deliver(context.Background(), Delivery{PlaybackID: "p1", Path: "/tmp/x.opus", Title: "Song by Artist"})
	require.NoError(t, err)

	msg := readMessage(t, conn)
	require.Equal(t, "deliver", msg["type"])
	require.Equal(t, "p1", msg["playbackId"])
	require.Equal(t, "/audio?v=p1", msg["url"])
	require.Equal(t, "Song by Artist", msg["title"])
}

func TestConnectionManager_Controls_SendMessages(t *testing.T) {
	manager, server := newTestServer(t)
	conn := dialPlayer(t, manager, server)
	ctx := context.Background()

	require.NoError(t, manager.Pause(ctx))
	require.Equal(t, "pause", readMessage(t, conn)["type"])
	require.True(t, manager.GetStatus().Paused)

	require.NoError(t, manager.Resume(ctx))
	require.Equal(t, "resume", readMessage(t, conn)["type"])
	require.False(t, manager.GetStatus().Paused)

	require.NoError(t, manager.SetVolume(ctx, 42))
	msg := readMessage(t, conn)
	require.Equal(t, "setVolume", msg["type"])
	require.EqualValues(t, 42, msg["volume"])
}

func TestConnectionManager_Ended_NotifiesSubscribers(t *testing.T) {
	manager, server := newTestServer(t)
	ended := make(chan string, 1)
	manager.OnEnded(func(id string) { ended <- id })
	conn := dialPlayer(t, manager, server)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: TypeEnded, PlaybackID: "p7"}))

	select {
	case id := <-ended:
		require.Equal(t, "p7", id)
	case <-time.After(2 * time.Second):
		t.Fatal("ended was not delivered")
	}
}

func TestConnectionManager_Deliver_NotConnected(t *testing.T) {
	manager := NewConnectionManager(Options{})

	err := manager.Deliver(context.Background(), Delivery{PlaybackID: "p1", Title: "Song"})

	require.ErrorIs(t, err, apperrors.ErrPlayerNotConnected)
	current, ok := manager.Current()
	require.True(t, ok)
	require.Equal(t, "p1", current.PlaybackID)
}

func TestConnectionManager_Ready_ReplaysState(t *testing.T) {
	manager, server := newTestServer(t)
	ctx := context.Background()
	_ = manager.SetVolume(ctx, 30)
	_ = manager.Deliver(ctx, Delivery{PlaybackID: "p2", Path: "/tmp/y.opus", Title: "Later Song"})

	conn := dialPlayer(t, manager, server)
	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: TypeReady}))

	volume := readMessage(t, conn)
	require.Equal(t, "setVolume", volume["type"])
	require.EqualValues(t, 30, volume["volume"])

	deliver := readMessage(t, conn)
	require.Equal(t, "deliver", deliver["type"])
	require.Equal(t, "p2", deliver["playbackId"])
}

func TestConnectionManager_SetConnection_ReplacesPrevious(t *testing.T) {
	manager, server := newTestServer(t)
	first := dialPlayer(t, manager, server)
	second := dialPlayer(t, manager, server)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	require.NoError(t, manager.Pause(context.Background()))
	require.Equal(t, "pause", readMessage(t, second)["type"])
	require.True(t, manager.IsConnected())
}

func TestConnectionManager_Disconnect(t *testing.T) {
	manager, server := newTestServer(t)
	conn := dialPlayer(t, manager, server)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return !manager.IsConnected() }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, manager.Pause(context.Background()), apperrors.ErrPlayerNotConnected)
}

func TestRoutes_Audio(t *testing.T) {
	manager, server := newTestServer(t)
	path := filepath.Join(t.TempDir(), "harmony-youtube-dQw4w9WgXcQ.opus")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))
	_ = manager.Deliver(context.Background(), Delivery{PlaybackID: "p1", Path: path, Title: "Song"})

	resp, err := http.Get(server.URL + "/audio?v=p1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "0123456789", string(body))

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/audio?v=p1", nil)
	req.Header.Set("Range", "bytes=2-4")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	require.Equal(t, "234", string(body))

	resp, err = http.Get(server.URL + "/audio?v=stale")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_Audio_NothingDelivered(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/audio")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_Page(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "/ws/player")
}
