package live_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"crmapp/internal/live"
)

type harness struct {
	hub    *live.Hub
	srv    *httptest.Server
	cancel context.CancelFunc
	stop   chan struct{}
}

// newHarness serves the hub at /ws?user=N&workspace=M.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{hub: live.NewHub(nil, nil), stop: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.hub.Run(ctx)
		close(h.stop)
	}()
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		ws, _ := strconv.ParseInt(r.URL.Query().Get("workspace"), 10, 64)
		_ = h.hub.Serve(w, r, user, ws, nil)
	}))
	return h
}

func (h *harness) close() {
	h.cancel()
	<-h.stop
	h.srv.Close()
}

func (h *harness) dial(t *testing.T, user, workspace int64) *websocket.Conn {
	t.Helper()
	before := h.hub.Clients()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?user=" + strconv.FormatInt(user, 10) + "&workspace=" + strconv.FormatInt(workspace, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.hub.Clients() == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) live.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg live.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func silent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestPublishReachesOtherMembersOfTheWorkspace(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	defer h.close()

	origin := h.dial(t, 1, 10)
	defer origin.Close()
	peer := h.dial(t, 2, 10)
	defer peer.Close()
	elsewhere := h.dial(t, 3, 20)
	defer elsewhere.Close()

	h.hub.Publish(10, 1)

	msg := read(t, peer)
	assert.Equal(t, live.Message{Type: live.TypeReload, Workspace: 10, User: 1}, msg)
	silent(t, origin)
	silent(t, elsewhere)
}

func TestPingAndSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	defer h.close()

	conn := h.dial(t, 2, 20)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(live.Message{Type: live.TypeSubscribe, Workspace: 10}))
	require.NoError(t, conn.WriteJSON(live.Message{Type: live.TypePing}))
	assert.Equal(t, live.TypePong, read(t, conn).Type)

	h.hub.Publish(10, 1)
	assert.Equal(t, int64(10), read(t, conn).Workspace)
}

func TestDisconnectUnregisters(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	defer h.close()

	conn := h.dial(t, 1, 10)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := live.NewHub(nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(1, 1)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}

func TestCrossOriginRejected(t *testing.T) {
	hub := live.NewHub(nil, func(origin string) bool { return origin == "https://allowed.example" })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, 1, 1, nil)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://allowed.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestSubscribeLimitedToViewerWorkspaces(t *testing.T) {
	defer goleak.VerifyNone(t)
	hub := live.NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, 2, 20, func(id int64) bool { return id == 10 || id == 20 })
	}))
	defer func() {
		cancel()
		<-stopped
		srv.Close()
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(live.Message{Type: live.TypeSubscribe, Workspace: 30}))
	require.NoError(t, conn.WriteJSON(live.Message{Type: live.TypePing}))
	assert.Equal(t, live.TypePong, read(t, conn).Type)

	// Events are delivered in order, so the first one read proves 30 was
	// never forwarded.
	hub.Publish(30, 1)
	hub.Publish(20, 1)
	assert.Equal(t, int64(20), read(t, conn).Workspace)

	require.NoError(t, conn.WriteJSON(live.Message{Type: live.TypeSubscribe, Workspace: 10}))
	require.NoError(t, conn.WriteJSON(live.Message{Type: live.TypePing}))
	assert.Equal(t, live.TypePong, read(t, conn).Type)
	hub.Publish(10, 1)
	assert.Equal(t, int64(10), read(t, conn).Workspace)
}
