package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPresence struct {
	mu      sync.Mutex
	online  []uint
	offline []uint
}

func (p *recordingPresence) Heartbeat(ctx context.Context, userID uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = append(p.online, userID)
	return nil
}

func (p *recordingPresence) Disconnected(ctx context.Context, userID uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offline = append(p.offline, userID)
	return nil
}

func (p *recordingPresence) offlineUsers() []uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint(nil), p.offline...)
}

// serve exposes hub on a test server; the user id comes from ?uid=.
func serve(t *testing.T, hub *Hub) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := strconv.Atoi(r.URL.Query().Get("uid"))
		if err != nil || uid == 0 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = hub.ServeWS(w, r, uint(uid))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, uid uint) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?uid=" + strconv.Itoa(int(uid))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitConnected(t *testing.T, hub *Hub, uid uint, n int) {
	require.Eventually(t, func() bool { return hub.Connections(uid) == n }, time.Second, 5*time.Millisecond)
}

func readEvent(t *testing.T, conn *websocket.Conn, v interface{}) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestUnauthenticatedConnectionIsRefused(t *testing.T) {
	srv := serve(t, NewHub(Options{}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendToUserReachesEveryConnection(t *testing.T) {
	hub := NewHub(Options{})
	srv := serve(t, hub)
	a1 := dial(t, srv, 1)
	a2 := dial(t, srv, 1)
	waitConnected(t, hub, 1, 2)

	hub.SendToUser(context.Background(), 1, NewErrorEvent("hello"))

	for _, conn := range []*websocket.Conn{a1, a2} {
		var ev ErrorEvent
		readEvent(t, conn, &ev)
		assert.Equal(t, "hello", ev.Message)
	}
}

func TestInboundChatFrameIsHandedToHandler(t *testing.T) {
	got := make(chan Inbound, 1)
	hub := NewHub(Options{OnMessage: func(ctx context.Context, userID uint, in Inbound) error {
		assert.Equal(t, uint(3), userID)
		got <- in
		return nil
	}})
	srv := serve(t, hub)
	conn := dial(t, srv, 3)

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeChatMessage, ReceiverID: 4, Message: "hi"}))

	select {
	case in := <-got:
		assert.Equal(t, uint(4), in.ReceiverID)
		assert.Equal(t, "hi", in.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
}

func TestHandlerErrorGoesBackToSenderOnly(t *testing.T) {
	hub := NewHub(Options{OnMessage: func(ctx context.Context, userID uint, in Inbound) error {
		return errors.New("You can only chat with your friends")
	}})
	srv := serve(t, hub)
	conn := dial(t, srv, 5)

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeChatMessage, ReceiverID: 6, Message: "hi"}))

	var ev ErrorEvent
	readEvent(t, conn, &ev)
	assert.Equal(t, TypeError, ev.Type)
	assert.Equal(t, "You can only chat with your friends", ev.Message)
}

func TestInboundRateLimit(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	hub := NewHub(Options{MessagesPerSecond: 0.001, Burst: 1, OnMessage: func(ctx context.Context, userID uint, in Inbound) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}})
	srv := serve(t, hub)
	conn := dial(t, srv, 7)

	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeChatMessage, ReceiverID: 8, Message: "one"}))
	require.NoError(t, conn.WriteJSON(Inbound{Type: TypeChatMessage, ReceiverID: 8, Message: "two"}))

	var ev ErrorEvent
	readEvent(t, conn, &ev)
	assert.Contains(t, ev.Message, "rate limit")
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestLastDisconnectMarksUserOffline(t *testing.T) {
	presence := &recordingPresence{}
	hub := NewHub(Options{Presence: presence})
	srv := serve(t, hub)
	c1 := dial(t, srv, 9)
	c2 := dial(t, srv, 9)
	waitConnected(t, hub, 9, 2)

	c1.Close()
	waitConnected(t, hub, 9, 1)
	assert.Empty(t, presence.offlineUsers())

	c2.Close()
	waitConnected(t, hub, 9, 0)
	require.Eventually(t, func() bool { return len(presence.offlineUsers()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint{9}, presence.offlineUsers())
}

func TestRedisRelayDeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return rdb
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := NewHub(Options{Redis: newClient()})
	receiver := NewHub(Options{Redis: newClient()})
	require.NoError(t, sender.Start(ctx))
	require.NoError(t, receiver.Start(ctx))

	srv := serve(t, receiver)
	conn := dial(t, srv, 11)
	waitConnected(t, receiver, 11, 1)

	sender.SendToUser(ctx, 11, NewErrorEvent("relayed"))

	var ev ErrorEvent
	readEvent(t, conn, &ev)
	assert.Equal(t, "relayed", ev.Message)
}

func TestFullQueueClosesClient(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	assert.True(t, c.trySend([]byte("a")))
	assert.False(t, c.trySend([]byte("b")))
	assert.False(t, c.trySend([]byte("c")))

	_, ok := <-c.send
	assert.True(t, ok)
	_, ok = <-c.send
	assert.False(t, ok)
}
