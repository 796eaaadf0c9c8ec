package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/anonto42/socio/backend/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultChannel = "socio:ws"

// InboundHandler persists a chat frame received from userID.
type InboundHandler func(ctx context.Context, userID uint, in Inbound) error

// PresenceHook is told when a user's first connection on this hub opens and
// their last one on this hub closes. Connections on other instances are not
// counted.
type PresenceHook interface {
	Heartbeat(ctx context.Context, userID uint) error
	Disconnected(ctx context.Context, userID uint) error
}

// Options configures a Hub.
type Options struct {
	// Redis enables cross-instance delivery. Nil delivers locally only.
	Redis             *redis.Client
	Channel           string
	SendBuffer        int
	MessagesPerSecond float64
	Burst             int
	OnMessage         InboundHandler
	Presence          PresenceHook
	Log               *zap.Logger
}

// Hub tracks live websocket connections per user. Delivery is at-most-once:
// a user with no connection misses the event, and a connection whose send
// queue is full is dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*Client]struct{}

	rdb        *redis.Client
	channel    string
	sendBuffer int
	limit      rate.Limit
	burst      int
	onMessage  InboundHandler
	presence   PresenceHook
	log        *zap.Logger
	upgrader   websocket.Upgrader
}

func NewHub(opts Options) *Hub {
	if opts.Channel == "" {
		opts.Channel = defaultChannel
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[uint]map[*Client]struct{}),
		rdb:        opts.Redis,
		channel:    opts.Channel,
		sendBuffer: opts.SendBuffer,
		limit:      rate.Limit(opts.MessagesPerSecond),
		burst:      opts.Burst,
		onMessage:  opts.OnMessage,
		presence:   opts.Presence,
		log:        opts.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetInboundHandler sets the handler for chat frames.
func (h *Hub) SetInboundHandler(fn InboundHandler) {
	h.onMessage = fn
}

// SetPresence sets the presence hook.
func (h *Hub) SetPresence(p PresenceHook) {
	h.presence = p
}

type relayFrame struct {
	UserID uint            `json:"u"`
	Data   json.RawMessage `json:"d"`
}

// SendToUser delivers event to every connection of userID on any instance.
func (h *Hub) SendToUser(ctx context.Context, userID uint, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to encode websocket event", zap.Error(err))
		return
	}
	if h.rdb != nil {
		frame, _ := json.Marshal(relayFrame{UserID: userID, Data: data})
		err := h.rdb.Publish(ctx, h.channel, frame).Err()
		if err == nil {
			return
		}
		h.log.Warn("redis relay failed, delivering locally", zap.Error(err))
	}
	h.deliverLocal(userID, data)
}

// Start subscribes to the relay channel and delivers relayed events until
// ctx ends. Without Redis it returns immediately.
func (h *Hub) Start(ctx context.Context) error {
	if h.rdb == nil {
		return nil
	}
	sub := h.rdb.Subscribe(ctx, h.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var frame relayFrame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					h.log.Warn("dropping malformed relay frame", zap.Error(err))
					continue
				}
				h.deliverLocal(frame.UserID, frame.Data)
			}
		}
	}()
	return nil
}

func (h *Hub) deliverLocal(userID uint, data []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.trySend(data) {
			metrics.WSDropped.Inc()
			h.log.Warn("dropping slow websocket client", zap.Uint("user_id", userID))
			h.unregister(c)
		}
	}
}

// Connections returns the number of live connections of userID on this instance.
func (h *Hub) Connections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	if h.presence != nil {
		if err := h.presence.Heartbeat(context.Background(), c.userID); err != nil {
			h.log.Warn("failed to mark user online", zap.Uint("user_id", c.userID), zap.Error(err))
		}
	}
}

// unregister removes c and closes its queue. Safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	_, present := set[c]
	last := false
	if present {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
			last = true
		}
	}
	h.mu.Unlock()

	c.closeSend()
	if !present {
		return
	}
	metrics.WSConnections.Dec()
	if last && h.presence != nil {
		if err := h.presence.Disconnected(context.Background(), c.userID); err != nil {
			h.log.Warn("failed to mark user offline", zap.Uint("user_id", c.userID), zap.Error(err))
		}
	}
}

// ServeWS upgrades an authenticated request and runs the connection until
// it closes. Authentication must happen before calling it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		hub:     h,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, h.sendBuffer),
		limiter: rate.NewLimiter(h.limit, h.burst),
	}
	h.register(c)
	go c.writePump()
	c.readPump()
	return nil
}

// Shutdown closes every connection on this instance.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]*Client, 0)
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

