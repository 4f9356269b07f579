package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketkeeper/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64

	defaultReplay = 10
	replayTimeout = 2 * time.Second
)

// ChannelBatch carries one JSON BatchReport per finished batch.
const ChannelBatch = "ch:batch"

// Frame types written to clients.
const (
	FrameStatus  = "keeper_status"
	FrameHistory = "batch_history"
	FrameBatch   = "batch"
)

var busChannels = []string{ChannelBatch}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// BatchHistory supplies the reports replayed to a client when it connects.
type BatchHistory interface {
	ListRecent(ctx context.Context, limit int) ([]domain.BatchReport, error)
}

// Config describes the keeper to connecting clients.
type Config struct {
	Mode      string
	Account   string
	StartedAt time.Time
	// History is optional. Replay caps how many reports it contributes.
	History BatchHistory
	Replay  int
}

// frame is the envelope for every message the hub writes.
type frame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Payload any    `json:"payload"`
}

type event struct {
	channel string
	data    []byte
}

// Hub fans batch reports from the event bus out to WebSocket clients.
type Hub struct {
	bus    domain.EventBus
	cfg    Config
	logger *slog.Logger

	events     chan event
	register   chan *client
	unregister chan *client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(bus domain.EventBus, logger *slog.Logger, cfg Config) *Hub {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	cfg.Account = strings.ToLower(cfg.Account)
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	if cfg.Replay <= 0 {
		cfg.Replay = defaultReplay
	}
	return &Hub{
		bus:        bus,
		cfg:        cfg,
		logger:     logger,
		events:     make(chan event, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run subscribes to the bus and serves clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range busChannels {
		go h.forward(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("clients", n))

		case ev := <-h.events:
			msg, err := json.Marshal(frame{Type: FrameBatch, Channel: ev.channel, Payload: json.RawMessage(ev.data)})
			if err != nil {
				h.logger.Warn("ws: dropping malformed bus event",
					slog.String("channel", ev.channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(ev.channel) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("ws: dropping event for slow client", slog.String("channel", ev.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// forward relays one bus channel into the hub loop.
func (h *Hub) forward(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.events <- event{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client. The status frame
// and any history are queued before registration so they precede live
// events, and so nothing is sent after Run has closed c.send.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{ChannelBatch: true},
	}
	c.queue(h.status())
	if hist := h.history(r.Context()); hist != nil {
		c.queue(*hist)
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) status() frame {
	uptime := max(int64(time.Since(h.cfg.StartedAt).Seconds()), 0)
	return frame{Type: FrameStatus, Payload: map[string]any{
		"mode":           h.cfg.Mode,
		"account":        h.cfg.Account,
		"uptime_seconds": uptime,
		"channels":       busChannels,
	}}
}

// history returns the newest reports, oldest first, or nil when none are
// available.
func (h *Hub) history(ctx context.Context) *frame {
	if h.cfg.History == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, replayTimeout)
	defer cancel()

	reports, err := h.cfg.History.ListRecent(ctx, h.cfg.Replay)
	if err != nil {
		h.logger.Warn("ws: history replay failed", slog.String("error", err.Error()))
		return nil
	}
	if len(reports) == 0 {
		return nil
	}
	ordered := make([]domain.BatchReport, len(reports))
	for i, rep := range reports {
		ordered[len(reports)-1-i] = rep
	}
	return &frame{Type: FrameHistory, Channel: ChannelBatch, Payload: ordered}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg is either {"action":"subscribe","channels":[...]} or the
// short form {"subscribe":[...],"unsubscribe":[...]}.
type subscribeMsg struct {
	Action      string   `json:"action"`
	Channels    []string `json:"channels"`
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

func (c *client) queue(f frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil {
			c.apply(sub)
		}
	}
}

func (c *client) apply(msg subscribeMsg) {
	add := append([]string(nil), msg.Subscribe...)
	remove := append([]string(nil), msg.Unsubscribe...)
	switch msg.Action {
	case "subscribe":
		add = append(add, msg.Channels...)
	case "unsubscribe":
		remove = append(remove, msg.Channels...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range add {
		c.subs[ch] = true
	}
	for _, ch := range remove {
		delete(c.subs, ch)
	}
}

// wants reports whether the client follows channel. A trailing "*" matches
// every channel with that prefix.
func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
