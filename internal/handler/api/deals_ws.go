package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	applogger "PricePulse/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var _ domrepo.AlertPublisher = (*DealHub)(nil)

// DealHub streams deal alerts to websocket clients. Clients may restrict the
// stream with ?product_id=P001,P002.
type DealHub struct {
	clients    map[*wsClient]struct{}
	broadcast  chan *models.DealAlert
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	mu         sync.RWMutex
	l          *applogger.Logger
}

type wsClient struct {
	hub      *DealHub
	conn     *websocket.Conn
	send     chan []byte
	products map[string]bool // empty = all
}

func NewDealHub(l *applogger.Logger) *DealHub {
	if l == nil {
		l = applogger.Nop()
	}
	return &DealHub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan *models.DealAlert, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		l:          l,
	}
}

// Run owns client registration and fan-out until ctx is cancelled.
func (h *DealHub) Run(ctx context.Context) error {
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
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.l.Info("ws: client connected", applogger.Int("total_clients", h.ClientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.l.Info("ws: client disconnected", applogger.Int("total_clients", h.ClientCount()))

		case a := <-h.broadcast:
			msg, err := json.Marshal(map[string]any{"type": "deal.detected", "payload": a})
			if err != nil {
				h.l.Error("ws: marshal alert", applogger.Error(err))
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(a.ProductID) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					h.l.Warn("ws: dropping alert for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// PublishDeal queues an alert for broadcast; it never blocks the caller.
func (h *DealHub) PublishDeal(_ context.Context, a *models.DealAlert) error {
	select {
	case h.broadcast <- a:
	default:
		h.l.Warn("ws: broadcast queue full, alert dropped", applogger.String("id", a.ID))
	}
	return nil
}

func (h *DealHub) Close() error { return nil }

func (h *DealHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client.
// GET /ws/deals
func (h *DealHub) ServeWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("ws: upgrade failed", applogger.Error(err))
		return nil
	}
	cl := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBufferSize), products: map[string]bool{}}
	for _, id := range strings.Split(c.QueryParam("product_id"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			cl.products[id] = true
		}
	}
	select {
	case h.register <- cl:
	case <-h.done:
		_ = conn.Close()
		return nil
	}
	go cl.writePump()
	go cl.readPump()
	return nil
}

func (c *wsClient) wants(productID string) bool {
	return len(c.products) == 0 || c.products[productID]
}

// readPump only services control frames; inbound messages are ignored.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.l.Warn("ws: unexpected close", applogger.Error(err))
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
