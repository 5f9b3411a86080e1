// Package events pushes auction changes to subscribers over WebSocket and MQTT.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/metrics"
	"github.com/ukydev/drivebidrent/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

// client is one WebSocket subscription to a single auction.
type client struct {
	id        string
	auctionID string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub tracks WebSocket subscribers per auction and fans events out to them.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) subscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[c.auctionID]
	if !ok {
		set = make(map[*client]struct{})
		h.subs[c.auctionID] = set
	}
	set[c] = struct{}{}
	metrics.WSConnections.Inc()
}

// unsubscribe is safe to call more than once for the same client.
func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[c.auctionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, c.auctionID)
	}
	c.close()
	metrics.WSConnections.Dec()
}

// Subscribers returns the number of live subscriptions to an auction.
func (h *Hub) Subscribers(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[auctionID])
}

// Publish queues event for every subscriber of its auction. Subscribers whose
// buffer is full are dropped; they reconnect and re-read the auction.
func (h *Hub) Publish(_ context.Context, event models.AuctionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("websocket", "error").Inc()
		return err
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.subs[event.AuctionID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.WithFields(log.Fields{"client_id": c.id, "auction_id": c.auctionID}).Warn("Dropping slow WebSocket subscriber")
		h.unsubscribe(c)
	}
	metrics.EventsPublishedTotal.WithLabelValues("websocket", "ok").Inc()
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*client
	for _, set := range h.subs {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unsubscribe(c)
	}
}

// ServeWS upgrades the request and subscribes the connection to the auction
// named by the {id} path value until the peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	auctionID := r.PathValue("id")
	if auctionID == "" {
		http.Error(w, "auction ID required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:        uuid.NewString(),
		auctionID: auctionID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
	h.subscribe(c)
	log.WithFields(log.Fields{"client_id": c.id, "auction_id": auctionID}).Info("WebSocket subscriber connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump only watches for close and pong frames; clients never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unsubscribe(c)
		c.conn.Close()
		log.WithFields(log.Fields{"client_id": c.id, "auction_id": c.auctionID}).Info("WebSocket subscriber disconnected")
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("client_id", c.id).Debug("WebSocket read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.unsubscribe(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unsubscribe(c)
				return
			}
		}
	}
}
