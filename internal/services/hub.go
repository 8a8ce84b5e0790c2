package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/match-predictor/internal/models"
)

const (
	EventPredictionUpdate = "prediction_update"
	EventConnectionStatus = "connection_status"

	clientSendBuffer = 256
	stalePeriod      = 2 * time.Minute
	staleSweepEvery  = 30 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (should be restricted in production)
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client is one dashboard WebSocket connection. A client with no pair
// subscriptions receives every prediction update; subscribing narrows the
// stream to the chosen fixtures.
type Client struct {
	ID       string
	pairs    map[string]bool // guarded by Hub.mutex
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	lastSeen int64 // unix nanos, atomic
}

func (c *Client) touch() {
	atomic.StoreInt64(&c.lastSeen, time.Now().UnixNano())
}

func (c *Client) seenAt() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastSeen))
}

// HubMessage is the envelope pushed to dashboard clients.
type HubMessage struct {
	Type      string      `json:"type"`
	PairKey   string      `json:"pair_key,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains active WebSocket connections and fans prediction and
// connection-status events out to them.
type Hub struct {
	clients     map[*Client]bool
	pairClients map[string][]*Client
	broadcast   chan *HubMessage
	register    chan *Client
	unregister  chan *Client
	stop        chan struct{}
	stopOnce    sync.Once
	logger      *logrus.Logger
	mutex       sync.RWMutex
}

// NewHub creates a hub; call Run in its own goroutine to start it.
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		pairClients: make(map[string][]*Client),
		broadcast:   make(chan *HubMessage, clientSendBuffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		stop:        make(chan struct{}),
		logger:      logger,
	}
}

// Run handles registration, broadcasts and stale-client sweeps until Stop.
func (h *Hub) Run() {
	ticker := time.NewTicker(staleSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.sweepStaleClients()

		case <-h.stop:
			return
		}
	}
}

// Stop ends the Run loop. Connected clients are closed by their own pumps.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mutex.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":     client.ID,
		"total_clients": total,
	}).Info("WebSocket client connected")

	h.sendToClient(client, &HubMessage{
		Type:      "connected",
		Data:      map[string]interface{}{"client_id": client.ID},
		Timestamp: time.Now(),
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.Send)

	for pairKey := range client.pairs {
		h.dropPairSubscriptionLocked(client, pairKey)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":     client.ID,
		"total_clients": total,
	}).Info("WebSocket client disconnected")
}

func (h *Hub) dropPairSubscriptionLocked(client *Client, pairKey string) {
	subscribers := h.pairClients[pairKey]
	for i, c := range subscribers {
		if c == client {
			h.pairClients[pairKey] = append(subscribers[:i], subscribers[i+1:]...)
			break
		}
	}
	if len(h.pairClients[pairKey]) == 0 {
		delete(h.pairClients, pairKey)
	}
}

func (h *Hub) broadcastMessage(message *HubMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		// Pair-scoped events skip clients subscribed elsewhere.
		if message.PairKey != "" && len(client.pairs) > 0 && !client.pairs[message.PairKey] {
			continue
		}
		h.sendLocked(client, data)
	}
}

// sendToClient delivers one message if the client is still registered. The
// read lock excludes unregistration, so the send channel cannot close
// underneath us.
func (h *Hub) sendToClient(client *Client, message *HubMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if !h.clients[client] {
		return
	}
	h.sendLocked(client, data)
}

func (h *Hub) sendLocked(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.logger.WithField("client_id", client.ID).Debug("Dropping message for slow WebSocket client")
	}
}

func (h *Hub) sweepStaleClients() {
	now := time.Now()

	h.mutex.RLock()
	var stale []*Client
	for client := range h.clients {
		if now.Sub(client.seenAt()) > stalePeriod {
			stale = append(stale, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range stale {
		h.unregisterClient(client)
	}
	if len(stale) > 0 {
		h.logger.WithField("stale_clients", len(stale)).Debug("Removed stale WebSocket clients")
	}
}

// HandleWebSocket upgrades the request and runs the client's pumps.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		ID:    uuid.NewString(),
		pairs: make(map[string]bool),
		Conn:  conn,
		Send:  make(chan []byte, clientSendBuffer),
		Hub:   h,
	}
	client.touch()

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastPredictionUpdate pushes a finished prediction to subscribers.
// Safe to call from any goroutine; drops the event if the hub is saturated.
func (h *Hub) BroadcastPredictionUpdate(pairKey string, prediction *models.Prediction) {
	h.enqueue(&HubMessage{
		Type:      EventPredictionUpdate,
		PairKey:   pairKey,
		Data:      prediction,
		Timestamp: time.Now(),
	})
}

// BroadcastConnectionStatus pushes a realtime-feed status change to every
// connected client.
func (h *Hub) BroadcastConnectionStatus(status models.ConnectionStatus, note string) {
	h.enqueue(&HubMessage{
		Type: EventConnectionStatus,
		Data: map[string]interface{}{
			"status": status,
			"note":   note,
		},
		Timestamp: time.Now(),
	})
}

func (h *Hub) enqueue(message *HubMessage) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.WithField("type", message.Type).Warn("Hub broadcast queue full, dropping event")
	}
}

func (h *Hub) subscribe(client *Client, pairKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if client.pairs[pairKey] {
		return
	}
	client.pairs[pairKey] = true
	h.pairClients[pairKey] = append(h.pairClients[pairKey], client)
}

func (h *Hub) unsubscribe(client *Client, pairKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !client.pairs[pairKey] {
		return
	}
	delete(client.pairs, pairKey)
	h.dropPairSubscriptionLocked(client, pairKey)
}

// GetConnectionCount returns the total number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// PairSubscribers returns how many clients follow the given pair.
func (h *Hub) PairSubscribers(pairKey string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.pairClients[pairKey])
}

// readPump pumps messages from the WebSocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.stop:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Error("WebSocket error")
			}
			break
		}
		c.handleIncomingMessage(message)
		c.touch()
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.WithError(err).Debug("Failed to write WebSocket message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleIncomingMessage processes subscribe/unsubscribe/ping frames sent by
// the dashboard.
func (c *Client) handleIncomingMessage(message []byte) {
	var clientMsg struct {
		Type     string `json:"type"`
		HomeTeam string `json:"home_team"`
		AwayTeam string `json:"away_team"`
	}
	if err := json.Unmarshal(message, &clientMsg); err != nil {
		c.Hub.logger.WithError(err).Warn("Failed to parse client message")
		return
	}

	switch clientMsg.Type {
	case "subscribe":
		if clientMsg.HomeTeam == "" || clientMsg.AwayTeam == "" {
			return
		}
		pairKey := models.PairKey(clientMsg.HomeTeam, clientMsg.AwayTeam)
		c.Hub.subscribe(c, pairKey)
		c.Hub.logger.WithFields(logrus.Fields{
			"client_id": c.ID,
			"pair_key":  pairKey,
		}).Debug("Client subscribed to pair")

	case "unsubscribe":
		if clientMsg.HomeTeam == "" || clientMsg.AwayTeam == "" {
			return
		}
		pairKey := models.PairKey(clientMsg.HomeTeam, clientMsg.AwayTeam)
		c.Hub.unsubscribe(c, pairKey)
		c.Hub.logger.WithFields(logrus.Fields{
			"client_id": c.ID,
			"pair_key":  pairKey,
		}).Debug("Client unsubscribed from pair")

	case "ping":
		c.Hub.sendToClient(c, &HubMessage{
			Type:      "pong",
			Data:      map[string]interface{}{"timestamp": time.Now().Unix()},
			Timestamp: time.Now(),
		})
	}
}
