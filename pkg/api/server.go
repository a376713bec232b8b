// Package api exposes the margin engine over WebSocket: clients subscribe to
// engine events and vault telemetry, and issue read queries against committed
// state.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"

	"github.com/helios-fi/margin/pkg/margin"
)

// Message is the wire frame for both directions.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMetrics tracks connection and traffic counters.
type ServerMetrics struct {
	mu                  sync.RWMutex
	ConnectionsTotal    uint64
	ConnectionsActive   int64
	MessagesReceived    uint64
	MessagesSent        uint64
	SubscriptionsActive int64
	ErrorCount          uint64
}

// GetSnapshot returns the counters for the metrics query.
func (sm *ServerMetrics) GetSnapshot() map[string]interface{} {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return map[string]interface{}{
		"connections_total":    sm.ConnectionsTotal,
		"connections_active":   sm.ConnectionsActive,
		"messages_received":    sm.MessagesReceived,
		"messages_sent":        sm.MessagesSent,
		"subscriptions_active": sm.SubscriptionsActive,
		"error_count":          sm.ErrorCount,
	}
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Engine *margin.Engine
	Logger log.Logger

	// TelemetryInterval is the vault share-price broadcast period. Zero
	// disables the broadcaster.
	TelemetryInterval time.Duration
}

// Server fans engine events out to WebSocket subscribers and answers read
// queries. It implements margin.EventSink so it can be handed straight to
// margin.WithEventSink.
type Server struct {
	engine   *margin.Engine
	log      log.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client
	vaults  map[string]margin.Address

	metrics  *ServerMetrics
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server around an engine.
func NewServer(config ServerConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		engine: config.Engine,
		log:    config.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:  make(map[string]*Client),
		vaults:   make(map[string]margin.Address),
		metrics:  NewServerMetrics(),
		interval: config.TelemetryInterval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// NewServerMetrics returns zeroed counters.
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{}
}

// TrackVault registers a vault under a label for the share-price telemetry
// channel "share_price:<label>" and the get_vaults query.
func (s *Server) TrackVault(label string, addr margin.Address) {
	s.mu.Lock()
	s.vaults[label] = addr
	s.mu.Unlock()
}

// Start launches the background broadcasters.
func (s *Server) Start() {
	if s.interval > 0 {
		s.wg.Add(1)
		go s.telemetryBroadcaster()
	}
}

// Shutdown closes every client and stops the broadcasters.
func (s *Server) Shutdown() {
	s.cancel()
	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Metrics returns the server counters.
func (s *Server) Metrics() *ServerMetrics { return s.metrics }

// HandleConnection upgrades an HTTP request and registers the client.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}

	client := &Client{
		ID:            generateClientID(),
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
		lastActivity:  time.Now(),
		rateLimiter:   NewRateLimiter(100, time.Minute),
	}

	s.mu.Lock()
	s.clients[client.ID] = client
	s.mu.Unlock()

	s.metrics.mu.Lock()
	s.metrics.ConnectionsTotal++
	s.metrics.ConnectionsActive++
	s.metrics.mu.Unlock()

	go client.writePump()
	go client.readPump(s)

	client.sendMessage(Message{
		Type:      "connected",
		Data:      map[string]interface{}{"client_id": client.ID},
		Timestamp: time.Now().Unix(),
	})
}

// Publish implements margin.EventSink. Events fan out to subscribers of
// "events:<type>" and the "events:*" firehose.
func (s *Server) Publish(ev margin.Event) {
	msg := Message{
		Type: "event",
		Data: map[string]interface{}{
			"id":    ev.ID,
			"event": ev.Type,
			"data":  ev.Data,
		},
		Timestamp: ev.Timestamp,
	}
	s.broadcastToSubscribers("events:"+ev.Type, msg)
	s.broadcastToSubscribers("events:*", msg)
}

func (s *Server) broadcastToSubscribers(channel string, msg Message) {
	data, _ := json.Marshal(msg)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.mu.RLock()
		subscribed := client.subscriptions[channel]
		client.mu.RUnlock()
		if !subscribed {
			continue
		}
		select {
		case client.send <- data:
			s.metrics.mu.Lock()
			s.metrics.MessagesSent++
			s.metrics.mu.Unlock()
		default:
			// Slow consumer, frame dropped.
		}
	}
}

func (s *Server) telemetryBroadcaster() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.broadcastVaultTelemetry()
		}
	}
}

func (s *Server) broadcastVaultTelemetry() {
	s.mu.RLock()
	tracked := make(map[string]margin.Address, len(s.vaults))
	for label, addr := range s.vaults {
		tracked[label] = addr
	}
	s.mu.RUnlock()

	for label, addr := range tracked {
		snapshot, err := s.vaultSnapshot(addr)
		if err != nil {
			s.log.Debug("vault telemetry skipped", "vault", label, "err", err)
			continue
		}
		s.broadcastToSubscribers("share_price:"+label, Message{
			Type:      "share_price_update",
			Data:      snapshot,
			Timestamp: time.Now().Unix(),
		})
	}
}

func (s *Server) vaultSnapshot(addr margin.Address) (map[string]interface{}, error) {
	vault, err := s.engine.GetLpVault(addr)
	if err != nil {
		return nil, err
	}
	price, err := s.engine.SharePrice(addr)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"vault":          addr.String(),
		"asset_mint":     vault.AssetMint.String(),
		"total_assets":   vault.TotalAssets,
		"total_borrowed": vault.TotalBorrowed,
		"share_price":    price.String(),
	}, nil
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client.ID]; ok {
		delete(s.clients, client.ID)
		s.metrics.mu.Lock()
		s.metrics.ConnectionsActive--
		s.metrics.mu.Unlock()
		close(client.send)
	}
	s.mu.Unlock()
}

func generateClientID() string {
	return fmt.Sprintf("client_%d", time.Now().UnixNano())
}
