package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection.
type Client struct {
	ID            string
	conn          *websocket.Conn
	send          chan []byte
	mu            sync.RWMutex
	subscriptions map[string]bool
	lastActivity  time.Time
	rateLimiter   *RateLimiter
}

func (c *Client) readPump(s *Server) {
	defer func() {
		s.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg map[string]interface{}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("client read error", "client", c.ID, "err", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			c.sendError("rate limit exceeded", "")
			continue
		}

		c.lastActivity = time.Now()
		s.metrics.mu.Lock()
		s.metrics.MessagesReceived++
		s.metrics.mu.Unlock()

		s.processMessage(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendMessage(msg Message) {
	data, _ := json.Marshal(msg)
	select {
	case c.send <- data:
	default:
		// Send channel full, frame dropped.
	}
}

func (c *Client) sendError(errMsg, requestID string) {
	c.sendMessage(Message{
		Type:      "error",
		Error:     errMsg,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

// RateLimiter is a fixed-window request counter.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    int
	lastReset   time.Time
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		lastReset:   time.Now(),
	}
}

func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastReset) > rl.window {
		rl.requests = 0
		rl.lastReset = now
	}
	if rl.requests >= rl.maxRequests {
		return false
	}
	rl.requests++
	return true
}
