package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"BlogCrew/internal/studio"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Client message types.
const (
	MessageTopic = "topic"
	MessageReset = "reset"
)

// ClientMessage is what the browser sends: a topic that starts a run, or a
// reset that cancels the one in flight.
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// EventReset tells the browser its run was discarded.
const EventReset studio.EventType = "reset"

// wsClient is one browser connection. It runs at most one studio run at a
// time; a new topic replaces the run in flight.
type wsClient struct {
	conn   *websocket.Conn
	studio *studio.Studio
	logger *slog.Logger
	send   chan studio.Event
	done   chan struct{} // closed when the read side ends
	quit   chan struct{} // closed when the write side ends

	mu     sync.Mutex
	cancel context.CancelFunc
	runs   sync.WaitGroup
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket", "error", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		studio: s.studio,
		logger: s.logger.With("remote", c.ClientIP()),
		send:   make(chan studio.Event, 64),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	client.logger.Info("websocket connected")

	var pump sync.WaitGroup
	pump.Add(1)
	go func() {
		defer pump.Done()
		client.writePump()
	}()

	client.readPump(context.WithoutCancel(c.Request.Context()))

	close(client.done)
	client.stop()
	pump.Wait()
	client.logger.Info("websocket disconnected")
}

// readPump handles client messages until the connection fails or closes.
func (c *wsClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("failed to unmarshal message", "error", err)
			c.enqueue(studio.Event{Type: studio.EventError, Content: "malformed message"})
			continue
		}

		switch msg.Type {
		case MessageTopic:
			topic := strings.TrimSpace(msg.Topic)
			if topic == "" {
				c.enqueue(studio.Event{Type: studio.EventError, Content: "topic is required"})
				continue
			}
			c.start(ctx, topic)
		case MessageReset:
			c.stop()
			c.enqueue(studio.Event{Type: EventReset})
		default:
			c.enqueue(studio.Event{Type: studio.EventError, Content: "unknown message type: " + msg.Type})
		}
	}
}

// start cancels the current run, if any, and begins a new one.
func (c *wsClient) start(parent context.Context, topic string) {
	c.stop()

	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.runs.Add(1)
	go func() {
		defer c.runs.Done()
		defer cancel()
		_, err := c.studio.Write(ctx, topic, func(ev studio.Event) {
			// A discarded run reports nothing further.
			if ctx.Err() != nil {
				return
			}
			c.enqueue(ev)
		})
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("run failed", "error", err)
		}
	}()
}

// stop cancels the run in flight and waits until it has returned.
func (c *wsClient) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.runs.Wait()
}

func (c *wsClient) enqueue(ev studio.Event) {
	select {
	case c.send <- ev:
	case <-c.done:
	case <-c.quit:
	}
}

// writePump serializes events onto the connection and keeps it alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.quit)
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("failed to marshal event", "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
