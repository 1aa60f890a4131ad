package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/dakiya/pkg/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Outbound queue depth per connection.
	sendQueueSize = 256

	mirrorTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Client is the live connection handle stored in the presence registry.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	partyID string
}

// Send queues a payload for the write pump without blocking the caller.
// A closed connection or a full queue reports failure; the broker treats
// both as a swallowed push failure.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errors.New("send queue full")
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump keeps the connection's read side alive. Inbound frames are
// drained and discarded: sends travel over the REST path, the socket only
// carries pushes. Exiting here tears the connection down.
func (c *Client) readPump(s *Server) {
	defer func() {
		s.registry.Unregister(c.partyID, c)
		c.close()
		c.conn.Close()
		s.mirrorOffline(c.partyID)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("websocket read", "party", c.partyID, "error", err)
			}
			return
		}
	}
}

// writePump pushes queued payloads to the peer and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// handleWS authenticates the party, upgrades the connection, and records
// it in the presence registry. A later connection for the same party
// replaces the earlier one; the replaced socket is torn down by its own
// pumps once its reads fail.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	claims, err := s.auth.Validate(token)
	if err != nil {
		s.log.Debug("websocket token rejected", "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		partyID: claims.PartyID,
	}
	s.registry.Register(client.partyID, client)
	s.mirrorOnline(client.partyID)
	s.log.Info("party connected", "party", client.partyID)

	go client.writePump()
	go client.readPump(s)
}

// mirrorOnline reflects registry state into the shared mirror for the
// online-parties endpoint. Best effort only; the registry is the source
// of truth for delivery decisions.
func (s *Server) mirrorOnline(partyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.mirror.MarkOnline(ctx, partyID); err != nil {
		s.log.Warn("mirroring presence online", "party", partyID, "error", err)
	}
}

func (s *Server) mirrorOffline(partyID string) {
	// A reconnect may already have replaced this connection; only clear
	// the mirror when the party is genuinely gone from the registry.
	if _, stillOnline := s.registry.Lookup(partyID); stillOnline {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.mirror.MarkOffline(ctx, partyID); err != nil {
		s.log.Warn("mirroring presence offline", "party", partyID, "error", err)
	}
	// The lookup above raced any concurrent reconnect: its MarkOnline may
	// have landed before our MarkOffline. Re-check and converge so a party
	// that won the race is not left missing from the mirror.
	if _, reconnected := s.registry.Lookup(partyID); reconnected {
		if err := s.mirror.MarkOnline(ctx, partyID); err != nil {
			s.log.Warn("mirroring presence online", "party", partyID, "error", err)
		}
	}
}
