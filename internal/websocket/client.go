package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const sendBufferSize = 256

type Client struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Manager *Manager
	Send    chan []byte

	subMu   sync.RWMutex
	devices map[string]struct{}
}

func NewClient(id, userID string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:      id,
		UserID:  userID,
		Conn:    conn,
		Manager: manager,
		Send:    make(chan []byte, sendBufferSize),
	}
}

// Subscribe replaces the device filter. Passing no ids clears it.
func (c *Client) Subscribe(deviceIDs []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if len(deviceIDs) == 0 {
		c.devices = nil
		return
	}
	c.devices = make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		c.devices[id] = struct{}{}
	}
}

// Wants reports whether events for deviceID should reach this client.
func (c *Client) Wants(deviceID string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if c.devices == nil {
		return true
	}
	_, ok := c.devices[deviceID]
	return ok
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Manager.Unregister <- c:
		case <-c.Manager.done:
		}
		c.Conn.Close()
	}()

	if c.Manager.opts.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.Manager.opts.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Manager.log.WithError(err).WithField("client_id", c.ID).Warn("websocket read error")
			}
			return
		}

		select {
		case c.Manager.HandleMessage <- &ClientMessage{Client: c, Message: message}:
		case <-c.Manager.done:
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Manager.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.opts.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
