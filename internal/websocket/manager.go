// Package websocket streams device status changes to connected owners.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/metrics"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type Options struct {
	MaxConnPerUser int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

type Manager struct {
	clients       map[string]*Client
	userIndex     map[string]map[string]bool
	clientsMutex  sync.RWMutex
	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *ClientMessage
	opts          Options
	log           logrus.FieldLogger
	done          chan struct{}
}

func NewManager(opts Options, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		clients:       make(map[string]*Client),
		userIndex:     make(map[string]map[string]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *ClientMessage),
		opts:          opts,
		log:           log,
		done:          make(chan struct{}),
	}
}

// Run serves registrations and inbound messages until ctx is cancelled, then
// closes every remaining connection.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)

		case <-ctx.Done():
			m.closeAll()
			return
		}
	}
}

// Add hands client to the running hub. It reports false once Run has
// returned, in which case the caller owns the connection and must close it.
func (m *Manager) Add(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if m.opts.MaxConnPerUser > 0 && len(m.userIndex[client.UserID]) >= m.opts.MaxConnPerUser {
		m.log.WithField("user_id", client.UserID).Warn("max websocket connections reached")
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true
	metrics.WebSocketConnections.Inc()

	m.log.WithFields(logrus.Fields{"client_id": client.ID, "user_id": client.UserID}).Debug("websocket client registered")
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.removeLocked(client)
}

func (m *Manager) removeLocked(client *Client) {
	if _, ok := m.clients[client.ID]; !ok {
		return
	}

	delete(m.clients, client.ID)
	delete(m.userIndex[client.UserID], client.ID)
	if len(m.userIndex[client.UserID]) == 0 {
		delete(m.userIndex, client.UserID)
	}

	close(client.Send)
	metrics.WebSocketConnections.Dec()
	m.log.WithField("client_id", client.ID).Debug("websocket client unregistered")
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for _, client := range m.clients {
		m.removeLocked(client)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.reply(clientMsg.Client, TypeError, AckPayload{Success: false, Error: "malformed message"})
		return
	}

	switch msg.Type {
	case TypePing:
		m.reply(clientMsg.Client, TypePong, nil)

	case TypeSubscribe:
		var payload SubscribePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			m.reply(clientMsg.Client, TypeAck, AckPayload{MessageID: msg.ID, Success: false, Error: "invalid subscribe payload"})
			return
		}
		clientMsg.Client.Subscribe(payload.DeviceIDs)
		m.reply(clientMsg.Client, TypeAck, AckPayload{MessageID: msg.ID, Success: true})

	default:
		m.reply(clientMsg.Client, TypeAck, AckPayload{MessageID: msg.ID, Success: false, Error: "unsupported message type"})
	}
}

func (m *Manager) reply(client *Client, msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		m.log.WithError(err).Error("failed to build websocket reply")
		return
	}
	if err := m.SendToClient(client.ID, msg); err != nil {
		m.log.WithError(err).Error("failed to send websocket reply")
	}
}

// BroadcastToUser delivers message to every connection of userID that wants
// events for deviceID. Connections whose buffers are full are dropped.
func (m *Manager) BroadcastToUser(userID string, message *Message, deviceID string) (int, error) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}

	m.clientsMutex.RLock()
	var (
		delivered int
		slow      []*Client
	)
	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		if !client.Wants(deviceID) {
			continue
		}
		select {
		case client.Send <- messageBytes:
			delivered++
		default:
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		m.log.WithField("client_id", client.ID).Warn("websocket send buffer full, closing connection")
		m.unregisterClient(client)
	}

	return delivered, nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.log.WithField("client_id", clientID).Warn("websocket send buffer full")
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.userIndex[userID])
}

// Notify pushes a device status event to the owner's open connections.
func (m *Manager) Notify(_ context.Context, event *domain.StatusEvent) {
	msg, err := NewDeviceStatusMessage(event)
	if err != nil {
		m.log.WithError(err).Error("failed to build device status message")
		metrics.StatusEventsPublishedTotal.WithLabelValues("websocket", metrics.ResultError).Inc()
		return
	}

	delivered, err := m.BroadcastToUser(event.OwnerID, msg, event.DeviceID)
	if err != nil {
		m.log.WithError(err).WithField("device_id", event.DeviceID).Error("failed to broadcast device status")
		metrics.StatusEventsPublishedTotal.WithLabelValues("websocket", metrics.ResultError).Inc()
		return
	}
	if delivered > 0 {
		metrics.StatusEventsPublishedTotal.WithLabelValues("websocket", metrics.ResultSuccess).Inc()
	}
}
