package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-hub-server/internal/domain"
)

func newTestManager(maxConn int) *Manager {
	log, _ := test.NewNullLogger()
	return NewManager(Options{
		MaxConnPerUser: maxConn,
		WriteWait:      time.Second,
		PongWait:       time.Minute,
		PingPeriod:     50 * time.Second,
	}, log)
}

func newTestClient(m *Manager, id, userID string) *Client {
	return NewClient(id, userID, nil, m)
}

func receive(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return &msg
	default:
		t.Fatal("expected a message")
		return nil
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected message: %s", raw)
	default:
	}
}

func TestManager_RegisterRespectsLimit(t *testing.T) {
	m := newTestManager(2)

	a := newTestClient(m, "a", "alice")
	b := newTestClient(m, "b", "alice")
	c := newTestClient(m, "c", "alice")

	m.registerClient(a)
	m.registerClient(b)
	m.registerClient(c)

	assert.Equal(t, 2, m.GetUserConnections("alice"))

	_, ok := <-c.Send
	assert.False(t, ok, "rejected client must have its channel closed")

	m.unregisterClient(a)
	assert.Equal(t, 1, m.GetUserConnections("alice"))

	// Unregistering twice is a no-op.
	m.unregisterClient(a)
	assert.Equal(t, 1, m.GetUserConnections("alice"))
}

func TestManager_NotifyReachesOnlyOwner(t *testing.T) {
	m := newTestManager(5)

	alice := newTestClient(m, "a", "alice")
	bob := newTestClient(m, "b", "bob")
	m.registerClient(alice)
	m.registerClient(bob)

	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.Notify(context.Background(), &domain.StatusEvent{
		DeviceID:     "fan-1",
		OwnerID:      "alice",
		Status:       domain.StatusActive,
		LastActiveAt: &seen,
		Reason:       domain.ReasonHeartbeat,
		Timestamp:    seen,
	})

	msg := receive(t, alice)
	assert.Equal(t, TypeDeviceStatus, msg.Type)

	var payload DeviceStatusPayload
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.Equal(t, "fan-1", payload.DeviceID)
	assert.Equal(t, domain.StatusActive, payload.Status)
	assert.Equal(t, domain.ReasonHeartbeat, payload.Reason)
	require.NotNil(t, payload.LastActiveAt)
	assert.True(t, seen.Equal(*payload.LastActiveAt))

	assertEmpty(t, bob)
}

func TestManager_SubscribeFiltersDevices(t *testing.T) {
	m := newTestManager(5)
	client := newTestClient(m, "a", "alice")
	m.registerClient(client)

	sub, err := NewMessage(TypeSubscribe, SubscribePayload{DeviceIDs: []string{"meter"}})
	require.NoError(t, err)
	sub.ID = "req-1"
	raw, err := json.Marshal(sub)
	require.NoError(t, err)

	m.processMessage(&ClientMessage{Client: client, Message: raw})

	ack := receive(t, client)
	assert.Equal(t, TypeAck, ack.Type)
	var ackPayload AckPayload
	require.NoError(t, ack.UnmarshalPayload(&ackPayload))
	assert.True(t, ackPayload.Success)
	assert.Equal(t, "req-1", ackPayload.MessageID)

	m.Notify(context.Background(), &domain.StatusEvent{DeviceID: "fan", OwnerID: "alice", Status: domain.StatusActive})
	assertEmpty(t, client)

	m.Notify(context.Background(), &domain.StatusEvent{DeviceID: "meter", OwnerID: "alice", Status: domain.StatusInactive})
	assert.Equal(t, TypeDeviceStatus, receive(t, client).Type)

	client.Subscribe(nil)
	assert.True(t, client.Wants("fan"))
}

func TestManager_PingAndMalformed(t *testing.T) {
	m := newTestManager(5)
	client := newTestClient(m, "a", "alice")
	m.registerClient(client)

	m.processMessage(&ClientMessage{Client: client, Message: []byte(`{"type":"ping"}`)})
	assert.Equal(t, TypePong, receive(t, client).Type)

	m.processMessage(&ClientMessage{Client: client, Message: []byte(`not json`)})
	assert.Equal(t, TypeError, receive(t, client).Type)

	m.processMessage(&ClientMessage{Client: client, Message: []byte(`{"type":"reboot"}`)})
	unsupported := receive(t, client)
	var payload AckPayload
	require.NoError(t, unsupported.UnmarshalPayload(&payload))
	assert.False(t, payload.Success)
}

func TestManager_SlowClientIsDropped(t *testing.T) {
	m := newTestManager(5)
	client := newTestClient(m, "a", "alice")
	m.registerClient(client)

	for i := 0; i < sendBufferSize; i++ {
		client.Send <- []byte("{}")
	}

	msg, err := NewMessage(TypeDeviceStatus, nil)
	require.NoError(t, err)

	delivered, err := m.BroadcastToUser("alice", msg, "fan")
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Equal(t, 0, m.GetUserConnections("alice"))
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	m := newTestManager(5)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	client := newTestClient(m, "a", "alice")
	require.True(t, m.Add(client))
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, 0, m.GetUserConnections("alice"))
}

func TestManager_AddAfterStopDoesNotBlock(t *testing.T) {
	m := newTestManager(5)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	added := make(chan bool, 1)
	go func() {
		added <- m.Add(newTestClient(m, "late", "alice"))
	}()

	select {
	case ok := <-added:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Add blocked after the hub stopped")
	}
	assert.Equal(t, 0, m.GetUserConnections("alice"))
}
