package websocket

import (
	"encoding/json"
	"time"

	"device-hub-server/internal/domain"
)

type MessageType string

const (
	TypeDeviceStatus MessageType = "device_status"
	TypeSubscribe    MessageType = "subscribe"
	TypeAck          MessageType = "ack"
	TypeError        MessageType = "error"
	TypePing         MessageType = "ping"
	TypePong         MessageType = "pong"
)

type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DeviceStatusPayload is pushed whenever a device owned by the connected
// user changes status.
type DeviceStatusPayload struct {
	DeviceID     string              `json:"device_id"`
	Status       domain.DeviceStatus `json:"status"`
	LastActiveAt *time.Time          `json:"last_active_at"`
	Reason       string              `json:"reason"`
}

// SubscribePayload narrows the stream to the listed devices. An empty list
// restores the default of receiving every device of the user.
type SubscribePayload struct {
	DeviceIDs []string `json:"device_ids"`
}

type AckPayload struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func NewDeviceStatusMessage(event *domain.StatusEvent) (*Message, error) {
	msg, err := NewMessage(TypeDeviceStatus, DeviceStatusPayload{
		DeviceID:     event.DeviceID,
		Status:       event.Status,
		LastActiveAt: event.LastActiveAt,
		Reason:       event.Reason,
	})
	if err != nil {
		return nil, err
	}
	msg.Timestamp = event.Timestamp
	return msg, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
