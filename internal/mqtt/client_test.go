package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"device-hub-server/internal/config"
)

func TestTopics(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "devicehub", want: "devicehub/devices/d1/status"},
		{prefix: "home/hub/", want: "home/hub/devices/d1/status"},
		{prefix: "", want: "devicehub/devices/d1/status"},
	}

	for _, tt := range tests {
		if got := (Topics{Prefix: tt.prefix}).DeviceStatus("d1"); got != tt.want {
			t.Errorf("DeviceStatus() with prefix %q = %q, want %q", tt.prefix, got, tt.want)
		}
	}

	if got := (Topics{Prefix: "x"}).HubStatus(); got != "x/hub/status" {
		t.Errorf("HubStatus() = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(config.MQTTConfig{
		BrokerURL: "tcp://broker:1883",
		ClientID:  "hub-1",
		Username:  "hub",
		Password:  "secret",
	})

	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "hub-1" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "hub" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto reconnect with a clean session")
	}
}

func TestStatusPayload(t *testing.T) {
	var body map[string]string
	if err := json.Unmarshal([]byte(statusPayload("hub-1", "offline", "graceful_shutdown")), &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["status"] != "offline" || body["client_id"] != "hub-1" || body["reason"] != "graceful_shutdown" {
		t.Errorf("payload = %v", body)
	}

	if strings.Contains(statusPayload("hub-1", "online", ""), "reason") {
		t.Error("online payload must not carry a reason")
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{cfg: config.MQTTConfig{QoS: 1}}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, wantErr: ErrInvalidTopic},
		{name: "bad qos", topic: "t", qos: 3, wantErr: ErrInvalidQoS},
		{name: "oversized payload", topic: "t", payload: make([]byte, maxPayloadSize+1), wantErr: ErrPublishFailed},
		{name: "not connected", topic: "t", payload: []byte("{}"), wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestConnectRejectsInvalidQoS(t *testing.T) {
	if _, err := Connect(config.MQTTConfig{QoS: 5}, nil); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Connect() error = %v, want ErrInvalidQoS", err)
	}
}
