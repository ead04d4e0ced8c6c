package mqtt

import "strings"

// Topics builds the topic names the hub publishes to. All topics live under
// a configurable prefix so several hubs can share one broker.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return "devicehub"
	}
	return p
}

// DeviceStatus is the retained per-device status topic,
// e.g. devicehub/devices/<id>/status.
func (t Topics) DeviceStatus(deviceID string) string {
	return t.prefix() + "/devices/" + deviceID + "/status"
}

// HubStatus carries the hub's own online/offline state and its last will.
func (t Topics) HubStatus() string {
	return t.prefix() + "/hub/status"
}
