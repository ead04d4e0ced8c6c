package domain

import "time"

// SweepResult summarises one pass of the stale device cleanup.
type SweepResult struct {
	StartedAt      time.Time `json:"started_at"`
	Cutoff         time.Time `json:"cutoff"`
	MarkedInactive int       `json:"marked_inactive"`
	DeviceIDs      []string  `json:"device_ids"`
}

// StatusEvent describes a device status change pushed to subscribers.
type StatusEvent struct {
	DeviceID     string       `json:"device_id"`
	OwnerID      string       `json:"owner_id"`
	Status       DeviceStatus `json:"status"`
	LastActiveAt *time.Time   `json:"last_active_at"`
	Reason       string       `json:"reason"`
	Timestamp    time.Time    `json:"timestamp"`
}

const (
	ReasonHeartbeat = "heartbeat"
	ReasonStale     = "stale"
	ReasonUpdate    = "update"
	ReasonDeleted   = "deleted"
)

func NewStatusEvent(d *Device, reason string, at time.Time) *StatusEvent {
	return &StatusEvent{
		DeviceID:     d.ID,
		OwnerID:      d.OwnerID,
		Status:       d.Status,
		LastActiveAt: d.LastActiveAt,
		Reason:       reason,
		Timestamp:    at,
	}
}
