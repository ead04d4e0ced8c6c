package domain

import "time"

type DeviceType string

const (
	DeviceTypeLight      DeviceType = "light"
	DeviceTypeFan        DeviceType = "fan"
	DeviceTypeAC         DeviceType = "ac"
	DeviceTypeSmartMeter DeviceType = "smart_meter"
	DeviceTypeSensor     DeviceType = "sensor"
)

type DeviceStatus string

const (
	StatusActive      DeviceStatus = "active"
	StatusInactive    DeviceStatus = "inactive"
	StatusMaintenance DeviceStatus = "maintenance"
)

// DefaultStatus is assigned at creation when the caller omits one. Devices
// only turn active through a heartbeat or an explicit status.
const DefaultStatus = StatusInactive

var (
	DeviceTypes    = []DeviceType{DeviceTypeLight, DeviceTypeFan, DeviceTypeAC, DeviceTypeSmartMeter, DeviceTypeSensor}
	DeviceStatuses = []DeviceStatus{StatusActive, StatusInactive, StatusMaintenance}
)

func (t DeviceType) Valid() bool {
	for _, v := range DeviceTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (s DeviceStatus) Valid() bool {
	for _, v := range DeviceStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type Device struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"owner_id"`
	Name         string       `json:"name"`
	Type         DeviceType   `json:"type"`
	Status       DeviceStatus `json:"status"`
	LastActiveAt *time.Time   `json:"last_active_at"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// StaleSince reports whether the device has a recorded heartbeat older than
// cutoff. Devices that never reported are never stale.
func (d *Device) StaleSince(cutoff time.Time) bool {
	return d.LastActiveAt != nil && d.LastActiveAt.Before(cutoff)
}

type CreateDeviceRequest struct {
	Name   string       `json:"name" validate:"required,min=2,max=100"`
	Type   DeviceType   `json:"type" validate:"required,oneof=light fan ac smart_meter sensor"`
	Status DeviceStatus `json:"status,omitempty" validate:"omitempty,oneof=active inactive maintenance"`
}

// UpdateDeviceRequest carries a partial update; nil fields are left untouched.
type UpdateDeviceRequest struct {
	Name   *string       `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Type   *DeviceType   `json:"type,omitempty" validate:"omitempty,oneof=light fan ac smart_meter sensor"`
	Status *DeviceStatus `json:"status,omitempty" validate:"omitempty,oneof=active inactive maintenance"`
}

func (r *UpdateDeviceRequest) Empty() bool {
	return r.Name == nil && r.Type == nil && r.Status == nil
}

type HeartbeatRequest struct {
	Status DeviceStatus `json:"status,omitempty" validate:"omitempty,oneof=active inactive maintenance"`
}

type DeviceFilter struct {
	Type   DeviceType
	Status DeviceStatus
}

func (f DeviceFilter) Matches(d *Device) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}

type HeartbeatResponse struct {
	Message      string       `json:"message"`
	Status       DeviceStatus `json:"status"`
	LastActiveAt time.Time    `json:"last_active_at"`
}
