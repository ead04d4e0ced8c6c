package domain

import (
	"time"
)

// EventUnitsConsumed is the only event that feeds usage totals.
const EventUnitsConsumed = "units_consumed"

const (
	DefaultLogLimit = 10
	MaxLogLimit     = 100
)

type DeviceLog struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Event     string    `json:"event"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type CreateLogRequest struct {
	Event string   `json:"event" validate:"required,max=100"`
	Value *float64 `json:"value" validate:"required"`
}

type UsageRange string

const (
	Range24h UsageRange = "24h"
	Range7d  UsageRange = "7d"
	Range30d UsageRange = "30d"
)

var usageRanges = map[UsageRange]time.Duration{
	Range24h: 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
	Range30d: 30 * 24 * time.Hour,
}

// ParseUsageRange resolves a query value to a known range, falling back to 24h.
func ParseUsageRange(s string) UsageRange {
	r := UsageRange(s)
	if _, ok := usageRanges[r]; ok {
		return r
	}
	return Range24h
}

func (r UsageRange) Duration() time.Duration {
	if d, ok := usageRanges[r]; ok {
		return d
	}
	return usageRanges[Range24h]
}

// TotalKey names the usage total in responses, e.g. "total_units_last_7d".
func (r UsageRange) TotalKey() string {
	return "total_units_last_" + string(r)
}

type UsageResult struct {
	DeviceID string     `json:"device_id"`
	Range    UsageRange `json:"range"`
	Since    time.Time  `json:"since"`
	Total    float64    `json:"total"`
}
