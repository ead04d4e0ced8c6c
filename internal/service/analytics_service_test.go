package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"device-hub-server/internal/domain"
)

func newTestAnalyticsService() (*AnalyticsService, *mockDeviceRepo, *mockLogRepo, *fixedClock) {
	devices := newMockDeviceRepo()
	logs := &mockLogRepo{}
	clock := &fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	svc := NewAnalyticsService(devices, logs)
	svc.now = clock.now

	devices.devices["meter"] = &domain.Device{
		ID:      "meter",
		OwnerID: "alice",
		Name:    "Meter",
		Type:    domain.DeviceTypeSmartMeter,
		Status:  domain.StatusActive,
	}

	return svc, devices, logs, clock
}

func floatPtr(v float64) *float64 { return &v }

func TestAnalyticsService_Append(t *testing.T) {
	svc, _, logs, clock := newTestAnalyticsService()
	ctx := context.Background()

	tests := []struct {
		name    string
		owner   string
		device  string
		req     domain.CreateLogRequest
		wantErr error
	}{
		{
			name:   "units consumed",
			owner:  "alice",
			device: "meter",
			req:    domain.CreateLogRequest{Event: domain.EventUnitsConsumed, Value: floatPtr(2.5)},
		},
		{
			name:   "zero value is allowed",
			owner:  "alice",
			device: "meter",
			req:    domain.CreateLogRequest{Event: "power_on", Value: floatPtr(0)},
		},
		{
			name:    "missing event",
			owner:   "alice",
			device:  "meter",
			req:     domain.CreateLogRequest{Event: "   ", Value: floatPtr(1)},
			wantErr: ErrValidation,
		},
		{
			name:    "missing value",
			owner:   "alice",
			device:  "meter",
			req:     domain.CreateLogRequest{Event: domain.EventUnitsConsumed},
			wantErr: ErrValidation,
		},
		{
			name:    "foreign device",
			owner:   "bob",
			device:  "meter",
			req:     domain.CreateLogRequest{Event: domain.EventUnitsConsumed, Value: floatPtr(1)},
			wantErr: ErrDeviceNotFound,
		},
		{
			name:    "unknown device",
			owner:   "alice",
			device:  "nope",
			req:     domain.CreateLogRequest{Event: domain.EventUnitsConsumed, Value: floatPtr(1)},
			wantErr: ErrDeviceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(logs.logs)
			req := tt.req
			entry, err := svc.Append(ctx, tt.owner, tt.device, &req)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Append() error = %v, want %v", err, tt.wantErr)
				}
				if len(logs.logs) != before {
					t.Error("Append() stored a log on failure")
				}
				return
			}

			if err != nil {
				t.Fatalf("Append() unexpected error = %v", err)
			}
			if entry.ID == "" || entry.DeviceID != tt.device {
				t.Errorf("Append() = %+v", entry)
			}
			if !entry.Timestamp.Equal(clock.t) {
				t.Errorf("Append() timestamp = %v, want %v", entry.Timestamp, clock.t)
			}
			if entry.Value != *tt.req.Value {
				t.Errorf("Append() value = %v, want %v", entry.Value, *tt.req.Value)
			}
		})
	}
}

func TestNormalizeLogLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: -5, want: domain.DefaultLogLimit},
		{in: 0, want: domain.DefaultLogLimit},
		{in: 1, want: 1},
		{in: 50, want: 50},
		{in: domain.MaxLogLimit, want: domain.MaxLogLimit},
		{in: 5000, want: domain.MaxLogLimit},
	}

	for _, tt := range tests {
		if got := NormalizeLogLimit(tt.in); got != tt.want {
			t.Errorf("NormalizeLogLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAnalyticsService_Recent(t *testing.T) {
	svc, _, logs, clock := newTestAnalyticsService()
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		clock.advance(time.Second)
		if _, err := svc.Append(ctx, "alice", "meter", &domain.CreateLogRequest{Event: "tick", Value: floatPtr(float64(i))}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	recent, err := svc.Recent(ctx, "alice", "meter", 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != domain.DefaultLogLimit {
		t.Fatalf("Recent() returned %d logs, want %d", len(recent), domain.DefaultLogLimit)
	}
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp.After(recent[i-1].Timestamp) {
			t.Errorf("Recent() not newest first at %d", i)
		}
	}
	if recent[0].Value != 14 {
		t.Errorf("Recent() newest value = %v, want 14", recent[0].Value)
	}

	three, err := svc.Recent(ctx, "alice", "meter", 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(three) != 3 {
		t.Errorf("Recent(3) returned %d logs", len(three))
	}

	if _, err := svc.Recent(ctx, "bob", "meter", 10); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Recent() by non-owner error = %v, want ErrDeviceNotFound", err)
	}

	logs.logs = nil
	empty, err := svc.Recent(ctx, "alice", "meter", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Recent() on empty device = %v, want empty non-nil slice", empty)
	}
}

func TestAnalyticsService_Usage(t *testing.T) {
	svc, _, logs, clock := newTestAnalyticsService()
	ctx := context.Background()

	now := clock.t
	logs.logs = []*domain.DeviceLog{
		{ID: "a", DeviceID: "meter", Event: domain.EventUnitsConsumed, Value: 5, Timestamp: now.Add(-time.Hour)},
		{ID: "b", DeviceID: "meter", Event: domain.EventUnitsConsumed, Value: 3, Timestamp: now.Add(-25 * time.Hour)},
		{ID: "c", DeviceID: "meter", Event: "voltage", Value: 230, Timestamp: now.Add(-time.Hour)},
		{ID: "d", DeviceID: "other", Event: domain.EventUnitsConsumed, Value: 99, Timestamp: now.Add(-time.Hour)},
	}

	tests := []struct {
		rangeKey  string
		wantRange domain.UsageRange
		wantTotal float64
	}{
		{rangeKey: "24h", wantRange: domain.Range24h, wantTotal: 5},
		{rangeKey: "7d", wantRange: domain.Range7d, wantTotal: 8},
		{rangeKey: "30d", wantRange: domain.Range30d, wantTotal: 8},
		{rangeKey: "", wantRange: domain.Range24h, wantTotal: 5},
		{rangeKey: "1y", wantRange: domain.Range24h, wantTotal: 5},
	}

	for _, tt := range tests {
		t.Run(tt.rangeKey, func(t *testing.T) {
			usage, err := svc.Usage(ctx, "alice", "meter", tt.rangeKey)
			if err != nil {
				t.Fatalf("Usage() error = %v", err)
			}
			if usage.Range != tt.wantRange {
				t.Errorf("Usage() range = %v, want %v", usage.Range, tt.wantRange)
			}
			if usage.Total != tt.wantTotal {
				t.Errorf("Usage() total = %v, want %v", usage.Total, tt.wantTotal)
			}
			if !usage.Since.Equal(now.Add(-tt.wantRange.Duration())) {
				t.Errorf("Usage() since = %v", usage.Since)
			}
		})
	}

	if _, err := svc.Usage(ctx, "bob", "meter", "24h"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Usage() by non-owner error = %v, want ErrDeviceNotFound", err)
	}

	logs.logs = nil
	usage, err := svc.Usage(ctx, "alice", "meter", "7d")
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if usage.Total != 0 {
		t.Errorf("Usage() with no logs = %v, want 0", usage.Total)
	}
}
