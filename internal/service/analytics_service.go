package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/repository"

	"github.com/google/uuid"
)

// AnalyticsService owns device event logs and usage aggregation.
type AnalyticsService struct {
	gate deviceGate
	logs repository.DeviceLogRepository
	now  func() time.Time
}

func NewAnalyticsService(devices repository.DeviceRepository, logs repository.DeviceLogRepository) *AnalyticsService {
	return &AnalyticsService{
		gate: deviceGate{repo: devices},
		logs: logs,
		now:  time.Now,
	}
}

func (s *AnalyticsService) Append(ctx context.Context, ownerID, deviceID string, req *domain.CreateLogRequest) (*domain.DeviceLog, error) {
	req.Event = strings.TrimSpace(req.Event)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	device, err := s.gate.lookup(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}

	entry := &domain.DeviceLog{
		ID:        uuid.New().String(),
		DeviceID:  device.ID,
		Event:     req.Event,
		Value:     *req.Value,
		Timestamp: s.now().UTC(),
	}

	if err := s.logs.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append device log: %w", err)
	}

	return entry, nil
}

// NormalizeLogLimit applies the default for non-positive limits and caps the
// page size.
func NormalizeLogLimit(limit int) int {
	if limit <= 0 {
		return domain.DefaultLogLimit
	}
	if limit > domain.MaxLogLimit {
		return domain.MaxLogLimit
	}
	return limit
}

func (s *AnalyticsService) Recent(ctx context.Context, ownerID, deviceID string, limit int) ([]*domain.DeviceLog, error) {
	device, err := s.gate.lookup(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}

	logs, err := s.logs.Recent(ctx, device.ID, NormalizeLogLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list device logs: %w", err)
	}
	if logs == nil {
		logs = []*domain.DeviceLog{}
	}

	return logs, nil
}

// Usage sums units_consumed values inside the requested window. Unknown
// ranges resolve to 24h.
func (s *AnalyticsService) Usage(ctx context.Context, ownerID, deviceID, rangeKey string) (*domain.UsageResult, error) {
	window := domain.ParseUsageRange(rangeKey)

	device, err := s.gate.lookup(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}

	since := s.now().UTC().Add(-window.Duration())
	total, err := s.logs.SumSince(ctx, device.ID, domain.EventUnitsConsumed, since)
	if err != nil {
		return nil, fmt.Errorf("failed to compute usage: %w", err)
	}

	return &domain.UsageResult{
		DeviceID: device.ID,
		Range:    window,
		Since:    since,
		Total:    total,
	}, nil
}
