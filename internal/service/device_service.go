package service

import (
	"context"
	"strings"
	"time"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/notify"
	"device-hub-server/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DeviceService struct {
	gate     deviceGate
	repo     repository.DeviceRepository
	logs     repository.DeviceLogRepository
	notifier notify.Notifier
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewDeviceService(repo repository.DeviceRepository, logs repository.DeviceLogRepository, notifier notify.Notifier, log logrus.FieldLogger) *DeviceService {
	if notifier == nil {
		notifier = notify.Nop()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DeviceService{
		gate:     deviceGate{repo: repo},
		repo:     repo,
		logs:     logs,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func (s *DeviceService) Create(ctx context.Context, ownerID string, req *domain.CreateDeviceRequest) (*domain.Device, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = domain.DefaultStatus
	}

	now := s.now().UTC()
	device := &domain.Device{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      req.Name,
		Type:      req.Type,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, device); err != nil {
		return nil, deviceError(err, "failed to create device")
	}

	return device, nil
}

func (s *DeviceService) List(ctx context.Context, ownerID string, filter domain.DeviceFilter) ([]*domain.Device, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, newValidationError(`"type" filter is not a known device type`)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, newValidationError(`"status" filter is not a known device status`)
	}

	devices, err := s.repo.List(ctx, ownerID, filter)
	if err != nil {
		return nil, deviceError(err, "failed to list devices")
	}
	if devices == nil {
		devices = []*domain.Device{}
	}

	return devices, nil
}

func (s *DeviceService) Get(ctx context.Context, ownerID, deviceID string) (*domain.Device, error) {
	return s.gate.lookup(ctx, ownerID, deviceID)
}

// Update overwrites the supplied fields. An empty request returns the device
// unchanged.
func (s *DeviceService) Update(ctx context.Context, ownerID, deviceID string, req *domain.UpdateDeviceRequest) (*domain.Device, error) {
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	device, err := s.gate.lookup(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}
	if req.Empty() {
		return device, nil
	}

	previous := device.Status
	if req.Name != nil {
		device.Name = *req.Name
	}
	if req.Type != nil {
		device.Type = *req.Type
	}
	if req.Status != nil {
		device.Status = *req.Status
	}
	device.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, device); err != nil {
		return nil, deviceError(err, "failed to update device")
	}

	if device.Status != previous {
		s.notifier.Notify(ctx, domain.NewStatusEvent(device, domain.ReasonUpdate, device.UpdatedAt))
	}

	return device, nil
}

// Delete removes the device and then its logs. A failure to remove logs is
// logged; the orphans are unreachable since log access requires the device.
func (s *DeviceService) Delete(ctx context.Context, ownerID, deviceID string) error {
	device, err := s.gate.lookup(ctx, ownerID, deviceID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteOwned(ctx, ownerID, device.ID); err != nil {
		return deviceError(err, "failed to delete device")
	}

	removed, err := s.logs.DeleteByDevice(ctx, device.ID)
	if err != nil {
		s.log.WithError(err).WithField("device_id", device.ID).Warn("failed to remove logs of deleted device")
	} else if removed > 0 {
		s.log.WithFields(logrus.Fields{"device_id": device.ID, "logs": removed}).Debug("removed logs of deleted device")
	}

	s.notifier.Notify(ctx, domain.NewStatusEvent(device, domain.ReasonDeleted, s.now().UTC()))

	return nil
}

// Heartbeat records a liveness signal: it sets the status (active when
// empty) and moves last_active_at to now. last_active_at never moves
// backwards.
func (s *DeviceService) Heartbeat(ctx context.Context, ownerID, deviceID string, status domain.DeviceStatus) (*domain.Device, error) {
	if status == "" {
		status = domain.StatusActive
	}
	if !status.Valid() {
		return nil, newValidationError(`"status" must be one of [active, inactive, maintenance]`)
	}

	device, err := s.gate.lookup(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if device.LastActiveAt != nil && now.Before(*device.LastActiveAt) {
		now = *device.LastActiveAt
	}

	device.Status = status
	device.LastActiveAt = &now
	device.UpdatedAt = now

	if err := s.repo.Update(ctx, device); err != nil {
		return nil, deviceError(err, "failed to record heartbeat")
	}

	s.notifier.Notify(ctx, domain.NewStatusEvent(device, domain.ReasonHeartbeat, now))

	return device, nil
}
