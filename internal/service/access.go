package service

import (
	"context"
	"errors"
	"fmt"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/repository"
)

// deviceGate resolves devices by the (owner, device) pair. Every owner-scoped
// operation goes through lookup; nothing fetches a device by id alone.
type deviceGate struct {
	repo repository.DeviceRepository
}

func (g deviceGate) lookup(ctx context.Context, ownerID, deviceID string) (*domain.Device, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if deviceID == "" {
		return nil, ErrDeviceNotFound
	}

	device, err := g.repo.FindOwned(ctx, ownerID, deviceID)
	if err != nil {
		return nil, deviceError(err, "failed to look up device")
	}

	return device, nil
}

// deviceError folds repository misses into ErrDeviceNotFound and wraps
// everything else.
func deviceError(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrDeviceNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
