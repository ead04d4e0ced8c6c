package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"device-hub-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// DeviceRepository persists devices. Every owner-scoped method takes the
// owner and the device id together and matches on both in a single query.
type DeviceRepository interface {
	Create(ctx context.Context, device *domain.Device) error
	FindOwned(ctx context.Context, ownerID, deviceID string) (*domain.Device, error)
	List(ctx context.Context, ownerID string, filter domain.DeviceFilter) ([]*domain.Device, error)
	Update(ctx context.Context, device *domain.Device) error
	DeleteOwned(ctx context.Context, ownerID, deviceID string) error
	// MarkStale sets status inactive on every device whose last heartbeat is
	// older than cutoff and which is not inactive yet. It returns the devices
	// it transitioned.
	MarkStale(ctx context.Context, cutoff, at time.Time) ([]*domain.Device, error)
}

type deviceDoc struct {
	DocID   string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	domain.Device
}

type deviceRepository struct {
	db *kivik.DB
}

func NewDeviceRepository(client *kivik.Client, dbName string) DeviceRepository {
	return &deviceRepository{
		db: client.DB(dbName),
	}
}

func deviceDocID(deviceID string) string {
	return fmt.Sprintf("device:%s", deviceID)
}

func ownedDeviceSelector(ownerID, deviceID string) map[string]interface{} {
	return map[string]interface{}{
		"_id":      deviceDocID(deviceID),
		"doc_type": docTypeDevice,
		"owner_id": ownerID,
	}
}

func (r *deviceRepository) Create(ctx context.Context, device *domain.Device) error {
	doc := deviceDoc{
		DocID:   deviceDocID(device.ID),
		DocType: docTypeDevice,
		Device:  *device,
	}

	if _, err := r.db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	return nil
}

func (r *deviceRepository) findOwnedDoc(ctx context.Context, ownerID, deviceID string) (*deviceDoc, error) {
	var doc deviceDoc
	if err := findOne(ctx, r.db, ownedDeviceSelector(ownerID, deviceID), &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find device: %w", err)
	}

	return &doc, nil
}

func (r *deviceRepository) FindOwned(ctx context.Context, ownerID, deviceID string) (*domain.Device, error) {
	doc, err := r.findOwnedDoc(ctx, ownerID, deviceID)
	if err != nil {
		return nil, err
	}

	device := doc.Device
	return &device, nil
}

func (r *deviceRepository) List(ctx context.Context, ownerID string, filter domain.DeviceFilter) ([]*domain.Device, error) {
	selector := map[string]interface{}{
		"doc_type": docTypeDevice,
		"owner_id": ownerID,
	}
	if filter.Type != "" {
		selector["type"] = filter.Type
	}
	if filter.Status != "" {
		selector["status"] = filter.Status
	}

	devices := make([]*domain.Device, 0)
	err := findAll(ctx, r.db, selector, func(rows *kivik.ResultSet) error {
		var doc deviceDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil // Skip malformed docs
		}
		device := doc.Device
		devices = append(devices, &device)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	return devices, nil
}

// Update writes device over the stored document. A revision conflict means
// another writer got in between the read and the write; the document is read
// again and the write retried a bounded number of times.
func (r *deviceRepository) Update(ctx context.Context, device *domain.Device) error {
	for attempt := 0; ; attempt++ {
		doc, err := r.findOwnedDoc(ctx, device.OwnerID, device.ID)
		if err != nil {
			return err
		}

		doc.Device = *device

		_, err = r.db.Put(ctx, doc.DocID, doc)
		if err == nil {
			return nil
		}
		if !isCouchConflict(err) || attempt >= maxConflictRetries {
			return fmt.Errorf("failed to update device: %w", err)
		}
	}
}

func (r *deviceRepository) DeleteOwned(ctx context.Context, ownerID, deviceID string) error {
	doc, err := r.findOwnedDoc(ctx, ownerID, deviceID)
	if err != nil {
		return err
	}

	if _, err := r.db.Delete(ctx, doc.DocID, doc.Rev); err != nil {
		if isCouchNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete device: %w", err)
	}

	return nil
}

// MarkStale selects candidates with Mango and applies the time comparison in
// Go, since timestamps are stored as RFC 3339 strings of varying precision.
// A write that fails is skipped; the remaining devices are still processed
// and the failures are returned joined.
func (r *deviceRepository) MarkStale(ctx context.Context, cutoff, at time.Time) ([]*domain.Device, error) {
	selector := map[string]interface{}{
		"doc_type":       docTypeDevice,
		"status":         map[string]interface{}{"$ne": domain.StatusInactive},
		"last_active_at": map[string]interface{}{"$ne": nil},
	}

	var candidates []deviceDoc
	err := findAll(ctx, r.db, selector, func(rows *kivik.ResultSet) error {
		var doc deviceDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil
		}
		if doc.Status != domain.StatusInactive && doc.StaleSince(cutoff) {
			candidates = append(candidates, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select stale devices: %w", err)
	}

	var (
		marked []*domain.Device
		errs   []error
	)
	for _, doc := range candidates {
		device, err := r.markInactive(ctx, doc, cutoff, at)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to mark device %s inactive: %w", doc.Device.ID, err))
			continue
		}
		if device != nil {
			marked = append(marked, device)
		}
	}

	return marked, errors.Join(errs...)
}

// markInactive writes the inactive status. On a revision conflict it re-reads
// the document and only retries while the device is still stale. A device
// that is gone or no longer stale yields nil.
func (r *deviceRepository) markInactive(ctx context.Context, doc deviceDoc, cutoff, at time.Time) (*domain.Device, error) {
	for attempt := 0; ; attempt++ {
		doc.Status = domain.StatusInactive
		doc.UpdatedAt = at

		_, err := r.db.Put(ctx, doc.DocID, doc)
		if err == nil {
			device := doc.Device
			return &device, nil
		}
		if !isCouchConflict(err) || attempt >= maxConflictRetries {
			return nil, err
		}

		var fresh deviceDoc
		if err := r.db.Get(ctx, doc.DocID).ScanDoc(&fresh); err != nil {
			if isCouchNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		if fresh.Status == domain.StatusInactive || !fresh.StaleSince(cutoff) {
			return nil, nil
		}
		doc = fresh
	}
}
