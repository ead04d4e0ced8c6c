package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"device-hub-server/internal/domain"
)

const deviceColumns = "id, owner_id, name, type, status, last_active_at, created_at, updated_at"

type sqliteDeviceRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceRepository returns a DeviceRepository over the schema in
// internal/database.
func NewSQLiteDeviceRepository(db *sql.DB) DeviceRepository {
	return &sqliteDeviceRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func unixNano(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var (
		d          domain.Device
		lastActive sql.NullInt64
		created    int64
		updated    int64
	)

	if err := row.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Type, &d.Status, &lastActive, &created, &updated); err != nil {
		return nil, err
	}

	if lastActive.Valid {
		t := fromUnixNano(lastActive.Int64)
		d.LastActiveAt = &t
	}
	d.CreatedAt = fromUnixNano(created)
	d.UpdatedAt = fromUnixNano(updated)

	return &d, nil
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: unixNano(*t), Valid: true}
}

func (r *sqliteDeviceRepository) Create(ctx context.Context, device *domain.Device) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO devices ("+deviceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		device.ID,
		device.OwnerID,
		device.Name,
		device.Type,
		device.Status,
		nullableTime(device.LastActiveAt),
		unixNano(device.CreatedAt),
		unixNano(device.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	return nil
}

func (r *sqliteDeviceRepository) FindOwned(ctx context.Context, ownerID, deviceID string) (*domain.Device, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE id = ? AND owner_id = ?",
		deviceID, ownerID,
	)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find device: %w", err)
	}

	return device, nil
}

func (r *sqliteDeviceRepository) List(ctx context.Context, ownerID string, filter domain.DeviceFilter) ([]*domain.Device, error) {
	clauses := []string{"owner_id = ?"}
	args := []any{ownerID}

	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT " + deviceColumns + " FROM devices WHERE " + strings.Join(clauses, " AND ") + " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]*domain.Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	return devices, nil
}

func (r *sqliteDeviceRepository) Update(ctx context.Context, device *domain.Device) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE devices SET name = ?, type = ?, status = ?, last_active_at = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		device.Name,
		device.Type,
		device.Status,
		nullableTime(device.LastActiveAt),
		unixNano(device.UpdatedAt),
		device.ID,
		device.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}

	return requireAffected(res)
}

func (r *sqliteDeviceRepository) DeleteOwned(ctx context.Context, ownerID, deviceID string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM devices WHERE id = ? AND owner_id = ?",
		deviceID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	return requireAffected(res)
}

// MarkStale transitions every stale device in one statement.
func (r *sqliteDeviceRepository) MarkStale(ctx context.Context, cutoff, at time.Time) ([]*domain.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ?
		 WHERE last_active_at IS NOT NULL AND last_active_at < ? AND status != ?
		 RETURNING `+deviceColumns,
		domain.StatusInactive,
		unixNano(at),
		unixNano(cutoff),
		domain.StatusInactive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark stale devices: %w", err)
	}
	defer rows.Close()

	var marked []*domain.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return marked, fmt.Errorf("failed to scan stale device: %w", err)
		}
		marked = append(marked, device)
	}
	if err := rows.Err(); err != nil {
		return marked, fmt.Errorf("failed to mark stale devices: %w", err)
	}

	return marked, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
