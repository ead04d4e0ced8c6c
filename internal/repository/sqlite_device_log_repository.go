package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"device-hub-server/internal/domain"
)

type sqliteDeviceLogRepository struct {
	db *sql.DB
}

func NewSQLiteDeviceLogRepository(db *sql.DB) DeviceLogRepository {
	return &sqliteDeviceLogRepository{db: db}
}

func (r *sqliteDeviceLogRepository) Append(ctx context.Context, log *domain.DeviceLog) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO device_logs (id, device_id, event, value, timestamp) VALUES (?, ?, ?, ?, ?)",
		log.ID,
		log.DeviceID,
		log.Event,
		log.Value,
		unixNano(log.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append device log: %w", err)
	}

	return nil
}

func (r *sqliteDeviceLogRepository) Recent(ctx context.Context, deviceID string, limit int) ([]*domain.DeviceLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, event, value, timestamp FROM device_logs
		 WHERE device_id = ?
		 ORDER BY timestamp DESC, rowid DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list device logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*domain.DeviceLog, 0)
	for rows.Next() {
		var (
			entry domain.DeviceLog
			ts    int64
		)
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.Event, &entry.Value, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan device log: %w", err)
		}
		entry.Timestamp = fromUnixNano(ts)
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list device logs: %w", err)
	}

	return logs, nil
}

func (r *sqliteDeviceLogRepository) SumSince(ctx context.Context, deviceID, event string, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		"SELECT SUM(value) FROM device_logs WHERE device_id = ? AND event = ? AND timestamp >= ?",
		deviceID, event, unixNano(since),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate device logs: %w", err)
	}

	return total.Float64, nil
}

func (r *sqliteDeviceLogRepository) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM device_logs WHERE device_id = ?", deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete device logs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(n), nil
}
