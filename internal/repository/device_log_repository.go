package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"device-hub-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// DeviceLogRepository stores append-only device events. Callers resolve
// device ownership before reaching it.
type DeviceLogRepository interface {
	Append(ctx context.Context, log *domain.DeviceLog) error
	Recent(ctx context.Context, deviceID string, limit int) ([]*domain.DeviceLog, error)
	SumSince(ctx context.Context, deviceID, event string, since time.Time) (float64, error)
	DeleteByDevice(ctx context.Context, deviceID string) (int, error)
}

type deviceLogDoc struct {
	DocID   string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	SortKey string `json:"ts"`
	domain.DeviceLog
}

// sortKeyLayout is fixed width so that keys compare in time order as strings.
const sortKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

func logSortKey(t time.Time) string {
	return t.UTC().Format(sortKeyLayout)
}

type deviceLogRepository struct {
	db *kivik.DB
}

func NewDeviceLogRepository(client *kivik.Client, dbName string) DeviceLogRepository {
	return &deviceLogRepository{
		db: client.DB(dbName),
	}
}

func (r *deviceLogRepository) Append(ctx context.Context, log *domain.DeviceLog) error {
	doc := deviceLogDoc{
		DocID:     fmt.Sprintf("log:%s:%s", log.DeviceID, log.ID),
		DocType:   docTypeDeviceLog,
		SortKey:   logSortKey(log.Timestamp),
		DeviceLog: *log,
	}

	if _, err := r.db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to append device log: %w", err)
	}

	return nil
}

func (r *deviceLogRepository) scan(ctx context.Context, selector map[string]interface{}) ([]*deviceLogDoc, error) {
	var docs []*deviceLogDoc
	err := findAll(ctx, r.db, selector, func(rows *kivik.ResultSet) error {
		var doc deviceLogDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil // Skip malformed docs
		}
		docs = append(docs, &doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// Recent lets CouchDB order and cut the result through the
// device-logs-by-time index, so only limit documents leave the server.
func (r *deviceLogRepository) Recent(ctx context.Context, deviceID string, limit int) ([]*domain.DeviceLog, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"device_id": deviceID,
			"doc_type":  docTypeDeviceLog,
		},
		"sort": []interface{}{
			map[string]string{"device_id": "desc"},
			map[string]string{"ts": "desc"},
		},
		"use_index": []string{designDoc, indexLogsByTime},
	}
	if limit > 0 {
		query["limit"] = limit
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list device logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*domain.DeviceLog, 0)
	for rows.Next() {
		var doc deviceLogDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		entry := doc.DeviceLog
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list device logs: %w", err)
	}

	return logs, nil
}

func (r *deviceLogRepository) SumSince(ctx context.Context, deviceID, event string, since time.Time) (float64, error) {
	docs, err := r.scan(ctx, map[string]interface{}{
		"doc_type":  docTypeDeviceLog,
		"device_id": deviceID,
		"event":     event,
		"ts":        map[string]interface{}{"$gte": logSortKey(since)},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate device logs: %w", err)
	}

	var total float64
	for _, doc := range docs {
		total += doc.Value
	}

	return total, nil
}

func (r *deviceLogRepository) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	docs, err := r.scan(ctx, map[string]interface{}{
		"doc_type":  docTypeDeviceLog,
		"device_id": deviceID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list device logs: %w", err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, doc := range docs {
		if _, err := r.db.Delete(ctx, doc.DocID, doc.Rev); err != nil && !isCouchNotFound(err) {
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	if len(errs) > 0 {
		return deleted, fmt.Errorf("failed to delete %d device logs: %w", len(errs), errors.Join(errs...))
	}

	return deleted, nil
}
