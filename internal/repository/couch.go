package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

// ErrNotFound is returned when no record matches the lookup key.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique attribute is already taken.
var ErrDuplicate = errors.New("record already exists")

const (
	docTypeUser      = "user"
	docTypeDevice    = "device"
	docTypeDeviceLog = "device_log"

	// findPageSize bounds a single Mango query page; findAll follows bookmarks
	// until the result set is drained.
	findPageSize = 500

	// maxConflictRetries bounds how often a write re-reads a document after
	// losing a revision race.
	maxConflictRetries = 3

	designDoc           = "device-hub"
	indexDevicesByOwner = "devices-by-owner"
	indexLogsByTime     = "device-logs-by-time"
)

type couchIndex struct {
	name   string
	fields []string
}

var couchIndexes = []couchIndex{
	{name: indexDevicesByOwner, fields: []string{"doc_type", "owner_id"}},
	{name: indexLogsByTime, fields: []string{"device_id", "ts"}},
}

func isCouchNotFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}

func isCouchConflict(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusConflict
}

// EnsureIndexes creates the Mango indexes the repositories query with.
// CouchDB leaves an identical existing index untouched.
func EnsureIndexes(ctx context.Context, db *kivik.DB) error {
	for _, idx := range couchIndexes {
		index := map[string]interface{}{"fields": idx.fields}
		if err := db.CreateIndex(ctx, designDoc, idx.name, index); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// findAll runs a Mango query and hands every matching document to scan,
// following bookmarks across pages.
func findAll(ctx context.Context, db *kivik.DB, selector map[string]interface{}, scan func(rows *kivik.ResultSet) error) error {
	bookmark := ""
	for {
		query := map[string]interface{}{
			"selector": selector,
			"limit":    findPageSize,
		}
		if bookmark != "" {
			query["bookmark"] = bookmark
		}

		rows := db.Find(ctx, query)
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to query documents: %w", err)
		}

		count := 0
		for rows.Next() {
			count++
			if err := scan(rows); err != nil {
				rows.Close()
				return err
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("failed to iterate documents: %w", err)
		}

		meta, err := rows.Metadata()
		rows.Close()
		if err != nil {
			return fmt.Errorf("failed to read query metadata: %w", err)
		}

		if count < findPageSize || meta.Bookmark == "" || meta.Bookmark == bookmark {
			return nil
		}
		bookmark = meta.Bookmark
	}
}

// findOne returns the first document matching selector or ErrNotFound.
func findOne(ctx context.Context, db *kivik.DB, selector map[string]interface{}, dest interface{}) error {
	query := map[string]interface{}{
		"selector": selector,
		"limit":    1,
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to query document: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to query document: %w", err)
		}
		return ErrNotFound
	}

	if err := rows.ScanDoc(dest); err != nil {
		return fmt.Errorf("failed to scan document: %w", err)
	}

	return nil
}
