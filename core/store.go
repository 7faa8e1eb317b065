package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// RemoteStore mirrors the usage document to durable storage. The
// document is always replaced whole; no backend attempts a partial
// update. Load returns ErrDocumentNotFound on a first run.
type RemoteStore interface {
	Load(ctx context.Context) ([]UsageRecord, error)
	// Publish replaces the remote document with the contents of the
	// local file at path.
	Publish(ctx context.Context, path string) error
}

// storedRecord tolerates documents written by earlier deployments where
// week_start carried a fractional part.
type storedRecord struct {
	ID        string  `json:"id"`
	Count     int     `json:"count"`
	WeekStart float64 `json:"week_start"`
}

// DecodeDocument parses a usage document. An empty or whitespace-only
// document decodes to an empty record set.
func DecodeDocument(data []byte) ([]UsageRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var stored []storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode usage document: %w", err)
	}
	records := make([]UsageRecord, 0, len(stored))
	for _, s := range stored {
		if s.ID == "" {
			continue
		}
		records = append(records, UsageRecord{
			ID:        s.ID,
			Count:     s.Count,
			WeekStart: int64(s.WeekStart),
		})
	}
	return records, nil
}

// EncodeDocument renders records as the canonical usage document.
func EncodeDocument(records []UsageRecord) ([]byte, error) {
	if records == nil {
		records = []UsageRecord{}
	}
	return json.MarshalIndent(records, "", "  ")
}
