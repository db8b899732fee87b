package redis

import (
	"fmt"
	"strconv"
	"time"
)

// parseMeta converts the metadata hash to Meta
func parseMeta(data map[string]string) (*Meta, error) {
	meta := &Meta{Writer: data["writer"]}
	if len(data) == 0 {
		return meta, nil
	}

	if raw, ok := data["revision"]; ok {
		revision, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse revision: %w", err)
		}
		meta.Revision = revision
	}

	if raw, ok := data["updated_at"]; ok {
		updatedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		meta.UpdatedAt = updatedAt
	}

	return meta, nil
}
