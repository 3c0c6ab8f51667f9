package domain

import "time"

type UsageLog struct {
	JobID           string
	SKU             string
	PixelsProcessed int64
	BytesIn         int64
	BytesOut        int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
