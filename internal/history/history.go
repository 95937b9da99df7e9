// Package history records processing runs so recent activity can be listed.
//
// Recording is best effort. Callers log recorder errors and carry on; a
// history outage never fails a request.
package history

import (
	"context"
	"time"
)

// DefaultLimit is used when Recent is called with a non-positive limit.
const DefaultLimit = 50

// MaxLimit caps how many runs a single Recent call returns.
const MaxLimit = 500

// Run is one processed upload.
type Run struct {
	ID             string     `json:"id"`
	Output         string     `json:"output"`
	Source         string     `json:"source,omitempty"`
	Fields         []string   `json:"fields"`
	InputRows      int        `json:"inputRows"`
	OutputRows     int        `json:"outputRows"`
	DuplicateRows  int        `json:"duplicateRows"`
	EmptyPhoneRows int        `json:"emptyPhoneRows"`
	ClientIP       string     `json:"clientIp,omitempty"`
	UserAgent      string     `json:"userAgent,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	DownloadedAt   *time.Time `json:"downloadedAt,omitempty"`
}

// Recorder stores runs.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
	MarkDownloaded(ctx context.Context, output string, at time.Time) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
