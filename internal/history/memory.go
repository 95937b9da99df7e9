package history

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps the most recent runs in process. It is used when no database
// is configured.
type Memory struct {
	mu       sync.Mutex
	runs     []Run
	capacity int
}

// NewMemory returns a recorder holding at most capacity runs.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = MaxLimit
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) RecordRun(_ context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Fields = slices.Clone(run.Fields)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, run)
	if over := len(m.runs) - m.capacity; over > 0 {
		m.runs = slices.Delete(m.runs, 0, over)
	}
	return nil
}

// MarkDownloaded is a no-op for outputs that were never recorded or were
// already evicted.
func (m *Memory) MarkDownloaded(_ context.Context, output string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Output == output {
			t := at
			m.runs[i].DownloadedAt = &t
			return nil
		}
	}
	return nil
}

// Recent returns runs newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]Run, error) {
	limit = clampLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := min(limit, len(m.runs))
	out := make([]Run, 0, n)
	for i := len(m.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}
