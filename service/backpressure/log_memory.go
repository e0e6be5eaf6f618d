package backpressure

import (
	"context"
	"sort"
	"sync"

	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao"
)

// MemoryLog is an in-memory signal log for tests and embedders that do not
// need the log to survive a restart.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[int64]*model.Signal
}

var _ Log = (*MemoryLog)(nil)

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: make(map[int64]*model.Signal)}
}

// Append persists a new entry.
func (l *MemoryLog) Append(_ context.Context, signal *model.Signal) error {
	if signal == nil {
		return dao.ErrNilEntity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *signal
	l.entries[signal.Seq] = &copied
	return nil
}

// Amend rewrites an existing entry.
func (l *MemoryLog) Amend(_ context.Context, signal *model.Signal) error {
	if signal == nil {
		return dao.ErrNilEntity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[signal.Seq]; !ok {
		return dao.ErrNotFound
	}
	copied := *signal
	l.entries[signal.Seq] = &copied
	return nil
}

// Replay returns all entries ordered by sequence number.
func (l *MemoryLog) Replay(_ context.Context) ([]*model.Signal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*model.Signal, 0, len(l.entries))
	for _, s := range l.entries {
		copied := *s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Remove drops an entry.
func (l *MemoryLog) Remove(_ context.Context, seq int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[seq]; !ok {
		return dao.ErrNotFound
	}
	delete(l.entries, seq)
	return nil
}
