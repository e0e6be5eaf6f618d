package memory

import (
	"context"
	"sort"
	"time"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao/checkpoint"
	"github.com/viant/phasegate/service/dao/store"
)

// Service is an in-memory checkpoint store built on the generic memory
// store, with retention pruning on top.
type Service struct {
	*store.MemoryStore[string, model.Checkpoint]
}

var _ checkpoint.Store = (*Service)(nil)

func key(c *model.Checkpoint) string { return c.ID }

// New creates an empty in-memory checkpoint store.
func New() *Service {
	return &Service{MemoryStore: store.NewMemoryStore[string, model.Checkpoint](key)}
}

// List returns all checkpoints ordered oldest first, matching the
// filesystem store.
func (s *Service) List(ctx context.Context) ([]*model.Checkpoint, error) {
	all, err := s.MemoryStore.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all, nil
}

// Prune drops the oldest checkpoints beyond maxCount and any older than
// maxAge.
func (s *Service) Prune(ctx context.Context, maxCount int, maxAge time.Duration) (int, error) {
	all, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	now := clock.Now()
	for i, c := range all {
		tooMany := maxCount > 0 && len(all)-i > maxCount
		tooOld := maxAge > 0 && now.Sub(c.CreatedAt) > maxAge
		if !tooMany && !tooOld {
			break
		}
		if err = s.Delete(ctx, c.ID); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
