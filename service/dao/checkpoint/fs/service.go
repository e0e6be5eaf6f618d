package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao"
	"github.com/viant/phasegate/service/dao/checkpoint"
)

// Service implements a filesystem-based checkpoint store. Each snapshot is
// one immutable JSON file named by its identifier; identifiers are
// timestamp-derived, so lexical file order is creation order.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

var _ checkpoint.Store = (*Service)(nil)

// New creates a filesystem checkpoint store rooted at basePath.
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	fs := afs.New()
	ctx := context.Background()
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	basePath = url.Normalize(basePath, file.Scheme)
	return &Service{basePath: basePath, fs: fs}, nil
}

// Save persists a checkpoint. Snapshots are immutable; saving an existing
// identifier is rejected.
func (s *Service) Save(ctx context.Context, c *model.Checkpoint) error {
	if c == nil {
		return dao.ErrNilEntity
	}
	if c.ID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.checkpointPath(c.ID)
	if exists, _ := s.fs.Exists(ctx, filePath); exists {
		return fmt.Errorf("checkpoint %s already exists", c.ID)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", c.ID, err)
	}
	return nil
}

// Load retrieves a checkpoint by identifier.
func (s *Service) Load(ctx context.Context, id string) (*model.Checkpoint, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.checkpointPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check checkpoint %s: %w", id, err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", id, err)
	}
	var ret model.Checkpoint
	if err = json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", id, err)
	}
	return &ret, nil
}

// Delete removes a checkpoint.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.checkpointPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check checkpoint %s: %w", id, err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err = s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
	}
	return nil
}

// List returns all checkpoints ordered oldest first.
func (s *Service) List(ctx context.Context) ([]*model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var ret []*model.Checkpoint
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			continue
		}
		var c model.Checkpoint
		if err = json.Unmarshal(data, &c); err != nil {
			continue
		}
		ret = append(ret, &c)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.Before(ret[j].CreatedAt) })
	return ret, nil
}

// Prune drops the oldest checkpoints beyond maxCount and any older than
// maxAge (zero disables the respective limit).
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

func (s *Service) checkpointPath(id string) string {
	return url.Join(s.basePath, fmt.Sprintf("%s.json", id))
}
