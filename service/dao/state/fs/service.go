package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/internal/idgen"
	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao"
	"github.com/viant/phasegate/service/dao/state"
)

const stateFileName = "state.json"

// Service implements a filesystem-backed workflow-state store. Every save
// writes a fresh temporary file and renames it over the live document, so an
// observability reader holding the old file never sees a partial write.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.Mutex
}

// Ensure Service implements state.Store
var _ state.Store = (*Service)(nil)

// New creates a filesystem state store rooted at basePath.
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

// Save atomically replaces the persisted state document.
func (s *Service) Save(ctx context.Context, aState *model.State) error {
	if aState == nil {
		return dao.ErrNilEntity
	}
	data, err := json.Marshal(aState)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := url.Join(s.basePath, fmt.Sprintf("%s.tmp-%s", stateFileName, idgen.Short()))
	if err = s.fs.Upload(ctx, tmpPath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write state document: %w", err)
	}
	if err = s.fs.Move(ctx, tmpPath, s.statePath()); err != nil {
		_ = s.fs.Delete(ctx, tmpPath)
		return fmt.Errorf("failed to swap state document into place: %w", err)
	}
	return nil
}

// Load returns the persisted state document.
func (s *Service) Load(ctx context.Context) (*model.State, error) {
	exists, err := s.fs.Exists(ctx, s.statePath())
	if err != nil {
		return nil, fmt.Errorf("failed to check state document: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, s.statePath())
	if err != nil {
		return nil, fmt.Errorf("failed to read state document: %w", err)
	}
	var ret model.State
	if err = json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state document: %w", err)
	}
	return &ret, nil
}

// Archive moves the live document into the archive directory, keyed by
// session and archival time so that repeated sessions never collide.
func (s *Service) Archive(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.fs.Exists(ctx, s.statePath())
	if err != nil {
		return fmt.Errorf("failed to check state document: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	archiveDir := url.Join(s.basePath, "archive")
	if ok, _ := s.fs.Exists(ctx, archiveDir); !ok {
		if err = s.fs.Create(ctx, archiveDir, file.DefaultDirOsMode, true); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	name := fmt.Sprintf("%s-%s.json", sessionID, clock.Now().UTC().Format("20060102T150405"))
	if err = s.fs.Move(ctx, s.statePath(), url.Join(archiveDir, name)); err != nil {
		return fmt.Errorf("failed to archive state document: %w", err)
	}
	return nil
}

func (s *Service) statePath() string {
	return url.Join(s.basePath, stateFileName)
}
