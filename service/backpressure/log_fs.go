package backpressure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao"
)

// FsLog is a filesystem-backed signal log: one JSON file per entry, named by
// zero-padded sequence number so lexical directory order is log order.
// Appends only ever create new files; a coalescing amend rewrites the single
// file of the coalesced entry.
type FsLog struct {
	basePath string
	fs       afs.Service
	mu       sync.Mutex
}

var _ Log = (*FsLog)(nil)

// NewFsLog creates a filesystem log rooted at basePath.
func NewFsLog(basePath string) (*FsLog, error) {
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
	return &FsLog{basePath: basePath, fs: fs}, nil
}

// Append persists a new entry.
func (l *FsLog) Append(ctx context.Context, signal *model.Signal) error {
	if signal == nil {
		return dao.ErrNilEntity
	}
	return l.write(ctx, signal, false)
}

// Amend rewrites an existing entry.
func (l *FsLog) Amend(ctx context.Context, signal *model.Signal) error {
	if signal == nil {
		return dao.ErrNilEntity
	}
	return l.write(ctx, signal, true)
}

func (l *FsLog) write(ctx context.Context, signal *model.Signal, mustExist bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entryPath := l.entryPath(signal.Seq)
	if mustExist {
		if exists, _ := l.fs.Exists(ctx, entryPath); !exists {
			return dao.ErrNotFound
		}
	}
	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}
	if err = l.fs.Upload(ctx, entryPath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write signal entry %d: %w", signal.Seq, err)
	}
	return nil
}

// Replay returns all entries ordered by sequence number.
func (l *FsLog) Replay(ctx context.Context) ([]*model.Signal, error) {
	objects, err := l.fs.List(ctx, l.basePath, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list signal log: %w", err)
	}
	var out []*model.Signal
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := l.fs.Download(ctx, object)
		if err != nil {
			continue
		}
		var signal model.Signal
		if err = json.Unmarshal(data, &signal); err != nil {
			continue
		}
		out = append(out, &signal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Remove drops an entry.
func (l *FsLog) Remove(ctx context.Context, seq int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entryPath := l.entryPath(seq)
	if exists, _ := l.fs.Exists(ctx, entryPath); !exists {
		return dao.ErrNotFound
	}
	if err := l.fs.Delete(ctx, entryPath); err != nil {
		return fmt.Errorf("failed to remove signal entry %d: %w", seq, err)
	}
	return nil
}

func (l *FsLog) entryPath(seq int64) string {
	return url.Join(l.basePath, fmt.Sprintf("%012d.json", seq))
}
