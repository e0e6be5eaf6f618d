// Package session implements the advisory single-writer lock of a workflow:
// at most one session drives a given workflow directory at a time. The lock
// is a marker file, so a crashed process leaves a stale marker behind; a
// restarting session detects the staleness and either resumes from the last
// checkpoint or explicitly takes the workflow over. Discarding a previous
// session is never implicit.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"go.uber.org/zap"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/internal/idgen"
)

const lockFileName = "lock.json"

// DefaultStaleThreshold is how long a marker may go without a heartbeat
// before it counts as stale.
const DefaultStaleThreshold = 2 * time.Minute

// ErrSessionActive is returned when another live session holds the lock.
var ErrSessionActive = errors.New("session: workflow already in progress")

// StaleLockError reports a marker left behind by a dead session. The caller
// decides the remediation: resume from the last checkpoint via Takeover, or
// abort.
type StaleLockError struct {
	Marker Marker
}

func (e *StaleLockError) Error() string {
	return fmt.Sprintf("session: stale lock held by %s (last heartbeat %s)",
		e.Marker.SessionID, e.Marker.HeartbeatAt.Format(time.RFC3339))
}

// Marker is the persisted lock document.
type Marker struct {
	SessionID   string    `json:"sessionId"`
	PID         int       `json:"pid"`
	AcquiredAt  time.Time `json:"acquiredAt"`
	HeartbeatAt time.Time `json:"heartbeatAt"`
}

// Lock is the advisory lock of one workflow directory.
type Lock struct {
	basePath   string
	sessionID  string
	threshold  time.Duration
	fs         afs.Service
	logger     *zap.Logger
	mu         sync.Mutex
	held       bool
	acquiredAt time.Time
}

// Option customises a Lock.
type Option func(*Lock)

// WithStaleThreshold overrides the stale-marker threshold.
func WithStaleThreshold(threshold time.Duration) Option {
	return func(l *Lock) { l.threshold = threshold }
}

// WithLogger sets the audit logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Lock) { l.logger = logger }
}

// New creates a lock for the workflow rooted at basePath.
func New(basePath, sessionID string, options ...Option) (*Lock, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	fs := afs.New()
	ctx := context.Background()
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	ret := &Lock{
		basePath:  url.Normalize(basePath, file.Scheme),
		sessionID: sessionID,
		threshold: DefaultStaleThreshold,
		fs:        fs,
		logger:    zap.NewNop(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret, nil
}

// Acquire takes the lock. It fails with ErrSessionActive when a live session
// holds it and with *StaleLockError when a dead one does - the latter must
// be resolved explicitly via Takeover.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	marker, err := l.read(ctx)
	if err != nil {
		return err
	}
	if marker != nil && marker.SessionID != l.sessionID {
		if clock.Now().Sub(marker.HeartbeatAt) < l.threshold {
			return fmt.Errorf("%w: held by session %s", ErrSessionActive, marker.SessionID)
		}
		return &StaleLockError{Marker: *marker}
	}
	return l.write(ctx)
}

// Takeover replaces a stale marker with this session's own. Use only after
// Acquire returned *StaleLockError and the operator confirmed the previous
// session may be discarded or resumed.
func (l *Lock) Takeover(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	marker, err := l.read(ctx)
	if err != nil {
		return err
	}
	if marker != nil {
		l.logger.Warn("anomaly: taking over stale session lock",
			zap.String("previous", marker.SessionID),
			zap.Time("lastHeartbeat", marker.HeartbeatAt))
	}
	return l.write(ctx)
}

// Heartbeat refreshes the marker so other would-be sessions keep seeing the
// lock as live.
func (l *Lock) Heartbeat(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return fmt.Errorf("session: lock not held")
	}
	return l.write(ctx)
}

// Release removes the marker at clean session end.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	if err := l.fs.Delete(ctx, l.lockPath()); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}

// Held reports whether this lock instance currently holds the marker.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *Lock) read(ctx context.Context) (*Marker, error) {
	exists, err := l.fs.Exists(ctx, l.lockPath())
	if err != nil {
		return nil, fmt.Errorf("failed to check session lock: %w", err)
	}
	if !exists {
		return nil, nil
	}
	data, err := l.fs.DownloadWithURL(ctx, l.lockPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read session lock: %w", err)
	}
	var marker Marker
	if err = json.Unmarshal(data, &marker); err != nil {
		// An unreadable marker is treated as stale rather than fatal.
		return &Marker{SessionID: "unknown"}, nil
	}
	return &marker, nil
}

// write replaces the marker atomically (write aside, rename into place).
func (l *Lock) write(ctx context.Context) error {
	now := clock.Now()
	if !l.held {
		l.acquiredAt = now
	}
	marker := Marker{
		SessionID:   l.sessionID,
		PID:         os.Getpid(),
		AcquiredAt:  l.acquiredAt,
		HeartbeatAt: now,
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal session lock: %w", err)
	}
	tmpPath := url.Join(l.basePath, fmt.Sprintf("%s.tmp-%s", lockFileName, idgen.Short()))
	if err = l.fs.Upload(ctx, tmpPath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write session lock: %w", err)
	}
	if err = l.fs.Move(ctx, tmpPath, l.lockPath()); err != nil {
		_ = l.fs.Delete(ctx, tmpPath)
		return fmt.Errorf("failed to swap session lock into place: %w", err)
	}
	l.held = true
	return nil
}

func (l *Lock) lockPath() string {
	return url.Join(l.basePath, lockFileName)
}
