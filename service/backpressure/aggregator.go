// Package backpressure records post-execution diagnostic signals and answers
// the single question the host runtime asks at its stop lifecycle point: is
// it safe to finish, or are there unresolved failures.
//
// The session log is append-only. "Most recent check of each kind wins": a
// later clean run of the tests clears earlier test failures, it does not
// rewrite them.
package backpressure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/model"
)

// DefaultCoalescingWindow bounds how far apart two identical signals may be
// and still collapse into one entry with a bumped repeat counter.
const DefaultCoalescingWindow = 5 * time.Second

// Verdict is the answer to CanStop.
type Verdict struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Aggregator owns the session signal log. It keeps an ordered in-memory view
// for fast reads and mirrors every append into the configured Log.
type Aggregator struct {
	mu      sync.RWMutex
	log     Log
	entries []*model.Signal
	nextSeq int64
	window  time.Duration
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithLog sets the durable backing log.
func WithLog(log Log) Option {
	return func(a *Aggregator) { a.log = log }
}

// WithCoalescingWindow overrides the duplicate coalescing window.
func WithCoalescingWindow(window time.Duration) Option {
	return func(a *Aggregator) { a.window = window }
}

// New creates an aggregator. Without options the log lives in memory only.
func New(options ...Option) *Aggregator {
	ret := &Aggregator{
		log:     NewMemoryLog(),
		nextSeq: 1,
		window:  DefaultCoalescingWindow,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Restore replays the backing log into memory, used when a restarted session
// resumes a workflow.
func (a *Aggregator) Restore(ctx context.Context) error {
	entries, err := a.log.Replay(ctx)
	if err != nil {
		return fmt.Errorf("failed to replay signal log: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = entries
	a.nextSeq = 1
	if n := len(entries); n > 0 {
		a.nextSeq = entries[n-1].Seq + 1
	}
	return nil
}

// Record appends a signal to the session log. An identical signal recorded
// within the coalescing window bumps the repeat counter of the previous
// entry instead of appending, so noisy tooling cannot grow the log without
// bound. The append is only committed once the backing log accepted it.
func (a *Aggregator) Record(ctx context.Context, signal *model.Signal) error {
	if signal == nil {
		return fmt.Errorf("nil signal")
	}
	if !signal.Kind.IsValid() {
		return fmt.Errorf("unknown signal kind %q", signal.Kind)
	}
	if signal.Timestamp.IsZero() {
		signal.Timestamp = clock.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if last := a.latestOfKind(signal.Kind); last != nil && last.SameAs(signal) &&
		signal.Timestamp.Sub(last.Timestamp) <= a.window {
		amended := *last
		amended.Repeats++
		if err := a.log.Amend(ctx, &amended); err != nil {
			return fmt.Errorf("failed to coalesce signal: %w", err)
		}
		*last = amended
		return nil
	}

	copied := *signal
	copied.Seq = a.nextSeq
	if err := a.log.Append(ctx, &copied); err != nil {
		return fmt.Errorf("failed to append signal: %w", err)
	}
	a.nextSeq++
	a.entries = append(a.entries, &copied)
	return nil
}

// CanStop reports whether the workflow may terminate cleanly. For every
// signal kind only the most recent entry counts; the verdict denies the stop
// when any kind's latest entry is an uncleared error or critical. CanStop is
// a pure read.
func (a *Aggregator) CanStop() Verdict {
	a.mu.RLock()
	defer a.mu.RUnlock()

	latest := make(map[model.Kind]*model.Signal)
	for _, entry := range a.entries {
		latest[entry.Kind] = entry
	}

	verdict := Verdict{Allowed: true}
	for _, kind := range []model.Kind{model.KindLint, model.KindType, model.KindTest, model.KindSecurity, model.KindCommand} {
		entry, ok := latest[kind]
		if !ok || entry.Clearing || !entry.Severity.Blocking() {
			continue
		}
		verdict.Allowed = false
		verdict.Reasons = append(verdict.Reasons,
			fmt.Sprintf("unresolved %s %s: %s", kind, entry.Severity, entry.Message))
	}
	return verdict
}

// Signals returns a copy of the in-memory log view, ordered by sequence.
func (a *Aggregator) Signals() []*model.Signal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*model.Signal, 0, len(a.entries))
	for _, entry := range a.entries {
		copied := *entry
		out = append(out, &copied)
	}
	return out
}

// Prune applies the retention policy: at most maxEntries survive and no
// entry older than maxAge (zero disables the respective limit). Surviving
// entries are never rewritten.
func (a *Aggregator) Prune(ctx context.Context, maxEntries int, maxAge time.Duration) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := clock.Now()
	pruned := 0
	for i, entry := range a.entries {
		tooMany := maxEntries > 0 && len(a.entries)-i > maxEntries
		tooOld := maxAge > 0 && now.Sub(entry.Timestamp) > maxAge
		if !tooMany && !tooOld {
			break
		}
		if err := a.log.Remove(ctx, entry.Seq); err != nil {
			return pruned, fmt.Errorf("failed to prune signal %d: %w", entry.Seq, err)
		}
		pruned++
	}
	a.entries = a.entries[pruned:]
	return pruned, nil
}

// latestOfKind returns the newest entry of a kind, or nil.
func (a *Aggregator) latestOfKind(kind model.Kind) *model.Signal {
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Kind == kind {
			return a.entries[i]
		}
	}
	return nil
}
