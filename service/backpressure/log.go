package backpressure

import (
	"context"

	"github.com/viant/phasegate/model"
)

// Log is the append-only session log backing the aggregator. Entries are
// keyed by their sequence number; Amend only ever rewrites the repeat
// counter of an existing entry during coalescing, never its content.
type Log interface {
	// Append persists a new entry. The caller has already assigned Seq.
	Append(ctx context.Context, signal *model.Signal) error

	// Amend rewrites the entry identified by signal.Seq (coalescing bump).
	Amend(ctx context.Context, signal *model.Signal) error

	// Replay returns all entries ordered by sequence number.
	Replay(ctx context.Context) ([]*model.Signal, error)

	// Remove drops the entry with the given sequence number (retention).
	Remove(ctx context.Context, seq int64) error
}
