// Package checkpoint persists immutable workflow-state snapshots keyed by
// their timestamp-derived identifiers.
package checkpoint

import (
	"context"
	"time"

	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/service/dao"
)

// Store is a keyed checkpoint store with retention pruning.
type Store interface {
	dao.Service[string, model.Checkpoint]

	// Prune removes the oldest checkpoints beyond maxCount and any checkpoint
	// older than maxAge (zero disables the respective limit). It returns the
	// number of snapshots removed.
	Prune(ctx context.Context, maxCount int, maxAge time.Duration) (int, error)
}
