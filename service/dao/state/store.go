// Package state persists the single workflow-state document of a session.
// Unlike the keyed stores there is exactly one live document; writers must
// replace it atomically so that concurrent readers never observe a torn
// state.
package state

import (
	"context"

	"github.com/viant/phasegate/model"
)

// Store persists the workflow-state document.
type Store interface {
	// Save atomically replaces the persisted document. The mutation is only
	// committed once Save returns nil.
	Save(ctx context.Context, state *model.State) error

	// Load returns the current document or dao.ErrNotFound.
	Load(ctx context.Context) (*model.State, error)

	// Archive moves the document out of the live location at session end.
	// Archived state is retained, never deleted.
	Archive(ctx context.Context, sessionID string) error
}
