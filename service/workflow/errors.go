package workflow

import "errors"

var (
	// ErrPhaseNotComplete is returned by AdvancePhase while required agents
	// of the current phase are still outstanding.
	ErrPhaseNotComplete = errors.New("workflow: phase not complete")

	// ErrCheckpointNotFound is returned when the requested checkpoint is
	// unknown or has been pruned.
	ErrCheckpointNotFound = errors.New("workflow: checkpoint not found")

	// ErrCheckpointCorrupt is returned when a checkpoint's content digest no
	// longer matches its snapshot.
	ErrCheckpointCorrupt = errors.New("workflow: checkpoint corrupt")

	// ErrSessionEnded is returned once the release phase completed; no
	// further transitions are possible.
	ErrSessionEnded = errors.New("workflow: session ended")

	// ErrInvalidPhase is returned for unknown phases or transitions against
	// the phase ordering.
	ErrInvalidPhase = errors.New("workflow: invalid phase")

	// ErrPersistence wraps a failed atomic state write. The in-memory state
	// is not committed when this is returned; the caller must retry or abort
	// rather than continue with unpersisted state.
	ErrPersistence = errors.New("workflow: persistence write failure")
)
