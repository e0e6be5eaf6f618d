package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Checkpoint is an immutable snapshot of workflow state cut when a phase
// completes. It is keyed by a timestamp-derived identifier and carries a
// content digest so that a restore can detect tampering or torn writes.
type Checkpoint struct {
	ID        string    `json:"id"`
	Phase     Phase     `json:"phase"`
	State     *State    `json:"state"`
	Artifacts []string  `json:"artifacts,omitempty"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"createdAt"`
}

// CheckpointIDAt derives a checkpoint identifier from a timestamp plus a
// short random suffix that disambiguates snapshots cut within the same
// millisecond.
func CheckpointIDAt(t time.Time, suffix string) string {
	return fmt.Sprintf("%s-%s", t.UTC().Format("20060102T150405.000"), suffix)
}

// StateDigest computes the blake2b-256 digest of the canonical JSON encoding
// of a state snapshot.
func StateDigest(state *State) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode state for digest: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NewCheckpoint snapshots the supplied state. The snapshot is a deep copy;
// later mutations of the live state do not leak into the checkpoint.
func NewCheckpoint(id string, state *State, artifacts []string, now time.Time) (*Checkpoint, error) {
	snapshot := state.Clone()
	digest, err := StateDigest(snapshot)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		ID:        id,
		Phase:     snapshot.Phase,
		State:     snapshot,
		Artifacts: append([]string(nil), artifacts...),
		Digest:    digest,
		CreatedAt: now,
	}, nil
}

// Verify recomputes the snapshot digest and reports whether it matches the
// digest stored at checkpoint creation.
func (c *Checkpoint) Verify() (bool, error) {
	digest, err := StateDigest(c.State)
	if err != nil {
		return false, err
	}
	return digest == c.Digest, nil
}
