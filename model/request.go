package model

import (
	"errors"
	"fmt"
	"time"
)

// Category identifies the kind of tool invocation being intercepted.
type Category string

const (
	CategoryBashCommand Category = "bash_command"
	CategoryFileWrite   Category = "file_write"
	CategoryFileEdit    Category = "file_edit"
)

// Categories lists all recognised request categories.
var Categories = []Category{CategoryBashCommand, CategoryFileWrite, CategoryFileEdit}

// IsValid reports whether c is one of the recognised categories.
func (c Category) IsValid() bool {
	for _, candidate := range Categories {
		if c == candidate {
			return true
		}
	}
	return false
}

// ErrInvalidRequest is returned when an ActionRequest is malformed and
// therefore never reaches policy evaluation.
var ErrInvalidRequest = errors.New("invalid action request")

// ActionRequest represents one pending tool invocation intercepted before
// execution. Payload carries the raw command string for bash_command, the
// target path for file_write, and either a path or a unified diff for
// file_edit.
type ActionRequest struct {
	Category  Category  `json:"category"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate rejects malformed requests locally, before any rule matching.
func (r *ActionRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if !r.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, r.Category)
	}
	if r.Payload == "" {
		return fmt.Errorf("%w: empty payload", ErrInvalidRequest)
	}
	return nil
}
