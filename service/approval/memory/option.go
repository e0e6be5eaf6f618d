package memory

import (
	"github.com/viant/phasegate/service/approval"
	"github.com/viant/phasegate/service/messaging"
)

type Option func(*service)

// WithQueue replaces the default in-memory approval event queue, so that an
// embedder can route approval traffic over its own transport.
func WithQueue(q messaging.Queue[approval.Event]) Option {
	return func(s *service) { s.events = q }
}
