package phasegate

import (
	"go.uber.org/zap"

	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/policy"
	"github.com/viant/phasegate/service/approval"
	"github.com/viant/phasegate/service/backpressure"
	"github.com/viant/phasegate/service/dao/checkpoint"
	"github.com/viant/phasegate/service/dao/state"
	"github.com/viant/phasegate/service/event"
	"github.com/viant/phasegate/service/messaging"
)

// Option customises the engine service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithSessionID pins the session identifier instead of generating one.
func WithSessionID(sessionID string) Option {
	return func(s *Service) { s.sessionID = sessionID }
}

// WithPolicySet sets a pre-loaded policy rule base.
func WithPolicySet(policySet *policy.PolicySet) Option {
	return func(s *Service) { s.policySet = policySet }
}

// WithApprovalService sets the approval service handling Ask decisions.
func WithApprovalService(svc approval.Service) Option {
	return func(s *Service) { s.approvals = svc }
}

// WithEventQueue attaches a queue for engine event fan-out.
func WithEventQueue(queue messaging.Queue[event.Event]) Option {
	return func(s *Service) { s.eventQueue = queue }
}

// WithLogger sets the structured audit logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRequiredAgents declares the agent set each phase waits for.
func WithRequiredAgents(required map[model.Phase][]string) Option {
	return func(s *Service) { s.required = required }
}

// WithSignalLog sets the durable backpressure log.
func WithSignalLog(log backpressure.Log) Option {
	return func(s *Service) { s.signalLog = log }
}

// WithStateStore sets the durable workflow-state store.
func WithStateStore(store state.Store) Option {
	return func(s *Service) { s.stateStore = store }
}

// WithCheckpointStore sets the checkpoint store.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(s *Service) { s.checkpointStore = store }
}
