package phasegate

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/viant/phasegate/internal/idgen"
	"github.com/viant/phasegate/model"
	"github.com/viant/phasegate/policy"
	"github.com/viant/phasegate/service/approval"
	amemory "github.com/viant/phasegate/service/approval/memory"
	"github.com/viant/phasegate/service/backpressure"
	"github.com/viant/phasegate/service/dao/checkpoint"
	cfs "github.com/viant/phasegate/service/dao/checkpoint/fs"
	"github.com/viant/phasegate/service/dao/state"
	sfs "github.com/viant/phasegate/service/dao/state/fs"
	"github.com/viant/phasegate/service/event"
	"github.com/viant/phasegate/service/messaging"
	"github.com/viant/phasegate/service/session"
	"github.com/viant/phasegate/service/workflow"
	"github.com/viant/phasegate/tracing"
)

// Service is the assembled policy and backpressure engine of one workflow
// session. It is a library surface: the host agent runtime calls Evaluate
// before every tool call, Record after, and CanStop at its stop lifecycle
// point, while the orchestration layer drives the phase machinery.
type Service struct {
	config    *Config
	sessionID string
	required  map[model.Phase][]string
	logger    *zap.Logger

	policySet  *policy.PolicySet
	engine     *policy.Engine
	machine    *workflow.Machine
	aggregator *backpressure.Aggregator
	approvals  approval.Service
	lock       *session.Lock

	signalLog       backpressure.Log
	stateStore      state.Store
	checkpointStore checkpoint.Store
	eventQueue      messaging.Queue[event.Event]
	events          *event.Publisher
}

// New assembles an engine service. Without options everything lives in
// memory under the built-in default policy; Config.BaseURL switches all
// stores to the durable filesystem layout.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init() error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.sessionID == "" {
		s.sessionID = idgen.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	if err := s.ensurePolicy(); err != nil {
		return err
	}
	s.engine = policy.NewEngine(s.policySet)

	if err := s.ensureStores(); err != nil {
		return err
	}

	s.events = event.NewPublisher(s.sessionID, s.eventQueue)
	aggregatorOptions := []backpressure.Option{
		backpressure.WithCoalescingWindow(s.config.Session.CoalescingWindow),
	}
	if s.signalLog != nil {
		aggregatorOptions = append(aggregatorOptions, backpressure.WithLog(s.signalLog))
	}
	s.aggregator = backpressure.New(aggregatorOptions...)

	machineOptions := []workflow.Option{
		workflow.WithLogger(s.logger),
		workflow.WithPublisher(s.events),
		workflow.WithRequiredAgents(s.required),
	}
	if s.stateStore != nil {
		machineOptions = append(machineOptions, workflow.WithStateStore(s.stateStore))
	}
	if s.checkpointStore != nil {
		machineOptions = append(machineOptions, workflow.WithCheckpointStore(s.checkpointStore))
	}
	s.machine = workflow.New(s.sessionID, machineOptions...)

	if s.approvals == nil {
		s.approvals = amemory.New()
	}
	return nil
}

func (s *Service) ensurePolicy() error {
	if s.policySet != nil {
		return nil
	}
	if s.config.PolicyURL != "" {
		loaded, err := policy.Load(context.Background(), s.config.PolicyURL)
		if err != nil {
			return err
		}
		s.policySet = loaded
		return nil
	}
	s.policySet = policy.Default()
	return nil
}

func (s *Service) ensureStores() error {
	if s.config.BaseURL == "" {
		return nil
	}
	var err error
	if s.stateStore == nil {
		if s.stateStore, err = sfs.New(s.config.BaseURL); err != nil {
			return fmt.Errorf("failed to create state store: %w", err)
		}
	}
	if s.checkpointStore == nil {
		if s.checkpointStore, err = cfs.New(path.Join(s.config.BaseURL, "checkpoints")); err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
	}
	if s.signalLog == nil {
		if s.signalLog, err = backpressure.NewFsLog(path.Join(s.config.BaseURL, "signals")); err != nil {
			return fmt.Errorf("failed to create signal log: %w", err)
		}
	}
	if s.lock == nil {
		if s.lock, err = session.New(s.config.BaseURL, s.sessionID,
			session.WithStaleThreshold(s.config.Session.StaleLockThreshold),
			session.WithLogger(s.logger)); err != nil {
			return fmt.Errorf("failed to create session lock: %w", err)
		}
	}
	return nil
}

// SessionID returns the engine's session identifier.
func (s *Service) SessionID() string { return s.sessionID }

// Start acquires the session lock (when one is configured) and loads or
// creates the workflow state. A *session.StaleLockError is passed through so
// the caller can decide between Takeover and aborting.
func (s *Service) Start(ctx context.Context) error {
	if s.lock != nil {
		if err := s.lock.Acquire(ctx); err != nil {
			return err
		}
	}
	if err := s.machine.Start(ctx); err != nil {
		return err
	}
	if s.signalLog != nil {
		if err := s.aggregator.Restore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Takeover resolves a stale session lock in this session's favour and then
// resumes the workflow from its persisted state.
func (s *Service) Takeover(ctx context.Context) error {
	if s.lock == nil {
		return fmt.Errorf("no session lock configured")
	}
	if err := s.lock.Takeover(ctx); err != nil {
		return err
	}
	if err := s.machine.Start(ctx); err != nil {
		return err
	}
	if s.signalLog != nil {
		return s.aggregator.Restore(ctx)
	}
	return nil
}

// Shutdown archives the workflow state and releases the session lock.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.machine.Archive(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.lock != nil {
		if err := s.lock.Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Evaluate classifies one intercepted action against the policy set and the
// current workflow phase. For Ask decisions a pending approval request is
// created when an approval service is wired in; its identifier travels back
// in the decision.
func (s *Service) Evaluate(ctx context.Context, request *model.ActionRequest) (model.Decision, error) {
	ctx, span := tracing.StartSpan(ctx, "phasegate.Evaluate")
	defer span.End()

	decision, err := s.engine.Evaluate(request, s.machine.State())
	if err != nil {
		span.SetStatus(err)
		return decision, err
	}
	span.WithAttributes(map[string]string{
		"category": string(request.Category),
		"outcome":  string(decision.Outcome),
	})

	if decision.Outcome == model.OutcomeAsk && s.approvals != nil {
		approvalRequest := &approval.Request{
			ID:        idgen.New(),
			SessionID: s.sessionID,
			Category:  request.Category,
			Payload:   request.Payload,
			Reason:    decision.Reason,
			Phase:     s.machine.Phase(),
		}
		if err := s.approvals.RequestApproval(ctx, approvalRequest); err == nil {
			decision.ApprovalID = approvalRequest.ID
		}
	}
	_ = s.events.Publish(ctx, event.TopicDecisionIssued, decision)
	return decision, nil
}

// Record appends a post-execution diagnostic signal to the session log and
// applies the signal retention policy.
func (s *Service) Record(ctx context.Context, signal *model.Signal) error {
	ctx, span := tracing.StartSpan(ctx, "phasegate.Record")
	defer span.End()

	if err := s.aggregator.Record(ctx, signal); err != nil {
		span.SetStatus(err)
		return err
	}
	if s.config.Retention.MaxSignals > 0 || s.config.Retention.MaxSignalAge > 0 {
		if _, err := s.aggregator.Prune(ctx, s.config.Retention.MaxSignals, s.config.Retention.MaxSignalAge); err != nil {
			return err
		}
	}
	_ = s.events.Publish(ctx, event.TopicSignalRecorded, signal)
	return nil
}

// CanStop answers the host runtime's stop lifecycle check.
func (s *Service) CanStop() backpressure.Verdict {
	return s.aggregator.CanStop()
}

// Signals returns the current session signal log.
func (s *Service) Signals() []*model.Signal {
	return s.aggregator.Signals()
}

// CompleteAgent records an agent completion; completing a phase's required
// set cuts a checkpoint and applies checkpoint retention.
func (s *Service) CompleteAgent(ctx context.Context, phase model.Phase, agentID string) error {
	ctx, span := tracing.StartSpan(ctx, "phasegate.CompleteAgent")
	defer span.End()

	if err := s.machine.CompleteAgent(ctx, phase, agentID); err != nil {
		span.SetStatus(err)
		return err
	}
	if s.config.Retention.MaxCheckpoints > 0 || s.config.Retention.MaxCheckpointAge > 0 {
		if _, err := s.machine.PruneCheckpoints(ctx, s.config.Retention.MaxCheckpoints, s.config.Retention.MaxCheckpointAge); err != nil {
			return err
		}
	}
	return nil
}

// AdvancePhase moves the workflow to the next phase.
func (s *Service) AdvancePhase(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "phasegate.AdvancePhase")
	defer span.End()
	err := s.machine.AdvancePhase(ctx)
	span.SetStatus(err)
	return err
}

// OverrideAdvance jumps phases on explicit operator request; the jump is
// recorded as an anomaly.
func (s *Service) OverrideAdvance(ctx context.Context, target model.Phase, operator string) error {
	return s.machine.OverrideAdvance(ctx, target, operator)
}

// RestoreFromCheckpoint replaces the live state with a checkpoint snapshot.
func (s *Service) RestoreFromCheckpoint(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "phasegate.RestoreFromCheckpoint")
	defer span.End()
	err := s.machine.RestoreFromCheckpoint(ctx, id)
	span.SetStatus(err)
	return err
}

// State returns a deep copy of the current workflow state.
func (s *Service) State() *model.State {
	return s.machine.State()
}

// Checkpoints lists known checkpoints, oldest first.
func (s *Service) Checkpoints(ctx context.Context) ([]*model.Checkpoint, error) {
	return s.machine.Checkpoints(ctx)
}

// PendingApprovals lists undecided approval requests.
func (s *Service) PendingApprovals(ctx context.Context) ([]*approval.Request, error) {
	return s.approvals.ListPending(ctx)
}

// Decide resolves a pending approval request.
func (s *Service) Decide(ctx context.Context, id string, approved bool, reason string) (*approval.Decision, error) {
	return s.approvals.Decide(ctx, id, approved, reason)
}

// Approvals exposes the approval service.
func (s *Service) Approvals() approval.Service { return s.approvals }

// Events returns the engine event publisher.
func (s *Service) Events() *event.Publisher { return s.events }

// Heartbeat refreshes the session lock marker; embedders call it on a timer
// of their choosing.
func (s *Service) Heartbeat(ctx context.Context) error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Heartbeat(ctx)
}

// PruneCheckpoints applies the checkpoint retention policy explicitly.
func (s *Service) PruneCheckpoints(ctx context.Context, maxCount int, maxAge time.Duration) (int, error) {
	return s.machine.PruneCheckpoints(ctx, maxCount, maxAge)
}
