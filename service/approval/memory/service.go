package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/viant/phasegate/internal/clock"
	"github.com/viant/phasegate/internal/idgen"
	"github.com/viant/phasegate/service/approval"
	"github.com/viant/phasegate/service/dao"
	"github.com/viant/phasegate/service/dao/store"
	"github.com/viant/phasegate/service/messaging"
	qmem "github.com/viant/phasegate/service/messaging/memory"
)

type service struct {
	reqDAO dao.Service[string, approval.Request]
	decDAO dao.Service[string, approval.Decision]

	// fan-out queue
	events messaging.Queue[approval.Event]
}

// key selectors - grab ID field
func reqKey(r *approval.Request) string  { return r.ID }
func decKey(d *approval.Decision) string { return d.ID }

// New creates an in-memory approval service.
func New(options ...Option) approval.Service {
	ret := &service{
		reqDAO: store.NewMemoryStore[string, approval.Request](reqKey),
		decDAO: store.NewMemoryStore[string, approval.Decision](decKey),
		events: qmem.NewQueue[approval.Event](qmem.DefaultConfig()),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// RequestApproval registers a pending request. Re-submitting an ID is
// idempotent: the stored copy is overwritten rather than duplicated.
func (s *service) RequestApproval(ctx context.Context, r *approval.Request) error {
	if r == nil {
		return errors.New("invalid request")
	}
	if r.ID == "" {
		r.ID = idgen.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = clock.Now()
	}
	_ = s.reqDAO.Save(ctx, r)
	_ = s.events.Publish(ctx, &approval.Event{Topic: approval.TopicRequestCreated, Data: r})
	return nil
}

// ListPending returns undecided requests, oldest first.
func (s *service) ListPending(ctx context.Context) ([]*approval.Request, error) {
	all, err := s.reqDAO.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]*approval.Request, 0, len(all))
	for _, r := range all {
		if d, _ := s.decDAO.Load(ctx, r.ID); d == nil {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

// Decide resolves a pending request. Deciding the same ID twice returns the
// original decision unchanged.
func (s *service) Decide(ctx context.Context, id string, approved bool, reason string) (*approval.Decision, error) {
	if id == "" {
		return nil, errors.New("empty id")
	}
	request, _ := s.reqDAO.Load(ctx, id)
	if request == nil {
		return nil, dao.ErrNotFound
	}
	if existing, _ := s.decDAO.Load(ctx, id); existing != nil {
		return existing, nil
	}
	decision := &approval.Decision{
		ID:        id,
		Approved:  approved,
		Reason:    reason,
		DecidedAt: clock.Now(),
	}
	if err := s.decDAO.Save(ctx, decision); err != nil {
		return nil, err
	}
	_ = s.events.Publish(ctx, &approval.Event{Topic: approval.TopicDecisionCreated, Data: decision})
	return decision, nil
}

// Queue exposes the approval event queue.
func (s *service) Queue() messaging.Queue[approval.Event] {
	return s.events
}
