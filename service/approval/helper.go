package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/phasegate/internal/clock"
)

// DecisionFunc inspects a pending request and returns the verdict: approve,
// or reject with a reason.
type DecisionFunc func(r *Request) (approved bool, reason string)

// AutoDecider starts a goroutine that polls ListPending and resolves every
// pending request through fn. Embedders use it to script unattended runs;
// tests use it to close the Ask loop without a human. The returned stop
// function (or ctx cancellation) ends the loop.
func AutoDecider(ctx context.Context, svc Service, fn DecisionFunc, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pending, _ := svc.ListPending(ctx)
				for _, request := range pending {
					approved, reason := fn(request)
					_, _ = svc.Decide(ctx, request.ID, approved, reason)
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove resolves every pending request in the affirmative. Intended for
// fully trusted sessions and tests only: it turns require_approval into a
// short delay rather than a gate.
func AutoApprove(ctx context.Context, svc Service, interval time.Duration) func() {
	return AutoDecider(ctx, svc, func(*Request) (bool, string) { return true, "" }, interval)
}

// AutoReject resolves every pending request in the negative with the given
// reason, effectively hardening require_approval into block.
func AutoReject(ctx context.Context, svc Service, reason string, interval time.Duration) func() {
	return AutoDecider(ctx, svc, func(r *Request) (bool, string) { return false, reason }, interval)
}

// AutoExpire rejects only requests whose ExpiresAt deadline passed, leaving
// live requests for a real decider. Run it alongside a human approval surface
// so abandoned requests do not pend forever.
func AutoExpire(ctx context.Context, svc Service, reason string, interval time.Duration) func() {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pending, _ := svc.ListPending(ctx)
				for _, request := range pending {
					if request.ExpiresAt == nil || clock.Now().Before(*request.ExpiresAt) {
						continue
					}
					_, _ = svc.Decide(ctx, request.ID, false, reason)
				}
			}
		}
	}()
	return func() { close(done) }
}

// WaitForDecision blocks until the request's decision appears on the service
// queue, or the timeout elapses.
func WaitForDecision(ctx context.Context, svc Service, id string, timeout time.Duration) (*Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		message, err := svc.Queue().Consume(ctx)
		if err != nil {
			return nil, fmt.Errorf("timed out waiting for decision on %s: %w", id, err)
		}
		event := message.T()
		_ = message.Ack()
		if event.Topic != TopicDecisionCreated {
			continue
		}
		decision, ok := event.Data.(*Decision)
		if !ok || decision.ID != id {
			continue
		}
		return decision, nil
	}
}
