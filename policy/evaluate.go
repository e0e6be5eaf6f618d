package policy

import (
	"fmt"

	"github.com/viant/phasegate/model"
)

// Engine evaluates action requests against a loaded policy set and the
// current workflow phase. Evaluation is deterministic, synchronous and free
// of side effects: the same (policy, request, phase) triple always yields
// the same decision.
type Engine struct {
	policy *PolicySet
}

// NewEngine creates an evaluation engine. A nil policy set falls back to the
// built-in default policy - never to "no policy".
func NewEngine(policy *PolicySet) *Engine {
	if policy == nil {
		policy = Default()
	}
	return &Engine{policy: policy}
}

// Policy returns the engine's rule base.
func (e *Engine) Policy() *PolicySet { return e.policy }

// Evaluate classifies one intercepted action. Exactly one decision is
// returned for every valid request; malformed requests fail with
// model.ErrInvalidRequest before any rule is consulted.
func (e *Engine) Evaluate(request *model.ActionRequest, state *model.State) (model.Decision, error) {
	if err := request.Validate(); err != nil {
		return model.Decision{}, err
	}
	phase := model.PhaseRequirements
	if state != nil {
		phase = state.Phase
	}

	rule, matched := e.policy.Match(request)
	if matched && rule.Tier == TierBlock {
		return model.Decision{
			Outcome: model.OutcomeBlock,
			Reason:  ruleReason(rule),
			Rule:    rule.Pattern,
		}, nil
	}

	// Phase gate: deployment-class commands are only ever auto-passed in the
	// release phase. Outside it they are demoted to Block no matter which
	// non-block tier matched.
	if request.Category == model.CategoryBashCommand && phase != model.PhaseRelease {
		if ParseCommand(request.Payload).IsDeployment() {
			decision := model.Decision{
				Outcome: model.OutcomeBlock,
				Reason:  fmt.Sprintf("deployment only permitted in release phase, current phase is %s", phase),
			}
			if matched {
				decision.Rule = rule.Pattern
			}
			return decision, nil
		}
	}

	if matched {
		switch rule.Tier {
		case TierRequireApproval:
			return model.Decision{
				Outcome: model.OutcomeAsk,
				Reason:  ruleReason(rule),
				Rule:    rule.Pattern,
			}, nil
		case TierWarnAndProceed:
			return model.Decision{
				Outcome: model.OutcomeWarn,
				Reason:  ruleReason(rule),
				Rule:    rule.Pattern,
			}, nil
		default:
			return model.Decision{Outcome: model.OutcomeAllow, Rule: rule.Pattern}, nil
		}
	}

	return e.defaultDecision(request), nil
}

// defaultDecision is the explicit fallback when no rule matches: writes and
// edits warn, destructive-looking commands ask, everything else passes.
func (e *Engine) defaultDecision(request *model.ActionRequest) model.Decision {
	switch request.Category {
	case model.CategoryFileWrite, model.CategoryFileEdit:
		return model.Decision{
			Outcome: model.OutcomeWarn,
			Reason:  fmt.Sprintf("no policy rule covers %s of %q, proceeding with caution", request.Category, request.Payload),
		}
	default:
		command := ParseCommand(request.Payload)
		if command.IsDestructive() {
			return model.Decision{
				Outcome: model.OutcomeAsk,
				Reason:  fmt.Sprintf("command %q looks destructive and no policy rule covers it", request.Payload),
			}
		}
		return model.Decision{Outcome: model.OutcomeAllow}
	}
}

func ruleReason(rule *Rule) string {
	if rule.Reason != "" {
		return rule.Reason
	}
	return fmt.Sprintf("matched %s policy pattern %q", rule.Tier, rule.Pattern)
}
