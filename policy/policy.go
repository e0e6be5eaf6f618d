package policy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/viant/phasegate/model"
)

// Tier is the trust level assigned to a matched action, ordered by
// restrictiveness: auto_approve < warn_and_proceed < require_approval < block.
type Tier string

const (
	TierAutoApprove     Tier = "auto_approve"
	TierWarnAndProceed  Tier = "warn_and_proceed"
	TierRequireApproval Tier = "require_approval"
	TierBlock           Tier = "block"
)

// tiersByPriority lists tiers in evaluation order. A pattern appearing in
// multiple tiers always resolves to the most restrictive one that matches,
// regardless of declaration order in the policy file.
var tiersByPriority = []Tier{TierBlock, TierRequireApproval, TierWarnAndProceed, TierAutoApprove}

// IsValid reports whether t is a recognised tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierAutoApprove, TierWarnAndProceed, TierRequireApproval, TierBlock:
		return true
	}
	return false
}

// ErrPolicyLoad indicates the policy document could not be loaded or
// validated. The engine must not start with a partially loaded policy, so
// this error is fatal to startup (fail closed).
var ErrPolicyLoad = errors.New("policy load failed")

// Rule binds one pattern to a category and trust tier. Rules are immutable
// once loaded; within a tier the declared order decides which rule reports
// the match.
type Rule struct {
	Pattern  string         `yaml:"pattern" json:"pattern"`
	Category model.Category `yaml:"-" json:"category"`
	Tier     Tier           `yaml:"-" json:"tier"`
	Reason   string         `yaml:"reason,omitempty" json:"reason,omitempty"`

	matcher patternMatcher
}

// UnmarshalYAML accepts either a bare pattern scalar or a mapping with
// pattern and optional reason, mirroring the mixed style of hand-written
// policy files.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Pattern = node.Value
		return nil
	}
	type plain Rule
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	r.Pattern = p.Pattern
	r.Reason = p.Reason
	return nil
}

// PolicySet is the full ordered rule base, partitioned by category and tier.
// It is loaded once at startup and read-only afterwards.
type PolicySet struct {
	rules map[model.Category]map[Tier][]*Rule
}

// document is the on-disk shape: category -> tier -> rule list.
type document struct {
	Rules map[string]map[string][]*Rule `yaml:"rules" json:"rules"`
}

// Parse decodes and compiles a policy document. JSON documents parse too,
// since JSON is a YAML subset. Any unknown category or tier, or a pattern
// that fails to compile, aborts the whole load.
func Parse(data []byte) (*PolicySet, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPolicyLoad, err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("%w: document declares no rules", ErrPolicyLoad)
	}
	ret := &PolicySet{rules: make(map[model.Category]map[Tier][]*Rule)}
	for rawCategory, tiers := range doc.Rules {
		category := model.Category(rawCategory)
		if !category.IsValid() {
			return nil, fmt.Errorf("%w: unknown category %q", ErrPolicyLoad, rawCategory)
		}
		for rawTier, rules := range tiers {
			tier := Tier(rawTier)
			if !tier.IsValid() {
				return nil, fmt.Errorf("%w: unknown tier %q in category %q", ErrPolicyLoad, rawTier, rawCategory)
			}
			for _, rule := range rules {
				if rule.Pattern == "" {
					return nil, fmt.Errorf("%w: empty pattern in %s/%s", ErrPolicyLoad, rawCategory, rawTier)
				}
				rule.Category = category
				rule.Tier = tier
				compiled, err := compilePattern(category, rule.Pattern)
				if err != nil {
					return nil, fmt.Errorf("%w: pattern %q in %s/%s: %v", ErrPolicyLoad, rule.Pattern, rawCategory, rawTier, err)
				}
				rule.matcher = compiled
				if ret.rules[category] == nil {
					ret.rules[category] = make(map[Tier][]*Rule)
				}
				ret.rules[category][tier] = append(ret.rules[category][tier], rule)
			}
		}
	}
	return ret, nil
}

// Load reads and parses a policy document from a local path or any afs
// supported URL.
func Load(ctx context.Context, location string) (*PolicySet, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrPolicyLoad, location)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrPolicyLoad, location, err)
	}
	return Parse(data)
}

// Rules returns the compiled rules of one category and tier in declaration
// order. The returned slice must not be modified.
func (p *PolicySet) Rules(category model.Category, tier Tier) []*Rule {
	if p == nil || p.rules == nil {
		return nil
	}
	return p.rules[category][tier]
}

// defaultPolicyYAML encodes the baseline rule set distilled from the SDLC
// hook configuration: secrets never written, lock files warned about,
// deployment commands behind approval, force pushes blocked outright.
const defaultPolicyYAML = `
rules:
  bash_command:
    block:
      - pattern: "git push * --force*"
        reason: "force pushes rewrite remote history"
      - pattern: "git push --force*"
        reason: "force pushes rewrite remote history"
      - pattern: "rm -rf /*"
        reason: "recursive delete from the filesystem root"
    require_approval:
      - pattern: "git push*"
        reason: "pushes publish commits to the remote"
      - pattern: "kubectl apply*"
        reason: "applies manifests to a live cluster"
      - pattern: "kubectl delete*"
        reason: "deletes live cluster resources"
      - pattern: "terraform apply*"
        reason: "mutates provisioned infrastructure"
      - pattern: "terraform destroy*"
        reason: "tears down provisioned infrastructure"
      - pattern: "helm upgrade*"
        reason: "upgrades a live release"
      - pattern: "helm install*"
        reason: "installs into a live cluster"
      - pattern: "docker push*"
        reason: "publishes an image to a registry"
    warn_and_proceed:
      - pattern: "git rebase*"
        reason: "rebases rewrite local history"
      - pattern: "git reset --hard*"
        reason: "hard reset discards local changes"
    auto_approve:
      - "git status*"
      - "git diff*"
      - "git log*"
      - "ls*"
      - "cat*"
  file_write:
    block:
      - pattern: "*.env*"
        reason: "environment files may contain secrets"
      - pattern: "*.pem"
        reason: "private key material"
      - pattern: "*_rsa"
        reason: "private key material"
      - pattern: ".git/*"
        reason: "direct writes into the git object store"
    warn_and_proceed:
      - pattern: "*.lock"
        reason: "lock files are normally tool-managed"
      - pattern: "package-lock.json"
        reason: "lock files are normally tool-managed"
      - pattern: "go.sum"
        reason: "checksum files are normally tool-managed"
  file_edit:
    block:
      - pattern: "*.env*"
        reason: "environment files may contain secrets"
      - pattern: ".git/*"
        reason: "direct edits inside the git object store"
    warn_and_proceed:
      - pattern: "*.lock"
        reason: "lock files are normally tool-managed"
`

// Default returns the built-in policy set. The document is a compile-time
// constant, so a parse failure is a programming error.
func Default() *PolicySet {
	ps, err := Parse([]byte(defaultPolicyYAML))
	if err != nil {
		panic(err)
	}
	return ps
}
