package policy

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/viant/phasegate/model"
)

// patternMatcher reports whether a compiled pattern matches a payload.
type patternMatcher interface {
	Matches(payload string) bool
}

// compilePattern picks the pattern language per category: shell glob for
// file paths, anchored whitespace-tolerant glob regex for commands.
func compilePattern(category model.Category, pattern string) (patternMatcher, error) {
	switch category {
	case model.CategoryBashCommand:
		return compileCommandPattern(pattern)
	default:
		return compilePathPattern(pattern)
	}
}

// pathPattern matches file paths with path.Match glob semantics. Because a
// single '*' does not cross '/', the pattern is also tried against the bare
// file name, so "*.env*" catches "config/app.env" too.
type pathPattern struct {
	glob string
}

func compilePathPattern(pattern string) (patternMatcher, error) {
	// Surface malformed globs at load time rather than at first evaluation.
	if _, err := path.Match(pattern, "probe"); err != nil {
		return nil, fmt.Errorf("malformed glob: %v", err)
	}
	return &pathPattern{glob: pattern}, nil
}

func (p *pathPattern) Matches(payload string) bool {
	payload = strings.TrimPrefix(path.Clean(payload), "./")
	if ok, _ := path.Match(p.glob, payload); ok {
		return true
	}
	if !strings.Contains(p.glob, "/") {
		if ok, _ := path.Match(p.glob, path.Base(payload)); ok {
			return true
		}
	}
	return false
}

// commandPattern matches command strings with an anchored regex compiled
// from a glob: '*' becomes '.*', '?' becomes '.', spaces match any
// whitespace run, everything else is literal.
type commandPattern struct {
	expr *regexp.Regexp
}

func compileCommandPattern(pattern string) (patternMatcher, error) {
	var sb strings.Builder
	sb.WriteString(`^\s*`)
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(`.*`)
		case '?':
			sb.WriteString(`.`)
		case ' ':
			sb.WriteString(`\s+`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString(`\s*$`)
	expr, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("malformed command pattern: %v", err)
	}
	return &commandPattern{expr: expr}, nil
}

func (p *commandPattern) Matches(payload string) bool {
	return p.expr.MatchString(payload)
}

// editTargets returns the paths a file_edit payload touches. A payload that
// looks like a unified diff yields every target file of the diff; otherwise
// the payload itself is treated as a path.
func editTargets(payload string) []string {
	if !looksLikeDiff(payload) {
		return []string{payload}
	}
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(payload))
	if err != nil || len(fileDiffs) == 0 {
		return []string{payload}
	}
	var targets []string
	for _, fd := range fileDiffs {
		name := fd.NewName
		if name == "" || name == "/dev/null" {
			name = fd.OrigName
		}
		name = strings.TrimPrefix(name, "a/")
		name = strings.TrimPrefix(name, "b/")
		if name != "" && name != "/dev/null" {
			targets = append(targets, name)
		}
	}
	if len(targets) == 0 {
		return []string{payload}
	}
	return targets
}

func looksLikeDiff(payload string) bool {
	return strings.HasPrefix(payload, "--- ") || strings.HasPrefix(payload, "diff --git ")
}

// Match finds the applicable rule for a request. Tiers are consulted most
// restrictive first, so a payload matched by several tiers resolves to the
// strictest one; within a tier the declared rule order decides. The second
// result is false when no rule matches and the explicit default policy
// applies.
func (p *PolicySet) Match(request *model.ActionRequest) (*Rule, bool) {
	payloads := []string{request.Payload}
	if request.Category == model.CategoryFileEdit {
		payloads = editTargets(request.Payload)
	}
	for _, tier := range tiersByPriority {
		for _, rule := range p.Rules(request.Category, tier) {
			for _, payload := range payloads {
				if rule.matcher.Matches(payload) {
					return rule, true
				}
			}
		}
	}
	return nil, false
}
