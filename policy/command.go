package policy

import (
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Token codes for the command tokenizer.
const (
	whitespaceCode = iota
	doubleQuotedCode
	singleQuotedCode
	wordCode
)

var (
	whitespaceToken   = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	doubleQuotedToken = parsly.NewToken(doubleQuotedCode, "DoubleQuoted", newQuotedMatcher('"'))
	singleQuotedToken = parsly.NewToken(singleQuotedCode, "SingleQuoted", newQuotedMatcher('\''))
	wordToken         = parsly.NewToken(wordCode, "Word", &wordMatcher{})
)

// quotedMatcher matches a quoted segment including both quote characters,
// honouring backslash escapes.
type quotedMatcher struct {
	quote byte
}

func newQuotedMatcher(quote byte) parsly.Matcher {
	return &quotedMatcher{quote: quote}
}

func (m *quotedMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize
	if pos >= size || input[pos] != m.quote {
		return 0
	}
	for i := pos + 1; i < size; i++ {
		switch input[i] {
		case '\\':
			i++
		case m.quote:
			return i - pos + 1
		}
	}
	// Unterminated quote: consume the rest so tokenization stays total.
	return size - pos
}

// wordMatcher matches a run of characters up to the next whitespace or quote.
type wordMatcher struct{}

func (m *wordMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize
	matched := 0
	for i := pos; i < size; i++ {
		c := input[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '"' || c == '\'' {
			break
		}
		matched++
	}
	return matched
}

// Tokenize splits a shell command string into argv-like tokens, honouring
// single and double quotes. Quote characters are stripped from the returned
// tokens; escape sequences inside quotes are preserved verbatim.
func Tokenize(command string) []string {
	cursor := parsly.NewCursor("", []byte(command), 0)
	var tokens []string
	for cursor.Pos < cursor.InputSize {
		matched := cursor.MatchAny(whitespaceToken, doubleQuotedToken, singleQuotedToken, wordToken)
		switch matched.Code {
		case whitespaceCode:
			continue
		case doubleQuotedCode, singleQuotedCode:
			text := matched.Text(cursor)
			text = strings.TrimPrefix(text, text[:1])
			if len(text) > 0 && (text[len(text)-1] == '"' || text[len(text)-1] == '\'') {
				text = text[:len(text)-1]
			}
			tokens = append(tokens, text)
		case wordCode:
			tokens = append(tokens, matched.Text(cursor))
		default:
			// Unmatchable byte - skip it rather than loop forever.
			cursor.Pos++
		}
	}
	return tokens
}

// deployment command prefixes: executing any of these changes remote or
// production state.
var deploymentPrefixes = [][]string{
	{"git", "push"},
	{"kubectl", "apply"},
	{"kubectl", "delete"},
	{"terraform", "apply"},
	{"terraform", "destroy"},
	{"helm", "install"},
	{"helm", "upgrade"},
	{"docker", "push"},
	{"gcloud", "deploy"},
	{"aws", "deploy"},
	{"flux", "reconcile"},
	{"argocd", "app", "sync"},
}

// destructive verbs that warrant approval even without an explicit rule.
var destructiveVerbs = map[string]bool{
	"rm":       true,
	"rmdir":    true,
	"dd":       true,
	"mkfs":     true,
	"shred":    true,
	"truncate": true,
	"shutdown": true,
	"reboot":   true,
	"halt":     true,
	"killall":  true,
	"drop":     true,
}

// Command is the tokenised view of a bash_command payload used by the
// classification helpers.
type Command struct {
	Raw  string
	Args []string
}

// ParseCommand tokenises a raw command string.
func ParseCommand(raw string) Command {
	return Command{Raw: raw, Args: Tokenize(raw)}
}

func (c Command) hasPrefix(prefix []string) bool {
	if len(c.Args) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if !strings.EqualFold(c.Args[i], p) {
			return false
		}
	}
	return true
}

// IsDeployment reports whether the command is deployment-class: it mutates
// remote or production state and is therefore subject to the release phase
// gate.
func (c Command) IsDeployment() bool {
	for _, prefix := range deploymentPrefixes {
		if c.hasPrefix(prefix) {
			return true
		}
	}
	return false
}

// IsDestructive reports whether the command's verb looks destructive. Used
// for the default tier when no rule matches: such commands require approval
// rather than passing silently.
func (c Command) IsDestructive() bool {
	if len(c.Args) == 0 {
		return false
	}
	verb := strings.ToLower(c.Args[0])
	if destructiveVerbs[verb] {
		return true
	}
	// sudo and env wrappers do not launder the underlying verb.
	if (verb == "sudo" || verb == "env") && len(c.Args) > 1 {
		return Command{Raw: c.Raw, Args: c.Args[1:]}.IsDestructive()
	}
	return c.hasPrefix([]string{"terraform", "destroy"}) || c.hasPrefix([]string{"kubectl", "delete"})
}

// HasForceFlag reports whether the command carries a force flag
// (--force, -f variants, --force-with-lease).
func (c Command) HasForceFlag() bool {
	if len(c.Args) < 2 {
		return false
	}
	for _, arg := range c.Args[1:] {
		switch arg {
		case "--force", "-f", "--force-with-lease":
			return true
		}
	}
	return false
}
