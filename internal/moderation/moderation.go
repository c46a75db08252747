// CLAUDE:SUMMARY Content policy: pluggable accept/reject predicate for argument text, default case-insensitive substring deny-list
package moderation

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultTerms is the built-in deny-list.
var DefaultTerms = []string{"abuse", "hate", "target"}

// Verdict is the outcome of a policy check. Reason is set when Allowed is false.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Term    string `json:"term,omitempty"`
}

func allow() Verdict { return Verdict{Allowed: true} }

// Policy decides whether content may be appended to a debate.
type Policy interface {
	Check(content string) Verdict
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(content string) Verdict

func (f PolicyFunc) Check(content string) Verdict { return f(content) }

// AllowAll accepts everything.
var AllowAll Policy = PolicyFunc(func(string) Verdict { return allow() })

// DenyList rejects content containing any of its terms, ignoring case.
// Terms prefixed with "re:" are matched as case-insensitive regular
// expressions instead of substrings.
type DenyList struct {
	terms    []string
	patterns []*regexp.Regexp
}

// NewDenyList compiles terms. An empty list falls back to DefaultTerms.
func NewDenyList(terms []string) (*DenyList, error) {
	if len(terms) == 0 {
		terms = DefaultTerms
	}
	d := &DenyList{}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if expr, ok := strings.CutPrefix(t, "re:"); ok {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("compiling deny pattern %q: %w", expr, err)
			}
			d.patterns = append(d.patterns, re)
			continue
		}
		d.terms = append(d.terms, strings.ToLower(t))
	}
	return d, nil
}

func (d *DenyList) Check(content string) Verdict {
	lower := strings.ToLower(content)
	for _, t := range d.terms {
		if strings.Contains(lower, t) {
			return Verdict{Reason: fmt.Sprintf("content contains prohibited term %q", t), Term: t}
		}
	}
	for _, re := range d.patterns {
		if m := re.FindString(content); m != "" {
			return Verdict{Reason: fmt.Sprintf("content matches prohibited pattern %q", re.String()[4:]), Term: m}
		}
	}
	return allow()
}

// Chain rejects with the first policy that rejects.
func Chain(policies ...Policy) Policy {
	return PolicyFunc(func(content string) Verdict {
		for _, p := range policies {
			if v := p.Check(content); !v.Allowed {
				return v
			}
		}
		return allow()
	})
}
