// Package routing decides which person is responsible for a service request
// based on keyword rules, and stamps that decision on generated documents.
package routing

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// ResponsibleLabel prefixes the line naming the owner in every document.
const ResponsibleLabel = "Responsável Principal:"

//go:embed rules.yaml
var defaultRules []byte

type Rule struct {
	Responsible string   `yaml:"responsible"`
	Area        string   `yaml:"area"`
	Keywords    []string `yaml:"keywords"`
}

type ruleSet struct {
	Default Rule   `yaml:"default"`
	Rules   []Rule `yaml:"rules"`
}

// Decision is the outcome of routing one request.
type Decision struct {
	Responsible string
	Area        string
	Matched     []string
}

// Router matches request text against the loaded rules.
type Router struct {
	fallback Rule
	rules    []Rule
	folded   [][]string
}

// Load reads rules from path, or the built-in rules when path is empty.
func Load(path string) (*Router, error) {
	data := defaultRules
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read routing rules: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a Router from YAML rules.
func Parse(data []byte) (*Router, error) {
	var rs ruleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse routing rules: %w", err)
	}
	if rs.Default.Responsible == "" {
		return nil, fmt.Errorf("routing rules: default.responsible is required")
	}

	r := &Router{fallback: rs.Default, rules: rs.Rules}
	for i, rule := range rs.Rules {
		if rule.Responsible == "" {
			return nil, fmt.Errorf("routing rules: rule %d has no responsible", i)
		}
		kws := make([]string, 0, len(rule.Keywords))
		for _, k := range rule.Keywords {
			if k = fold(k); k != "" {
				kws = append(kws, k)
			}
		}
		r.folded = append(r.folded, kws)
	}
	return r, nil
}

// Route picks the rule with the most keyword hits in text.
func (r *Router) Route(text string) Decision {
	t := fold(text)
	best, bestHits := -1, 0
	var matched []string
	for i, kws := range r.folded {
		var hits []string
		for j, k := range kws {
			if strings.Contains(t, k) {
				hits = append(hits, r.rules[i].Keywords[j])
			}
		}
		if len(hits) > bestHits {
			best, bestHits, matched = i, len(hits), hits
		}
	}
	if best < 0 {
		return Decision{Responsible: r.fallback.Responsible, Area: r.fallback.Area}
	}
	return Decision{Responsible: r.rules[best].Responsible, Area: r.rules[best].Area, Matched: matched}
}

// Line is the exact responsible line expected in the document.
func (d Decision) Line() string {
	return ResponsibleLabel + " " + d.Responsible
}

// Apply returns content with exactly one responsible line naming d.Responsible.
// An existing line naming someone else is rewritten; a missing one is appended.
func (d Decision) Apply(content string) string {
	lines := strings.Split(content, "\n")
	found := false
	out := lines[:0]
	for _, l := range lines {
		if isResponsibleLine(l) {
			if found {
				continue
			}
			found = true
			out = append(out, d.Line())
			continue
		}
		out = append(out, l)
	}
	if found {
		return strings.Join(out, "\n")
	}
	return strings.TrimRight(content, "\n") + "\n\n" + d.Line()
}

// Footer returns the text to append to already-delivered content so that it
// carries the responsible line, or "" when it already does.
func (d Decision) Footer(content string) string {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == d.Line() {
			return ""
		}
	}
	return "\n\n" + d.Line()
}

func isResponsibleLine(l string) bool {
	return strings.HasPrefix(fold(l), fold(ResponsibleLabel))
}

// fold lowercases, strips accents and collapses whitespace.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
