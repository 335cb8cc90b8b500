/**
 * Pattern rules - the process-wide immutable catalog and derived rule sets
 *
 * Default() compiles the built-in catalog exactly once. A RuleSet is never mutated;
 * With and Without return new sets so callers can add configured custom rules
 * without touching shared state.
 */

package patterns

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ArmanBehnam/clark/internal/config"
)

// DefaultContextWindow is the number of characters on each side of a match that are
// searched for context keywords.
const DefaultContextWindow = 100

const defaultCustomWeight = 0.8

// Rule is one compiled extraction rule.
type Rule struct {
	ID              string
	Category        string
	Pattern         *regexp.Regexp
	Weight          float64
	ContextKeywords []string
}

// NewRule compiles a rule. The weight must be in (0,1].
func NewRule(id, category, pattern string, weight float64, contextKeywords []string) (Rule, error) {
	if strings.TrimSpace(category) == "" {
		return Rule{}, fmt.Errorf("rule %q: category is required", id)
	}
	if weight <= 0 || weight > 1 {
		return Rule{}, fmt.Errorf("rule %q: weight %.2f outside (0,1]", id, weight)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", id, err)
	}
	kws := make([]string, 0, len(contextKeywords))
	for _, k := range contextKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	return Rule{ID: id, Category: category, Pattern: re, Weight: weight, ContextKeywords: kws}, nil
}

// ValidatePattern reports whether pattern compiles.
func ValidatePattern(pattern string) error {
	_, err := regexp.Compile(pattern)
	return err
}

// RuleSet is an ordered, immutable collection of rules.
type RuleSet struct {
	rules         []Rule
	contextWindow int
}

var (
	defaultOnce sync.Once
	defaultSet  *RuleSet
)

// Default returns the built-in catalog. It is compiled once and shared.
func Default() *RuleSet {
	defaultOnce.Do(func() {
		rules := make([]Rule, 0, len(catalog))
		for _, d := range catalog {
			r, err := NewRule(d.category+"."+d.id, d.category, d.pattern, d.weight, d.context)
			if err != nil {
				panic(fmt.Sprintf("patterns: built-in %v", err))
			}
			rules = append(rules, r)
		}
		defaultSet = &RuleSet{rules: rules, contextWindow: DefaultContextWindow}
	})
	return defaultSet
}

// FromConfig returns the default catalog extended with the configured custom rules
// and context window.
func FromConfig(cfg config.PatternsConfig) (*RuleSet, error) {
	rs := Default().WithContextWindow(cfg.ContextWindow)
	custom := make([]Rule, 0, len(cfg.Custom))
	for i, c := range cfg.Custom {
		weight := c.Weight
		if weight == 0 {
			weight = defaultCustomWeight
		}
		r, err := NewRule(fmt.Sprintf("%s.custom_%d", c.Category, i+1), c.Category, c.Pattern, weight, c.ContextKeywords)
		if err != nil {
			return nil, err
		}
		custom = append(custom, r)
	}
	return rs.With(custom...), nil
}

// With returns a new set with rules appended.
func (rs *RuleSet) With(rules ...Rule) *RuleSet {
	out := &RuleSet{rules: make([]Rule, 0, len(rs.rules)+len(rules)), contextWindow: rs.contextWindow}
	out.rules = append(out.rules, rs.rules...)
	out.rules = append(out.rules, rules...)
	return out
}

// Without returns a new set minus the rules with the given IDs.
func (rs *RuleSet) Without(ids ...string) *RuleSet {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := &RuleSet{contextWindow: rs.contextWindow}
	for _, r := range rs.rules {
		if !drop[r.ID] {
			out.rules = append(out.rules, r)
		}
	}
	return out
}

// WithContextWindow returns a copy using a different context window. Values <= 0
// keep the current window.
func (rs *RuleSet) WithContextWindow(n int) *RuleSet {
	out := rs.With()
	if n > 0 {
		out.contextWindow = n
	}
	return out
}

// ContextWindow returns the keyword search span in characters.
func (rs *RuleSet) ContextWindow() int { return rs.contextWindow }

// Rules returns a copy of the rules in order.
func (rs *RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// Categories returns the category names in first-appearance order.
func (rs *RuleSet) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rs.rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}

// Count returns the number of rules in category, or in total for "".
func (rs *RuleSet) Count(category string) int {
	if category == "" {
		return len(rs.rules)
	}
	n := 0
	for _, r := range rs.rules {
		if r.Category == category {
			n++
		}
	}
	return n
}
