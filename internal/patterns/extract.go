package patterns

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/ArmanBehnam/clark/internal/model"
)

const snippetRadius = 40

// Result is the structured data found in one text.
type Result struct {
	Matches            map[string][]model.PatternMatch
	CategoryConfidence map[string]float64
}

// Total returns the number of matches across categories.
func (r Result) Total() int {
	n := 0
	for _, m := range r.Matches {
		n += len(m)
	}
	return n
}

type hit struct {
	match    model.PatternMatch
	ruleRank int
}

// Extract applies every rule in rs to text. Rules run on the NFKC form of text with
// every Unicode space folded to ASCII space; values come from that form while
// positions and snippets refer to the original text. Matches are deduplicated per
// category by normalized value, keeping the highest confidence and the earliest
// rule, and are ordered by position then rule order. Extract is pure: repeated calls
// on the same input return the same result.
func Extract(text string, rs *RuleSet) Result {
	res := Result{
		Matches:            map[string][]model.PatternMatch{},
		CategoryConfidence: map[string]float64{},
	}
	if strings.TrimSpace(text) == "" || rs == nil {
		return res
	}

	folded, offsets := foldText(text)
	byCategory := map[string]map[string]*hit{}
	for rank, rule := range rs.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(folded, -1) {
			value := strings.TrimSpace(folded[loc[0]:loc[1]])
			if value == "" {
				continue
			}
			if len(rule.ContextKeywords) > 0 && !hasContext(folded, loc[0], loc[1], rs.contextWindow, rule.ContextKeywords) {
				continue
			}
			vs := loc[0] + strings.Index(folded[loc[0]:loc[1]], value)
			start := offsets[vs]
			end := max(start, offsets[vs+len(value)])

			key := Normalize(value)
			seen := byCategory[rule.Category]
			if seen == nil {
				seen = map[string]*hit{}
				byCategory[rule.Category] = seen
			}
			h, ok := seen[key]
			if !ok {
				seen[key] = &hit{
					match: model.PatternMatch{
						Value:      value,
						Confidence: rule.Weight,
						Source:     rule.ID,
						Position:   start,
						Context:    snippet(text, start, end),
					},
					ruleRank: rank,
				}
				continue
			}
			if rule.Weight > h.match.Confidence {
				h.match.Confidence = rule.Weight
			}
			if rank < h.ruleRank {
				h.ruleRank = rank
				h.match.Source = rule.ID
			}
			if start < h.match.Position {
				h.match.Position = start
				h.match.Value = value
				h.match.Context = snippet(text, start, end)
			}
		}
	}

	for category, seen := range byCategory {
		hits := make([]*hit, 0, len(seen))
		for _, h := range seen {
			hits = append(hits, h)
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].match.Position != hits[j].match.Position {
				return hits[i].match.Position < hits[j].match.Position
			}
			if hits[i].ruleRank != hits[j].ruleRank {
				return hits[i].ruleRank < hits[j].ruleRank
			}
			return hits[i].match.Value < hits[j].match.Value
		})
		matches := make([]model.PatternMatch, len(hits))
		var sum float64
		for i, h := range hits {
			matches[i] = h.match
			sum += h.match.Confidence
		}
		res.Matches[category] = matches
		res.CategoryConfidence[category] = model.Round(sum/float64(len(matches)), 3)
	}
	return res
}

// foldText returns the NFKC form of text with Unicode spaces mapped to ' ', and for
// every byte of it the offset of the source segment in text. The final entry is
// len(text).
func foldText(text string) (string, []int) {
	var sb strings.Builder
	sb.Grow(len(text))
	offsets := make([]int, 0, len(text)+1)
	for i := 0; i < len(text); {
		n := norm.NFKC.NextBoundaryInString(text[i:], true)
		if n <= 0 {
			n = len(text) - i
		}
		seg := strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return ' '
			}
			return r
		}, norm.NFKC.String(text[i:i+n]))
		for range len(seg) {
			offsets = append(offsets, i)
		}
		sb.WriteString(seg)
		i += n
	}
	offsets = append(offsets, len(text))
	return sb.String(), offsets
}

// hasContext reports whether any keyword occurs within window characters of the
// match.
func hasContext(text string, start, end, window int, keywords []string) bool {
	lo, hi := runeWindow(text, start, end, window)
	span := strings.ToLower(text[lo:hi])
	for _, k := range keywords {
		if strings.Contains(span, k) {
			return true
		}
	}
	return false
}

func snippet(text string, start, end int) string {
	lo, hi := runeWindow(text, start, end, snippetRadius)
	return strings.Join(strings.Fields(text[lo:hi]), " ")
}

// runeWindow widens [start, end) by n runes on each side.
func runeWindow(s string, start, end, n int) (int, int) {
	lo, hi := start, end
	for i := 0; i < n && lo > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:lo])
		lo -= size
	}
	for i := 0; i < n && hi < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[hi:])
		hi += size
	}
	return lo, hi
}
