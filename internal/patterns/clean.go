package patterns

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ArmanBehnam/clark/internal/model"
)

// Normalize folds compatibility forms, collapses whitespace and upper-cases s. It is
// the comparison key for deduplication and keyword matching.
func Normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(norm.NFKC.String(s)), " "))
}

// CleanText collapses whitespace and strips leading and trailing dashes. Text that
// is a single punctuation mark cleans to "".
func CleanText(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	cleaned = strings.Trim(cleaned, "-–— ")
	if len([]rune(cleaned)) == 1 && strings.ContainsAny(cleaned, ".,;:!?-_|") {
		return ""
	}
	return cleaned
}

// IsValidText rejects short, unprintable, punctuation-only or mostly symbolic text.
func IsValidText(text string, minLength int) bool {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) < minLength {
		return false
	}
	alnum := 0
	punctOnly := true
	for _, r := range runes {
		if !unicode.IsPrint(r) {
			return false
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
		if !strings.ContainsRune(".-_|", r) {
			punctOnly = false
		}
	}
	if punctOnly {
		return false
	}
	return float64(alnum)/float64(len(runes)) >= 0.3
}

// FilterLowQuality drops elements below minConfidence or with invalid text and
// returns copies carrying cleaned text. Non-text elements pass unchanged.
func FilterLowQuality(elements []model.ExtractedElement, minConfidence float64, minLength int) []model.ExtractedElement {
	out := make([]model.ExtractedElement, 0, len(elements))
	for _, el := range elements {
		if el.ElementType != model.ElementText {
			out = append(out, el)
			continue
		}
		if el.Confidence < minConfidence {
			continue
		}
		cleaned := CleanText(el.Text)
		if !IsValidText(cleaned, minLength) {
			continue
		}
		el.Text = cleaned
		out = append(out, el)
	}
	return out
}
