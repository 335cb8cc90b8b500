package patterns

import (
	"strings"
	"unicode"
)

// Topic is a titled section of notes, such as "GENERAL STRUCTURAL NOTES".
type Topic struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Position int    `json:"position"`
}

// Topics splits text into sections headed by upper-case heading lines. A heading
// is an upper-case line with at least three letters that either ends in a colon or
// has two or more words. Text before the first heading is not returned.
func Topics(text string) []Topic {
	var topics []Topic
	var cur *Topic
	var body []string

	flush := func() {
		if cur != nil {
			cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
			topics = append(topics, *cur)
		}
		body = body[:0]
	}

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			flush()
			cur = &Topic{
				Title:    strings.TrimSuffix(trimmed, ":"),
				Position: offset + strings.Index(line, trimmed),
			}
		} else if cur != nil {
			body = append(body, strings.TrimRight(line, "\r\n"))
		}
		offset += len(line)
	}
	flush()
	return topics
}

func isHeading(line string) bool {
	if line == "" {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 3 {
		return false
	}
	return strings.HasSuffix(line, ":") || len(strings.Fields(line)) >= 2
}
