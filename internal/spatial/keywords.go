package spatial

import (
	"strings"

	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/patterns"
)

// FilterKeywords keeps the pages whose regions mention any keyword. Matching
// ignores case and whitespace runs. When no page matches, every page with text is
// returned as full text and FallbackUsed is set.
func FilterKeywords(a Analysis, pages []model.PageResult, keywords []string) model.KeywordFilter {
	f := model.KeywordFilter{
		Keywords:      append([]string{}, keywords...),
		MatchingPages: []model.PageResult{},
		KeywordsFound: []string{},
	}

	norms := make([]string, len(keywords))
	for i, kw := range keywords {
		norms[i] = patterns.Normalize(kw)
	}

	found := map[string]bool{}
	for _, page := range pages {
		hits := matchPage(a.RegionsOn(page.PageNumber), page.ExtractedText, keywords, norms)
		if len(hits) == 0 {
			continue
		}
		p := page
		p.MatchedKeywords = hits
		p.FallbackExtraction = false
		f.MatchingPages = append(f.MatchingPages, p)
		for _, h := range hits {
			found[h] = true
		}
	}

	for _, kw := range keywords {
		if found[kw] {
			f.KeywordsFound = append(f.KeywordsFound, kw)
			delete(found, kw)
		}
	}

	withKeywords := len(f.MatchingPages)
	if withKeywords == 0 {
		f.FallbackUsed = true
		for _, page := range pages {
			if strings.TrimSpace(page.ExtractedText) == "" {
				continue
			}
			p := page
			p.MatchedKeywords = []string{}
			p.FallbackExtraction = true
			f.MatchingPages = append(f.MatchingPages, p)
		}
	}
	f.TotalMatchingPages = len(f.MatchingPages)
	f.Summary = Summarize(len(pages), withKeywords, f.FallbackUsed)
	return f
}

// matchPage returns the keywords found on one page. Region text is searched first;
// the page text catches headings that the clustering split across regions.
func matchPage(regions []Region, pageText string, keywords, norms []string) []string {
	texts := make([]string, 0, len(regions)+1)
	for _, r := range regions {
		texts = append(texts, patterns.Normalize(r.Text))
	}
	texts = append(texts, patterns.Normalize(pageText))

	var hits []string
	for i, kw := range keywords {
		if norms[i] == "" {
			continue
		}
		for _, t := range texts {
			if strings.Contains(t, norms[i]) {
				hits = append(hits, kw)
				break
			}
		}
	}
	return hits
}

// Summarize reports the keyword hit rate of a document.
func Summarize(totalPages, pagesWithKeywords int, fallback bool) model.PageSummary {
	s := model.PageSummary{
		TotalPages:        totalPages,
		PagesWithKeywords: pagesWithKeywords,
		ExtractionMethod:  model.MethodKeywordFilter,
	}
	if totalPages > 0 {
		s.PercentageWithKeywords = model.Round(float64(pagesWithKeywords)/float64(totalPages)*100, 1)
	}
	if fallback {
		s.ExtractionMethod = model.MethodFullTextFallback
	}
	return s
}
