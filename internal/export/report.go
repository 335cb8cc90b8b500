package export

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/patterns"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown renders a human readable summary of the result.
func Markdown(res *model.ExtractionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", mdEscape(res.Filename))

	b.WriteString("| Field | Value |\n|---|---|\n")
	rows := [][2]string{
		{"Document ID", res.DocumentID},
		{"Type", fmt.Sprintf("%s (%.2f)", res.DocumentType, res.ClassificationConfidence)},
		{"Pages", fmt.Sprint(res.TotalPages)},
		{"Confidence", fmt.Sprintf("%.3f", res.Confidence)},
		{"Method", res.ProcessingMethod},
		{"OCR engine", res.Metrics.OCREngineUsed},
		{"Elements", fmt.Sprint(res.Metrics.TotalElements)},
		{"Tables", fmt.Sprint(len(res.Tables))},
		{"Processing time", fmt.Sprintf("%.2fs", res.Metrics.ProcessingTime)},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", r[0], mdEscape(r[1]))
	}

	if len(res.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- %s\n", mdEscape(w))
		}
	}

	if len(res.StructuredData) > 0 {
		b.WriteString("\n## Structured data\n\n| Category | Value | Confidence |\n|---|---|---|\n")
		cats := make([]string, 0, len(res.StructuredData))
		for c := range res.StructuredData {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			for _, m := range res.StructuredData[c] {
				fmt.Fprintf(&b, "| %s | %s | %.2f |\n", c, mdEscape(m.Value), m.Confidence)
			}
		}
	}

	if kf := res.KeywordFilter; kf != nil {
		b.WriteString("\n## Keyword pages\n\n")
		fmt.Fprintf(&b, "%d of %d pages (%.1f%%), method `%s`.\n\n",
			kf.Summary.PagesWithKeywords, kf.Summary.TotalPages, kf.Summary.PercentageWithKeywords, kf.Summary.ExtractionMethod)
		for _, p := range kf.MatchingPages {
			fmt.Fprintf(&b, "- page %d: %s\n", p.PageNumber, mdEscape(strings.Join(p.MatchedKeywords, ", ")))
		}
	}

	if topics := patterns.Topics(res.ExtractedText); len(topics) > 0 {
		b.WriteString("\n## Sections\n")
		for _, t := range topics {
			fmt.Fprintf(&b, "\n### %s\n\n%s\n", mdEscape(t.Title), mdEscape(t.Body))
		}
	}

	for i, t := range res.Tables {
		fmt.Fprintf(&b, "\n## Table %d (page %d, %s, %.2f)\n\n", i+1, t.PageNumber, t.DetectionMethod, t.Confidence)
		writeTable(&b, t)
	}
	return b.String()
}

func writeTable(b *strings.Builder, t model.SpatialTable) {
	cols := t.ColCount()
	if cols == 0 {
		return
	}
	for r, row := range t.Rows {
		b.WriteByte('|')
		for c := 0; c < cols; c++ {
			text := ""
			if c < len(row) {
				text = row[c].Text
			}
			fmt.Fprintf(b, " %s |", mdEscape(text))
		}
		b.WriteByte('\n')
		if r == 0 {
			b.WriteString("|" + strings.Repeat("---|", cols) + "\n")
		}
	}
}

// mdEscape keeps extracted text from being read as markup.
func mdEscape(s string) string {
	s = html.EscapeString(s)
	r := strings.NewReplacer("|", `\|`, "*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`, "\n", " ")
	return r.Replace(s)
}

// RenderHTML writes a standalone HTML report.
func RenderHTML(w io.Writer, res *model.ExtractionResult) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(res)), &body); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	_, err := fmt.Fprintf(w, htmlPage, html.EscapeString(res.Filename), body.String())
	return err
}

const htmlPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 60em; margin: 2em auto; }
table { border-collapse: collapse; margin: 1em 0; }
td, th { border: 1px solid #ccc; padding: 0.3em 0.6em; }
</style>
</head>
<body>
%s</body>
</html>
`
