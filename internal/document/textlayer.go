package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/ArmanBehnam/clark/internal/model"
)

// TextLayerEngine attributes elements read from the embedded PDF text.
const TextLayerEngine = "pdf_text_layer"

// MinTextLayerChars is the number of non-space characters a page needs before its
// text layer is trusted without OCR.
const MinTextLayerChars = 50

// Word is one positioned word from the text layer.
type Word struct {
	Text string
	BBox model.BoundingBox
}

// PageText is the text layer of one page.
type PageText struct {
	Number int
	Width  float64
	Height float64
	Words  []Word
}

// line is a run of words sharing a baseline.
type line struct {
	words []Word
	box   model.BoundingBox
}

func (p PageText) lines() []line {
	var out []line
	for _, w := range p.Words {
		if n := len(out); n > 0 {
			cur := &out[n-1]
			last := cur.words[len(cur.words)-1].BBox
			overlap := min(last.Bottom(), w.BBox.Bottom()) - max(last.Y, w.BBox.Y)
			if w.BBox.X >= last.X && overlap*2 >= min(last.Height, w.BBox.Height) {
				cur.words = append(cur.words, w)
				cur.box = cur.box.Union(w.BBox)
				continue
			}
		}
		out = append(out, line{words: []Word{w}, box: w.BBox})
	}
	return out
}

// Text joins words into lines in text layer order.
func (p PageText) Text() string {
	ls := p.lines()
	parts := make([]string, len(ls))
	for i, l := range ls {
		words := make([]string, len(l.words))
		for j, w := range l.words {
			words[j] = w.Text
		}
		parts[i] = strings.Join(words, " ")
	}
	return strings.Join(parts, "\n")
}

// Elements returns one TEXT element per line with full confidence.
func (p PageText) Elements() []model.ExtractedElement {
	ls := p.lines()
	out := make([]model.ExtractedElement, 0, len(ls))
	for _, l := range ls {
		words := make([]string, len(l.words))
		for j, w := range l.words {
			words[j] = w.Text
		}
		out = append(out, model.ExtractedElement{
			Text:        strings.Join(words, " "),
			ElementType: model.ElementText,
			PageNumber:  p.Number,
			Confidence:  1.0,
			BBox:        l.box.Clamp(),
			Metadata:    map[string]interface{}{"engine": TextLayerEngine},
		})
	}
	return out
}

// Sufficient reports whether the page carries enough text to skip OCR.
func (p PageText) Sufficient() bool {
	n := 0
	for _, w := range p.Words {
		for _, r := range w.Text {
			if !unicode.IsSpace(r) {
				n++
			}
		}
	}
	return n >= MinTextLayerChars
}

// ExtractTextLayer runs pdftotext -bbox over the whole document.
func ExtractTextLayer(ctx context.Context, path string) ([]PageText, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-bbox", "-enc", "UTF-8", path, "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w (output: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return ParseBBoxHTML(bytes.NewReader(out))
}

// ParseBBoxHTML parses pdftotext -bbox output. Word coordinates are normalized to
// the page size.
func ParseBBoxHTML(r io.Reader) ([]PageText, error) {
	z := html.NewTokenizer(r)
	var pages []PageText
	var cur *PageText
	var inWord bool
	var word Word
	var coords [4]float64

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return pages, nil
			}
			return nil, fmt.Errorf("parse text layer: %w", z.Err())

		case html.StartTagToken:
			tok := z.Token()
			switch tok.Data {
			case "page":
				pages = append(pages, PageText{Number: len(pages) + 1})
				cur = &pages[len(pages)-1]
				cur.Width = attrFloat(tok, "width")
				cur.Height = attrFloat(tok, "height")
			case "word":
				if cur == nil {
					continue
				}
				inWord = true
				word = Word{}
				coords = [4]float64{
					attrFloat(tok, "xmin"), attrFloat(tok, "ymin"),
					attrFloat(tok, "xmax"), attrFloat(tok, "ymax"),
				}
			}

		case html.TextToken:
			if inWord {
				word.Text += string(z.Text())
			}

		case html.EndTagToken:
			tok := z.Token()
			if tok.Data != "word" || !inWord {
				continue
			}
			inWord = false
			word.Text = strings.TrimSpace(word.Text)
			if word.Text == "" || cur.Width <= 0 || cur.Height <= 0 {
				continue
			}
			word.BBox = model.BoundingBox{
				X:      coords[0] / cur.Width,
				Y:      coords[1] / cur.Height,
				Width:  (coords[2] - coords[0]) / cur.Width,
				Height: (coords[3] - coords[1]) / cur.Height,
			}.Clamp()
			cur.Words = append(cur.Words, word)
		}
	}
}

// attrFloat reads a numeric attribute; the tokenizer lower-cases attribute names.
func attrFloat(tok html.Token, name string) float64 {
	for _, a := range tok.Attr {
		if a.Key == name {
			v, err := strconv.ParseFloat(a.Val, 64)
			if err == nil {
				return v
			}
		}
	}
	return 0
}
