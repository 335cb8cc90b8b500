package spatial

import (
	"github.com/ArmanBehnam/clark/internal/model"
)

// Index looks up elements by position. It is built once per document and is
// read-only afterwards.
type Index struct {
	pages map[int][]model.ExtractedElement
}

// NewIndex indexes the TEXT elements with a non-empty box.
func NewIndex(elements []model.ExtractedElement) *Index {
	idx := &Index{pages: map[int][]model.ExtractedElement{}}
	for _, el := range elements {
		if el.ElementType != model.ElementText || el.BBox.IsEmpty() {
			continue
		}
		idx.pages[el.PageNumber] = append(idx.pages[el.PageNumber], el)
	}
	for _, els := range idx.pages {
		sortReadingOrder(els)
	}
	return idx
}

// CentersIn returns the elements of a page whose center lies inside box, in
// reading order.
func (idx *Index) CentersIn(page int, box model.BoundingBox) []model.ExtractedElement {
	if idx == nil {
		return nil
	}
	var out []model.ExtractedElement
	for _, el := range idx.pages[page] {
		if el.BBox.Y > box.Bottom() {
			break
		}
		if box.Contains(el.BBox.Center()) {
			out = append(out, el)
		}
	}
	return out
}

// Len returns the number of indexed elements.
func (idx *Index) Len() int {
	n := 0
	for _, els := range idx.pages {
		n += len(els)
	}
	return n
}
