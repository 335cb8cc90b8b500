package tables

import (
	"context"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ArmanBehnam/clark/internal/engine"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/preprocess"
	"github.com/ArmanBehnam/clark/internal/spatial"
)

// CellRecognizer reads the text of a single cell crop.
type CellRecognizer interface {
	RecognizeText(ctx context.Context, in engine.Input) (string, float64, error)
}

// cellInset trims ruling lines from cell crops.
const cellInset = 2

// FillCells assigns text to table cells. A cell takes the TEXT elements whose
// center lies inside it, in reading order. Cells left empty are re-recognized from
// a crop of pageImg while budget lasts; a failed crop leaves the cell empty. The
// input tables are not modified. The second return value is the number of crops
// sent to rec.
func FillCells(ctx context.Context, tables []model.SpatialTable, idx *spatial.Index, pageImg image.Image, rec CellRecognizer, budget int) ([]model.SpatialTable, int) {
	out := make([]model.SpatialTable, len(tables))
	used := 0
	for ti, t := range tables {
		filled := t
		filled.Rows = make([][]model.TableCell, len(t.Rows))
		for r, row := range t.Rows {
			cells := make([]model.TableCell, len(row))
			for c, cell := range row {
				cells[c] = fillFromIndex(cell, idx, t.PageNumber)
				if cells[c].Text != "" || rec == nil || pageImg == nil || used >= budget || ctx.Err() != nil {
					continue
				}
				used++
				if text, conf, ok := recognizeCrop(ctx, cell, pageImg, t.PageNumber, rec); ok {
					cells[c].Text = text
					cells[c].Confidence = conf
				}
			}
			filled.Rows[r] = cells
		}
		out[ti] = filled
	}
	return out, used
}

func fillFromIndex(cell model.TableCell, idx *spatial.Index, page int) model.TableCell {
	els := idx.CentersIn(page, cell.BBox)
	if len(els) == 0 {
		return cell
	}
	parts := make([]string, 0, len(els))
	var conf float64
	for _, el := range els {
		if t := strings.TrimSpace(el.Text); t != "" {
			parts = append(parts, t)
		}
		conf += el.Confidence
	}
	cell.Text = strings.Join(parts, " ")
	cell.Confidence = model.Round(conf/float64(len(els)), 3)
	return cell
}

func recognizeCrop(ctx context.Context, cell model.TableCell, pageImg image.Image, page int, rec CellRecognizer) (string, float64, bool) {
	b := pageImg.Bounds()
	r := cell.BBox.ToPixels(b.Dx(), b.Dy()).Add(b.Min).Inset(cellInset)
	if r.Empty() {
		return "", 0, false
	}
	crop := imaging.Crop(pageImg, r)
	data, err := preprocess.EncodePNG(crop)
	if err != nil {
		return "", 0, false
	}
	text, conf, err := rec.RecognizeText(ctx, engine.Input{
		Image:      data,
		Width:      r.Dx(),
		Height:     r.Dy(),
		PageNumber: page,
		Format:     "png",
	})
	if err != nil {
		return "", 0, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0, false
	}
	return text, model.Round(model.ClampConfidence(conf), 3), true
}
