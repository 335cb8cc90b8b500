/**
 * Table Detection - three independent geometry strategies over a page image
 *
 * Strategies:
 * - line: ruled grids from long horizontal and vertical ink runs
 * - contour: borderless tables from word blobs aligned in rows and columns
 * - edge: outlined boxes from Sobel edges with internal divider lines
 *
 * Candidates from all strategies are merged by IoU; agreement raises confidence.
 */

package tables

import (
	"context"
	"image"
	"sync"

	"github.com/ArmanBehnam/clark/internal/config"
	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
	"github.com/ArmanBehnam/clark/internal/vision"
)

// Page is a page image prepared once and shared read-only by all strategies.
type Page struct {
	Number int
	Image  image.Image
	Gray   *image.Gray
	Ink    *vision.Bitmap
	W, H   int
}

// NewPage converts and binarizes the page image.
func NewPage(img image.Image, number int) *Page {
	gray := vision.Gray(img)
	b := gray.Bounds()
	window := max(15, min(b.Dx(), b.Dy())/40)
	return &Page{
		Number: number,
		Image:  img,
		Gray:   gray,
		Ink:    vision.Binarize(gray, window, 15),
		W:      b.Dx(),
		H:      b.Dy(),
	}
}

// Strategy finds table candidates on a page.
type Strategy interface {
	Method() model.DetectionMethod
	Detect(p *Page) []model.SpatialTable
}

// Config selects strategies and thresholds.
type Config struct {
	Line          bool
	Contour       bool
	Edge          bool
	IoUThreshold  float64
	MinConfidence float64
}

// DefaultConfig enables every strategy.
func DefaultConfig() Config {
	return Config{Line: true, Contour: true, Edge: true, IoUThreshold: 0.5, MinConfidence: 0.5}
}

// ConfigFrom reads the processing thresholds.
func ConfigFrom(cfg config.ProcessingConfig) Config {
	c := DefaultConfig()
	c.IoUThreshold = cfg.TableIoUThreshold
	c.MinConfidence = cfg.TableConfidenceThreshold
	return c
}

// Detector runs the enabled strategies and merges their output.
type Detector struct {
	config     Config
	strategies []Strategy
	logger     *logging.Logger
}

// NewDetector creates a detector for the given configuration.
func NewDetector(cfg Config) *Detector {
	d := &Detector{config: cfg, logger: logging.NewLogger("TableDetector")}
	if cfg.Line {
		d.strategies = append(d.strategies, LineStrategy{})
	}
	if cfg.Contour {
		d.strategies = append(d.strategies, ContourStrategy{})
	}
	if cfg.Edge {
		d.strategies = append(d.strategies, EdgeStrategy{})
	}
	return d
}

// Strategies returns the enabled strategy methods in run order.
func (d *Detector) Strategies() []model.DetectionMethod {
	out := make([]model.DetectionMethod, len(d.strategies))
	for i, s := range d.strategies {
		out[i] = s.Method()
	}
	return out
}

// Detect runs every enabled strategy concurrently and returns all raw candidates
// in strategy order.
func (d *Detector) Detect(ctx context.Context, img image.Image, pageNumber int) ([]model.SpatialTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := NewPage(img, pageNumber)

	results := make([][]model.SpatialTable, len(d.strategies))
	var wg sync.WaitGroup
	for i, s := range d.strategies {
		wg.Add(1)
		go func(i int, s Strategy) {
			defer wg.Done()
			results[i] = s.Detect(page)
		}(i, s)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all []model.SpatialTable
	for i, r := range results {
		d.logger.Debug("Strategy finished", "page", pageNumber, "method", d.strategies[i].Method(), "candidates", len(r))
		all = append(all, r...)
	}
	return all, nil
}

// Find detects, merges and filters tables on one page.
func (d *Detector) Find(ctx context.Context, img image.Image, pageNumber int) ([]model.SpatialTable, error) {
	cands, err := d.Detect(ctx, img, pageNumber)
	if err != nil {
		return nil, err
	}
	merged := Merge(cands, d.config.IoUThreshold)
	out := merged[:0]
	for _, t := range merged {
		if t.Confidence >= d.config.MinConfidence {
			out = append(out, t)
		}
	}
	return out, nil
}
