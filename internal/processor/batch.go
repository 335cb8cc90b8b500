package processor

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ArmanBehnam/clark/internal/logging"
	"github.com/ArmanBehnam/clark/internal/model"
)

// BatchError is one document that could not be processed.
type BatchError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Report summarizes a batch run. Results keep the input order of the successful
// files.
type Report struct {
	TotalFiles int                       `json:"total_files"`
	Successful int                       `json:"successful"`
	Failed     int                       `json:"failed"`
	Results    []*model.ExtractionResult `json:"results"`
	Errors     []BatchError              `json:"errors"`
}

// Batch processes many documents with bounded parallelism.
type Batch struct {
	proc    *Processor
	workers int
	opts    Options
	logger  *logging.Logger

	// OnResult is called from worker goroutines as each document completes.
	OnResult func(file string, res *model.ExtractionResult)
}

// NewBatch creates a batch runner. workers < 1 uses the configured worker count.
func NewBatch(p *Processor, workers int, opts Options) *Batch {
	if workers < 1 {
		workers = p.cfg.Processing.Workers
	}
	if workers < 1 {
		workers = 1
	}
	opts.DocumentID = ""
	return &Batch{proc: p, workers: workers, opts: opts, logger: logging.NewLogger("Batch")}
}

// Run processes files. A failing document never stops its siblings; the returned
// error is only the context error when the run was cancelled.
func (b *Batch) Run(ctx context.Context, files []string) (*Report, error) {
	type outcome struct {
		res *model.ExtractionResult
		err error
	}
	outcomes := make([]outcome, len(files))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].err = err
				return nil
			}
			res, err := b.proc.Process(ctx, file, b.opts)
			outcomes[i] = outcome{res: res, err: err}
			if err == nil && b.OnResult != nil {
				b.OnResult(file, res)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := &Report{
		TotalFiles: len(files),
		Results:    []*model.ExtractionResult{},
		Errors:     []BatchError{},
	}
	for i, o := range outcomes {
		if o.err != nil {
			rep.Failed++
			rep.Errors = append(rep.Errors, BatchError{File: files[i], Error: o.err.Error()})
			b.logger.Warn("Document failed", "file", files[i], "error", o.err)
			continue
		}
		rep.Successful++
		rep.Results = append(rep.Results, o.res)
	}
	b.logger.Info("Batch complete", "total", rep.TotalFiles, "successful", rep.Successful, "failed", rep.Failed)
	return rep, ctx.Err()
}

// CollectFiles walks dir and returns the files with an allowed extension, sorted.
func CollectFiles(dir string, allowed []string) ([]string, error) {
	exts := map[string]bool{}
	for _, e := range allowed {
		exts[strings.ToLower(e)] = true
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
