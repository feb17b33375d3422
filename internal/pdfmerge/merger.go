package pdfmerge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Merger runs the parse, merge and serialize stages for one batch of sources.
// It holds no per-call state and is safe for concurrent use.
type Merger struct {
	opts   Options
	logger *slog.Logger
}

// New returns a Merger. A nil logger uses slog.Default().
func New(opts Options, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{opts: opts, logger: logger}
}

// Result describes a merged document.
type Result struct {
	PDF       []byte
	PageCount int
}

// MergeBytes merges sources, in order, into a single PDF. Either the whole
// merged file is returned or an error; a source that fails to parse fails the
// batch with a *ParseError carrying its index.
func (m *Merger) MergeBytes(ctx context.Context, sources [][]byte) (*Result, error) {
	if len(sources) == 0 {
		return nil, ErrNoDocuments
	}
	start := time.Now()

	docs, err := m.parseAll(ctx, sources)
	if err != nil {
		return nil, err
	}

	merged, err := Merge(docs)
	if err != nil {
		return nil, err
	}
	pages, err := merged.Pages()
	if err != nil {
		return nil, err
	}
	objectCount := len(merged.Objects)

	out, err := Serialize(merged, m.opts)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Merged PDF documents.",
		"sources", len(sources),
		"pageCount", len(pages),
		"objectCount", objectCount,
		"bytes", len(out),
		"duration", time.Since(start).String(),
	)
	return &Result{PDF: out, PageCount: len(pages)}, nil
}

// parseAll decodes every source, concurrently when allowed. Sources are
// never modified.
func (m *Merger) parseAll(ctx context.Context, sources [][]byte) ([]*Document, error) {
	docs := make([]*Document, len(sources))
	eg, gctx := errgroup.WithContext(ctx)
	if m.opts.Parallelism > 0 {
		eg.SetLimit(m.opts.Parallelism)
	}
	base := m.opts.configuration()

	for i, src := range sources {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// pdfcpu keeps a pointer to the configuration in each context.
			conf := *base
			doc, err := parse(src, &conf, m.opts.Validate)
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					pe.Index = i
					return pe
				}
				return &ParseError{Index: i, Err: err}
			}
			docs[i] = doc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	return docs, nil
}
