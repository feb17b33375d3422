package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Lllllllleong/invoicedocumentflow/internal/pdfmerge"
	"github.com/spf13/cobra"
)

func mergeCmd() *cobra.Command {
	opts := pdfmerge.DefaultOptions()
	var output string
	var noCompress bool

	cmd := &cobra.Command{
		Use:   "merge -o out.pdf in.pdf [in.pdf...]",
		Short: "Merge PDF files, in order, into one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CompressStreams = !noCompress
			return runMerge(cmd.Context(), opts, args, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	cmd.Flags().IntVarP(&opts.Parallelism, "parallel", "p", 4, "Number of files parsed concurrently")
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "Validate every input before merging")
	cmd.Flags().BoolVar(&opts.Optimize, "optimize", false, "Optimize the merged file")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "Leave uncompressed streams as they are")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runMerge(ctx context.Context, opts pdfmerge.Options, inputs []string, output string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sources := make([][]byte, len(inputs))
	for i, path := range inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sources[i] = data
	}

	res, err := pdfmerge.New(opts, slog.Default()).MergeBytes(ctx, sources)
	if err != nil {
		var pe *pdfmerge.ParseError
		if errors.As(err, &pe) && pe.Index >= 0 && pe.Index < len(inputs) {
			return fmt.Errorf("%s: %w", inputs[pe.Index], err)
		}
		return err
	}

	if err := os.WriteFile(output, res.PDF, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(out, "Wrote %s: %d files, %d pages, %d bytes\n", output, len(inputs), res.PageCount, len(res.PDF))
	return nil
}
