package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Lllllllleong/invoicedocumentflow/internal/pdfmerge"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/spf13/cobra"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect file.pdf",
		Short: "Show the object structure the merge engine sees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args[0], cmd.OutOrStdout())
		},
	}
}

func runInspect(path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := pdfmerge.Parse(data, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	pages, err := doc.Pages()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Fprintf(out, "File:    %s\n", path)
	fmt.Fprintf(out, "Root:    %s\n", doc.Root)
	if doc.Info != nil {
		fmt.Fprintf(out, "Info:    %s\n", *doc.Info)
	}
	fmt.Fprintf(out, "Objects: %d (max id %d)\n", len(doc.Objects), doc.MaxID)
	fmt.Fprintf(out, "Pages:   %d\n", len(pages))

	counts := typeCounts(doc)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "\nObjects by type:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-14s %d\n", name+":", counts[name])
	}
	return nil
}

func typeCounts(doc *pdfmerge.Document) map[string]int {
	counts := map[string]int{}
	for _, obj := range doc.Objects {
		name := "(untyped)"
		var d types.Dict
		switch v := obj.(type) {
		case types.Dict:
			d = v
		case types.StreamDict:
			d = v.Dict
			name = "(stream)"
		}
		if t, ok := d["Type"].(types.Name); ok {
			name = string(t)
		}
		counts[name]++
	}
	return counts
}
