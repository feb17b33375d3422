package pdfmerge

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestParseFixture(t *testing.T) {
	doc, err := Parse(testPDF(100, 200), nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Root != (ObjectID{Number: 1}) {
		t.Errorf("Expected root 1 0 R, got %s", doc.Root)
	}
	if doc.MaxID < 6 {
		t.Errorf("Expected MaxID of at least 6, got %d", doc.MaxID)
	}
	if got, want := pageWidths(t, doc), []int{100, 200}; !equalInts(got, want) {
		t.Errorf("Expected page order %v, got %v", want, got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("this is not a pdf"), nil)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *ParseError, got %v", err)
	}
	if !IsInputError(err) {
		t.Errorf("Expected parse failures to be input errors")
	}
}

func TestMergeBytes(t *testing.T) {
	m := New(DefaultOptions(), nil)

	res, err := m.MergeBytes(context.Background(), [][]byte{testPDF(100), testPDF(200, 300)})
	if err != nil {
		t.Fatalf("MergeBytes failed: %v", err)
	}
	if res.PageCount != 3 {
		t.Errorf("Expected 3 pages, got %d", res.PageCount)
	}

	out, err := Parse(res.PDF, nil)
	if err != nil {
		t.Fatalf("Parse of merged output failed: %v", err)
	}
	if got, want := pageWidths(t, out), []int{100, 200, 300}; !equalInts(got, want) {
		t.Errorf("Expected page order %v, got %v", want, got)
	}
	if n := countType(out, "Catalog"); n != 1 {
		t.Errorf("Expected 1 catalog, got %d", n)
	}
	if n := countType(out, "Pages"); n != 1 {
		t.Errorf("Expected 1 pages object, got %d", n)
	}
}

func TestMergeBytesPageCountIsSumOfInputs(t *testing.T) {
	inputs := [][]int{{100}, {200, 300, 400}, {500, 600}}
	var sources [][]byte
	var want []int
	for _, widths := range inputs {
		sources = append(sources, testPDF(widths...))
		want = append(want, widths...)
	}

	res, err := New(Options{Parallelism: 2}, nil).MergeBytes(context.Background(), sources)
	if err != nil {
		t.Fatalf("MergeBytes failed: %v", err)
	}
	out, err := Parse(res.PDF, nil)
	if err != nil {
		t.Fatalf("Parse of merged output failed: %v", err)
	}
	if got := pageWidths(t, out); !equalInts(got, want) {
		t.Errorf("Expected page order %v, got %v", want, got)
	}
}

func TestMergeBytesSingleSource(t *testing.T) {
	res, err := New(DefaultOptions(), nil).MergeBytes(context.Background(), [][]byte{testPDF(100, 200)})
	if err != nil {
		t.Fatalf("MergeBytes failed: %v", err)
	}
	out, err := Parse(res.PDF, nil)
	if err != nil {
		t.Fatalf("Parse of merged output failed: %v", err)
	}
	if got, want := pageWidths(t, out), []int{100, 200}; !equalInts(got, want) {
		t.Errorf("Expected page order %v, got %v", want, got)
	}
}

func TestMergeBytesFailsWholeBatchOnBadSource(t *testing.T) {
	good := testPDF(100)
	goodCopy := append([]byte(nil), good...)
	sources := [][]byte{good, []byte("%PDF-1.4\nbroken"), testPDF(200)}

	res, err := New(DefaultOptions(), nil).MergeBytes(context.Background(), sources)
	if res != nil {
		t.Errorf("Expected no partial output")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *ParseError, got %v", err)
	}
	if pe.Index != 1 {
		t.Errorf("Expected failing index 1, got %d", pe.Index)
	}
	if !bytes.Equal(good, goodCopy) {
		t.Errorf("Expected the other sources to stay untouched")
	}
}

func TestMergeBytesRejectsEmptyInput(t *testing.T) {
	_, err := New(DefaultOptions(), nil).MergeBytes(context.Background(), nil)
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("Expected ErrNoDocuments, got %v", err)
	}
}
