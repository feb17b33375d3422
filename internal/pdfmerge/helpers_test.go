package pdfmerge

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// pageContent is the content stream drawn on a test page of the given width.
func pageContent(width int) string {
	return fmt.Sprintf("0 0 %d 10 re f", width)
}

// testDoc builds a document in memory: catalog 1, pages root 2, then for
// each page a page object followed by its content stream. Pages are told
// apart by their MediaBox width.
func testDoc(widths ...int) *Document {
	doc := NewDocument()
	doc.Root = ObjectID{Number: 1}
	doc.Add(ObjectID{Number: 1}, types.Dict{
		"Type":  types.Name("Catalog"),
		"Pages": *types.NewIndirectRef(2, 0),
	})

	kids := types.Array{}
	for i, w := range widths {
		pageNr := 3 + 2*i
		content := pageContent(w)
		doc.Add(ObjectID{Number: pageNr}, types.Dict{
			"Type":     types.Name("Page"),
			"Parent":   *types.NewIndirectRef(2, 0),
			"MediaBox": types.Array{types.Integer(0), types.Integer(0), types.Integer(w), types.Integer(792)},
			"Contents": *types.NewIndirectRef(pageNr+1, 0),
		})
		doc.Add(ObjectID{Number: pageNr + 1}, types.StreamDict{
			Dict: types.Dict{"Length": types.Integer(len(content))},
			Raw:  []byte(content),
		})
		kids = append(kids, *types.NewIndirectRef(pageNr, 0))
	}
	doc.Add(ObjectID{Number: 2}, types.Dict{
		"Type":  types.Name("Pages"),
		"Kids":  kids,
		"Count": types.Integer(len(widths)),
	})
	return doc
}

// assemblePDF writes objects 1..n with a classic xref table; object 1 is the root.
func assemblePDF(objects []string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// testPDF is the file form of testDoc.
func testPDF(widths ...int) []byte {
	objects := []string{"<< /Type /Catalog /Pages 2 0 R >>", ""}
	var kids []string
	for i, w := range widths {
		pageNr := 3 + 2*i
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNr))
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 792] /Resources << >> /Contents %d 0 R >>",
			w, pageNr+1))
		content := pageContent(w)
		objects = append(objects, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths))
	return assemblePDF(objects)
}

// pageWidths returns the MediaBox widths of doc's pages in reading order.
func pageWidths(t *testing.T, doc *Document) []int {
	t.Helper()
	pages, err := doc.Pages()
	if err != nil {
		t.Fatalf("Pages() failed: %v", err)
	}
	widths := make([]int, 0, len(pages))
	for _, id := range pages {
		page, ok := doc.Dict(id)
		if !ok {
			t.Fatalf("page %s is not a dictionary", id)
		}
		box, ok := page["MediaBox"].(types.Array)
		if !ok || len(box) != 4 {
			t.Fatalf("page %s has no MediaBox: %v", id, page["MediaBox"])
		}
		widths = append(widths, number(t, box[2]))
	}
	return widths
}

func number(t *testing.T, obj types.Object) int {
	t.Helper()
	switch v := obj.(type) {
	case types.Integer:
		return int(v)
	case types.Float:
		return int(v)
	}
	t.Fatalf("expected a number, got %T", obj)
	return 0
}

func countType(doc *Document, name string) int {
	n := 0
	for _, obj := range doc.Objects {
		if typeName(obj) == name {
			n++
		}
	}
	return n
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
