package pdfmerge

import (
	"errors"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func TestMergeTwoDocuments(t *testing.T) {
	a := testDoc(100)
	b := testDoc(200, 300)

	merged, err := Merge([]*Document{a, b})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if got, want := pageWidths(t, merged), []int{100, 200, 300}; !equalInts(got, want) {
		t.Errorf("Expected page order %v, got %v", want, got)
	}
	if n := countType(merged, "Catalog"); n != 1 {
		t.Errorf("Expected 1 catalog, got %d", n)
	}
	if n := countType(merged, "Pages"); n != 1 {
		t.Errorf("Expected 1 pages object, got %d", n)
	}

	catalog, _ := merged.Dict(merged.Root)
	pagesRef, ok := catalog["Pages"].(types.IndirectRef)
	if !ok {
		t.Fatalf("Catalog has no Pages reference")
	}
	root, _ := merged.Dict(idOf(pagesRef))
	if count := number(t, root["Count"]); count != 3 {
		t.Errorf("Expected Count 3, got %d", count)
	}
	kids := root["Kids"].(types.Array)
	if len(kids) != 3 {
		t.Fatalf("Expected 3 kids, got %d", len(kids))
	}
	for _, kid := range kids {
		page, _ := merged.Dict(idOf(kid.(types.IndirectRef)))
		parent, ok := page["Parent"].(types.IndirectRef)
		if !ok || idOf(parent) != idOf(pagesRef) {
			t.Errorf("Page %v has parent %v, want %v", kid, page["Parent"], pagesRef)
		}
	}
}

func TestMergeKeepsContentWithItsPage(t *testing.T) {
	merged, err := Merge([]*Document{testDoc(100), testDoc(200, 300)})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	// A: 4 objects, B: 6 objects, minus B's catalog and pages root.
	if got := len(merged.Objects); got != 8 {
		t.Errorf("Expected 8 objects, got %d", got)
	}

	numbers := map[int]bool{}
	for id := range merged.Objects {
		if numbers[id.Number] {
			t.Errorf("Object number %d used twice", id.Number)
		}
		numbers[id.Number] = true
	}

	pages, _ := merged.Pages()
	for i, width := range []int{100, 200, 300} {
		page, _ := merged.Dict(pages[i])
		ref := page["Contents"].(types.IndirectRef)
		sd, ok := merged.Objects[idOf(ref)].(types.StreamDict)
		if !ok {
			t.Fatalf("Page %d contents is %T, want stream", i+1, merged.Objects[idOf(ref)])
		}
		if got, want := string(sd.Raw), pageContent(width); got != want {
			t.Errorf("Page %d content = %q, want %q", i+1, got, want)
		}
	}
}

func TestMergeSingleDocument(t *testing.T) {
	merged, err := Merge([]*Document{testDoc(100, 200)})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got, want := pageWidths(t, merged), []int{100, 200}; !equalInts(got, want) {
		t.Errorf("Expected page order %v, got %v", want, got)
	}
	if merged.Root != (ObjectID{Number: 1}) {
		t.Errorf("Expected root 1 0 R, got %s", merged.Root)
	}
}

func TestMergeFailures(t *testing.T) {
	tests := []struct {
		name string
		docs func() []*Document
		want error
	}{
		{
			name: "no documents",
			docs: func() []*Document { return nil },
			want: ErrNoDocuments,
		},
		{
			name: "no catalog",
			docs: func() []*Document {
				doc := testDoc(100)
				catalog, _ := doc.Dict(doc.Root)
				delete(catalog, "Type")
				return []*Document{doc}
			},
			want: ErrNoCatalog,
		},
		{
			name: "no pages root",
			docs: func() []*Document {
				a, b := testDoc(100), testDoc(200)
				for _, doc := range []*Document{a, b} {
					root, _ := doc.Dict(ObjectID{Number: 2})
					delete(root, "Type")
				}
				return []*Document{a, b}
			},
			want: ErrNoPagesRoot,
		},
		{
			name: "page tree cycle",
			docs: func() []*Document {
				doc := testDoc(100)
				root, _ := doc.Dict(ObjectID{Number: 2})
				root["Kids"] = append(root["Kids"].(types.Array), *types.NewIndirectRef(2, 0))
				return []*Document{doc}
			},
			want: ErrPageTreeCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(tt.docs())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if !IsInputError(err) {
				t.Errorf("Expected %v to be an input error", err)
			}
		})
	}
}

func TestMergeDropsOutlines(t *testing.T) {
	a := testDoc(100)
	catalog, _ := a.Dict(a.Root)
	catalog["Outlines"] = *types.NewIndirectRef(10, 0)
	a.Add(ObjectID{Number: 10}, types.Dict{
		"Type":  types.Name("Outlines"),
		"First": *types.NewIndirectRef(11, 0),
		"Count": types.Integer(1),
	})
	a.Add(ObjectID{Number: 11}, types.Dict{
		"Type":   types.Name("Outline"),
		"Title":  types.StringLiteral("Invoice"),
		"Parent": *types.NewIndirectRef(10, 0),
	})

	merged, err := Merge([]*Document{a, testDoc(200)})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if n := countType(merged, "Outlines") + countType(merged, "Outline"); n != 0 {
		t.Errorf("Expected outlines to be dropped, found %d outline objects", n)
	}
	catalog, _ = merged.Dict(merged.Root)
	if _, ok := catalog["Outlines"]; ok {
		t.Errorf("Catalog still references outlines")
	}
}

func TestMergePagesDictionaryFirstWins(t *testing.T) {
	a, b := testDoc(100), testDoc(200)
	rootA, _ := a.Dict(ObjectID{Number: 2})
	rootA["Producer"] = types.StringLiteral("invoice")
	rootB, _ := b.Dict(ObjectID{Number: 2})
	rootB["Producer"] = types.StringLiteral("attachment")
	rootB["Lang"] = types.StringLiteral("fi")

	merged, err := Merge([]*Document{a, b})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	catalog, _ := merged.Dict(merged.Root)
	root, _ := merged.Dict(idOf(catalog["Pages"].(types.IndirectRef)))

	if got := root["Producer"]; got != types.StringLiteral("invoice") {
		t.Errorf("Expected kept value to win, got %v", got)
	}
	if got := root["Lang"]; got != types.StringLiteral("fi") {
		t.Errorf("Expected missing key to be merged in, got %v", got)
	}
}

func TestMergeMaterializesInheritedAttributes(t *testing.T) {
	a, b := testDoc(100), testDoc(200, 300)
	rootA, _ := a.Dict(ObjectID{Number: 2})
	rootA["Rotate"] = types.Integer(90)
	rootB, _ := b.Dict(ObjectID{Number: 2})
	rootB["Rotate"] = types.Integer(180)

	merged, err := Merge([]*Document{a, b})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	pages, _ := merged.Pages()
	for i, want := range []int{90, 180, 180} {
		page, _ := merged.Dict(pages[i])
		rotate, ok := page["Rotate"]
		if !ok {
			t.Fatalf("Page %d did not inherit Rotate", i+1)
		}
		if got := number(t, rotate); got != want {
			t.Errorf("Page %d Rotate = %d, want %d", i+1, got, want)
		}
	}
}

func TestMergeFlattensNestedPageTree(t *testing.T) {
	// Root 2 -> [intermediate 9 -> [3, 5], 7]
	doc := testDoc(100, 200, 300)
	root, _ := doc.Dict(ObjectID{Number: 2})
	root["Kids"] = types.Array{*types.NewIndirectRef(9, 0), *types.NewIndirectRef(7, 0)}
	doc.Add(ObjectID{Number: 9}, types.Dict{
		"Type":     types.Name("Pages"),
		"Parent":   *types.NewIndirectRef(2, 0),
		"Kids":     types.Array{*types.NewIndirectRef(3, 0), *types.NewIndirectRef(5, 0)},
		"Count":    types.Integer(2),
		"MediaBox": types.Array{types.Integer(0), types.Integer(0), types.Integer(999), types.Integer(999)},
	})

	merged, err := Merge([]*Document{testDoc(50), doc})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if got, want := pageWidths(t, merged), []int{50, 100, 200, 300}; !equalInts(got, want) {
		t.Errorf("Expected page order %v, got %v", want, got)
	}
	if n := countType(merged, "Pages"); n != 1 {
		t.Errorf("Expected intermediate nodes to be folded away, found %d Pages objects", n)
	}
}

func TestPagesAllowsSharedKids(t *testing.T) {
	doc := testDoc(100, 200)
	root, _ := doc.Dict(ObjectID{Number: 2})
	// Listing a page twice is not a cycle.
	root["Kids"] = append(root["Kids"].(types.Array), *types.NewIndirectRef(3, 0))

	got := pageWidths(t, doc)
	if want := []int{100, 200, 100}; !equalInts(got, want) {
		t.Errorf("Expected page order %v, got %v", want, got)
	}
}
