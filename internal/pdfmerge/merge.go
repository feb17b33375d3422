package pdfmerge

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// kept is the object chosen to survive when several documents contribute one
// of a kind.
type kept struct {
	id   ObjectID
	dict types.Dict
}

// Merge folds docs, in order, into a single document with one catalog and one
// flat page tree. The documents are renumbered and modified in place and must
// not be used afterwards.
//
// Conflicts are resolved first-wins: the first Catalog and the first Pages
// object are kept, later Pages dictionaries only contribute keys the kept one
// lacks, and outline trees are dropped from every input.
func Merge(docs []*Document) (*Document, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	// --- 1. Give every document its own number range ---
	next := 1
	var pages []ObjectID
	for i, doc := range docs {
		next = renumber(doc, next)

		docPages, err := doc.walkPages(true)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		pages = append(pages, docPages...)
	}

	// --- 2. Classify ---
	merged := NewDocument()
	deferred := make(map[ObjectID]types.Dict, len(pages))
	var catalog, pagesRoot *kept
	var info *ObjectID

	for _, doc := range docs {
		if info == nil && doc.Info != nil {
			info = doc.Info
		}
		for _, id := range doc.IDs() {
			obj := doc.Objects[id]
			switch typeName(obj) {
			case "Catalog":
				if catalog == nil {
					d, _ := asDict(obj)
					catalog = &kept{id: id, dict: d}
				}
			case "Pages":
				d, _ := asDict(obj)
				if pagesRoot == nil {
					pagesRoot = &kept{id: id, dict: d}
					continue
				}
				for key, value := range d {
					if _, ok := pagesRoot.dict[key]; !ok {
						pagesRoot.dict[key] = value
					}
				}
			case "Page":
				if d, ok := obj.(types.Dict); ok {
					deferred[id] = d
				}
			case "Outlines", "Outline":
			default:
				merged.Add(id, obj)
			}
		}
	}

	if catalog == nil {
		return nil, ErrNoCatalog
	}
	if pagesRoot == nil {
		return nil, ErrNoPagesRoot
	}

	// --- 3. Re-parent pages under the kept root ---
	kids := make(types.Array, 0, len(pages))
	for _, id := range pages {
		page, ok := deferred[id]
		if !ok {
			// Untyped leaves were inserted as ordinary objects.
			page, ok = merged.Dict(id)
			if !ok {
				continue
			}
		}
		page["Parent"] = pagesRoot.id.Ref()
		merged.Add(id, page)
		kids = append(kids, id.Ref())
	}

	// --- 4. Finalize the page tree root ---
	pagesRoot.dict["Kids"] = kids
	pagesRoot.dict["Count"] = types.Integer(len(kids))
	delete(pagesRoot.dict, "Parent")
	merged.Add(pagesRoot.id, pagesRoot.dict)

	// --- 5. Finalize the catalog ---
	catalog.dict["Pages"] = pagesRoot.id.Ref()
	delete(catalog.dict, "Outlines")
	merged.Add(catalog.id, catalog.dict)

	// --- 6. Trailer ---
	merged.Root = catalog.id
	if info != nil {
		if _, ok := merged.Objects[*info]; ok {
			merged.Info = info
		}
	}
	if next-1 > merged.MaxID {
		merged.MaxID = next - 1
	}
	return merged, nil
}
