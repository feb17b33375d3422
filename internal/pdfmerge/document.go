// Package pdfmerge combines independently produced PDF documents into a single
// document with one catalog, one page tree and non-colliding object numbers.
package pdfmerge

import (
	"fmt"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ObjectID identifies an indirect object inside one document.
// It is not unique across documents.
type ObjectID struct {
	Number     int
	Generation int
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d %d R", id.Number, id.Generation)
}

// Ref returns the indirect reference pointing at id.
func (id ObjectID) Ref() types.IndirectRef {
	return *types.NewIndirectRef(id.Number, id.Generation)
}

func idOf(ref types.IndirectRef) ObjectID {
	return ObjectID{Number: int(ref.ObjectNumber), Generation: int(ref.GenerationNumber)}
}

// Document is an owned object table plus the trailer entries the merge needs.
type Document struct {
	Objects map[ObjectID]types.Object
	Root    ObjectID
	Info    *ObjectID
	// MaxID is the highest object number in use.
	MaxID int
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Objects: make(map[ObjectID]types.Object)}
}

// Add stores obj under id and keeps MaxID current.
func (d *Document) Add(id ObjectID, obj types.Object) {
	d.Objects[id] = obj
	if id.Number > d.MaxID {
		d.MaxID = id.Number
	}
}

// IDs returns the object ids in ascending number order.
func (d *Document) IDs() []ObjectID {
	ids := make([]ObjectID, 0, len(d.Objects))
	for id := range d.Objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Number != ids[j].Number {
			return ids[i].Number < ids[j].Number
		}
		return ids[i].Generation < ids[j].Generation
	})
	return ids
}

// Dict returns the dictionary stored under id, if any.
func (d *Document) Dict(id ObjectID) (types.Dict, bool) {
	return asDict(d.Objects[id])
}

// Pages returns the page objects in reading order by walking the page tree
// from the root catalog. A document without a page tree has no pages.
func (d *Document) Pages() ([]ObjectID, error) {
	return d.walkPages(false)
}

// walkPages collects the leaves of the page tree. With inherit set, the
// inheritable attributes of intermediate nodes are copied onto pages that
// do not define them.
func (d *Document) walkPages(inherit bool) ([]ObjectID, error) {
	catalog, ok := d.Dict(d.Root)
	if !ok {
		return nil, nil
	}
	rootRef, ok := catalog["Pages"].(types.IndirectRef)
	if !ok {
		return nil, nil
	}

	var pages []ObjectID
	// onPath holds the ancestors of the node being visited. A node reachable
	// twice through different parents is not a cycle.
	onPath := make(map[ObjectID]bool)
	var walk func(id ObjectID, inherited types.Dict) error
	walk = func(id ObjectID, inherited types.Dict) error {
		if onPath[id] {
			return fmt.Errorf("%w at %s", ErrPageTreeCycle, id)
		}

		node, ok := d.Dict(id)
		if !ok {
			// Dangling kids are skipped the same way viewers skip them.
			return nil
		}
		if !isPageTreeNode(node) {
			if inherit {
				for key, value := range inherited {
					if _, has := node[key]; !has {
						node[key] = value.Clone()
					}
				}
			}
			pages = append(pages, id)
			return nil
		}

		attrs := inherited
		if inherit {
			attrs = make(types.Dict, len(inheritableKeys))
			for key, value := range inherited {
				attrs[key] = value
			}
			for _, key := range inheritableKeys {
				if value, has := node[key]; has && value != nil {
					attrs[key] = value
				}
			}
		}

		onPath[id] = true
		defer delete(onPath, id)

		kids, _ := node["Kids"].(types.Array)
		for _, kid := range kids {
			ref, ok := kid.(types.IndirectRef)
			if !ok {
				continue
			}
			if err := walk(idOf(ref), attrs); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(idOf(rootRef), types.Dict{}); err != nil {
		return nil, err
	}
	return pages, nil
}

// inheritableKeys are the page attributes a page may take from its ancestors.
var inheritableKeys = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

func isPageTreeNode(d types.Dict) bool {
	if t := typeName(d); t != "" {
		return t == "Pages"
	}
	_, hasKids := d["Kids"]
	return hasKids
}

// typeName returns the /Type of a dictionary or stream, or "".
func typeName(obj types.Object) string {
	d, ok := asDict(obj)
	if !ok {
		return ""
	}
	if t, ok := d["Type"].(types.Name); ok {
		return string(t)
	}
	return ""
}

func asDict(obj types.Object) (types.Dict, bool) {
	switch o := obj.(type) {
	case types.Dict:
		return o, true
	case types.StreamDict:
		return o.Dict, true
	}
	return nil, false
}
