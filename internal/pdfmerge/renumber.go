package pdfmerge

import "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

// renumber shifts every object number of doc, and every reference to one, so
// that the document's lowest number becomes next. It returns the first number
// free for the following document. Generations and relative structure are
// kept; only the offset changes. References to objects doc does not own
// become null, so they cannot land on another document's range.
func renumber(doc *Document, next int) int {
	if len(doc.Objects) == 0 {
		return next
	}

	lowest := 0
	for id := range doc.Objects {
		if lowest == 0 || id.Number < lowest {
			lowest = id.Number
		}
	}
	offset := next - lowest

	move := func(id ObjectID) ObjectID {
		return ObjectID{Number: id.Number + offset, Generation: id.Generation}
	}
	shift := func(id ObjectID) (ObjectID, bool) {
		if _, ok := doc.Objects[id]; !ok {
			return ObjectID{}, false
		}
		return move(id), true
	}

	shifted := make(map[ObjectID]types.Object, len(doc.Objects))
	for id, obj := range doc.Objects {
		shifted[move(id)] = rewriteRefs(obj, shift)
	}
	doc.Objects = shifted
	doc.Root = move(doc.Root)
	if doc.Info != nil {
		info := move(*doc.Info)
		doc.Info = &info
	}
	doc.MaxID += offset
	return doc.MaxID + 1
}

// rewriteRefs returns a copy of obj with every indirect reference replaced
// using fn. Containers are copied rather than modified, so values shared
// between several objects are rewritten exactly once per owner. A reference fn
// rejects becomes null: dictionary entries are dropped, array elements are
// set to nil.
func rewriteRefs(obj types.Object, fn func(ObjectID) (ObjectID, bool)) types.Object {
	switch o := obj.(type) {
	case types.IndirectRef:
		id, ok := fn(idOf(o))
		if !ok {
			return nil
		}
		return id.Ref()
	case types.Dict:
		return rewriteDict(o, fn)
	case types.Array:
		a := make(types.Array, len(o))
		for i, value := range o {
			a[i] = rewriteRefs(value, fn)
		}
		return a
	case types.StreamDict:
		o.Dict = rewriteDict(o.Dict, fn)
		return o
	}
	return obj
}

func rewriteDict(d types.Dict, fn func(ObjectID) (ObjectID, bool)) types.Dict {
	out := make(types.Dict, len(d))
	for key, value := range d {
		if value = rewriteRefs(value, fn); value != nil {
			out[key] = value
		}
	}
	return out
}

// forEachRef calls fn for every indirect reference inside obj.
func forEachRef(obj types.Object, fn func(ObjectID)) {
	switch o := obj.(type) {
	case types.IndirectRef:
		fn(idOf(o))
	case types.Dict:
		for _, value := range o {
			forEachRef(value, fn)
		}
	case types.Array:
		for _, value := range o {
			forEachRef(value, fn)
		}
	case types.StreamDict:
		forEachRef(o.Dict, fn)
	}
}
