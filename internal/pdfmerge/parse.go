package pdfmerge

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// NewConfiguration returns the pdfcpu configuration used for reading and
// writing merge documents.
func NewConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true
	return conf
}

// Parse decodes a single PDF into a Document. Every in-use object of the
// cross-reference table is loaded; object and xref streams are dropped since
// they only package objects that are loaded individually.
func Parse(data []byte, conf *model.Configuration) (*Document, error) {
	return parse(data, conf, false)
}

func parse(data []byte, conf *model.Configuration, validate bool) (*Document, error) {
	if conf == nil {
		conf = NewConfiguration()
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}
	if ctx.Encrypt != nil {
		return nil, &ParseError{Index: -1, Err: ErrEncrypted}
	}
	if ctx.Root == nil {
		return nil, &ParseError{Index: -1, Err: ErrMissingRoot}
	}
	if validate {
		if err := api.ValidateContext(ctx); err != nil {
			return nil, &ParseError{Index: -1, Err: err}
		}
	}

	doc := NewDocument()
	for nr, entry := range ctx.Table {
		if nr == 0 || entry == nil || entry.Free {
			continue
		}
		gen := 0
		if entry.Generation != nil {
			gen = *entry.Generation
		}
		obj, err := ctx.Dereference(*types.NewIndirectRef(nr, gen))
		if err != nil {
			return nil, &ParseError{Index: -1, Err: fmt.Errorf("object %d %d: %w", nr, gen, err)}
		}
		if obj == nil || isContainerStream(obj) {
			continue
		}
		doc.Add(ObjectID{Number: nr, Generation: gen}, obj)
	}

	doc.Root = idOf(*ctx.Root)
	if ctx.Info != nil {
		info := idOf(*ctx.Info)
		if _, ok := doc.Objects[info]; ok {
			doc.Info = &info
		}
	}
	return doc, nil
}

// isContainerStream reports object and xref streams. Anything else pdfcpu
// keeps for bookkeeping is unreachable from the catalog and gets compacted away.
func isContainerStream(obj types.Object) bool {
	sd, ok := obj.(types.StreamDict)
	if !ok {
		return false
	}
	t := typeName(sd)
	return t == "ObjStm" || t == "XRef"
}
