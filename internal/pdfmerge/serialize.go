package pdfmerge

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// defaultMinCompressSize is the smallest unfiltered stream worth deflating.
const defaultMinCompressSize = 128

// Options controls parsing and serialization.
type Options struct {
	// Parallelism bounds concurrent parsing in MergeBytes. Zero means one
	// goroutine per source.
	Parallelism int
	// Validate runs pdfcpu's relaxed validation on every source.
	Validate bool
	// CompressStreams deflates unfiltered streams when that makes them smaller.
	CompressStreams bool
	// MinCompressSize is the smallest stream considered for compression.
	MinCompressSize int
	// Optimize lets pdfcpu deduplicate fonts and resources shared by sources.
	Optimize bool
	// Configuration overrides NewConfiguration.
	Configuration *model.Configuration
}

// DefaultOptions returns the options the services run with.
func DefaultOptions() Options {
	return Options{
		CompressStreams: true,
		MinCompressSize: defaultMinCompressSize,
	}
}

func (o Options) configuration() *model.Configuration {
	if o.Configuration != nil {
		return o.Configuration
	}
	return NewConfiguration()
}

// Serialize writes doc as a complete PDF file. Objects reachable from the
// trailer are renumbered densely from 1 before writing; everything else is
// left out.
func Serialize(doc *Document, opts Options) ([]byte, error) {
	compacted, pageCount := compact(doc)
	minSize := opts.MinCompressSize
	if minSize <= 0 {
		minSize = defaultMinCompressSize
	}
	for id, obj := range compacted.Objects {
		sd, ok := obj.(types.StreamDict)
		if !ok {
			continue
		}
		if opts.CompressStreams {
			sd = compressStream(sd, minSize)
		}
		compacted.Objects[id] = withStreamLength(sd)
	}

	ctx, err := newWriteContext(compacted, opts.configuration())
	if err != nil {
		return nil, err
	}
	ctx.PageCount = pageCount

	if opts.Optimize {
		if err := api.OptimizeContext(ctx); err != nil {
			return nil, fmt.Errorf("optimize merged document: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write merged document: %w", err)
	}
	return buf.Bytes(), nil
}

// compact renumbers the objects reachable from Root and Info densely from 1,
// in ascending order of their current numbers, with generation 0. References
// to objects that are not in the table become null.
func compact(doc *Document) (*Document, int) {
	live := make(map[ObjectID]bool, len(doc.Objects))
	queue := []ObjectID{doc.Root}
	if doc.Info != nil {
		queue = append(queue, *doc.Info)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		obj, ok := doc.Objects[id]
		if !ok || live[id] {
			continue
		}
		live[id] = true
		forEachRef(obj, func(ref ObjectID) {
			if !live[ref] {
				queue = append(queue, ref)
			}
		})
	}

	mapping := make(map[ObjectID]ObjectID, len(live))
	for _, id := range doc.IDs() {
		if live[id] {
			mapping[id] = ObjectID{Number: len(mapping) + 1}
		}
	}
	remap := func(id ObjectID) (ObjectID, bool) {
		newID, ok := mapping[id]
		return newID, ok
	}

	out := NewDocument()
	for oldID, newID := range mapping {
		out.Add(newID, rewriteRefs(doc.Objects[oldID], remap))
	}
	out.Root = mapping[doc.Root]
	if doc.Info != nil {
		if info, ok := mapping[*doc.Info]; ok {
			out.Info = &info
		}
	}

	pages, _ := out.Pages()
	return out, len(pages)
}

// compressStream deflates an unfiltered stream, keeping the original when the
// encoding does not pay off.
func compressStream(sd types.StreamDict, minSize int) types.StreamDict {
	if len(sd.FilterPipeline) > 0 || sd.Dict["Filter"] != nil || len(sd.Raw) < minSize {
		return sd
	}

	enc := sd
	enc.Dict = sd.Dict.Clone().(types.Dict)
	enc.Content = sd.Raw
	enc.FilterPipeline = []types.PDFFilter{{Name: filter.Flate}}
	enc.Dict["Filter"] = types.Name(filter.Flate)
	if err := enc.Encode(); err != nil || len(enc.Raw) >= len(sd.Raw) {
		return sd
	}
	enc.Dict["Length"] = types.Integer(len(enc.Raw))
	streamLength := int64(len(enc.Raw))
	enc.StreamLength = &streamLength
	return enc
}

// withStreamLength makes /Length and the writer's stream length agree with
// the raw bytes. An indirect /Length is replaced by the direct value.
func withStreamLength(sd types.StreamDict) types.StreamDict {
	n := int64(len(sd.Raw))
	if sd.StreamLength != nil && *sd.StreamLength == n {
		if length, ok := sd.Dict["Length"].(types.Integer); ok && int64(length) == n {
			return sd
		}
	}
	sd.Dict = sd.Dict.Clone().(types.Dict)
	sd.Dict["Length"] = types.Integer(n)
	sd.StreamLength = &n
	return sd
}

// newWriteContext builds a pdfcpu context around an already compacted
// document so pdfcpu's writer can emit it.
func newWriteContext(doc *Document, conf *model.Configuration) (*model.Context, error) {
	ctx, err := model.NewContext(bytes.NewReader(nil), conf)
	if err != nil {
		return nil, fmt.Errorf("create write context: %w", err)
	}

	ctx.Table[0] = model.NewFreeHeadXRefTableEntry()
	for id, obj := range doc.Objects {
		ctx.Table[id.Number] = model.NewXRefTableEntryGen0(obj)
	}
	size := doc.MaxID + 1
	ctx.Size = &size

	ctx.Root = types.NewIndirectRef(doc.Root.Number, 0)
	if doc.Info != nil {
		ctx.Info = types.NewIndirectRef(doc.Info.Number, 0)
	}
	version := model.V17
	ctx.HeaderVersion = &version
	return ctx, nil
}
