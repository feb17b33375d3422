package pdfmerge

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocuments is returned when a merge is requested with no input.
	ErrNoDocuments = errors.New("pdfmerge: no documents to merge")
	// ErrNoCatalog is returned when no input contributes a Catalog object.
	ErrNoCatalog = errors.New("pdfmerge: no catalog object in any document")
	// ErrNoPagesRoot is returned when no input contributes a Pages object.
	ErrNoPagesRoot = errors.New("pdfmerge: no pages object in any document")
	// ErrEncrypted is returned for encrypted inputs.
	ErrEncrypted = errors.New("pdfmerge: encrypted documents are not supported")
	// ErrMissingRoot is returned when the trailer names no root catalog.
	ErrMissingRoot = errors.New("pdfmerge: trailer has no root reference")
	// ErrPageTreeCycle is returned when a page tree node is its own ancestor.
	ErrPageTreeCycle = errors.New("pdfmerge: page tree cycle")
)

// ParseError reports an input buffer that could not be decoded.
type ParseError struct {
	// Index is the position of the buffer in the merge input, -1 when unknown.
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("pdfmerge: parse: %v", e.Err)
	}
	return fmt.Sprintf("pdfmerge: parse document %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsInputError reports whether err was caused by the input documents themselves.
// Such errors are permanent: merging the same bytes again fails the same way.
func IsInputError(err error) bool {
	var pe *ParseError
	switch {
	case errors.As(err, &pe),
		errors.Is(err, ErrNoDocuments),
		errors.Is(err, ErrNoCatalog),
		errors.Is(err, ErrNoPagesRoot),
		errors.Is(err, ErrEncrypted),
		errors.Is(err, ErrPageTreeCycle):
		return true
	}
	return false
}
