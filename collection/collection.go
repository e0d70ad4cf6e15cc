package collection

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/hupe1980/docstash/document"
	"github.com/maruel/ksid"
)

var (
	// ErrNotFound is returned when no document has the requested identifier.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidQuery is returned when a collection rejects a query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrClosed is returned by operations on a closed collection.
	ErrClosed = errors.New("collection closed")
	// ErrTooLarge is returned when an encoded document exceeds the
	// backend's size limit.
	ErrTooLarge = errors.New("document too large")
)

// Collection stores documents and answers FilterSet queries.
//
// Implementations must be safe for concurrent use.
type Collection interface {
	// InsertOne stores doc and returns the identifier it was assigned.
	// Any _id already present in doc is replaced.
	InsertOne(ctx context.Context, doc document.Document) (document.ID, error)
	// Find returns every document matching fs. A nil fs matches all documents.
	// Iteration stops after the first error.
	Find(ctx context.Context, fs *document.FilterSet) iter.Seq2[document.Document, error]
	// FindOne returns the document with the given identifier or ErrNotFound.
	FindOne(ctx context.Context, id document.ID) (document.Document, error)
	// DeleteOne removes the document with the given identifier or returns ErrNotFound.
	DeleteOne(ctx context.Context, id document.ID) error
}

// NewID returns a fresh time-sortable document identifier.
func NewID() document.ID {
	return document.ID(ksid.NewID().String())
}

// ValidID reports whether id was produced by NewID.
func ValidID(id document.ID) bool {
	_, err := ksid.Parse(string(id))
	return err == nil
}

// withID returns a shallow copy of doc carrying id under the reserved key.
func withID(doc document.Document, id document.ID) document.Document {
	out := make(document.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[document.KeyID] = document.String(string(id))
	return out
}

func validateQuery(fs *document.FilterSet) error {
	if err := fs.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return nil
}

// errSeq yields a single error.
func errSeq(err error) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		yield(nil, err)
	}
}

// sliceSeq yields docs in order, checking ctx between documents.
func sliceSeq(ctx context.Context, docs []document.Document) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}
