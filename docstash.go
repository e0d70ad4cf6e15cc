package docstash

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/hupe1980/docstash/blobstore"
	"github.com/hupe1980/docstash/collection"
	"github.com/hupe1980/docstash/document"
)

// Adapter saves documents to a collection and moves their array payloads
// to a blob store.
//
// On Save every NDArray value is encoded, written to the blob store and
// replaced by a Ref marker. The references are recorded, in encounter order,
// under document.KeyBlobRefs. Load reverses the substitution so callers get
// back the document they saved plus the reserved keys.
//
// Keys are visited in sorted order, descending into nested maps depth-first.
// Arrays nested in sequences cannot be externalized and fail with a
// SerializationError.
//
// An Adapter is safe for concurrent use if its backends are.
type Adapter struct {
	coll   collection.Collection
	blobs  blobstore.BlobStore
	opts   options
	closed atomic.Bool
}

// New creates an adapter over coll and blobs. The adapter does not own the
// backends unless closers are registered with WithCloser.
func New(coll collection.Collection, blobs blobstore.BlobStore, optFns ...Option) *Adapter {
	return &Adapter{
		coll:  coll,
		blobs: blobs,
		opts:  applyOptions(optFns),
	}
}

// Collection returns the document collection.
func (a *Adapter) Collection() collection.Collection {
	return a.coll
}

// BlobStore returns the blob store.
func (a *Adapter) BlobStore() blobstore.BlobStore {
	return a.blobs
}

// Save stores doc and returns its identifier.
//
// The caller's document is not modified. Blobs written before a failure are
// left behind; Sweep reclaims them.
func (a *Adapter) Save(ctx context.Context, doc document.Document) (document.ID, error) {
	if a.closed.Load() {
		return "", ErrClosed
	}

	start := time.Now()
	id, blobs, err := a.save(ctx, doc)
	elapsed := time.Since(start)

	a.opts.metricsCollector.RecordSave(blobs, elapsed, err)
	a.opts.logger.LogSave(ctx, id, blobs, elapsed, err)
	return id, err
}

func (a *Adapter) save(ctx context.Context, doc document.Document) (document.ID, int, error) {
	var refs []document.Value
	stored, err := a.externalize(ctx, doc, "", &refs)
	if err != nil {
		return "", len(refs), err
	}
	if refs == nil {
		refs = []document.Value{}
	}

	stored[document.KeyInsertedAt] = document.Time(a.opts.clock().UTC().Truncate(time.Millisecond))
	stored[document.KeyBlobRefs] = document.Array(refs)

	id, err := a.coll.InsertOne(ctx, stored)
	if err != nil {
		return "", len(refs), fmt.Errorf("%w: insert document: %w", ErrStoreWrite, err)
	}
	return id, len(refs), nil
}

// SaveMany saves docs in order. It stops at the first failure and returns
// the identifiers saved so far.
func (a *Adapter) SaveMany(ctx context.Context, docs []document.Document) ([]document.ID, error) {
	ids := make([]document.ID, 0, len(docs))
	for i, doc := range docs {
		id, err := a.Save(ctx, doc)
		if err != nil {
			return ids, fmt.Errorf("document %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// externalize returns a copy of doc with every NDArray replaced by a Ref
// marker, appending the new references to refs.
func (a *Adapter) externalize(ctx context.Context, doc document.Document, prefix string, refs *[]document.Value) (document.Document, error) {
	out := make(document.Document, len(doc)+2)
	for _, k := range doc.Keys() {
		v := doc[k]
		path := joinPath(prefix, k)

		switch v.Kind {
		case document.KindNDArray:
			ref, err := a.putArray(ctx, path, v.N)
			if err != nil {
				return nil, err
			}
			*refs = append(*refs, document.String(string(ref)))
			out[k] = document.Ref(string(ref))
		case document.KindMap:
			m, err := a.externalize(ctx, v.M, path, refs)
			if err != nil {
				return nil, err
			}
			out[k] = document.Map(m)
		default:
			if err := checkStorable(v); err != nil {
				return nil, &SerializationError{Key: path, cause: err}
			}
			out[k] = v
		}
	}
	return out, nil
}

func (a *Adapter) putArray(ctx context.Context, path string, arr *document.NDArray) (blobstore.Ref, error) {
	if arr == nil {
		return "", &SerializationError{Key: path, cause: errors.New("nil array")}
	}
	data, err := a.opts.arrayCodec.Encode(arr)
	if err != nil {
		return "", &SerializationError{Key: path, cause: err}
	}
	ref, err := a.blobs.Put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: put blob for key %q: %w", ErrStoreWrite, path, err)
	}
	return ref, nil
}

// checkStorable rejects values that cannot be stored in the collection as is.
func checkStorable(v document.Value) error {
	switch v.Kind {
	case document.KindInvalid:
		return errors.New("invalid value")
	case document.KindNDArray:
		return errors.New("arrays inside sequences are not supported")
	case document.KindArray:
		for _, item := range v.A {
			if err := checkStorable(item); err != nil {
				return err
			}
		}
	case document.KindMap:
		for _, item := range v.M {
			if err := checkStorable(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load returns the documents matching query with their arrays restored.
// A nil query matches every document. Iteration stops after the first error.
func (a *Adapter) Load(ctx context.Context, query *document.FilterSet, optFns ...LoadOption) iter.Seq2[document.Document, error] {
	lo := applyLoadOptions(optFns)

	return func(yield func(document.Document, error) bool) {
		if a.closed.Load() {
			yield(nil, ErrClosed)
			return
		}

		n := 0
		var loadErr error
		defer func() {
			a.opts.logger.LogLoad(ctx, query, n, loadErr)
		}()

		for doc, err := range a.coll.Find(ctx, query) {
			start := time.Now()
			if err != nil {
				loadErr = translateQueryError(err)
				a.opts.metricsCollector.RecordLoad(0, time.Since(start), loadErr)
				yield(nil, loadErr)
				return
			}

			blobs := 0
			if !lo.withoutArrays {
				doc, blobs, err = a.resolve(ctx, doc)
				if err != nil {
					loadErr = err
					a.opts.metricsCollector.RecordLoad(blobs, time.Since(start), err)
					yield(nil, err)
					return
				}
			}
			a.opts.metricsCollector.RecordLoad(blobs, time.Since(start), nil)

			n++
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// LoadAll collects Load into a slice.
func (a *Adapter) LoadAll(ctx context.Context, query *document.FilterSet, optFns ...LoadOption) ([]document.Document, error) {
	var docs []document.Document
	for doc, err := range a.Load(ctx, query, optFns...) {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadByIDs loads the documents with the given identifiers. The result has
// one entry per identifier; missing documents are nil.
func (a *Adapter) LoadByIDs(ctx context.Context, ids []document.ID, optFns ...LoadOption) ([]document.Document, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	lo := applyLoadOptions(optFns)

	docs := make([]document.Document, len(ids))
	for i, id := range ids {
		start := time.Now()
		doc, err := a.coll.FindOne(ctx, id)
		if errors.Is(err, collection.ErrNotFound) {
			continue
		}
		if err != nil {
			err = translateFindOneError(err)
			a.opts.metricsCollector.RecordLoad(0, time.Since(start), err)
			return nil, err
		}

		blobs := 0
		if !lo.withoutArrays {
			doc, blobs, err = a.resolve(ctx, doc)
			if err != nil {
				a.opts.metricsCollector.RecordLoad(blobs, time.Since(start), err)
				return nil, err
			}
		}
		a.opts.metricsCollector.RecordLoad(blobs, time.Since(start), nil)
		docs[i] = doc
	}
	return docs, nil
}

// resolve replaces the Ref markers listed in the document's reference list
// with the arrays they point to. It returns the number of blobs read.
func (a *Adapter) resolve(ctx context.Context, doc document.Document) (document.Document, int, error) {
	refs := doc.BlobRefs()
	if len(refs) == 0 {
		return doc, 0, nil
	}

	r := resolver{
		a:     a,
		docID: idString(doc),
		refs:  make(map[string]struct{}, len(refs)),
	}
	for _, ref := range refs {
		r.refs[ref] = struct{}{}
	}

	out, err := r.walk(ctx, doc, "")
	return out, r.read, err
}

type resolver struct {
	a     *Adapter
	docID string
	refs  map[string]struct{}
	read  int
}

func (r *resolver) walk(ctx context.Context, doc document.Document, prefix string) (document.Document, error) {
	out := make(document.Document, len(doc))
	for _, k := range doc.Keys() {
		v := doc[k]
		path := joinPath(prefix, k)

		switch v.Kind {
		case document.KindRef:
			if _, listed := r.refs[v.S]; !listed {
				out[k] = v
				continue
			}
			arr, err := r.fetch(ctx, path, blobstore.Ref(v.S))
			if err != nil {
				return nil, err
			}
			out[k] = document.NDArrayValue(arr)
		case document.KindMap:
			m, err := r.walk(ctx, v.M, path)
			if err != nil {
				return nil, err
			}
			out[k] = document.Map(m)
		default:
			out[k] = v
		}
	}
	return out, nil
}

func (r *resolver) fetch(ctx context.Context, path string, ref blobstore.Ref) (*document.NDArray, error) {
	var (
		arr       *document.NDArray
		decodeErr error
	)
	err := blobstore.View(ctx, r.a.blobs, ref, func(data []byte) error {
		arr, decodeErr = r.a.opts.arrayCodec.Decode(data)
		return decodeErr
	})
	switch {
	case err == nil:
		r.read++
		return arr, nil
	case decodeErr != nil:
		return nil, &SerializationError{Key: path, cause: decodeErr}
	case errors.Is(err, blobstore.ErrNotFound):
		return nil, &BlobNotFoundError{Ref: ref, DocumentID: r.docID, cause: err}
	default:
		return nil, fmt.Errorf("%w: get blob %s: %w", ErrStoreRead, ref, err)
	}
}

// Delete removes the document and every blob it references.
//
// Blob deletion is best effort: blobs that are already gone are ignored,
// other failures are collected and returned after the document itself has
// been deleted.
func (a *Adapter) Delete(ctx context.Context, id document.ID) error {
	if a.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	blobs, err := a.delete(ctx, id)
	a.opts.metricsCollector.RecordDelete(blobs, time.Since(start), err)
	a.opts.logger.LogDelete(ctx, id, blobs, err)
	return err
}

func (a *Adapter) delete(ctx context.Context, id document.ID) (int, error) {
	doc, err := a.coll.FindOne(ctx, id)
	if err != nil {
		return 0, translateFindOneError(err)
	}

	deleted := 0
	var blobErrs []error
	for _, ref := range doc.BlobRefs() {
		err := a.blobs.Delete(ctx, blobstore.Ref(ref))
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, blobstore.ErrNotFound):
		default:
			blobErrs = append(blobErrs, fmt.Errorf("delete blob %s: %w", ref, err))
		}
	}

	if err := a.coll.DeleteOne(ctx, id); err != nil {
		if errors.Is(err, collection.ErrNotFound) {
			return deleted, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		blobErrs = append(blobErrs, fmt.Errorf("delete document: %w", err))
	}

	if len(blobErrs) > 0 {
		return deleted, fmt.Errorf("%w: %w", ErrStoreWrite, errors.Join(blobErrs...))
	}
	return deleted, nil
}

// Close runs the registered closers in reverse order. It is safe to call
// more than once.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}

	var errs []error
	for i := len(a.opts.closers) - 1; i >= 0; i-- {
		if err := a.opts.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func idString(doc document.Document) string {
	id, _ := doc.ID()
	return string(id)
}
