package collection

import (
	"context"
	"iter"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/docstash/document"
)

// Memory is an in-process collection.
//
// Rows are addressed by a uint32 slot. Top-level string and bool values are
// indexed in roaring bitmaps so equality filters on them narrow the scan
// before the remaining filters are evaluated.
type Memory struct {
	mu sync.RWMutex

	rows  []document.Document
	ids   map[document.ID]uint32
	live  *roaring.Bitmap
	index map[string]map[string]*roaring.Bitmap
}

// NewMemory creates an empty in-memory collection.
func NewMemory() *Memory {
	return &Memory{
		ids:   make(map[document.ID]uint32),
		live:  roaring.New(),
		index: make(map[string]map[string]*roaring.Bitmap),
	}
}

// InsertOne implements Collection.
func (m *Memory) InsertOne(ctx context.Context, doc document.Document) (document.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := NewID()
	for {
		if _, exists := m.ids[id]; !exists {
			break
		}
		id = NewID()
	}

	stored := withID(doc.Clone(), id)
	row := uint32(len(m.rows))
	m.rows = append(m.rows, stored)
	m.ids[id] = row
	m.live.Add(row)
	m.indexRow(row, stored)

	return id, nil
}

// Find implements Collection.
//
// Matches are snapshotted under the read lock and yielded afterwards, so the
// caller may use the collection while iterating.
func (m *Memory) Find(ctx context.Context, fs *document.FilterSet) iter.Seq2[document.Document, error] {
	if err := validateQuery(fs); err != nil {
		return errSeq(err)
	}
	if err := ctx.Err(); err != nil {
		return errSeq(err)
	}

	m.mu.RLock()
	candidates := m.candidates(fs)
	var out []document.Document
	it := candidates.Iterator()
	for it.HasNext() {
		doc := m.rows[it.Next()]
		if fs.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	m.mu.RUnlock()

	return sliceSeq(ctx, out)
}

// FindOne implements Collection.
func (m *Memory) FindOne(ctx context.Context, id document.ID) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.ids[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.rows[row].Clone(), nil
}

// DeleteOne implements Collection.
func (m *Memory) DeleteOne(ctx context.Context, id document.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.ids[id]
	if !ok {
		return ErrNotFound
	}
	m.unindexRow(row, m.rows[row])
	m.live.Remove(row)
	m.rows[row] = nil
	delete(m.ids, id)
	return nil
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// candidates returns the rows that can satisfy the indexed equality filters
// of fs. Caller must hold m.mu.
func (m *Memory) candidates(fs *document.FilterSet) *roaring.Bitmap {
	result := m.live.Clone()
	if fs == nil {
		return result
	}
	for _, f := range fs.Filters {
		if f.Operator != document.OpEqual || !indexable(f.Value) {
			continue
		}
		bm, ok := m.index[f.Key][f.Value.Key()]
		if !ok {
			return roaring.New()
		}
		result.And(bm)
		if result.IsEmpty() {
			return result
		}
	}
	return result
}

func (m *Memory) indexRow(row uint32, doc document.Document) {
	for k, v := range doc {
		if !indexable(v) {
			continue
		}
		values, ok := m.index[k]
		if !ok {
			values = make(map[string]*roaring.Bitmap)
			m.index[k] = values
		}
		bm, ok := values[v.Key()]
		if !ok {
			bm = roaring.New()
			values[v.Key()] = bm
		}
		bm.Add(row)
	}
}

func (m *Memory) unindexRow(row uint32, doc document.Document) {
	for k, v := range doc {
		if !indexable(v) {
			continue
		}
		values := m.index[k]
		bm, ok := values[v.Key()]
		if !ok {
			continue
		}
		bm.Remove(row)
		if bm.IsEmpty() {
			delete(values, v.Key())
		}
		if len(values) == 0 {
			delete(m.index, k)
		}
	}
}

func indexable(v document.Value) bool {
	return v.Kind == document.KindString || v.Kind == document.KindBool
}

var _ Collection = (*Memory)(nil)
