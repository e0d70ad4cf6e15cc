package collection

import (
	"bufio"
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/docstash/codec"
	"github.com/hupe1980/docstash/document"
	"github.com/hupe1980/docstash/internal/fs"
)

// maxLineSize bounds a single encoded document in a JSONL file.
const maxLineSize = 64 << 20

// JSONL stores a collection as a JSON-lines file with a full in-memory cache.
//
// Inserts append a line. Deletes rewrite the whole file.
type JSONL struct {
	path  string
	codec codec.Codec
	fsys  fs.FileSystem
	mu    sync.RWMutex

	rows []document.Document
}

// NewJSONL opens the collection stored at path, creating parent directories
// as needed, and loads every row. A nil codec selects codec.Default.
func NewJSONL(path string, c codec.Codec) (*JSONL, error) {
	return newJSONL(path, c, fs.Default)
}

func newJSONL(path string, c codec.Codec, fsys fs.FileSystem) (*JSONL, error) {
	if c == nil {
		c = codec.Default
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	table := &JSONL{
		path:  path,
		codec: c,
		fsys:  fsys,
	}

	if err := table.load(); err != nil {
		return nil, err
	}

	return table, nil
}

// Path returns the backing file.
func (t *JSONL) Path() string {
	return t.path
}

func (t *JSONL) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := t.fsys.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rows = []document.Document{}
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var rows []document.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row document.Document
		if err := t.codec.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		rows = append(rows, row)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}

	t.rows = rows
	return nil
}

// InsertOne implements Collection.
func (t *JSONL) InsertOne(ctx context.Context, doc document.Document) (document.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := NewID()
	for t.indexOf(id) >= 0 {
		id = NewID()
	}
	row := withID(doc.Clone(), id)

	data, err := codec.AppendLine(t.codec, nil, row)
	if err != nil {
		return "", fmt.Errorf("failed to marshal row: %w", err)
	}
	// load could not read the line back.
	if len(data) > maxLineSize {
		return "", fmt.Errorf("%w: row is %d bytes, limit %d", ErrTooLarge, len(data)-1, maxLineSize-1)
	}

	f, err := t.fsys.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat table file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		// Cut off the torn line so the file still loads.
		if terr := t.fsys.Truncate(t.path, info.Size()); terr != nil {
			return "", fmt.Errorf("failed to write row: %w (truncate: %v)", err, terr)
		}
		return "", fmt.Errorf("failed to write row: %w", err)
	}

	t.rows = append(t.rows, row)
	return id, nil
}

// Find implements Collection.
func (t *JSONL) Find(ctx context.Context, fs *document.FilterSet) iter.Seq2[document.Document, error] {
	if err := validateQuery(fs); err != nil {
		return errSeq(err)
	}

	t.mu.RLock()
	var out []document.Document
	for _, row := range t.rows {
		if fs.Matches(row) {
			out = append(out, row.Clone())
		}
	}
	t.mu.RUnlock()

	return sliceSeq(ctx, out)
}

// FindOne implements Collection.
func (t *JSONL) FindOne(ctx context.Context, id document.ID) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if i := t.indexOf(id); i >= 0 {
		return t.rows[i].Clone(), nil
	}
	return nil, ErrNotFound
}

// DeleteOne implements Collection.
func (t *JSONL) DeleteOne(ctx context.Context, id document.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}

	rows := make([]document.Document, 0, len(t.rows)-1)
	rows = append(rows, t.rows[:i]...)
	rows = append(rows, t.rows[i+1:]...)

	if err := t.replace(rows); err != nil {
		return err
	}
	t.rows = rows
	return nil
}

// Len returns the number of rows.
func (t *JSONL) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// All returns an iterator over clones of all rows.
func (t *JSONL) All() iter.Seq[document.Document] {
	return func(yield func(document.Document) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// replace rewrites the file with rows. Caller must hold t.mu.
func (t *JSONL) replace(rows []document.Document) error {
	tmp := t.path + ".tmp"
	f, err := t.fsys.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = t.fsys.Remove(tmp)
	}()

	writer := bufio.NewWriter(f)
	var buf []byte
	for _, row := range rows {
		buf, err = codec.AppendLine(t.codec, buf[:0], row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		if _, err := writer.Write(buf); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync table file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	if err := t.fsys.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}

// indexOf returns the row position of id or -1. Caller must hold t.mu.
func (t *JSONL) indexOf(id document.ID) int {
	for i, row := range t.rows {
		if got, ok := row.ID(); ok && got == id {
			return i
		}
	}
	return -1
}

var _ Collection = (*JSONL)(nil)
