package collection

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/docstash/document"
	"github.com/hupe1980/docstash/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLTornAppend(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	ctx := t.Context()

	c, err := newJSONL(path, nil, ffs)
	require.NoError(t, err)

	keep, err := c.InsertOne(ctx, document.Document{"n": document.Int(1)})
	require.NoError(t, err)

	ffs.AddRule("docs.jsonl", fs.Fault{FailAfterBytes: 8})
	_, err = c.InsertOne(ctx, document.Document{"n": document.Int(2), "pad": document.String("xxxxxxxxxxxxxxxx")})
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, 1, c.Len())

	reloaded, err := NewJSONL(path, nil)
	require.NoError(t, err, "torn line must have been cut off")
	assert.Equal(t, 1, reloaded.Len())
	_, err = reloaded.FindOne(ctx, keep)
	assert.NoError(t, err)
}

func TestJSONLFailedRewriteKeepsRows(t *testing.T) {
	tests := []struct {
		name  string
		fault fs.Fault
	}{
		{"sync", fs.Fault{FailOnSync: true, FailAfterBytes: -1}},
		{"write", fs.Fault{FailAfterBytes: 0}},
		{"open", fs.Fault{FailOnOpen: true, FailAfterBytes: -1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ffs := fs.NewFaultyFS(nil)
			path := filepath.Join(t.TempDir(), "docs.jsonl")
			ctx := t.Context()

			c, err := newJSONL(path, nil, ffs)
			require.NoError(t, err)
			id, err := c.InsertOne(ctx, document.Document{"n": document.Int(1)})
			require.NoError(t, err)
			_, err = c.InsertOne(ctx, document.Document{"n": document.Int(2)})
			require.NoError(t, err)

			ffs.AddRule(".jsonl.tmp", tc.fault)
			err = c.DeleteOne(ctx, id)
			require.ErrorIs(t, err, fs.ErrInjected)
			assert.Equal(t, 2, c.Len())

			reloaded, err := NewJSONL(path, nil)
			require.NoError(t, err)
			assert.Equal(t, 2, reloaded.Len())
		})
	}
}

func TestJSONLFailedRename(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	ctx := t.Context()

	c, err := newJSONL(path, nil, ffs)
	require.NoError(t, err)
	id, err := c.InsertOne(ctx, document.Document{"n": document.Int(1)})
	require.NoError(t, err)

	ffs.AddRule("docs.jsonl", fs.Fault{FailOnRename: true, FailAfterBytes: -1})
	require.ErrorIs(t, c.DeleteOne(ctx, id), fs.ErrInjected)

	ffs.Clear()
	require.NoError(t, c.DeleteOne(ctx, id))
	assert.Equal(t, 0, c.Len())
}

func TestJSONLRejectsOversizedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.jsonl")
	ctx := t.Context()

	c, err := NewJSONL(path, nil)
	require.NoError(t, err)

	_, err = c.InsertOne(ctx, document.Document{"big": document.String(strings.Repeat("x", maxLineSize))})
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, c.Len())

	id, err := c.InsertOne(ctx, document.Document{"n": document.Int(1)})
	require.NoError(t, err)

	reloaded, err := NewJSONL(path, nil)
	require.NoError(t, err)
	_, err = reloaded.FindOne(ctx, id)
	assert.NoError(t, err)
}
