package docstash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/docstash/blobstore"
	"github.com/hupe1980/docstash/collection"
	"github.com/hupe1980/docstash/document"
	"github.com/hupe1980/docstash/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name     string
		cfg      func(dir string) Config
		wantColl any
	}{
		{
			name: "memory",
			cfg: func(string) Config {
				return Config{Database: "db", Collection: "c", Backend: BackendMemory, Blob: BlobConfig{Backend: BlobMemory}}
			},
			wantColl: &collection.Memory{},
		},
		{
			name: "jsonl+local",
			cfg: func(dir string) Config {
				return Config{
					Database: "db", Collection: "c", Backend: BackendJSONL, Dir: dir,
					Compression: "lz4",
					Blob:        BlobConfig{Backend: BlobLocal, Dir: filepath.Join(dir, "blobs")},
				}
			},
			wantColl: &collection.JSONL{},
		},
		{
			name: "bolt+local",
			cfg: func(dir string) Config {
				return Config{
					Database: "db", Collection: "c", Backend: BackendBolt, Dir: dir, Codec: "json",
					Blob: BlobConfig{Backend: BlobLocal, Dir: filepath.Join(dir, "blobs"), CacheBytes: 1 << 20, BytesPerSecond: 1 << 30},
				}
			},
			wantColl: &collection.Bolt{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := t.Context()
			a, err := Open(ctx, tc.cfg(t.TempDir()))
			require.NoError(t, err)
			defer func() { assert.NoError(t, a.Close()) }()

			assert.IsType(t, tc.wantColl, a.Collection())

			doc := document.Document{
				"name": document.String("opened"),
				"data": document.NDArrayValue(testutil.NewRNG(9).Float64Array(10, 10)),
			}
			id, err := a.Save(ctx, doc)
			require.NoError(t, err)

			got := loadOne(t, a, id)
			assert.True(t, doc.Equal(stripReserved(got)))

			require.NoError(t, a.Delete(ctx, id))
			docs, err := a.LoadAll(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, docs)
		})
	}
}

func TestOpenWrapsBlobStore(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(t.Context(), Config{
		Database: "db", Collection: "c", Backend: BackendMemory,
		Blob: BlobConfig{Backend: BlobLocal, Dir: dir, CacheBytes: 1 << 20, BytesPerSecond: 1 << 30},
	})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	assert.IsType(t, &blobstore.CachingStore{}, a.BlobStore())
}

func TestOpenPersists(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Database: "db", Collection: "c", Backend: BackendBolt, Dir: dir,
		Blob: BlobConfig{Backend: BlobLocal, Dir: filepath.Join(dir, "blobs")},
	}
	ctx := t.Context()

	a, err := Open(ctx, cfg)
	require.NoError(t, err)
	id, err := a.Save(ctx, experiment(t))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(dir, "db.db"))
	require.NoError(t, err)

	a, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	got := loadOne(t, a, id)
	assert.True(t, experiment(t).Equal(stripReserved(got)))
}

func TestOpenInvalidConfig(t *testing.T) {
	_, err := Open(t.Context(), Config{Backend: BackendMemory, Blob: BlobConfig{Backend: BlobMemory}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenClosesOnFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	cfg := Config{
		Database: "db", Collection: "c", Backend: BackendBolt, Dir: dir,
		Blob: BlobConfig{Backend: BlobLocal, Dir: filepath.Join(blocker, "blobs")},
	}
	_, err := Open(t.Context(), cfg)
	require.Error(t, err)

	// The bolt file must have been released: a second open would time out
	// on the file lock otherwise.
	db, err := collection.OpenBolt(filepath.Join(dir, "db.db"), "c", nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenerClientOptions(t *testing.T) {
	o := &opener{cfg: Config{Host: "db.internal", Port: 27018}}
	opts := o.clientOptions()
	require.NoError(t, opts.Validate())
	assert.Equal(t, []string{"db.internal:27018"}, opts.Hosts)
	assert.Nil(t, opts.Auth)
	require.NotNil(t, opts.ServerSelectionTimeout)
	assert.Equal(t, connectTimeout, *opts.ServerSelectionTimeout)

	o.cfg.Username, o.cfg.Password = "admin", "secret"
	opts = o.clientOptions()
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "admin", opts.Auth.Username)
	assert.Equal(t, "secret", opts.Auth.Password)
}
