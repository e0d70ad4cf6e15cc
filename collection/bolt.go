package collection

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/hupe1980/docstash/codec"
	"github.com/hupe1980/docstash/document"
	"go.etcd.io/bbolt"
)

// Bolt stores a collection in a bbolt bucket keyed by document identifier.
type Bolt struct {
	db     *bbolt.DB
	bucket []byte
	codec  codec.Codec
	owned  bool
}

// OpenBolt opens (or creates) the bbolt file at path and returns the
// collection stored in bucket name. Close releases the file.
func OpenBolt(path, name string, c codec.Codec) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	b, err := NewBolt(db, name, c)
	if err != nil {
		db.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// NewBolt returns the collection stored in bucket name of an open database.
// The caller keeps ownership of db. A nil codec selects codec.Default.
func NewBolt(db *bbolt.DB, name string, c codec.Codec) (*Bolt, error) {
	if name == "" {
		return nil, fmt.Errorf("bolt collection: empty bucket name")
	}
	if c == nil {
		c = codec.Default
	}

	bucket := []byte(name)
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Bolt{db: db, bucket: bucket, codec: c}, nil
}

// InsertOne implements Collection.
func (s *Bolt) InsertOne(ctx context.Context, doc document.Document) (document.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var id document.ID
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		id = NewID()
		for b.Get([]byte(id)) != nil {
			id = NewID()
		}
		data, err := s.codec.Marshal(withID(doc, id))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Find implements Collection.
//
// Documents are yielded in key order, which for generated identifiers is
// insertion order.
func (s *Bolt) Find(ctx context.Context, fs *document.FilterSet) iter.Seq2[document.Document, error] {
	if err := validateQuery(fs); err != nil {
		return errSeq(err)
	}

	var out []document.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc document.Document
			if err := s.codec.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode document %s: %w", k, err)
			}
			if fs.Matches(doc) {
				out = append(out, doc)
			}
			return nil
		})
	})
	if err != nil {
		return errSeq(err)
	}

	return sliceSeq(ctx, out)
}

// FindOne implements Collection.
func (s *Bolt) FindOne(ctx context.Context, id document.ID) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc document.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(s.bucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return s.codec.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteOne implements Collection.
func (s *Bolt) DeleteOne(ctx context.Context, id document.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Close closes the database if it was opened by OpenBolt.
func (s *Bolt) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

var _ Collection = (*Bolt)(nil)
