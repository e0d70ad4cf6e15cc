package docstash

import (
	"context"
	"iter"

	"github.com/hupe1980/docstash/blobstore"
	"github.com/hupe1980/docstash/collection"
	"github.com/hupe1980/docstash/document"
	"github.com/stretchr/testify/mock"
)

// faultyStore wraps a BlobStore and injects failures.
type faultyStore struct {
	blobstore.BlobStore
	putErr    error
	getErr    error
	deleteErr error
	getData   []byte // served instead of the stored bytes when set
	puts      int
}

func (s *faultyStore) Put(ctx context.Context, data []byte) (blobstore.Ref, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.puts++
	return s.BlobStore.Put(ctx, data)
}

func (s *faultyStore) Get(ctx context.Context, ref blobstore.Ref) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.getData != nil {
		return s.getData, nil
	}
	return s.BlobStore.Get(ctx, ref)
}

func (s *faultyStore) Delete(ctx context.Context, ref blobstore.Ref) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.BlobStore.Delete(ctx, ref)
}

// mockCollection is a testify mock of collection.Collection.
type mockCollection struct {
	mock.Mock
}

func (m *mockCollection) InsertOne(ctx context.Context, doc document.Document) (document.ID, error) {
	args := m.Called(ctx, doc)
	return args.Get(0).(document.ID), args.Error(1)
}

func (m *mockCollection) Find(ctx context.Context, fs *document.FilterSet) iter.Seq2[document.Document, error] {
	args := m.Called(ctx, fs)
	return args.Get(0).(iter.Seq2[document.Document, error])
}

func (m *mockCollection) FindOne(ctx context.Context, id document.ID) (document.Document, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).(document.Document)
	return doc, args.Error(1)
}

func (m *mockCollection) DeleteOne(ctx context.Context, id document.ID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var _ collection.Collection = (*mockCollection)(nil)
