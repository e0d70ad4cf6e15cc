// Package mongo provides a collection.Collection backed by a MongoDB
// collection.
//
// Documents are stored as native BSON with sorted keys. Identifiers are
// ObjectIDs, exposed as their hex form. FilterSets are translated to MongoDB
// query operators so filtering runs on the server.
//
// Usage:
//
//	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
//	coll := docmongo.New(client.Database("lab").Collection("experiments"))
package mongo

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/hupe1980/docstash/collection"
	"github.com/hupe1980/docstash/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
)

// Collection implements collection.Collection on a MongoDB collection.
type Collection struct {
	coll *driver.Collection
}

// New wraps coll. The caller keeps ownership of the client.
func New(coll *driver.Collection) *Collection {
	return &Collection{coll: coll}
}

// Unwrap returns the underlying driver collection.
func (c *Collection) Unwrap() *driver.Collection {
	return c.coll
}

// InsertOne implements collection.Collection.
func (c *Collection) InsertOne(ctx context.Context, doc document.Document) (document.ID, error) {
	body, err := toBSON(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	oid := primitive.NewObjectID()
	body = append(bson.D{{Key: "_id", Value: oid}}, body...)

	res, err := c.coll.InsertOne(ctx, body)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		oid = id
	}
	return document.ID(oid.Hex()), nil
}

// Find implements collection.Collection.
func (c *Collection) Find(ctx context.Context, fs *document.FilterSet) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		if err := fs.Validate(); err != nil {
			yield(nil, fmt.Errorf("%w: %w", collection.ErrInvalidQuery, err))
			return
		}

		filter, err := translate(fs)
		if errors.Is(err, errNoMatch) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("%w: %w", collection.ErrInvalidQuery, err))
			return
		}

		cursor, err := c.coll.Find(ctx, filter)
		if err != nil {
			yield(nil, fmt.Errorf("failed to query documents: %w", err))
			return
		}
		defer func() {
			_ = cursor.Close(context.WithoutCancel(ctx))
		}()

		for cursor.Next(ctx) {
			var raw bson.D
			if err := cursor.Decode(&raw); err != nil {
				yield(nil, fmt.Errorf("failed to decode document: %w", err))
				return
			}
			doc, err := fromBSON(raw)
			if err != nil {
				yield(nil, fmt.Errorf("failed to decode document: %w", err))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to iterate documents: %w", err))
		}
	}
}

// FindOne implements collection.Collection.
//
// Identifiers that are not ObjectIDs cannot exist and yield ErrNotFound.
func (c *Collection) FindOne(ctx context.Context, id document.ID) (document.Document, error) {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return nil, collection.ErrNotFound
	}

	var raw bson.D
	if err := c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&raw); err != nil {
		if errors.Is(err, driver.ErrNoDocuments) {
			return nil, collection.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	doc, err := fromBSON(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// DeleteOne implements collection.Collection.
func (c *Collection) DeleteOne(ctx context.Context, id document.ID) error {
	oid, err := primitive.ObjectIDFromHex(string(id))
	if err != nil {
		return collection.ErrNotFound
	}

	res, err := c.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return collection.ErrNotFound
	}
	return nil
}

var _ collection.Collection = (*Collection)(nil)
