// Package dynamodb provides a collection.Collection backed by an Amazon
// DynamoDB table.
//
// Several collections can share one table. Table schema:
//   - Partition key: collection (string) - the collection name
//   - Sort key: id (string) - the document identifier
//   - body (binary) - the document encoded with a codec.Codec
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name docstash \
//	  --attribute-definitions AttributeName=collection,AttributeType=S AttributeName=id,AttributeType=S \
//	  --key-schema AttributeName=collection,KeyType=HASH AttributeName=id,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/docstash/codec"
	"github.com/hupe1980/docstash/collection"
	"github.com/hupe1980/docstash/document"
)

const (
	attrCollection = "collection"
	attrID         = "id"
	attrBody       = "body"

	// maxInsertAttempts bounds identifier regeneration on key collisions.
	maxInsertAttempts = 3
)

// Client is the interface for DynamoDB operations.
type Client interface {
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error)
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *ddb.DeleteItemInput, optFns ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
}

// Options configures the collection.
type Options struct {
	Codec codec.Codec
	// PageSize caps the items per Query request. Zero lets DynamoDB decide.
	PageSize int32
}

// Option configures the collection.
type Option func(*Options)

// WithCodec sets the document body codec.
func WithCodec(c codec.Codec) Option {
	return func(o *Options) {
		o.Codec = c
	}
}

// WithPageSize sets the Query page size.
func WithPageSize(n int32) Option {
	return func(o *Options) {
		o.PageSize = n
	}
}

// Collection implements collection.Collection on a DynamoDB table.
type Collection struct {
	client    Client
	tableName string
	name      string
	opts      Options
}

// New creates a collection stored under partition name of tableName.
func New(client Client, tableName, name string, optFns ...Option) *Collection {
	opts := Options{Codec: codec.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	return &Collection{
		client:    client,
		tableName: tableName,
		name:      name,
		opts:      opts,
	}
}

// NewFromConfig creates a collection using a DynamoDB client built from cfg.
func NewFromConfig(cfg aws.Config, tableName, name string, optFns ...Option) *Collection {
	return New(ddb.NewFromConfig(cfg), tableName, name, optFns...)
}

// InsertOne implements collection.Collection.
//
// The put is conditional on the identifier being unused.
func (c *Collection) InsertOne(ctx context.Context, doc document.Document) (document.ID, error) {
	for range maxInsertAttempts {
		id := collection.NewID()

		stored := doc.Clone()
		stored[document.KeyID] = document.String(string(id))
		body, err := c.opts.Codec.Marshal(stored)
		if err != nil {
			return "", fmt.Errorf("failed to encode document: %w", err)
		}

		_, err = c.client.PutItem(ctx, &ddb.PutItemInput{
			TableName: aws.String(c.tableName),
			Item: map[string]types.AttributeValue{
				attrCollection: &types.AttributeValueMemberS{Value: c.name},
				attrID:         &types.AttributeValueMemberS{Value: string(id)},
				attrBody:       &types.AttributeValueMemberB{Value: body},
			},
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		})
		if err == nil {
			return id, nil
		}

		var condErr *types.ConditionalCheckFailedException
		if !errors.As(err, &condErr) {
			return "", fmt.Errorf("failed to put item to DynamoDB: %w", err)
		}
	}
	return "", fmt.Errorf("failed to allocate a unique id after %d attempts", maxInsertAttempts)
}

// Find implements collection.Collection.
//
// A query selecting a single identifier is served by GetItem. Anything else
// pages through the collection partition and evaluates fs on each document.
func (c *Collection) Find(ctx context.Context, fs *document.FilterSet) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		if err := fs.Validate(); err != nil {
			yield(nil, fmt.Errorf("%w: %w", collection.ErrInvalidQuery, err))
			return
		}

		if id, ok := singleID(fs); ok {
			doc, err := c.FindOne(ctx, id)
			if errors.Is(err, collection.ErrNotFound) {
				return
			}
			yield(doc, err)
			return
		}

		input := &ddb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("#c = :c"),
			ExpressionAttributeNames: map[string]string{
				"#c": attrCollection,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: c.name},
			},
		}
		if c.opts.PageSize > 0 {
			input.Limit = aws.Int32(c.opts.PageSize)
		}

		for {
			resp, err := c.client.Query(ctx, input)
			if err != nil {
				yield(nil, fmt.Errorf("failed to query DynamoDB: %w", err))
				return
			}

			for _, item := range resp.Items {
				doc, err := c.decode(item)
				if err != nil {
					yield(nil, err)
					return
				}
				if !fs.Matches(doc) {
					continue
				}
				if !yield(doc, nil) {
					return
				}
			}

			if len(resp.LastEvaluatedKey) == 0 {
				return
			}
			input.ExclusiveStartKey = resp.LastEvaluatedKey
		}
	}
}

// FindOne implements collection.Collection.
func (c *Collection) FindOne(ctx context.Context, id document.ID) (document.Document, error) {
	resp, err := c.client.GetItem(ctx, &ddb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if len(resp.Item) == 0 {
		return nil, collection.ErrNotFound
	}
	return c.decode(resp.Item)
}

// DeleteOne implements collection.Collection.
func (c *Collection) DeleteOne(ctx context.Context, id document.ID) error {
	_, err := c.client.DeleteItem(ctx, &ddb.DeleteItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.key(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return collection.ErrNotFound
		}
		return fmt.Errorf("failed to delete item from DynamoDB: %w", err)
	}
	return nil
}

func (c *Collection) key(id document.ID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrCollection: &types.AttributeValueMemberS{Value: c.name},
		attrID:         &types.AttributeValueMemberS{Value: string(id)},
	}
}

func (c *Collection) decode(item map[string]types.AttributeValue) (document.Document, error) {
	body, ok := item[attrBody].(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New("invalid body attribute in DynamoDB")
	}
	var doc document.Document
	if err := c.opts.Codec.Unmarshal(body.Value, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// singleID reports whether fs selects exactly one identifier.
func singleID(fs *document.FilterSet) (document.ID, bool) {
	if fs == nil || len(fs.Filters) != 1 {
		return "", false
	}
	f := fs.Filters[0]
	if f.Key != document.KeyID || f.Operator != document.OpEqual {
		return "", false
	}
	s, ok := f.Value.AsString()
	if !ok {
		return "", false
	}
	return document.ID(s), true
}

var _ collection.Collection = (*Collection)(nil)
