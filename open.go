package docstash

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/hupe1980/docstash/blobstore"
	"github.com/hupe1980/docstash/blobstore/gridfs"
	miniostore "github.com/hupe1980/docstash/blobstore/minio"
	s3store "github.com/hupe1980/docstash/blobstore/s3"
	"github.com/hupe1980/docstash/codec"
	"github.com/hupe1980/docstash/collection"
	ddbcollection "github.com/hupe1980/docstash/collection/dynamodb"
	mongocollection "github.com/hupe1980/docstash/collection/mongo"
	"github.com/hupe1980/docstash/resource"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
)

// connectTimeout bounds server selection of the MongoDB client.
const connectTimeout = 10 * time.Second

// Open builds the backends described by cfg and returns an adapter that
// owns them. Close releases every connection and file Open created.
//
// cfg is completed with defaults and validated first. optFns are applied
// after the options derived from cfg.
func Open(ctx context.Context, cfg Config, optFns ...Option) (*Adapter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &opener{cfg: cfg}
	a, err := o.open(ctx, optFns)
	if err != nil {
		return nil, errors.Join(err, o.closeAll())
	}
	return a, nil
}

type opener struct {
	cfg     Config
	client  *mongo.Client
	closers []func() error
}

func (o *opener) open(ctx context.Context, optFns []Option) (*Adapter, error) {
	docCodec, _ := codec.ByName(o.cfg.Codec)
	compression, _ := codec.ParseCompression(o.cfg.Compression)

	coll, err := o.openCollection(ctx, docCodec)
	if err != nil {
		return nil, err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   o.cfg.Blob.CacheBytes,
		MaxWorkers:         int64(o.cfg.SweepWorkers),
		IOLimitBytesPerSec: o.cfg.Blob.BytesPerSecond,
	})

	blobs, err := o.openBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	if o.cfg.Blob.BytesPerSecond > 0 {
		blobs = blobstore.NewThrottledStore(blobs, rc)
	}
	if o.cfg.Blob.CacheBytes > 0 {
		blobs = blobstore.NewCachingStore(blobs, o.cfg.Blob.CacheBytes, rc)
	}

	opts := []Option{
		WithCompression(compression),
		WithResourceController(rc),
	}
	for _, fn := range o.closers {
		opts = append(opts, WithCloser(fn))
	}
	opts = append(opts, optFns...)

	return New(coll, blobs, opts...), nil
}

func (o *opener) openCollection(ctx context.Context, docCodec codec.Codec) (collection.Collection, error) {
	switch o.cfg.Backend {
	case BackendMongo:
		client, err := o.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		return mongocollection.New(client.Database(o.cfg.Database).Collection(o.cfg.Collection)), nil
	case BackendBolt:
		c, err := collection.OpenBolt(filepath.Join(o.cfg.Dir, o.cfg.Database+".db"), o.cfg.Collection, docCodec)
		if err != nil {
			return nil, fmt.Errorf("open bolt collection: %w", err)
		}
		o.closers = append(o.closers, c.Close)
		return c, nil
	case BackendJSONL:
		c, err := collection.NewJSONL(filepath.Join(o.cfg.Dir, o.cfg.Database, o.cfg.Collection+".jsonl"), docCodec)
		if err != nil {
			return nil, fmt.Errorf("open jsonl collection: %w", err)
		}
		return c, nil
	case BackendMemory:
		return collection.NewMemory(), nil
	case BackendDynamoDB:
		awsCfg, err := o.loadAWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		name := o.cfg.Database + "/" + o.cfg.Collection
		return ddbcollection.NewFromConfig(awsCfg, o.cfg.DynamoTable, name, ddbcollection.WithCodec(docCodec)), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, o.cfg.Backend)
	}
}

func (o *opener) openBlobStore(ctx context.Context) (blobstore.BlobStore, error) {
	b := o.cfg.Blob
	switch b.Backend {
	case BlobGridFS:
		client, err := o.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		s, err := gridfs.Open(client.Database(o.cfg.Database))
		if err != nil {
			return nil, err
		}
		return s, nil
	case BlobLocal:
		s, err := blobstore.NewLocalStore(b.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BlobMemory:
		return blobstore.NewMemoryStore(), nil
	case BlobS3:
		s3Opts := []s3store.Option{s3store.WithPrefix(b.Prefix)}
		if o.cfg.Region != "" {
			s3Opts = append(s3Opts, s3store.WithRegion(o.cfg.Region))
		}
		if b.Endpoint != "" {
			s3Opts = append(s3Opts, s3store.WithEndpoint(b.Endpoint))
		}
		s, err := s3store.New(ctx, b.Bucket, s3Opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BlobMinIO:
		client, err := miniostore.Dial(b.Endpoint, b.AccessKey, b.SecretKey, b.Secure)
		if err != nil {
			return nil, err
		}
		s := miniostore.NewStore(client, b.Bucket, b.Prefix)
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio: ensure bucket %s: %w", b.Bucket, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown blob backend %q", ErrInvalidConfig, b.Backend)
	}
}

// mongoClient connects once and shares the client between the collection
// and GridFS.
func (o *opener) mongoClient(ctx context.Context) (*mongo.Client, error) {
	if o.client != nil {
		return o.client, nil
	}

	client, err := mongo.Connect(ctx, o.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	o.closers = append(o.closers, func() error {
		return client.Disconnect(context.Background())
	})

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	o.client = client
	return client, nil
}

func (o *opener) clientOptions() *mongooptions.ClientOptions {
	uri := "mongodb://" + net.JoinHostPort(o.cfg.Host, strconv.Itoa(o.cfg.Port))
	opts := mongooptions.Client().ApplyURI(uri).SetServerSelectionTimeout(connectTimeout)
	if o.cfg.Username != "" {
		opts.SetAuth(mongooptions.Credential{
			Username: o.cfg.Username,
			Password: o.cfg.Password,
		})
	}
	return opts
}

func (o *opener) loadAWSConfig(ctx context.Context) (aws.Config, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return awsCfg, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// closeAll releases everything opened so far, newest first.
func (o *opener) closeAll() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
