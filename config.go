package docstash

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/hupe1980/docstash/codec"
	"gopkg.in/yaml.v3"
)

// Collection backends.
const (
	BackendMongo    = "mongo"
	BackendBolt     = "bolt"
	BackendJSONL    = "jsonl"
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

// Blob store backends.
const (
	BlobGridFS = "gridfs"
	BlobLocal  = "local"
	BlobMemory = "memory"
	BlobS3     = "s3"
	BlobMinIO  = "minio"
)

// Defaults applied by Config.SetDefaults.
const (
	DefaultHost    = "localhost"
	DefaultPort    = 27017
	DefaultBackend = BackendMongo
	DefaultBlob    = BlobGridFS
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config describes the backends Open connects to.
type Config struct {
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`

	// Backend selects the document collection.
	Backend string `yaml:"backend"`

	// MongoDB connection.
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Dir holds bolt and jsonl collection files.
	Dir string `yaml:"dir"`
	// Codec encodes documents of the bolt, jsonl and dynamodb backends.
	Codec string `yaml:"codec"`

	DynamoTable string `yaml:"dynamo_table"`
	Region      string `yaml:"region"`

	// Compression applied to array payloads: none, lz4 or zstd.
	Compression string `yaml:"compression"`
	// SweepWorkers bounds concurrent blob deletes during Sweep.
	SweepWorkers int `yaml:"sweep_workers"`

	Blob BlobConfig `yaml:"blob"`
}

// BlobConfig describes the blob store.
type BlobConfig struct {
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`

	// CacheBytes enables an in-memory cache of recently read blobs.
	CacheBytes int64 `yaml:"cache_bytes"`
	// BytesPerSecond throttles blob store traffic.
	BytesPerSecond int64 `yaml:"bytes_per_second"`
}

// LoadConfig reads a YAML configuration file, applies DOCSTASH_*
// environment overrides and defaults, and validates the result.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DOCSTASH_* variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"DOCSTASH_DATABASE", &c.Database},
		{"DOCSTASH_COLLECTION", &c.Collection},
		{"DOCSTASH_BACKEND", &c.Backend},
		{"DOCSTASH_HOST", &c.Host},
		{"DOCSTASH_USERNAME", &c.Username},
		{"DOCSTASH_PASSWORD", &c.Password},
		{"DOCSTASH_DIR", &c.Dir},
		{"DOCSTASH_CODEC", &c.Codec},
		{"DOCSTASH_DYNAMO_TABLE", &c.DynamoTable},
		{"DOCSTASH_REGION", &c.Region},
		{"DOCSTASH_COMPRESSION", &c.Compression},
		{"DOCSTASH_BLOB_BACKEND", &c.Blob.Backend},
		{"DOCSTASH_BLOB_DIR", &c.Blob.Dir},
		{"DOCSTASH_BLOB_BUCKET", &c.Blob.Bucket},
		{"DOCSTASH_BLOB_PREFIX", &c.Blob.Prefix},
		{"DOCSTASH_BLOB_ENDPOINT", &c.Blob.Endpoint},
		{"DOCSTASH_BLOB_ACCESS_KEY", &c.Blob.AccessKey},
		{"DOCSTASH_BLOB_SECRET_KEY", &c.Blob.SecretKey},
	}
	for _, s := range strs {
		if v, ok := lookup(s.name); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"DOCSTASH_BLOB_CACHE_BYTES", &c.Blob.CacheBytes},
		{"DOCSTASH_BLOB_BYTES_PER_SECOND", &c.Blob.BytesPerSecond},
	}
	for _, i := range ints {
		if v, ok := lookup(i.name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, i.name, err)
			}
			*i.dst = n
		}
	}

	if v, ok := lookup("DOCSTASH_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTASH_PORT: %w", ErrInvalidConfig, err)
		}
		c.Port = n
	}
	if v, ok := lookup("DOCSTASH_SWEEP_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTASH_SWEEP_WORKERS: %w", ErrInvalidConfig, err)
		}
		c.SweepWorkers = n
	}
	if v, ok := lookup("DOCSTASH_BLOB_SECURE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DOCSTASH_BLOB_SECURE: %w", ErrInvalidConfig, err)
		}
		c.Blob.Secure = b
	}
	return nil
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Blob.Backend == "" {
		c.Blob.Backend = DefaultBlob
	}
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	var errs []error

	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.Collection == "" {
		errs = append(errs, errors.New("collection is required"))
	}

	switch c.Backend {
	case BackendMongo:
		if c.Port <= 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
		}
	case BackendBolt, BackendJSONL:
		if c.Dir == "" {
			errs = append(errs, fmt.Errorf("backend %s requires dir", c.Backend))
		}
	case BackendMemory:
	case BackendDynamoDB:
		if c.DynamoTable == "" {
			errs = append(errs, errors.New("backend dynamodb requires dynamo_table"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	switch c.Blob.Backend {
	case BlobGridFS:
		if c.Port <= 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
		}
	case BlobLocal:
		if c.Blob.Dir == "" {
			errs = append(errs, errors.New("blob backend local requires blob.dir"))
		}
	case BlobMemory:
	case BlobS3:
		if c.Blob.Bucket == "" {
			errs = append(errs, errors.New("blob backend s3 requires blob.bucket"))
		}
	case BlobMinIO:
		if c.Blob.Bucket == "" {
			errs = append(errs, errors.New("blob backend minio requires blob.bucket"))
		}
		if c.Blob.Endpoint == "" {
			errs = append(errs, errors.New("blob backend minio requires blob.endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob backend %q", c.Blob.Backend))
	}

	if _, err := codec.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	if c.SweepWorkers < 0 {
		errs = append(errs, errors.New("sweep_workers must not be negative"))
	}
	if c.Blob.CacheBytes < 0 || c.Blob.BytesPerSecond < 0 {
		errs = append(errs, errors.New("blob limits must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
