package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	fsstore "navisol/internal/infra/blob/fs"
	memorystore "navisol/internal/infra/blob/memory"
	s3store "navisol/internal/infra/blob/s3"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvDriver      = "NAVISOL_BLOB_DRIVER"
	EnvFSRoot      = "NAVISOL_BLOB_FS_ROOT"
	EnvS3Bucket    = "NAVISOL_BLOB_S3_BUCKET"
	EnvS3Region    = "NAVISOL_BLOB_S3_REGION"
	EnvS3Prefix    = "NAVISOL_BLOB_S3_PREFIX"
	EnvS3Endpoint  = "NAVISOL_BLOB_S3_ENDPOINT"
	EnvS3PathStyle = "NAVISOL_BLOB_S3_PATH_STYLE"
)

// S3Config is the bucket configuration for the s3 driver.
type S3Config = s3store.Config

// Config selects and configures a document store driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// ConfigFromEnv reads the NAVISOL_BLOB_* variables. The driver defaults to fs.
// Credentials for the s3 driver come from the standard AWS variables.
func ConfigFromEnv() Config {
	driver := Driver(strings.ToLower(strings.TrimSpace(os.Getenv(EnvDriver))))
	if driver == "" {
		driver = DriverFilesystem
	}
	return Config{
		Driver: driver,
		FSRoot: os.Getenv(EnvFSRoot),
		S3: S3Config{
			Bucket:    os.Getenv(EnvS3Bucket),
			Region:    os.Getenv(EnvS3Region),
			Prefix:    os.Getenv(EnvS3Prefix),
			Endpoint:  os.Getenv(EnvS3Endpoint),
			PathStyle: strings.EqualFold(os.Getenv(EnvS3PathStyle), "true"),
		},
	}
}

// Open selects a Store using ConfigFromEnv.
func Open(ctx context.Context) (Store, error) {
	return OpenConfig(ctx, ConfigFromEnv())
}

// OpenConfig constructs the Store described by cfg.
func OpenConfig(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("%s required for s3 driver", EnvS3Bucket)
		}
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewS3 returns a Store backed by an S3-compatible bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3store.New(ctx, cfg) }
