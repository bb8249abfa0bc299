// Package s3 provides a block device stored as one S3 object per block.
// Blocks that were never written read as zeroes.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/marmos91/dittoaccel/pkg/bdev"
)

// Config describes an S3 device.
type Config struct {
	Name      string `mapstructure:"name" validate:"required" yaml:"name" json:"name"`
	BlockSize uint32 `mapstructure:"block_size" validate:"required,min=512" yaml:"block_size" json:"block_size"`
	NumBlocks uint64 `mapstructure:"num_blocks" validate:"required,min=1" yaml:"num_blocks" json:"num_blocks"`

	// Bucket is the S3 bucket name.
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket" json:"bucket"`

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string `mapstructure:"region" yaml:"region,omitempty" json:"region,omitempty"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// KeyPrefix is prepended to every block key. Defaults to "<name>/".
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style" json:"force_path_style"`
}

// Client is the subset of the S3 API used by the device.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Device is an S3-backed block device.
type Device struct {
	client    Client
	cfg       Config
	uuid      string
	keyPrefix string

	mu     sync.RWMutex
	closed bool
}

// New creates a device on an existing client.
func New(client Client, cfg Config) (*Device, error) {
	if cfg.Name == "" || cfg.BlockSize == 0 || cfg.NumBlocks == 0 {
		return nil, fmt.Errorf("%w: s3 bdev needs a name, block size and block count", bdev.ErrInvalidRange)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bdev %s: bucket is required", cfg.Name)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = cfg.Name + "/"
	}
	return &Device{client: client, cfg: cfg, uuid: uuid.NewString(), keyPrefix: prefix}, nil
}

// NewFromConfig loads the AWS configuration and creates the client.
func NewFromConfig(ctx context.Context, cfg Config) (*Device, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return New(client, cfg)
}

func (d *Device) Name() string        { return d.cfg.Name }
func (d *Device) UUID() string        { return d.uuid }
func (d *Device) BlockSize() uint32   { return d.cfg.BlockSize }
func (d *Device) NumBlocks() uint64   { return d.cfg.NumBlocks }
func (d *Device) ProductName() string { return "S3 disk" }

func (d *Device) objectKey(lba uint64) string {
	return fmt.Sprintf("%sblock-%016x", d.keyPrefix, lba)
}

func (d *Device) checkOpen() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return bdev.ErrClosed
	}
	return nil
}

func (d *Device) ReadBlocks(ctx context.Context, lba uint64, buf []byte) error {
	n, err := bdev.CheckRange(d, lba, buf)
	if err != nil {
		return err
	}
	if err := d.checkOpen(); err != nil {
		return err
	}

	bs := uint64(d.cfg.BlockSize)
	for i := uint64(0); i < n; i++ {
		if err := d.readBlock(ctx, lba+i, buf[i*bs:(i+1)*bs]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) readBlock(ctx context.Context, lba uint64, dst []byte) error {
	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.objectKey(lba)),
	})
	if err != nil {
		if isNotFoundError(err) {
			clear(dst)
			return nil
		}
		return fmt.Errorf("s3 get object: %w", err)
	}
	defer resp.Body.Close()

	n, err := io.ReadFull(resp.Body, dst)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read s3 object body: %w", err)
	}
	clear(dst[n:])
	return nil
}

func (d *Device) WriteBlocks(ctx context.Context, lba uint64, buf []byte) error {
	n, err := bdev.CheckRange(d, lba, buf)
	if err != nil {
		return err
	}
	if err := d.checkOpen(); err != nil {
		return err
	}

	bs := uint64(d.cfg.BlockSize)
	for i := uint64(0); i < n; i++ {
		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(d.cfg.Bucket),
			Key:    aws.String(d.objectKey(lba + i)),
			Body:   bytes.NewReader(buf[i*bs : (i+1)*bs]),
		})
		if err != nil {
			return fmt.Errorf("s3 put object: %w", err)
		}
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (d *Device) HealthCheck(ctx context.Context) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if _, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.cfg.Bucket)}); err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

// Close marks the device closed. Objects are left in the bucket.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func isNotFoundError(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

var _ bdev.Device = (*Device)(nil)
