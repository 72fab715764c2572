// Package s3 stores operator state as objects in an S3 compatible bucket,
// one object per key. It suits small, slowly changing state that must
// outlive the machine the graph runs on.
package s3

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/birdayz/kflow/kserde"
	"github.com/birdayz/kflow/kstate"
)

var (
	ErrNoBucket = errors.New("no bucket")
)

type config struct {
	accessKey string
	secretKey string
	secure    bool
	timeout   time.Duration
	log       logr.Logger
}

type Option func(*config)

var WithCredentials = func(accessKey, secretKey string) Option {
	return func(c *config) {
		c.accessKey = accessKey
		c.secretKey = secretKey
	}
}

// WithTLS connects over https.
var WithTLS = func() Option {
	return func(c *config) {
		c.secure = true
	}
}

// WithTimeout bounds every request. Defaults to 10s.
var WithTimeout = func(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

var WithLogger = func(log logr.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

type backend struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration

	// err is the first error hit while iterating; All cannot return it.
	err error
}

// Open creates the bucket if needed and returns a backend storing its keys
// under prefix.
func Open(endpoint, bucket, prefix string, opts ...Option) (kstate.Backend, error) {
	b, _, err := open(endpoint, bucket, prefix, opts)
	return b, err
}

// New opens a typed store. See Open.
func New[K comparable, V any](endpoint, bucket, prefix string, keys kserde.Serde[K], values kserde.Serde[V], opts ...Option) (kstate.Store[K, V], error) {
	b, cfg, err := open(endpoint, bucket, prefix, opts)
	if err != nil {
		return nil, err
	}
	return kstate.NewTyped(b, keys, values, cfg.log), nil
}

func open(endpoint, bucket, prefix string, opts []Option) (*backend, config, error) {
	cfg := config{
		timeout: 10 * time.Second,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if bucket == "" {
		return nil, cfg, ErrNoBucket
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretKey, ""),
		Secure: cfg.secure,
	})
	if err != nil {
		return nil, cfg, fmt.Errorf("create s3 client: %w", err)
	}

	b := &backend{
		client:  client,
		bucket:  bucket,
		prefix:  strings.TrimSuffix(prefix, "/") + "/",
		timeout: cfg.timeout,
	}

	ctx, cancel := b.ctx()
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, cfg, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, cfg, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		cfg.log.Info("Created bucket", "bucket", bucket)
	}
	return b, cfg, nil
}

func (b *backend) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

// objectName hex encodes the key, which keeps listing order equal to key
// order.
func (b *backend) objectName(k []byte) string {
	return b.prefix + hex.EncodeToString(k)
}

func (b *backend) keyOf(name string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(name, b.prefix))
}

func (b *backend) Get(k []byte) ([]byte, error) {
	ctx, cancel := b.ctx()
	defer cancel()
	return b.read(ctx, b.objectName(k))
}

func (b *backend) read(ctx context.Context, name string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.mapErr(err)
	}
	defer obj.Close()

	v, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.mapErr(err)
	}
	return v, nil
}

func (b *backend) mapErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return kstate.ErrKeyNotFound
	}
	return err
}

func (b *backend) Set(k, v []byte) error {
	ctx, cancel := b.ctx()
	defer cancel()
	_, err := b.client.PutObject(ctx, b.bucket, b.objectName(k), bytes.NewReader(v), int64(len(v)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (b *backend) Delete(k []byte) error {
	ctx, cancel := b.ctx()
	defer cancel()
	return b.client.RemoveObject(ctx, b.bucket, b.objectName(k), minio.RemoveObjectOptions{})
}

// All lists the prefix and fetches every object. Errors end the iteration
// and are reported by the next Flush.
func (b *backend) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for info := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: b.prefix, Recursive: true}) {
			if info.Err != nil {
				b.err = info.Err
				return
			}
			k, err := b.keyOf(info.Key)
			if err != nil {
				b.err = fmt.Errorf("object %s: %w", info.Key, err)
				return
			}
			rctx, rcancel := context.WithTimeout(ctx, b.timeout)
			v, err := b.read(rctx, info.Key)
			rcancel()
			if errors.Is(err, kstate.ErrKeyNotFound) {
				// Deleted while listing.
				continue
			}
			if err != nil {
				b.err = err
				return
			}
			if !yield(k, v) {
				return
			}
		}
	}
}

// Flush reports the last iteration error. Writes are synchronous.
func (b *backend) Flush() error {
	err := b.err
	b.err = nil
	return err
}

func (b *backend) Close() error {
	return b.Flush()
}
