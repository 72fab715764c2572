// Package pebble persists operator state in a pebble database.
package pebble

import (
	"errors"
	"fmt"
	"iter"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/go-logr/logr"

	"github.com/birdayz/kflow/kserde"
	"github.com/birdayz/kflow/kstate"
)

type config struct {
	inMemory bool
	sync     bool
	log      logr.Logger
}

type Option func(*config)

// WithInMemory keeps the database in memory. Meant for tests.
var WithInMemory = func() Option {
	return func(c *config) {
		c.inMemory = true
	}
}

// WithSync makes every write durable before it returns.
var WithSync = func() Option {
	return func(c *config) {
		c.sync = true
	}
}

// WithLogger sets the logger used for entries that fail to decode.
var WithLogger = func(log logr.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

type backend struct {
	db    *pebble.DB
	write *pebble.WriteOptions
}

// Open opens or creates the database in dir.
func Open(dir string, opts ...Option) (kstate.Backend, error) {
	cfg := config{log: logr.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return open(dir, cfg)
}

func open(dir string, cfg config) (*backend, error) {
	popts := &pebble.Options{}
	if cfg.inMemory {
		popts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, fmt.Errorf("open pebble in %s: %w", dir, err)
	}
	return &backend{db: db, write: &pebble.WriteOptions{Sync: cfg.sync}}, nil
}

// New opens a pebble database in dir and returns it as a typed store.
// Entries iterate in the byte order of their encoded keys.
//
// Example:
//
//	counts, err := pebble.New("/var/lib/kflow/counts", kserde.String, kserde.Int64)
func New[K comparable, V any](dir string, keys kserde.Serde[K], values kserde.Serde[V], opts ...Option) (kstate.Store[K, V], error) {
	cfg := config{log: logr.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}
	b, err := open(dir, cfg)
	if err != nil {
		return nil, err
	}
	return kstate.NewTyped(b, keys, values, cfg.log), nil
}

func (b *backend) Get(k []byte) ([]byte, error) {
	v, closer, err := b.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, kstate.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	res := make([]byte, len(v))
	copy(res, v)
	return res, nil
}

func (b *backend) Set(k, v []byte) error {
	return b.db.Set(k, v, b.write)
}

func (b *backend) Delete(k []byte) error {
	return b.db.Delete(k, b.write)
}

func (b *backend) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		it := b.db.NewIter(nil)
		defer it.Close()

		for it.First(); it.Valid(); it.Next() {
			key := make([]byte, len(it.Key()))
			copy(key, it.Key())
			value := make([]byte, len(it.Value()))
			copy(value, it.Value())

			if !yield(key, value) {
				return
			}
		}
	}
}

func (b *backend) Flush() error {
	return b.db.Flush()
}

func (b *backend) Close() error {
	return b.db.Close()
}
