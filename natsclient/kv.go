package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/zipstage/errors"
)

// ErrKVKeyNotFound is returned for a missing key.
var ErrKVKeyNotFound = stderrors.New("kv: key not found")

// KVEntry is a value with the revision it was written at.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOption configures a KVStore.
type KVOption func(*KVStore)

// WithKVTimeout bounds each bucket operation. Zero leaves ctx as is.
func WithKVTimeout(d time.Duration) KVOption {
	return func(kv *KVStore) { kv.timeout = d }
}

// WithMaxValueSize rejects larger values on Put. Zero disables the check.
func WithMaxValueSize(n int) KVOption {
	return func(kv *KVStore) { kv.maxValueSize = n }
}

// KVStore is a bucket with per-operation timeouts and classified errors.
// Failed bucket calls are transient, oversized values invalid.
type KVStore struct {
	bucket       jetstream.KeyValue
	timeout      time.Duration
	maxValueSize int
	logger       *slog.Logger
}

// NewKVStore wraps bucket. Values are limited to 64 KiB and operations to
// the client's request timeout unless overridden.
func (m *Client) NewKVStore(bucket jetstream.KeyValue, opts ...KVOption) *KVStore {
	kv := &KVStore{
		bucket:       bucket,
		timeout:      m.requestTimeout,
		maxValueSize: 64 << 10,
		logger:       m.logger.With("bucket", bucket.Bucket()),
	}
	for _, opt := range opts {
		opt(kv)
	}
	return kv
}

func (kv *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, kv.timeout)
}

func (kv *KVStore) fail(err error, method, key string) error {
	if isKVNotFound(err) {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", ErrKVKeyNotFound, key), "KVStore", method, "lookup key")
	}
	return errors.WrapTransient(err, "KVStore", method, fmt.Sprintf("bucket %s key %s", kv.bucket.Bucket(), key))
}

// Get reads the latest value of key.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		return nil, kv.fail(err, "Get", key)
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put writes value under key and returns the new revision.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if kv.maxValueSize > 0 && len(value) > kv.maxValueSize {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: value of %d bytes exceeds %d", errors.ErrInvalidData, len(value), kv.maxValueSize),
			"KVStore", "Put", "size check")
	}

	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, kv.fail(err, "Put", key)
	}
	kv.logger.Debug("KV put", "key", key, "revision", rev)
	return rev, nil
}

// Delete places a delete marker on key.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		return kv.fail(err, "Delete", key)
	}
	return nil
}

// Watch streams the current values of keys matching pattern, then a nil
// entry, then every later change. It runs until ctx is done or the watcher
// is stopped, so no operation timeout applies.
func (kv *KVStore) Watch(ctx context.Context, pattern string) (jetstream.KeyWatcher, error) {
	w, err := kv.bucket.Watch(ctx, pattern)
	if err != nil {
		return nil, kv.fail(err, "Watch", pattern)
	}
	return w, nil
}

func isKVNotFound(err error) bool {
	return stderrors.Is(err, ErrKVKeyNotFound) || stderrors.Is(err, jetstream.ErrKeyNotFound)
}
