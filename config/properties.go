package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/zipstage/errors"
	"github.com/c360/zipstage/natsclient"
)

// PropertyTarget receives property updates. *stage.Stage implements it.
type PropertyTarget interface {
	SetProperty(name string, value any) error
}

// TargetLookup resolves a stage instance name.
type TargetLookup func(stage string) (PropertyTarget, bool)

// PropertyKey returns the KV key holding a stage property.
func PropertyKey(stage, property string) string {
	return stage + "." + property
}

// PropertyManager applies stage property values stored in a NATS KV bucket.
// Keys are "<stage>.<property>" and values are JSON. Existing keys are
// applied on Start, later puts as they arrive.
type PropertyManager struct {
	store  *natsclient.KVStore
	lookup TargetLookup
	logger *slog.Logger

	watcher    jetstream.KeyWatcher
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	stopped    atomic.Bool

	applied  atomic.Int64
	rejected atomic.Int64
}

// NewPropertyManager creates or opens the configured bucket.
func NewPropertyManager(ctx context.Context, client *natsclient.Client, cfg PropertiesConfig,
	lookup TargetLookup, logger *slog.Logger,
) (*PropertyManager, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrNoConnection, "PropertyManager", "NewPropertyManager", "client check")
	}

	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "zipstage live stage properties",
		History:     uint8(cfg.History),
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "PropertyManager", "NewPropertyManager", "create bucket")
	}

	pm := newPropertyManager(lookup, logger)
	pm.store = client.NewKVStore(kv)
	pm.logger = pm.logger.With("bucket", cfg.Bucket)
	return pm, nil
}

func newPropertyManager(lookup TargetLookup, logger *slog.Logger) *PropertyManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PropertyManager{
		lookup: lookup,
		logger: logger.With("component", "property-manager"),
	}
}

// Start watches the bucket until ctx is done or Stop is called.
func (pm *PropertyManager) Start(ctx context.Context) error {
	watcher, err := pm.store.Watch(ctx, "*.*")
	if err != nil {
		return errors.WrapTransient(err, "PropertyManager", "Start", "watch bucket")
	}
	pm.watcher = watcher
	pm.shutdownCh = make(chan struct{})

	pm.wg.Add(1)
	go pm.processWatcher(ctx)

	pm.logger.Info("Watching stage properties")
	return nil
}

// Stop stops the watcher and waits for it up to timeout.
func (pm *PropertyManager) Stop(timeout time.Duration) error {
	if !pm.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if pm.shutdownCh != nil {
		close(pm.shutdownCh)
	}
	if pm.watcher != nil {
		_ = pm.watcher.Stop()
	}

	done := make(chan struct{})
	go func() {
		pm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout),
			"PropertyManager", "Stop", "graceful shutdown")
	}
}

// Put stores a property value, which every watching manager then applies.
func (pm *PropertyManager) Put(ctx context.Context, stage, property string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "PropertyManager", "Put", "marshal value")
	}
	if _, err := pm.store.Put(ctx, PropertyKey(stage, property), data); err != nil {
		return errors.WrapTransient(err, "PropertyManager", "Put", "kv put")
	}
	return nil
}

// Counts returns how many updates were applied and rejected.
func (pm *PropertyManager) Counts() (applied, rejected int64) {
	return pm.applied.Load(), pm.rejected.Load()
}

func (pm *PropertyManager) processWatcher(ctx context.Context) {
	defer pm.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pm.shutdownCh:
			return
		case entry, ok := <-pm.watcher.Updates():
			if !ok {
				return
			}
			// A nil entry marks the end of the initial values.
			if entry == nil {
				pm.logger.Debug("Initial properties applied")
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			if err := pm.handleUpdate(entry.Key(), entry.Value()); err != nil {
				pm.logger.Warn("Property update rejected", "key", entry.Key(), "error", err)
			}
		}
	}
}

// handleUpdate applies one KV value to its stage.
func (pm *PropertyManager) handleUpdate(key string, value []byte) error {
	if pm.stopped.Load() {
		return nil
	}

	stageName, property, ok := strings.Cut(key, ".")
	if !ok || stageName == "" || property == "" || strings.Contains(property, ".") {
		pm.rejected.Add(1)
		return errors.WrapInvalid(fmt.Errorf("%w: key %q", errors.ErrInvalidConfig, key),
			"PropertyManager", "handleUpdate", "parse key")
	}
	if len(value) > maxConfigSize {
		pm.rejected.Add(1)
		return errors.WrapInvalid(fmt.Errorf("value too large: %d bytes", len(value)),
			"PropertyManager", "handleUpdate", "size check")
	}

	var v any
	if err := json.Unmarshal(value, &v); err != nil {
		pm.rejected.Add(1)
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidData, err),
			"PropertyManager", "handleUpdate", "decode value")
	}

	target, found := pm.lookup(stageName)
	if !found {
		pm.rejected.Add(1)
		return errors.WrapInvalid(fmt.Errorf("%w: stage %q", errors.ErrConfigNotFound, stageName),
			"PropertyManager", "handleUpdate", "lookup stage")
	}
	if err := target.SetProperty(property, v); err != nil {
		pm.rejected.Add(1)
		return err
	}

	pm.applied.Add(1)
	pm.logger.Info("Property updated from KV", "stage", stageName, "property", property)
	return nil
}
