package natsclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/zipstage/errors"
)

func integrationClient(t *testing.T, opts ...TestOption) *TestClient {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}
	return NewTestClient(t, opts...)
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	tc := integrationClient(t)
	ctx := context.Background()

	got := make(chan []byte, 1)
	require.NoError(t, tc.Client.Subscribe(ctx, "zipstage.test.in", func(_ context.Context, data []byte) {
		got <- data
	}))
	require.NoError(t, tc.Client.GetConnection().Flush())

	require.NoError(t, tc.Client.Publish(ctx, "zipstage.test.in", []byte("frame")))

	select {
	case data := <-got:
		assert.Equal(t, "frame", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	rtt, err := tc.Client.RTT()
	require.NoError(t, err)
	assert.Positive(t, rtt)
}

func TestIntegration_KeyValue(t *testing.T) {
	tc := integrationClient(t, WithKVBuckets("zipstage_props"))
	ctx := context.Background()

	bucket, err := tc.Client.GetKeyValueBucket(ctx, "zipstage_props")
	require.NoError(t, err)

	again, err := tc.CreateKVBucket(ctx, "zipstage_props")
	require.NoError(t, err, "creating an existing bucket returns it")
	assert.Equal(t, bucket.Bucket(), again.Bucket())

	kv := tc.Client.NewKVStore(bucket)
	rev, err := kv.Put(ctx, "overlay.alpha", []byte("0.25"))
	require.NoError(t, err)
	assert.Positive(t, rev)

	entry, err := kv.Get(ctx, "overlay.alpha")
	require.NoError(t, err)
	assert.Equal(t, "0.25", string(entry.Value))

	require.NoError(t, kv.Delete(ctx, "overlay.alpha"))
	_, err = kv.Get(ctx, "overlay.alpha")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	small := tc.Client.NewKVStore(bucket, WithMaxValueSize(4), WithKVTimeout(time.Second))
	_, err = small.Put(ctx, "overlay.alpha", []byte("0.125"))
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	_, err = tc.Client.GetKeyValueBucket(ctx, "missing")
	assert.Error(t, err)
}
