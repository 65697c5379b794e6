package mqttclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mosquittoConf = "listener 1883\nallow_anonymous true\n"

func brokerURL(t *testing.T) string {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}

	ctx := context.Background()
	conf, err := os.CreateTemp(t.TempDir(), "mosquitto-*.conf")
	require.NoError(t, err)
	_, err = conf.WriteString(mosquittoConf)
	require.NoError(t, err)
	require.NoError(t, conf.Close())

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			Files: []testcontainers.ContainerFile{{
				HostFilePath:      conf.Name(),
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
			WaitingFor: wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	url := brokerURL(t)
	ctx := context.Background()

	c, err := New(Config{Broker: url, QoS: 1})
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	defer c.Close(ctx)

	got := make(chan []byte, 1)
	require.NoError(t, c.Subscribe(ctx, "zipstage.test.in", func(_ context.Context, data []byte) {
		got <- data
	}))
	require.NoError(t, c.Publish(ctx, "zipstage.test.in", []byte("frame")))

	select {
	case data := <-got:
		require.Equal(t, []byte("frame"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}
