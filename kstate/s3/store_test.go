package s3

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/go-logr/logr/testr"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/birdayz/kflow/kserde"
	"github.com/birdayz/kflow/kstate"
)

func TestObjectNames(t *testing.T) {
	b := &backend{prefix: "counts/"}
	keys := [][]byte{{0xff}, {0x01, 0x02}, {0x01}, []byte("a/b")}

	var names []string
	for _, k := range keys {
		name := b.objectName(k)
		names = append(names, name)

		got, err := b.keyOf(name)
		assert.NoError(t, err)
		assert.Equal(t, k, got)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"counts/01", "counts/0102", "counts/612f62", "counts/ff"}, names)
}

func TestOpenWithoutBucket(t *testing.T) {
	_, err := Open("localhost:9000", "", "p")
	assert.IsError(t, err, ErrNoBucket)
}

func startMinio(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			Cmd:          []string{"server", "/data"},
			ExposedPorts: []string{"9000/tcp"},
			WaitingFor:   wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	assert.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	assert.NoError(t, err)
	return fmt.Sprintf("%s:%d", host, port.Int())
}

func TestStore(t *testing.T) {
	endpoint := startMinio(t)
	ctx := context.Background()

	store, err := New(endpoint, "state", "wordcount/0", kserde.String, kserde.Int64,
		WithCredentials("minioadmin", "minioadmin"),
		WithLogger(testr.New(t)),
	)
	assert.NoError(t, err)

	assert.NoError(t, store.Set(ctx, "b", 2))
	assert.NoError(t, store.Set(ctx, "a", 1))
	assert.NoError(t, store.Delete(ctx, "b"))
	assert.NoError(t, store.Delete(ctx, "missing"))

	v, ok, err := store.Get(ctx, "a")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)

	_, ok, err = store.Get(ctx, "b")
	assert.NoError(t, err)
	assert.False(t, ok)

	// A second prefix in the same bucket is independent.
	other, err := Open(endpoint, "state", "wordcount/1", WithCredentials("minioadmin", "minioadmin"))
	assert.NoError(t, err)
	_, err = other.Get([]byte("a"))
	assert.IsError(t, err, kstate.ErrKeyNotFound)

	var keys []string
	for k := range store.All(ctx) {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"a"}, keys)
	assert.NoError(t, store.Close())
}
