// Package suite starts a throwaway Redis container for repository tests.
package suite

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	image       = "redis"
	imageTag    = "7-alpine"
	exposedPort = "6379/tcp"

	// containerTTL is in seconds, as docker expects it.
	containerTTL   uint = 180
	startupTimeout      = 90 * time.Second
)

type Suite struct {
	*testing.T
	Logger *slog.Logger

	Storage *redis.Client
}

// New connects to a fresh Redis container. The test is skipped in -short mode
// and when no docker daemon answers.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	if testing.Short() {
		t.Skip("redis suite needs docker, skipped in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	t.Cleanup(cancel)

	pool := dockerPool(t)
	container := startContainer(t, pool)
	client := connect(ctx, t, pool, container)

	return ctx, &Suite{
		T:       t,
		Logger:  slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})),
		Storage: client,
	}
}

func dockerPool(t *testing.T) *dockertest.Pool {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker client: %v", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker daemon unreachable: %v", err)
	}

	pool.MaxWait = startupTimeout

	return pool
}

func startContainer(t *testing.T, pool *dockertest.Pool) *dockertest.Resource {
	t.Helper()

	container, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        imageTag,
	}, func(host *docker.HostConfig) {
		host.AutoRemove = true
		host.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("start %s:%s: %v", image, imageTag, err)
	}

	// the daemon kills it even if the test binary dies first
	_ = container.Expire(containerTTL)

	t.Cleanup(func() {
		if err := pool.Purge(container); err != nil {
			t.Errorf("purge %s: %v", container.Container.Name, err)
		}
	})

	return container
}

func connect(ctx context.Context, t *testing.T, pool *dockertest.Pool, container *dockertest.Resource) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: container.GetHostPort(exposedPort)})
	t.Cleanup(func() { _ = client.Close() })

	if err := pool.Retry(func() error { return client.Ping(ctx).Err() }); err != nil {
		t.Fatalf("redis never answered: %v", err)
	}

	return client
}

// Flush empties the database between subtests.
func (that *Suite) Flush(ctx context.Context) {
	that.Helper()

	if err := that.Storage.FlushDB(ctx).Err(); err != nil {
		that.Fatalf("flush redis: %v", err)
	}
}
