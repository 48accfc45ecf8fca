package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// RedisAddress starts a Redis container shared by every test in the process
// and returns its host:port. Tests are skipped when no container runtime is
// available. The container itself is removed by the testcontainers reaper
// when the test process exits.
func RedisAddress(t *testing.T) string {
	t.Helper()

	redisOnce.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:latest",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor: wait.ForAll(
					wait.ForListeningPort("6379/tcp"),
					wait.ForLog("Ready to accept connections"),
				),
			},
			Started: true,
		})
		if err != nil {
			redisErr = err
			return
		}

		addr, err := redisC.Endpoint(ctx, "")
		if err != nil {
			redisErr = err
			return
		}
		redisAddr = addr
	})

	if redisErr != nil {
		t.Skipf("redis container unavailable: %v", redisErr)
	}
	return redisAddr
}
