//go:build integration

package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisSpacer_Integration_ConcurrentProcesses(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	interval := 25 * time.Millisecond
	ctx := context.Background()

	// One spacer per simulated process, all on the same key
	const processes = 4
	const perProcess = 3

	var (
		mu     sync.Mutex
		stamps []time.Time
		wg     sync.WaitGroup
	)

	for p := 0; p < processes; p++ {
		s := NewRedisSpacer(redisClient, "", interval, zerolog.Nop())
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProcess; i++ {
				if err := s.Wait(ctx); err != nil {
					t.Errorf("Wait() error = %v", err)
					return
				}
				mu.Lock()
				stamps = append(stamps, time.Now())
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	total := processes * perProcess
	if len(stamps) != total {
		t.Fatalf("got %d dispatches, want %d", len(stamps), total)
	}

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
	span := stamps[len(stamps)-1].Sub(stamps[0])
	if min := time.Duration(total-1)*interval - tolerance; span < min {
		t.Errorf("dispatches spanned %v, want >= %v", span, min)
	}
}

func TestRedisSpacer_Integration_KeyExpires(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	s := NewRedisSpacer(redisClient, "test:expiry", 10*time.Millisecond, zerolog.Nop())

	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ttl, err := redisClient.PTTL(ctx, "test:expiry").Result()
	if err != nil {
		t.Fatalf("PTTL error = %v", err)
	}
	if ttl <= 0 || ttl > minSlotTTL {
		t.Errorf("slot key TTL = %v, want (0, %v]", ttl, minSlotTTL)
	}

	slot, err := redisClient.Get(ctx, "test:expiry").Int64()
	if err != nil {
		t.Fatalf("Get slot error = %v", err)
	}
	if diff := time.Since(time.UnixMilli(slot)); diff < 0 || diff > 5*time.Second {
		t.Errorf("reserved slot %v is not near now", time.UnixMilli(slot))
	}
}

func TestRedisSpacer_Integration_QueuedReservations(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	s := NewRedisSpacer(redisClient, "test:queued", 100*time.Millisecond, zerolog.Nop())
	checkQueuedReservations(t, s)
}
