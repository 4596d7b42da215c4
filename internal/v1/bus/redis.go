// Package bus implements the optional Redis room directory used when
// several workers run behind a gateway: each worker publishes its room
// summaries, and gateways subscribe to build the cross-worker listing.
// All Redis calls run behind a circuit breaker so a dead Redis degrades
// the directory instead of the arena.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

const (
	// roomsChannel carries full per-worker directory refreshes.
	roomsChannel = "arena:rooms"
	// directoryKeyTTL bounds staleness when a worker dies without
	// unpublishing.
	directoryKeyTTL = 30 * time.Second
)

// DirectoryUpdate is one worker's full room listing.
type DirectoryUpdate struct {
	Endpoint string              `json:"endpoint"`
	Rooms    []types.RoomSummary `json:"rooms"`
	SentAt   int64               `json:"sentAt"`
}

// Service is the Redis-backed room directory for one worker or gateway.
type Service struct {
	client   *redis.Client
	cb       *gobreaker.CircuitBreaker
	endpoint string
}

// Client returns the underlying Redis client, nil in single-instance mode.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService connects to Redis and verifies the connection. endpoint is
// this process's advertised host:port, stamped onto every update.
func NewService(addr, password, endpoint string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis room directory", "addr", addr, "endpoint", endpoint)
	return &Service{
		client:   rdb,
		cb:       gobreaker.NewCircuitBreaker(st),
		endpoint: endpoint,
	}, nil
}

// PublishRooms pushes this worker's full room listing: a keyed snapshot
// for directory reads plus a pub/sub notification for live subscribers.
// Failures degrade silently; the local arena never depends on the
// directory.
func (s *Service) PublishRooms(ctx context.Context, rooms []types.RoomSummary) {
	if s == nil || s.client == nil {
		return
	}

	update := DirectoryUpdate{
		Endpoint: s.endpoint,
		Rooms:    rooms,
		SentAt:   time.Now().UnixMilli(),
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(update)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal directory update: %w", err)
		}
		key := fmt.Sprintf("arena:worker:%s", s.endpoint)
		if err := s.client.Set(ctx, key, data, directoryKeyTTL).Err(); err != nil {
			return nil, err
		}
		return nil, s.client.Publish(ctx, roomsChannel, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open: dropping directory update", "endpoint", s.endpoint)
			return
		}
		slog.Error("Redis directory publish failed", "endpoint", s.endpoint, "error", err)
	}
}

// Subscribe listens for directory updates from other workers, invoking
// handler for each one. Updates from this process's own endpoint are
// filtered out.
func (s *Service) Subscribe(ctx context.Context, wg *sync.WaitGroup, handler func(DirectoryUpdate)) {
	if s == nil || s.client == nil {
		return
	}

	pubsub := s.client.Subscribe(ctx, roomsChannel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("Subscribed to room directory", "channel", roomsChannel)
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("Redis subscription channel closed", "channel", roomsChannel)
					return
				}
				var update DirectoryUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					slog.Error("Failed to unmarshal directory update", "error", err)
					continue
				}
				if update.Endpoint == s.endpoint {
					continue
				}
				handler(update)
			}
		}
	}()
}

// Snapshot reads every worker's last published listing from the keyed
// snapshots, merging them into one directory.
func (s *Service) Snapshot(ctx context.Context) ([]types.RoomSummary, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		keys, err := s.client.Keys(ctx, "arena:worker:*").Result()
		if err != nil {
			return nil, err
		}
		var all []types.RoomSummary
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var update DirectoryUpdate
			if err := json.Unmarshal(data, &update); err != nil {
				continue
			}
			for _, sum := range update.Rooms {
				sum.Endpoint = update.Endpoint
				all = append(all, sum)
			}
		}
		return all, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory snapshot: %w", err)
	}
	rooms, _ := res.([]types.RoomSummary)
	return rooms, nil
}

// Ping verifies Redis connectivity for health checks.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
