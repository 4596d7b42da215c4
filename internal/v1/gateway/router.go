// Package gateway implements the front router: it accepts the initial
// websocket connection, maps the requested room code onto the worker port
// pool by consistent hashing, spawns the worker process when absent, and
// hands the client a one-time routing token to reconnect with.
package gateway

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/oxarena/ox-arena/backend/go/internal/v1/auth"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/config"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/health"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/logging"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/metrics"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/room"
	"github.com/oxarena/ox-arena/backend/go/internal/v1/types"
)

const (
	workerHost       = "127.0.0.1"
	workerBootWait   = 250 * time.Millisecond
	workerBootTries  = 20
	workerProbeLimit = 2 * time.Second
)

// worker is one spawned arena process.
type worker struct {
	port    int
	cmd     *exec.Cmd
	breaker *gobreaker.CircuitBreaker
}

func (w *worker) endpoint() string {
	return fmt.Sprintf("%s:%d", workerHost, w.port)
}

// Router maps room codes to workers and mints routing tokens.
type Router struct {
	cfg    *config.Config
	tokens *auth.RouteTokenService

	mu       sync.Mutex
	workers  map[int]*worker
	draining bool

	// workerBinary overrides the spawned executable, for tests. Empty
	// means re-exec this binary in worker mode.
	workerBinary string
}

// NewRouter creates a gateway router. tokens must share its secret with
// the workers it routes to.
func NewRouter(cfg *config.Config, tokens *auth.RouteTokenService) *Router {
	return &Router{
		cfg:     cfg,
		tokens:  tokens,
		workers: make(map[int]*worker),
	}
}

// PortFor hashes a room code onto the worker port pool. The same code
// always lands on the same port, so every client of a room reaches the
// same worker.
func (g *Router) PortFor(code types.RoomCodeType) int {
	poolSize := g.cfg.WorkerPortMax - g.cfg.WorkerPortBase + 1
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return g.cfg.WorkerPortBase + int(h.Sum32())%poolSize
}

// Route resolves a quick-join to a redirect: pick the worker port for the
// code (generating a code if the client sent none), ensure the worker is
// up, and mint a one-time token bound to client and room.
func (g *Router) Route(clientID types.ClientIdType, rawCode string) (*types.Redirect, error) {
	g.mu.Lock()
	if g.draining {
		g.mu.Unlock()
		return nil, errDraining
	}
	g.mu.Unlock()

	code := room.NormalizeRoomCode(rawCode)
	if code == "" {
		code = room.GenerateRoomCode(func(types.RoomCodeType) bool { return false })
	} else if !room.ValidRoomCode(code) {
		return nil, room.ErrInvalidRoomCode
	}

	port := g.PortFor(code)
	if err := g.ensureWorker(port); err != nil {
		logging.Error(context.Background(), "worker unavailable",
			zap.Int("port", port), zap.Error(err))
		return nil, errRedirectBuild
	}

	token, err := g.tokens.Mint(clientID, code)
	if err != nil {
		return nil, errRedirectBuild
	}
	return &types.Redirect{
		Endpoint: fmt.Sprintf("%s:%d", workerHost, port),
		Token:    token,
		RoomCode: code,
	}, nil
}

// ensureWorker spawns and health-probes the worker for port if it is not
// already serving. Probes run through the worker's circuit breaker so a
// crashlooping worker fails fast instead of stalling every join.
func (g *Router) ensureWorker(port int) error {
	g.mu.Lock()
	w, ok := g.workers[port]
	if !ok {
		w = &worker{
			port: port,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        fmt.Sprintf("worker-%d", port),
				MaxRequests: 3,
				Interval:    30 * time.Second,
				Timeout:     10 * time.Second,
				OnStateChange: func(name string, from, to gobreaker.State) {
					var stateVal float64
					switch to {
					case gobreaker.StateClosed:
						stateVal = 0
					case gobreaker.StateOpen:
						stateVal = 1
					case gobreaker.StateHalfOpen:
						stateVal = 2
					}
					metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
				},
			}),
		}
		g.workers[port] = w
	}
	g.mu.Unlock()

	if g.probe(w) == nil {
		return nil
	}

	if err := g.spawn(w); err != nil {
		return err
	}
	for i := 0; i < workerBootTries; i++ {
		time.Sleep(workerBootWait)
		if g.probe(w) == nil {
			return nil
		}
	}
	return fmt.Errorf("worker on port %d did not become healthy", port)
}

func (g *Router) probe(w *worker) error {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		ok, err := health.ProbeCompatible("http://"+w.endpoint(), workerProbeLimit)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("incompatible server on %s", w.endpoint())
		}
		return nil, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues(fmt.Sprintf("worker-%d", w.port)).Inc()
		}
		return err
	}
	return nil
}

// spawn starts the worker process. The worker is this same binary run in
// worker mode, inheriting the gateway's environment with its own port and
// token enforcement switched on.
func (g *Router) spawn(w *worker) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if w.cmd != nil && w.cmd.Process != nil && w.cmd.ProcessState == nil {
		return nil
	}

	binary := g.workerBinary
	if binary == "" {
		binary = os.Getenv("ARENA_WORKER_BIN")
	}
	if binary == "" {
		// Default to the arena binary next to this executable.
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("cannot resolve executable: %w", err)
		}
		binary = filepath.Join(filepath.Dir(self), "arena")
	}

	cmd := exec.Command(binary)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PORT=%d", w.port),
		"REQUIRE_ROUTE_TOKEN=true",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to spawn worker on port %d: %w", w.port, err)
	}
	w.cmd = cmd
	logging.Info(context.Background(), "spawned worker",
		zap.Int("port", w.port), zap.Int("pid", cmd.Process.Pid))

	go func() {
		_ = cmd.Wait()
		logging.Warn(context.Background(), "worker exited", zap.Int("port", w.port))
	}()
	return nil
}

// Shutdown stops routing and terminates spawned workers.
func (g *Router) Shutdown(ctx context.Context) {
	g.mu.Lock()
	g.draining = true
	workers := make([]*worker, 0, len(g.workers))
	for _, w := range g.workers {
		workers = append(workers, w)
	}
	g.mu.Unlock()

	for _, w := range workers {
		if w.cmd != nil && w.cmd.Process != nil {
			_ = w.cmd.Process.Signal(os.Interrupt)
		}
	}
	logging.Info(ctx, "gateway router shut down", zap.Int("workers", len(workers)))
}
