package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Hook is a cleanup function run during shutdown.
type Hook func(ctx context.Context) error

// Coordinator manages graceful shutdown of registered components.
// Hooks run in priority order (lower first) within a shared timeout.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	hooks []namedHook

	shutdownOnce sync.Once
	triggerOnce  sync.Once
	shutdownCh   chan struct{}
}

type namedHook struct {
	name     string
	hook     Hook
	priority int
}

// New creates a shutdown coordinator.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout:    timeout,
		logger:     logger.With().Str("component", "shutdown").Logger(),
		shutdownCh: make(chan struct{}),
	}
}

// Register adds a shutdown hook. Lower priorities run first.
func (c *Coordinator) Register(name string, priority int, hook Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, namedHook{name: name, hook: hook, priority: priority})
	c.logger.Debug().Str("name", name).Int("priority", priority).Msg("Registered shutdown hook")
}

// WaitForSignal blocks until SIGINT/SIGTERM or a programmatic trigger.
func (c *Coordinator) WaitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-c.shutdownCh:
	}
}

// Trigger starts shutdown programmatically. Safe to call concurrently.
func (c *Coordinator) Trigger() {
	c.triggerOnce.Do(func() {
		c.logger.Info().Msg("Programmatic shutdown triggered")
		close(c.shutdownCh)
	})
}

// Shutdown runs all hooks in priority order. The first error is returned;
// remaining hooks still run unless the timeout expires.
func (c *Coordinator) Shutdown() error {
	var shutdownErr error

	c.shutdownOnce.Do(func() {
		c.triggerOnce.Do(func() { close(c.shutdownCh) })

		c.mu.Lock()
		hooks := make([]namedHook, len(c.hooks))
		copy(hooks, c.hooks)
		c.mu.Unlock()
		sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].priority < hooks[j].priority })

		c.logger.Info().
			Dur("timeout", c.timeout).
			Int("hooks", len(hooks)).
			Msg("Starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		start := time.Now()

		for _, h := range hooks {
			select {
			case <-ctx.Done():
				c.logger.Warn().Str("hook", h.name).Msg("Shutdown timeout reached, skipping remaining hooks")
				if shutdownErr == nil {
					shutdownErr = ctx.Err()
				}
				return
			default:
			}

			if err := h.hook(ctx); err != nil {
				c.logger.Error().Err(err).Str("hook", h.name).Msg("Shutdown hook failed")
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		c.logger.Info().Dur("duration", time.Since(start)).Msg("Graceful shutdown complete")
	})

	return shutdownErr
}
