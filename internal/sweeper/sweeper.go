package sweeper

import (
	"sync"

	"github.com/quiverdb/quiver/internal/cursor"
	"github.com/quiverdb/quiver/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper periodically reclaims idle cursors on a cron schedule. Clients
// can also trigger a sweep on demand through the GC command; both paths go
// through the store's CollectIdle, which is safe to run concurrently.
type Sweeper struct {
	store    *cursor.Store
	schedule string
	cron     *cron.Cron
	running  bool
	mu       sync.Mutex
	logger   zerolog.Logger
}

// New creates a sweeper. The schedule uses standard 5-field cron syntax.
func New(store *cursor.Store, schedule string, logger zerolog.Logger) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, err
	}

	s := &Sweeper{
		store:    store,
		schedule: schedule,
		logger:   logger.With().Str("component", "cursor-sweeper").Logger(),
	}

	s.logger.Info().Str("schedule", schedule).Msg("Cursor sweeper initialized")
	return s, nil
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn().Msg("Cursor sweeper already running")
		return nil
	}

	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))

	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", s.schedule).Msg("Cursor sweeper started")
	return nil
}

// Stop halts the periodic sweep. A sweep in progress runs to completion.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Cursor sweeper stopped")
}

func (s *Sweeper) runSweep() {
	reaped := s.store.CollectIdle()
	if reaped > 0 {
		metrics.Get().AddCursorsReaped(int64(reaped))
		s.logger.Info().
			Int("reaped", reaped).
			Int("remaining", s.store.Len()).
			Msg("Idle cursor sweep completed")
	}
}
