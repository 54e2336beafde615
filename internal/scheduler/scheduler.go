// Package scheduler drives the background automation loops for GameeFlow:
// the endless score-submission loop and the periodic leaderboard refresh.
// The protocol client stays free of timers; everything timer-driven lives
// here and is cancellable through contexts.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gameeflow-project/gameeflow/internal/client"
	"github.com/gameeflow-project/gameeflow/internal/config"
	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/transport"
)

// ErrEndlessRunning is returned when the endless loop is started twice.
var ErrEndlessRunning = errors.New("endless submission already running")

// Scheduler manages the periodic background tasks.
type Scheduler struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	client    *client.Client
	submitter *client.Submitter

	mu            sync.Mutex
	endlessCancel context.CancelFunc
	endlessCount  int
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, cl *client.Client, sub *client.Submitter) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		eventBus:  eventBus,
		client:    cl,
		submitter: sub,
	}
}

// Start launches the configured loops and blocks until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	app := s.cfg.GetApplicationData()

	if app.Endless.Enabled {
		if err := s.StartEndless(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to start endless submission")
		}
	}

	if app.AutoRefresh.Enabled {
		go s.runAutoRefreshLoop(ctx)
	}

	<-ctx.Done()
	s.StopEndless()
	log.Info().Msg("scheduler stopped")
}

// EndlessRunning reports whether the endless loop is active.
func (s *Scheduler) EndlessRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endlessCancel != nil
}

// EndlessCount is the number of submissions performed since the loop started.
func (s *Scheduler) EndlessCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endlessCount
}

// StartEndless opens a game session and begins the jittered submission loop.
func (s *Scheduler) StartEndless(ctx context.Context) error {
	s.mu.Lock()
	if s.endlessCancel != nil {
		s.mu.Unlock()
		return ErrEndlessRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.endlessCancel = cancel
	s.endlessCount = 0
	s.mu.Unlock()

	if err := s.client.StartGame(ctx); err != nil {
		s.StopEndless()
		return err
	}

	log.Info().Msg("endless score submission started")
	s.eventBus.Emit(ctx, events.Event{Type: events.EventEndlessStarted, Source: "scheduler"})
	go s.runEndlessLoop(loopCtx)
	return nil
}

// StopEndless cancels the submission loop. Safe to call when not running.
func (s *Scheduler) StopEndless() {
	s.mu.Lock()
	cancel := s.endlessCancel
	s.endlessCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		log.Info().Msg("endless score submission stopped")
		s.eventBus.Emit(context.Background(), events.Event{Type: events.EventEndlessStopped, Source: "scheduler"})
	}
}

func (s *Scheduler) runEndlessLoop(ctx context.Context) {
	for {
		endless := s.cfg.GetApplicationData().Endless

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.nextDelay(endless)):
		}

		if _, err := s.submitter.SubmitNext(ctx); err != nil {
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, transport.ErrNotReady) || errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("endless loop stopping, connection unavailable")
				s.StopEndless()
				return
			}
			// Server-side rejections are already surfaced on the bus;
			// the loop keeps going.
			log.Warn().Err(err).Msg("endless submission failed")
			continue
		}

		s.mu.Lock()
		s.endlessCount++
		count := s.endlessCount
		s.mu.Unlock()
		log.Debug().Int("count", count).Msg("endless submission done")

		if endless.TargetVIP > 0 && s.client.Profile().VIPCoin() >= endless.TargetVIP {
			log.Info().Float64("target", endless.TargetVIP).Msg("target VIP balance reached")
			s.eventBus.Emit(ctx, events.Event{Type: events.EventTargetReached, Source: "scheduler", Payload: s.client.Profile().Snapshot()})
			s.StopEndless()
			return
		}
	}
}

// nextDelay is the configured baseline plus a uniform jitter, so the traffic
// never looks perfectly periodic.
func (s *Scheduler) nextDelay(endless config.EndlessConfig) time.Duration {
	base := time.Duration(endless.DelaySec * float64(time.Second))
	if base <= 0 {
		base = time.Second
	}
	if endless.JitterMs <= 0 {
		return base
	}
	jitter := time.Duration(rand.Int63n(int64(2*endless.JitterMs+1))-int64(endless.JitterMs)) * time.Millisecond
	if base+jitter <= 0 {
		return base
	}
	return base + jitter
}

// runAutoRefreshLoop periodically re-requests the configured leaderboards.
func (s *Scheduler) runAutoRefreshLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.GetApplicationData().AutoRefresh.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.client.RefreshLeaderboards(ctx); err != nil {
				log.Warn().Err(err).Msg("leaderboard refresh failed")
			}
		}
	}
}
