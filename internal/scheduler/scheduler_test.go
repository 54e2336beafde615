package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameeflow-project/gameeflow/internal/client"
	"github.com/gameeflow-project/gameeflow/internal/config"
	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/transport"
)

type recordingSender struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSender) Send(_ context.Context, event string, payload any, wait bool) (*transport.Response, error) {
	name := event
	if event == "action" {
		raw, _ := json.Marshal(payload)
		var env struct {
			Request string `json:"request"`
		}
		json.Unmarshal(raw, &env)
		name = env.Request
	}
	r.mu.Lock()
	r.events = append(r.events, name)
	r.mu.Unlock()
	return &transport.Response{Event: event, Payload: json.RawMessage(`{}`)}, nil
}

func (r *recordingSender) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

func newTestScheduler(t *testing.T, endless config.EndlessConfig) (*Scheduler, *recordingSender, *events.EventBus) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ApplicationData.Endless = endless

	sender := &recordingSender{}
	bus := events.NewEventBus()
	cl := client.New(sender, bus, client.Options{StepDelay: time.Millisecond})
	_, err := cl.Profile().ApplyAuth([]byte(`{"user":{"token":"t1","playerId":"p1","vipCoin":125.53}}`))
	require.NoError(t, err)

	sub := client.NewSubmitter(cl, client.DefaultScorePolicy())
	return NewScheduler(cfg, bus, cl, sub), sender, bus
}

func TestStartEndlessIsExclusive(t *testing.T) {
	s, _, _ := newTestScheduler(t, config.EndlessConfig{DelaySec: 60, ScoreMultiplier: 10})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.StartEndless(ctx))
	defer s.StopEndless()
	assert.True(t, s.EndlessRunning())

	err := s.StartEndless(ctx)
	require.ErrorIs(t, err, ErrEndlessRunning)
}

func TestEndlessLoopSubmitsAndStops(t *testing.T) {
	s, sender, _ := newTestScheduler(t, config.EndlessConfig{DelaySec: 0.01, ScoreMultiplier: 10})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.StartEndless(ctx))
	assert.Equal(t, 1, sender.count("start_game"), "loop opens a game session first")

	require.Eventually(t, func() bool { return s.EndlessCount() >= 3 }, 5*time.Second, 5*time.Millisecond)
	s.StopEndless()
	assert.False(t, s.EndlessRunning())

	submitted := sender.count("gameScore")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, submitted, sender.count("gameScore"), "no submissions after stop")
}

func TestEndlessLoopStopsAtTargetVIP(t *testing.T) {
	s, _, bus := newTestScheduler(t, config.EndlessConfig{DelaySec: 0.01, ScoreMultiplier: 10, TargetVIP: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reached := make(chan events.Event, 1)
	bus.Subscribe(events.EventTargetReached, "test", func(ctx context.Context, ev events.Event) error {
		select {
		case reached <- ev:
		default:
		}
		return nil
	})

	require.NoError(t, s.StartEndless(ctx))

	// Balance (125.53) already exceeds the target, so the loop stops after
	// the first submission.
	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("target-reached event never fired")
	}
	require.Eventually(t, func() bool { return !s.EndlessRunning() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.EndlessCount())
}

func TestNextDelayBounds(t *testing.T) {
	s, _, _ := newTestScheduler(t, config.EndlessConfig{})

	for i := 0; i < 100; i++ {
		d := s.nextDelay(config.EndlessConfig{DelaySec: 1.0, JitterMs: 200})
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}

	assert.Equal(t, time.Second, s.nextDelay(config.EndlessConfig{DelaySec: 1.0}))
	assert.Equal(t, time.Second, s.nextDelay(config.EndlessConfig{}), "zero delay falls back to one second")
}

func TestStopEndlessIdempotent(t *testing.T) {
	s, _, _ := newTestScheduler(t, config.EndlessConfig{DelaySec: 60})
	s.StopEndless()
	s.StopEndless()
	assert.False(t, s.EndlessRunning())
}
