package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameeflow-project/gameeflow/internal/protocol"
	"github.com/gameeflow-project/gameeflow/internal/transport"
)

func TestScorePolicyFixedTable(t *testing.T) {
	for _, mode := range []SyncStateMode{SyncModeAlways, SyncModeParity} {
		p := ScorePolicy{Multiplier: 10, Jitter: 10, SyncMode: mode}

		score, _ := p.Plan(0)
		assert.Equal(t, 0, score)
		score, _ = p.Plan(1)
		assert.Equal(t, 0, score)
		score, _ = p.Plan(2)
		assert.Equal(t, 9, score)
		score, sync := p.Plan(3)
		assert.Equal(t, 22, score)
		assert.True(t, sync, "index 3 carries syncState true in every mode")
	}
}

func TestScorePolicySyncModes(t *testing.T) {
	always := ScorePolicy{Multiplier: 10, SyncMode: SyncModeAlways}
	for index := 0; index < 8; index++ {
		_, sync := always.Plan(index)
		assert.True(t, sync, "index %d", index)
	}

	parity := ScorePolicy{Multiplier: 10, SyncMode: SyncModeParity}
	for index := 4; index < 10; index++ {
		_, sync := parity.Plan(index)
		assert.Equal(t, index%2 == 0, sync, "index %d", index)
	}
}

func TestScorePolicyJitterBounds(t *testing.T) {
	p := ScorePolicy{Multiplier: 22, Jitter: 10, SyncMode: SyncModeAlways}
	for draw := 0; draw <= 20; draw++ {
		draw := draw
		p.randInt = func(n int) int {
			require.Equal(t, 21, n)
			return draw
		}
		score, _ := p.Plan(4)
		assert.GreaterOrEqual(t, score, 5*22-10)
		assert.LessOrEqual(t, score, 5*22+10)
	}

	// No jitter configured means the deterministic base value.
	p = ScorePolicy{Multiplier: 22, SyncMode: SyncModeAlways}
	score, _ := p.Plan(4)
	assert.Equal(t, 110, score)
}

func newTestSubmitter(t *testing.T, opts Options) (*Submitter, *fakeSender) {
	t.Helper()
	c, sender, _ := authedClient(t, opts)
	s := NewSubmitter(c, DefaultScorePolicy())
	s.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) }
	return s, sender
}

func decodeScorePayload(t *testing.T, call sentCall) scoreSubmission {
	t.Helper()
	var env struct {
		Request string          `json:"request"`
		Data    scoreSubmission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(call.Payload, &env))
	require.Equal(t, "gameScore", env.Request)
	return env.Data
}

func TestSubmitBuildsHashedPayload(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{})

	_, err := s.Submit(context.Background(), Submission{Score: 22, Index: 3, FTN: "0", SyncState: true})
	require.NoError(t, err)

	calls := sender.sent()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Wait, "score submissions wait for the ack")

	data := decodeScorePayload(t, calls[0])
	assert.InDelta(t, 125.53, data.StartScore, 1e-9, "start score read from the profile")
	assert.Equal(t, 3, data.Index)
	assert.Equal(t, "05.03.2024 14:07:09", data.IndexTime)
	assert.True(t, data.SyncState)
	assert.Equal(t, "0", data.FTN)
	assert.Equal(t, 22, data.Score)

	canonical := protocol.ScoreCanonical(125.53, 3, "05.03.2024 14:07:09", true, "0", 22, "sess-token-1")
	assert.Equal(t, protocol.Digest(canonical), data.Hash)
}

func TestSubmitRequiresAuth(t *testing.T) {
	c, sender, _ := newTestClient(Options{})
	s := NewSubmitter(c, DefaultScorePolicy())
	_, err := s.Submit(context.Background(), Submission{Score: 1, Index: 0})
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, sender.sent())
}

func TestSubmitStartScoreOverride(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{})

	override := 99.5
	_, err := s.Submit(context.Background(), Submission{Score: 9, Index: 2, FTN: "0", SyncState: true, StartScoreOverride: &override})
	require.NoError(t, err)

	data := decodeScorePayload(t, sender.sent()[0])
	assert.InDelta(t, 99.5, data.StartScore, 1e-9)
}

func TestSubmitRetriesOnceOnStaleStartScore(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{})

	attempts := 0
	sender.handler = func(call sentCall) (*transport.Response, error) {
		attempts++
		if attempts == 1 {
			// The rejection comes with the balance the server believes in.
			_, err := s.c.profile.ApplyUpdate([]byte(`{"profile":{"vipCoin":200}}`))
			require.NoError(t, err)
			return &transport.Response{Event: "action", Payload: json.RawMessage(`{"error":{"code":33,"message":"invalid start score"}}`)}, nil
		}
		return &transport.Response{Event: "action", Payload: json.RawMessage(`{}`)}, nil
	}

	_, err := s.Submit(context.Background(), Submission{Score: 50, Index: 5, FTN: "2", SyncState: true})
	require.NoError(t, err)

	calls := sender.sent()
	require.Len(t, calls, 2, "exactly one retry")

	first := decodeScorePayload(t, calls[0])
	second := decodeScorePayload(t, calls[1])
	assert.InDelta(t, 125.53, first.StartScore, 1e-9)
	assert.InDelta(t, 200, second.StartScore, 1e-9, "retry re-reads the freshest balance")
	assert.NotEqual(t, first.Hash, second.Hash)

	// Everything but startScore and hash is held constant on the retry.
	assert.Equal(t, first.Index, second.Index)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.SyncState, second.SyncState)
	assert.Equal(t, first.IndexTime, second.IndexTime)
	assert.Equal(t, first.FTN, second.FTN)
}

func TestSubmitPersistentStaleErrorSurfaces(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{})
	sender.handler = func(call sentCall) (*transport.Response, error) {
		return &transport.Response{Event: "action", Payload: json.RawMessage(`{"error":{"code":33,"message":"invalid start score"}}`)}, nil
	}

	_, err := s.Submit(context.Background(), Submission{Score: 50, Index: 5, FTN: "2", SyncState: true})
	var serr *protocol.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, protocol.ErrCodeStaleStartScore, serr.Code)
	assert.Len(t, sender.sent(), 2, "bounded retry: two wire sends, then surface")
}

func TestSubmitOtherErrorNotRetried(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{})
	sender.handler = func(call sentCall) (*transport.Response, error) {
		return &transport.Response{Event: "action", Payload: json.RawMessage(`{"error":{"code":7,"message":"nope"}}`)}, nil
	}

	_, err := s.Submit(context.Background(), Submission{Score: 10, Index: 4, FTN: "1", SyncState: true})
	var serr *protocol.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 7, serr.Code)
	assert.Len(t, sender.sent(), 1)
}

func TestSubmitNextAdvancesIndex(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{})

	for i := 0; i < 4; i++ {
		_, err := s.SubmitNext(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 4, s.RoundIndex())
	assert.Equal(t, 4, s.Total())

	calls := sender.sent()
	require.Len(t, calls, 4)
	for i, want := range []int{0, 0, 9, 22} {
		data := decodeScorePayload(t, calls[i])
		assert.Equal(t, i, data.Index)
		assert.Equal(t, want, data.Score)
	}
}

func TestRoundResetAfterRoundLength(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{})

	// Fast-forward to the end of a round.
	s.mu.Lock()
	s.index = RoundLength
	s.total = RoundLength
	s.mu.Unlock()

	_, err := s.SubmitNext(context.Background())
	require.NoError(t, err)

	calls := sender.sent()
	require.Len(t, calls, 3)
	assert.Equal(t, "endGame", calls[0].request(t))
	assert.Equal(t, "start_game", calls[1].Event)
	data := decodeScorePayload(t, calls[2])
	assert.Equal(t, 0, data.Index, "index restarts at 0 after the round reset")
	assert.Equal(t, 1, s.RoundIndex())
	assert.Equal(t, RoundLength+1, s.Total())
}

func TestCollectRewardChoreography(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{LeaderboardIDs: []int{21, 18, 19, 20}})

	require.NoError(t, s.CollectReward(context.Background()))

	var reqs []string
	for _, call := range sender.sent() {
		reqs = append(reqs, call.request(t))
	}
	assert.Equal(t, []string{
		"updateSession",
		"getLevels",
		"getLeaderBoardPlayers", "getLeaderBoardPlayers", "getLeaderBoardPlayers", "getLeaderBoardPlayers",
		"getUpgrades", "getUpgrades",
		"start_game",
		"gameScore", "gameScore", "gameScore", "gameScore",
	}, reqs)

	calls := sender.sent()
	scores := calls[len(calls)-4:]
	for i, want := range []int{0, 0, 9, 22} {
		data := decodeScorePayload(t, scores[i])
		assert.Equal(t, i, data.Index)
		assert.Equal(t, want, data.Score)
	}
	last := decodeScorePayload(t, scores[3])
	assert.True(t, last.SyncState)
}

func TestCollectRewardAbortsOnFirstFailure(t *testing.T) {
	s, sender := newTestSubmitter(t, Options{})
	sender.handler = func(call sentCall) (*transport.Response, error) {
		var env struct {
			Request string `json:"request"`
		}
		_ = json.Unmarshal(call.Payload, &env)
		if env.Request == "getLevels" {
			return nil, assert.AnError
		}
		return &transport.Response{Event: call.Event, Payload: json.RawMessage(`{}`)}, nil
	}

	err := s.CollectReward(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	require.Len(t, sender.sent(), 2, "steps after the failure are not attempted")
}
