package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/transport"
)

type sentCall struct {
	Event   string
	Payload json.RawMessage
	Wait    bool
}

// fakeSender records every outbound call and lets each test script the
// responses.
type fakeSender struct {
	mu      sync.Mutex
	calls   []sentCall
	handler func(call sentCall) (*transport.Response, error)
}

func (f *fakeSender) Send(_ context.Context, event string, payload any, wait bool) (*transport.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	call := sentCall{Event: event, Payload: raw, Wait: wait}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		return handler(call)
	}
	return &transport.Response{Event: event, Payload: json.RawMessage(`{}`)}, nil
}

func (f *fakeSender) sent() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// actionRequest extracts the request discriminator of an action call, or the
// raw event name for non-action events.
func (c sentCall) request(t *testing.T) string {
	t.Helper()
	if c.Event != "action" {
		return c.Event
	}
	var env struct {
		Request string `json:"request"`
	}
	require.NoError(t, json.Unmarshal(c.Payload, &env))
	return env.Request
}

func newTestClient(opts Options) (*Client, *fakeSender, *events.EventBus) {
	if opts.StepDelay == 0 {
		opts.StepDelay = time.Millisecond
	}
	sender := &fakeSender{}
	bus := events.NewEventBus()
	return New(sender, bus, opts), sender, bus
}

const authUserJSON = `{"user":{"token":"sess-token-1","playerId":"p-77","vipCoin":"125.53","chips":"1000","ftnBalance":"12.5"}}`

func authedClient(t *testing.T, opts Options) (*Client, *fakeSender, *events.EventBus) {
	t.Helper()
	c, sender, bus := newTestClient(opts)
	_, err := c.profile.ApplyAuth(json.RawMessage(authUserJSON))
	require.NoError(t, err)
	return c, sender, bus
}

func TestAuthenticatePopulatesProfile(t *testing.T) {
	c, sender, _ := newTestClient(Options{})
	sender.handler = func(call sentCall) (*transport.Response, error) {
		return &transport.Response{Event: "auth", Payload: json.RawMessage(authUserJSON)}, nil
	}

	snap, err := c.Authenticate(context.Background(), Credentials{Login: "bver", Password: "bver"})
	require.NoError(t, err)
	assert.Equal(t, "sess-token-1", snap.SessionToken)
	assert.Equal(t, "p-77", snap.PlayerID)
	assert.InDelta(t, 125.53, snap.VIPCoin, 1e-9)
	assert.InDelta(t, 1000, snap.Chips, 1e-9)
	assert.InDelta(t, 12.5, snap.FTNBalance, 1e-9)
	assert.True(t, c.profile.Authenticated())

	calls := sender.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, "auth", calls[0].Event)
	assert.True(t, calls[0].Wait)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Payload, &payload))
	assert.Equal(t, "bver", payload["login"])
	assert.Equal(t, "2.1.5", payload["versionNumber"])
	assert.Equal(t, "2587809A-796B-4E35-AA69-176F8AD0974F", payload["udid"])
	assert.Equal(t, float64(1), payload["provider"])
	assert.Nil(t, payload["userName"])
	assert.Nil(t, payload["guestToken"])
}

func TestAuthenticateServerErrorResetsProfile(t *testing.T) {
	c, sender, _ := newTestClient(Options{})
	c.profile.ApplyAuth(json.RawMessage(authUserJSON))

	sender.handler = func(call sentCall) (*transport.Response, error) {
		return &transport.Response{Event: "auth", Payload: json.RawMessage(`{"error":{"code":5,"message":"bad credentials"}}`)}, nil
	}

	_, err := c.Authenticate(context.Background(), Credentials{Login: "x", Password: "y"})
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.False(t, c.profile.Authenticated())
	assert.Zero(t, c.profile.Snapshot())
}

func TestAuthenticateMalformedResponse(t *testing.T) {
	c, sender, _ := newTestClient(Options{})
	sender.handler = func(call sentCall) (*transport.Response, error) {
		return &transport.Response{Event: "auth", Payload: json.RawMessage(`{"unexpected":true}`)}, nil
	}

	_, err := c.Authenticate(context.Background(), Credentials{})
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.False(t, c.profile.Authenticated())
}

func TestAuthenticateTransportError(t *testing.T) {
	c, sender, _ := newTestClient(Options{})
	sendErr := errors.New("boom")
	sender.handler = func(call sentCall) (*transport.Response, error) { return nil, sendErr }

	_, err := c.Authenticate(context.Background(), Credentials{})
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	require.ErrorIs(t, err, sendErr)
}

func TestProfileUpdatePushMergesBalances(t *testing.T) {
	c, _, bus := authedClient(t, Options{})

	msg := events.ServerMessage{Event: "profileUpdate", Payload: []byte(`{"profile":{"chips":"1500","vipCoin":130}}`)}
	require.NoError(t, bus.EmitSync(context.Background(), events.Event{
		Type:    events.MessageEvent("profileUpdate"),
		Source:  "test",
		Payload: msg,
	}))

	snap := c.profile.Snapshot()
	assert.InDelta(t, 1500, snap.Chips, 1e-9)
	assert.InDelta(t, 130, snap.VIPCoin, 1e-9)
	assert.InDelta(t, 12.5, snap.FTNBalance, 1e-9, "fields absent from the push keep their value")
	assert.Equal(t, "sess-token-1", snap.SessionToken)
}

func TestProfileUpdatePushesSettleAtLatestBalance(t *testing.T) {
	c, _, bus := authedClient(t, Options{})

	// The transport delivers pushes of one event synchronously in arrival
	// order; a run of balance updates must leave the newest value in place,
	// or the next score hash is built from a stale vipCoin.
	const n = 200
	for i := 0; i < n; i++ {
		msg := events.ServerMessage{
			Event:   "profileUpdate",
			Payload: []byte(fmt.Sprintf(`{"profile":{"vipCoin":%d}}`, i)),
		}
		require.NoError(t, bus.EmitSync(context.Background(), events.Event{
			Type:    events.MessageEvent("profileUpdate"),
			Source:  "test",
			Payload: msg,
		}))
	}

	assert.InDelta(t, n-1, c.profile.VIPCoin(), 1e-9)
}

func TestDisconnectResetsProfile(t *testing.T) {
	c, _, bus := authedClient(t, Options{})
	require.NoError(t, bus.EmitSync(context.Background(), events.Event{Type: events.EventDisconnected, Source: "test"}))
	assert.False(t, c.profile.Authenticated())
}

func TestStartGameRequiresAuth(t *testing.T) {
	c, sender, _ := newTestClient(Options{})
	err := c.StartGame(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, sender.sent())
}

func TestStartGamePayload(t *testing.T) {
	c, sender, _ := authedClient(t, Options{GameID: 7})
	require.NoError(t, c.StartGame(context.Background()))

	calls := sender.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, "start_game", calls[0].Event)
	assert.JSONEq(t, `{"sessionToken":"sess-token-1","gameType":"default","gameId":7}`, string(calls[0].Payload))
}

func TestPayoutValidation(t *testing.T) {
	c, sender, _ := authedClient(t, Options{})

	var perr *PayoutError
	err := c.PayoutFTN(context.Background(), "abc", "1048344", "0xb52D")
	require.ErrorAs(t, err, &perr)

	err = c.PayoutFTN(context.Background(), "-2", "1048344", "0xb52D")
	require.ErrorAs(t, err, &perr)

	// Balance is 12.5; asking for more must fail locally.
	err = c.PayoutFTN(context.Background(), "50.0", "1048344", "0xb52D")
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, sender.sent(), "rejected payouts must not reach the wire")

	require.NoError(t, c.PayoutFTN(context.Background(), "5.0", "1048344", "0xb52D"))
	calls := sender.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, "payoutFTN", calls[0].request(t))
}

func TestGetUpgradesFetchesBothCatalogues(t *testing.T) {
	c, sender, _ := authedClient(t, Options{})
	require.NoError(t, c.GetUpgrades(context.Background()))

	calls := sender.sent()
	require.Len(t, calls, 2)
	assert.JSONEq(t, `{"request":"getUpgrades","data":{"type":0}}`, string(calls[0].Payload))
	assert.JSONEq(t, `{"request":"getUpgrades","data":{"type":1}}`, string(calls[1].Payload))
}

func TestRefreshLeaderboards(t *testing.T) {
	c, sender, _ := authedClient(t, Options{LeaderboardIDs: []int{21, 18}})
	require.NoError(t, c.RefreshLeaderboards(context.Background()))

	calls := sender.sent()
	require.Len(t, calls, 3)
	assert.Equal(t, "getLeaderBoard", calls[0].request(t))
	assert.JSONEq(t, `{"request":"getLeaderBoardPlayers","data":{"leaderBoardId":21}}`, string(calls[1].Payload))
	assert.JSONEq(t, `{"request":"getLeaderBoardPlayers","data":{"leaderBoardId":18}}`, string(calls[2].Payload))
}
