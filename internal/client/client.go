package client

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/protocol"
	"github.com/gameeflow-project/gameeflow/internal/transport"
	"github.com/gameeflow-project/gameeflow/internal/util"
)

// Sender is the request surface the client needs from the transport session.
type Sender interface {
	Send(ctx context.Context, event string, payload any, waitForResponse bool) (*transport.Response, error)
}

// Fixed client metadata the backend expects on every auth request. These
// identify the client build, not the player.
const (
	authProvider      = 1
	authVersionNumber = "2.1.5"
	authUDID          = "2587809A-796B-4E35-AA69-176F8AD0974F"
	authPlatform      = 0
	authLanguage      = 0
	authLogInType     = 0
)

// Credentials identify the player and, for withdrawals, the payout target.
type Credentials struct {
	Login            string `json:"login"`
	Password         string `json:"password"`
	FastexUserID     string `json:"fastexUserId"`
	FTNAddress       string `json:"ftnAddress"`
	WithdrawalAmount string `json:"withdrawalAmount"`
}

// Options tunes the client. Zero values fall back to the backend's defaults.
type Options struct {
	GameID         int
	LeaderboardIDs []int
	StepDelay      time.Duration
}

// Client layers the application protocol on top of a transport session:
// authentication, the action catalogue, score submission, and leaderboard
// bookkeeping. Profile state is updated both by request responses and by
// out-of-band pushes observed on the event bus.
type Client struct {
	sender  Sender
	bus     *events.EventBus
	profile *Profile
	boards  *leaderboardCache
	opts    Options
	log     zerolog.Logger
}

func New(sender Sender, bus *events.EventBus, opts Options) *Client {
	if opts.GameID == 0 {
		opts.GameID = 7
	}
	if len(opts.LeaderboardIDs) == 0 {
		// Daily, weekly, monthly, global.
		opts.LeaderboardIDs = []int{21, 18, 19, 20}
	}
	if opts.StepDelay <= 0 {
		opts.StepDelay = 200 * time.Millisecond
	}
	c := &Client{
		sender:  sender,
		bus:     bus,
		profile: NewProfile(),
		boards:  newLeaderboardCache(),
		opts:    opts,
		log:     util.ComponentLogger("client"),
	}
	c.subscribe()
	return c
}

func (c *Client) Profile() *Profile { return c.profile }

func (c *Client) subscribe() {
	c.bus.Subscribe(events.MessageEvent("profileUpdate"), "client.profile", func(ctx context.Context, ev events.Event) error {
		msg, ok := ev.Payload.(events.ServerMessage)
		if !ok {
			return nil
		}
		snap, err := c.profile.ApplyUpdate(msg.Payload)
		if err != nil {
			c.log.Warn().Err(err).Msg("Ignoring profile update push")
			return nil
		}
		c.log.Debug().
			Float64("chips", snap.Chips).
			Float64("vipCoin", snap.VIPCoin).
			Float64("ftnBalance", snap.FTNBalance).
			Msg("Balance updated")
		c.bus.Emit(ctx, events.Event{Type: events.EventProfileUpdated, Source: "client", Payload: snap})
		return nil
	})

	c.bus.Subscribe(events.MessageEvent("auth"), "client.auth-push", func(ctx context.Context, ev events.Event) error {
		// The backend occasionally re-sends the auth payload as a push,
		// e.g. after a session refresh.
		msg, ok := ev.Payload.(events.ServerMessage)
		if !ok {
			return nil
		}
		snap, err := c.profile.ApplyAuth(msg.Payload)
		if err != nil {
			c.log.Warn().Err(err).Msg("Ignoring auth push")
			return nil
		}
		c.bus.Emit(ctx, events.Event{Type: events.EventProfileUpdated, Source: "client", Payload: snap})
		return nil
	})

	c.bus.Subscribe(events.MessageEvent("leaderboard"), "client.leaderboard", func(ctx context.Context, ev events.Event) error {
		msg, ok := ev.Payload.(events.ServerMessage)
		if !ok {
			return nil
		}
		snap, err := c.boards.applyBoard(msg.Payload)
		if err != nil {
			c.log.Warn().Err(err).Msg("Ignoring leaderboard push")
			return nil
		}
		c.bus.Emit(ctx, events.Event{Type: events.EventLeaderboardSnapshot, Source: "client", Payload: snap})
		return nil
	})

	c.bus.Subscribe(events.MessageEvent("error"), "client.server-error", func(ctx context.Context, ev events.Event) error {
		msg, ok := ev.Payload.(events.ServerMessage)
		if !ok {
			return nil
		}
		if serr := protocol.ServerErrorFromPayload(msg.Payload); serr != nil {
			c.log.Warn().Int("code", serr.Code).Str("message", serr.Message).Msg("Server error push")
			c.bus.Emit(ctx, events.Event{Type: events.EventServerError, Source: "client", Payload: serr})
		}
		return nil
	})

	c.bus.Subscribe(events.EventDisconnected, "client.reset", func(ctx context.Context, ev events.Event) error {
		c.profile.Reset()
		return nil
	})
}

type authRequest struct {
	Login         string  `json:"login"`
	Password      string  `json:"password"`
	UserName      *string `json:"userName"`
	Provider      int     `json:"provider"`
	VersionNumber string  `json:"versionNumber"`
	UDID          string  `json:"udid"`
	Platform      int     `json:"platform"`
	Language      int     `json:"language"`
	LogInType     int     `json:"logInType"`
	GuestToken    *string `json:"guestToken"`
}

// Authenticate performs the login exchange and populates the profile from the
// embedded user object. Any failure resets the profile and surfaces an
// AuthError; there is no automatic retry.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (ProfileSnapshot, error) {
	payload := authRequest{
		Login:         creds.Login,
		Password:      creds.Password,
		Provider:      authProvider,
		VersionNumber: authVersionNumber,
		UDID:          authUDID,
		Platform:      authPlatform,
		Language:      authLanguage,
		LogInType:     authLogInType,
	}
	c.log.Info().Str("login", creds.Login).Msg("Authenticating")

	resp, err := c.sender.Send(ctx, "auth", payload, true)
	if err != nil {
		c.profile.Reset()
		return ProfileSnapshot{}, &AuthError{Reason: "auth request failed", Err: err}
	}
	if serr := protocol.ServerErrorFromPayload(resp.Payload); serr != nil {
		c.profile.Reset()
		return ProfileSnapshot{}, &AuthError{Reason: "server rejected credentials", Err: serr}
	}

	snap, err := c.profile.ApplyAuth(resp.Payload)
	if err != nil {
		return ProfileSnapshot{}, err
	}
	c.log.Info().
		Str("playerId", snap.PlayerID).
		Float64("chips", snap.Chips).
		Float64("vipCoin", snap.VIPCoin).
		Float64("ftnBalance", snap.FTNBalance).
		Msg("Authenticated")
	c.bus.Emit(ctx, events.Event{Type: events.EventAuthenticated, Source: "client", Payload: snap})
	return snap, nil
}
