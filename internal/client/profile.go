package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// looseFloat accepts both JSON numbers and numeric strings. The backend is
// inconsistent about which one it sends for balances.
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("numeric string %q: %w", s, err)
		}
		*f = looseFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = looseFloat(v)
	return nil
}

// looseString accepts a JSON string or a bare number; player ids have been
// seen as both.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(data)
	return nil
}

// ProfileSnapshot is a point-in-time copy of the authenticated player state.
type ProfileSnapshot struct {
	SessionToken string
	PlayerID     string
	VIPCoin      float64
	Chips        float64
	FTNBalance   float64
}

// Profile is the single source of truth for the session token and the three
// balances. It is written by the auth response, by profileUpdate pushes, and
// by score-submission responses, and read by the hash builder, which must
// always see the latest value at the moment of send.
type Profile struct {
	mu   sync.RWMutex
	snap ProfileSnapshot
}

func NewProfile() *Profile {
	return &Profile{}
}

func (p *Profile) Snapshot() ProfileSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Profile) SessionToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.SessionToken
}

func (p *Profile) VIPCoin() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.VIPCoin
}

func (p *Profile) FTNBalance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.FTNBalance
}

func (p *Profile) Authenticated() bool {
	return p.SessionToken() != ""
}

// Reset clears token, player id, and balances. Called on disconnect and on
// authentication failure.
func (p *Profile) Reset() {
	p.mu.Lock()
	p.snap = ProfileSnapshot{}
	p.mu.Unlock()
}

type authUser struct {
	Token      string      `json:"token"`
	PlayerID   looseString `json:"playerId"`
	VIPCoin    looseFloat  `json:"vipCoin"`
	Chips      looseFloat  `json:"chips"`
	FTNBalance looseFloat  `json:"ftnBalance"`
}

// ApplyAuth populates the profile from an auth response payload. A missing or
// tokenless user object resets the profile and fails.
func (p *Profile) ApplyAuth(payload json.RawMessage) (ProfileSnapshot, error) {
	var body struct {
		User *authUser `json:"user"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		p.Reset()
		return ProfileSnapshot{}, &AuthError{Reason: "malformed auth response", Err: err}
	}
	if body.User == nil || body.User.Token == "" {
		p.Reset()
		return ProfileSnapshot{}, &AuthError{Reason: "auth response carries no user token"}
	}

	snap := ProfileSnapshot{
		SessionToken: body.User.Token,
		PlayerID:     string(body.User.PlayerID),
		VIPCoin:      float64(body.User.VIPCoin),
		Chips:        float64(body.User.Chips),
		FTNBalance:   float64(body.User.FTNBalance),
	}
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
	return snap, nil
}

type profilePatch struct {
	VIPCoin    *looseFloat `json:"vipCoin"`
	Chips      *looseFloat `json:"chips"`
	FTNBalance *looseFloat `json:"ftnBalance"`
}

// ApplyUpdate merges a profileUpdate push into the balances. Fields absent
// from the push keep their previous value; the token and player id are never
// touched by pushes.
func (p *Profile) ApplyUpdate(payload json.RawMessage) (ProfileSnapshot, error) {
	var body struct {
		Profile *profilePatch `json:"profile"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ProfileSnapshot{}, fmt.Errorf("malformed profile update: %w", err)
	}
	patch := body.Profile
	if patch == nil {
		// Some pushes carry the fields at the top level.
		patch = &profilePatch{}
		if err := json.Unmarshal(payload, patch); err != nil {
			return ProfileSnapshot{}, fmt.Errorf("malformed profile update: %w", err)
		}
	}

	p.mu.Lock()
	if patch.VIPCoin != nil {
		p.snap.VIPCoin = float64(*patch.VIPCoin)
	}
	if patch.Chips != nil {
		p.snap.Chips = float64(*patch.Chips)
	}
	if patch.FTNBalance != nil {
		p.snap.FTNBalance = float64(*patch.FTNBalance)
	}
	snap := p.snap
	p.mu.Unlock()
	return snap, nil
}
