package client

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/protocol"
	"github.com/gameeflow-project/gameeflow/internal/transport"
)

// RoundLength is how many submissions the backend accepts within one game
// session before it expects the session to be ended and reopened. Observed
// backend behavior, not a tunable.
const RoundLength = 43

// SyncStateMode selects the syncState rule for indices outside the fixed
// table. The backend tolerated both rules at different times, so the choice
// is configuration, not code.
type SyncStateMode string

const (
	// SyncModeAlways forces syncState true on every submission.
	SyncModeAlways SyncStateMode = "always"
	// SyncModeParity alternates syncState by index parity (even true).
	SyncModeParity SyncStateMode = "parity"
)

// ScorePolicy is the index → (score, syncState) rule for automated
// submissions. Indices 0–3 follow a fixed table the backend verifies; from
// index 4 on, the score is (index+1)*Multiplier plus a uniform jitter in
// [-Jitter, Jitter].
type ScorePolicy struct {
	Multiplier int
	Jitter     int
	SyncMode   SyncStateMode

	randInt func(n int) int
}

func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{Multiplier: 10, Jitter: 10, SyncMode: SyncModeAlways}
}

// fixedPlan holds the submissions the backend verifies literally. Index 3
// must carry syncState true no matter the configured mode.
var fixedPlan = map[int]int{0: 0, 1: 0, 2: 9, 3: 22}

func (p ScorePolicy) syncStateAt(index int) bool {
	if index == 3 {
		return true
	}
	if p.SyncMode == SyncModeParity {
		return index%2 == 0
	}
	return true
}

// Plan returns the score and syncState for one automated submission.
func (p ScorePolicy) Plan(index int) (score int, syncState bool) {
	if fixed, ok := fixedPlan[index]; ok {
		return fixed, p.syncStateAt(index)
	}
	draw := rand.Intn
	if p.randInt != nil {
		draw = p.randInt
	}
	jitter := 0
	if p.Jitter > 0 {
		jitter = draw(2*p.Jitter+1) - p.Jitter
	}
	return (index+1)*p.Multiplier + jitter, p.syncStateAt(index)
}

// scoreSubmission is the wire form of one gameScore request.
type scoreSubmission struct {
	StartScore float64 `json:"startScore"`
	Index      int     `json:"index"`
	IndexTime  string  `json:"indexTime"`
	SyncState  bool    `json:"syncState"`
	Hash       string  `json:"hash"`
	FTN        string  `json:"ftn"`
	Score      int     `json:"score"`
}

// Submission is one logical score submission request.
type Submission struct {
	Score     int
	Index     int
	FTN       string
	SyncState bool
	IndexTime string
	// StartScoreOverride, when set, replaces the profile's vipCoin as the
	// hash base for the first attempt. The retry path always re-reads the
	// freshest balance.
	StartScoreOverride *float64
}

// Submitter is the score-submission state machine: it builds hash-signed
// gameScore payloads, performs the single retry the protocol defines for a
// stale start score, and rolls the round over after RoundLength submissions.
type Submitter struct {
	c      *Client
	policy ScorePolicy
	now    func() time.Time

	mu    sync.Mutex
	index int
	total int
}

func NewSubmitter(c *Client, policy ScorePolicy) *Submitter {
	if policy.Multiplier <= 0 {
		policy.Multiplier = 10
	}
	return &Submitter{c: c, policy: policy, now: time.Now}
}

func (s *Submitter) Policy() ScorePolicy { return s.policy }

// RoundIndex is the index the next automated submission will use.
func (s *Submitter) RoundIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Total is the cumulative submission count for this run.
func (s *Submitter) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ResetRound zeroes the round index, e.g. after a manual endGame.
func (s *Submitter) ResetRound() {
	s.mu.Lock()
	s.index = 0
	s.mu.Unlock()
}

func (s *Submitter) buildPayload(sub Submission, override *float64) scoreSubmission {
	// The balance is read at the moment of send; a value captured earlier
	// in the call chain may already be stale.
	start := s.c.profile.VIPCoin()
	if override != nil {
		start = *override
	}
	canonical := protocol.ScoreCanonical(start, sub.Index, sub.IndexTime, sub.SyncState, sub.FTN, sub.Score, s.c.profile.SessionToken())
	return scoreSubmission{
		StartScore: start,
		Index:      sub.Index,
		IndexTime:  sub.IndexTime,
		SyncState:  sub.SyncState,
		Hash:       protocol.Digest(canonical),
		FTN:        sub.FTN,
		Score:      sub.Score,
	}
}

// Submit sends one gameScore request. A response carrying error code 33
// (stale start score) is retried exactly once with a freshly read balance and
// recomputed hash; every other error surfaces to the caller untouched.
func (s *Submitter) Submit(ctx context.Context, sub Submission) (*transport.Response, error) {
	if !s.c.profile.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if sub.IndexTime == "" {
		sub.IndexTime = protocol.FormatIndexTime(s.now())
	}

	payload := s.buildPayload(sub, sub.StartScoreOverride)
	s.c.log.Debug().
		Int("index", sub.Index).
		Int("score", sub.Score).
		Float64("startScore", payload.StartScore).
		Bool("syncState", sub.SyncState).
		Msg("Submitting score")

	resp, err := s.c.action(ctx, "gameScore", payload, true)
	if err != nil {
		return nil, err
	}

	retried := false
	serr := protocol.ServerErrorFromPayload(resp.Payload)
	if serr != nil && serr.Code == protocol.ErrCodeStaleStartScore {
		retried = true
		s.c.log.Warn().Int("index", sub.Index).Msg("Stale start score, retrying with fresh balance")
		payload = s.buildPayload(sub, nil)
		resp, err = s.c.action(ctx, "gameScore", payload, true)
		if err != nil {
			return nil, err
		}
		serr = protocol.ServerErrorFromPayload(resp.Payload)
	}

	result := events.SubmissionResult{
		Index:      sub.Index,
		Score:      sub.Score,
		StartScore: payload.StartScore,
		SyncState:  sub.SyncState,
		Retried:    retried,
	}
	if serr != nil {
		result.ErrorCode = serr.Code
		s.c.log.Warn().Int("index", sub.Index).Int("code", serr.Code).Str("message", serr.Message).Msg("Score rejected")
		s.c.bus.Emit(ctx, events.Event{Type: events.EventScoreRejected, Source: "submitter", Payload: result})
		return resp, serr
	}

	// Successful submissions may echo an updated balance.
	if _, err := s.c.profile.ApplyUpdate(resp.Payload); err == nil {
		s.c.bus.Emit(ctx, events.Event{Type: events.EventProfileUpdated, Source: "submitter", Payload: s.c.profile.Snapshot()})
	}
	s.c.log.Info().Int("index", sub.Index).Int("score", sub.Score).Msg("Score accepted")
	s.c.bus.Emit(ctx, events.Event{Type: events.EventScoreSubmitted, Source: "submitter", Payload: result})
	return resp, nil
}

// SubmitNext performs one automated submission at the current round index,
// applying the score policy. When the round is exhausted it first ends the
// game session, starts a new one, and restarts the index at 0.
func (s *Submitter) SubmitNext(ctx context.Context) (*transport.Response, error) {
	s.mu.Lock()
	if s.index >= RoundLength {
		s.mu.Unlock()
		if err := s.rollRound(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
	}
	index := s.index
	s.mu.Unlock()

	score, syncState := s.policy.Plan(index)
	resp, err := s.Submit(ctx, Submission{
		Score:     score,
		Index:     index,
		FTN:       endlessFTN(index),
		SyncState: syncState,
	})
	if err != nil {
		return resp, err
	}

	s.mu.Lock()
	s.index++
	s.total++
	s.mu.Unlock()
	return resp, nil
}

// rollRound ends the current game session and opens a fresh one.
func (s *Submitter) rollRound(ctx context.Context) error {
	s.c.log.Info().Int("roundLength", RoundLength).Msg("Round exhausted, restarting game session")
	if err := s.c.EndGame(ctx); err != nil {
		return fmt.Errorf("end game: %w", err)
	}
	if err := s.c.StartGame(ctx); err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	s.mu.Lock()
	s.index = 0
	s.mu.Unlock()
	s.c.bus.Emit(ctx, events.Event{Type: events.EventRoundReset, Source: "submitter"})
	return nil
}

// endlessFTN mimics the reference traffic: roughly half the index, with a
// small random wobble.
func endlessFTN(index int) string {
	return strconv.Itoa((index+1)/2 + rand.Intn(2))
}

// CollectReward runs the fixed reward choreography: refresh the session,
// fetch levels, pull the configured leaderboards, fetch upgrades, open a game
// session, then submit the four table scores at indices 0–3. Steps are paced
// so the server-side balance settles before the next hash is computed; the
// first failing step aborts the rest.
func (s *Submitter) CollectReward(ctx context.Context) error {
	if !s.c.profile.Authenticated() {
		return ErrNotAuthenticated
	}
	s.c.log.Info().Msg("Collecting reward")

	if err := s.c.UpdateSession(ctx); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if err := s.c.GetLevels(ctx); err != nil {
		return fmt.Errorf("get levels: %w", err)
	}
	for _, id := range s.c.opts.LeaderboardIDs {
		if _, err := s.c.action(ctx, "getLeaderBoardPlayers", map[string]int{"leaderBoardId": id}, false); err != nil {
			return fmt.Errorf("leaderboard %d players: %w", id, err)
		}
		if err := pause(ctx, s.c.opts.StepDelay); err != nil {
			return err
		}
	}
	if err := s.c.GetUpgrades(ctx); err != nil {
		return fmt.Errorf("get upgrades: %w", err)
	}
	if err := s.c.StartGame(ctx); err != nil {
		return fmt.Errorf("start game: %w", err)
	}

	for index := 0; index <= 3; index++ {
		score, syncState := s.policy.Plan(index)
		if _, err := s.Submit(ctx, Submission{
			Score:     score,
			Index:     index,
			FTN:       "0",
			SyncState: syncState,
		}); err != nil {
			return fmt.Errorf("submit index %d: %w", index, err)
		}
		if err := pause(ctx, s.c.opts.StepDelay); err != nil {
			return err
		}
	}
	s.c.log.Info().Msg("Reward sequence complete")
	return nil
}
