package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// LeaderboardPlayer is one row of a board snapshot.
type LeaderboardPlayer struct {
	ID       string
	NickName string
	XP       float64
	Points   float64
	Chips    float64
}

// LeaderboardSnapshot is the latest known state of one board.
type LeaderboardSnapshot struct {
	ID        int
	Name      string
	Players   []LeaderboardPlayer
	UpdatedAt time.Time
}

type leaderboardCache struct {
	mu     sync.RWMutex
	boards map[int]LeaderboardSnapshot
}

func newLeaderboardCache() *leaderboardCache {
	return &leaderboardCache{boards: make(map[int]LeaderboardSnapshot)}
}

type wirePlayer struct {
	ID       looseString `json:"id"`
	NickName string      `json:"nickName"`
	XP       looseFloat  `json:"xp"`
	Score    *looseFloat `json:"score"`
	Points   *looseFloat `json:"points"`
	Chips    looseFloat  `json:"chips"`
}

type wireBoard struct {
	ID      looseString  `json:"id"`
	Name    string       `json:"name"`
	Players []wirePlayer `json:"players"`
}

// applyBoard ingests a leaderboard push. The board id either sits inside the
// leaderboard object or at the payload's top level, depending on the request
// that triggered the push.
func (c *leaderboardCache) applyBoard(payload json.RawMessage) (LeaderboardSnapshot, error) {
	var body struct {
		Leaderboard   *wireBoard  `json:"leaderboard"`
		LeaderBoardID looseString `json:"leaderBoardId"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return LeaderboardSnapshot{}, fmt.Errorf("malformed leaderboard payload: %w", err)
	}
	if body.Leaderboard == nil {
		return LeaderboardSnapshot{}, fmt.Errorf("leaderboard payload carries no board")
	}

	idStr := string(body.Leaderboard.ID)
	if idStr == "" {
		idStr = string(body.LeaderBoardID)
	}
	var id int
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return LeaderboardSnapshot{}, fmt.Errorf("leaderboard id %q is not numeric", idStr)
	}

	players := make([]LeaderboardPlayer, 0, len(body.Leaderboard.Players))
	for _, p := range body.Leaderboard.Players {
		points := 0.0
		// Some variants report score, others points.
		if p.Score != nil {
			points = float64(*p.Score)
		} else if p.Points != nil {
			points = float64(*p.Points)
		}
		players = append(players, LeaderboardPlayer{
			ID:       string(p.ID),
			NickName: p.NickName,
			XP:       float64(p.XP),
			Points:   points,
			Chips:    float64(p.Chips),
		})
	}

	snap := LeaderboardSnapshot{
		ID:        id,
		Name:      body.Leaderboard.Name,
		Players:   players,
		UpdatedAt: time.Now(),
	}
	c.mu.Lock()
	c.boards[id] = snap
	c.mu.Unlock()
	return snap, nil
}

func (c *leaderboardCache) snapshots() []LeaderboardSnapshot {
	c.mu.RLock()
	out := make([]LeaderboardSnapshot, 0, len(c.boards))
	for _, b := range c.boards {
		out = append(out, b)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Leaderboards returns the cached board snapshots, ordered by id.
func (c *Client) Leaderboards() []LeaderboardSnapshot {
	return c.boards.snapshots()
}

// RefreshLeaderboards asks for the board list and then for the player rows of
// every configured board. Results arrive as leaderboard pushes and land in
// the cache.
func (c *Client) RefreshLeaderboards(ctx context.Context) error {
	if _, err := c.action(ctx, "getLeaderBoard", nil, false); err != nil {
		return fmt.Errorf("leaderboard list: %w", err)
	}
	for _, id := range c.opts.LeaderboardIDs {
		if _, err := c.action(ctx, "getLeaderBoardPlayers", map[string]int{"leaderBoardId": id}, false); err != nil {
			return fmt.Errorf("leaderboard %d players: %w", id, err)
		}
		if err := pause(ctx, c.opts.StepDelay); err != nil {
			return err
		}
	}
	return nil
}
