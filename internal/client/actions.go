package client

import (
	"context"
	"strconv"
	"time"

	"github.com/gameeflow-project/gameeflow/internal/transport"
)

// actionEnvelope is the generic wrapper for server-side operations: the
// request field names the operation, data carries its arguments.
type actionEnvelope struct {
	Request string `json:"request"`
	Data    any    `json:"data,omitempty"`
}

func (c *Client) action(ctx context.Context, request string, data any, wait bool) (*transport.Response, error) {
	c.log.Debug().Str("request", request).Msg("Action")
	return c.sender.Send(ctx, "action", actionEnvelope{Request: request, Data: data}, wait)
}

type startGameRequest struct {
	SessionToken string `json:"sessionToken"`
	GameType     string `json:"gameType"`
	GameID       int    `json:"gameId"`
}

// StartGame opens a new game session. Requires authentication: the payload
// carries the session token.
func (c *Client) StartGame(ctx context.Context) error {
	token := c.profile.SessionToken()
	if token == "" {
		return ErrNotAuthenticated
	}
	c.log.Info().Int("gameId", c.opts.GameID).Msg("Starting game")
	_, err := c.sender.Send(ctx, "start_game", startGameRequest{
		SessionToken: token,
		GameType:     "default",
		GameID:       c.opts.GameID,
	}, false)
	return err
}

func (c *Client) GameCrash(ctx context.Context) error {
	_, err := c.action(ctx, "gameCrash", nil, false)
	return err
}

func (c *Client) EndGame(ctx context.Context) error {
	_, err := c.action(ctx, "endGame", nil, false)
	return err
}

func (c *Client) UpdateSession(ctx context.Context) error {
	_, err := c.action(ctx, "updateSession", nil, false)
	return err
}

func (c *Client) GetLevels(ctx context.Context) error {
	_, err := c.action(ctx, "getLevels", nil, false)
	return err
}

// GetUpgrades fetches both upgrade catalogues; the backend splits them by a
// numeric type discriminator.
func (c *Client) GetUpgrades(ctx context.Context) error {
	for _, typ := range []int{0, 1} {
		if _, err := c.action(ctx, "getUpgrades", map[string]int{"type": typ}, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) GetFriends(ctx context.Context) error {
	_, err := c.action(ctx, "getFriends", nil, false)
	return err
}

func (c *Client) GetFriendRequests(ctx context.Context) error {
	_, err := c.action(ctx, "getFriendRequests", nil, false)
	return err
}

func (c *Client) GetUserNotification(ctx context.Context) error {
	_, err := c.action(ctx, "getUserNotification", nil, false)
	return err
}

func (c *Client) UserListForFriend(ctx context.Context, page int) error {
	_, err := c.action(ctx, "userListForFriend", map[string]int{"page": page}, false)
	return err
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	_, err := c.action(ctx, "deleteAccount", nil, false)
	return err
}

func (c *Client) GetRate(ctx context.Context) error {
	_, err := c.action(ctx, "getRate", nil, false)
	return err
}

func (c *Client) SwapTransactions(ctx context.Context, amount, currency string) error {
	_, err := c.action(ctx, "swapTransactions", map[string]string{
		"amount":   amount,
		"currency": currency,
	}, false)
	return err
}

func (c *Client) CollectBonus(ctx context.Context, bonusID int) error {
	_, err := c.action(ctx, "collectBonus", map[string]int{"bonusId": bonusID}, false)
	return err
}

type payoutRequest struct {
	Amount       string `json:"amount"`
	FastexUserID string `json:"fastexUserId"`
	FTNAddress   string `json:"ftnAddress"`
}

// PayoutFTN requests a withdrawal. The amount is validated against the local
// FTN balance before anything hits the wire.
func (c *Client) PayoutFTN(ctx context.Context, amount, fastexUserID, ftnAddress string) error {
	parsed, err := strconv.ParseFloat(amount, 64)
	if err != nil || parsed <= 0 {
		return &PayoutError{Reason: "invalid withdrawal amount " + strconv.Quote(amount)}
	}
	if balance := c.profile.FTNBalance(); balance < parsed {
		return &PayoutError{Reason: "insufficient FTN balance " + strconv.FormatFloat(balance, 'f', -1, 64)}
	}
	c.log.Info().Str("amount", amount).Msg("Requesting FTN payout")
	_, err = c.action(ctx, "payoutFTN", payoutRequest{
		Amount:       amount,
		FastexUserID: fastexUserID,
		FTNAddress:   ftnAddress,
	}, false)
	return err
}

// pause sleeps for d unless the context is cancelled first. Used to pace
// multi-step choreographies the way the real client does.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
