package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gameeflow-project/gameeflow/internal/client"
	"github.com/gameeflow-project/gameeflow/internal/transport"
)

// handleConnect opens the websocket session and completes the handshake.
func (s *Server) handleConnect(c *gin.Context) {
	if s.session.State() == transport.StateReady {
		c.JSON(http.StatusConflict, gin.H{"error": "session already connected"})
		return
	}

	if err := s.session.Connect(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("API: connect failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "connected",
		"state":  s.session.State().String(),
	})
}

// handleDisconnect closes the websocket session.
func (s *Server) handleDisconnect(c *gin.Context) {
	s.sched.StopEndless()
	s.session.Disconnect()

	c.JSON(http.StatusOK, gin.H{
		"status": "disconnected",
	})
}

// handleAuthenticate logs in with the configured credentials.
func (s *Server) handleAuthenticate(c *gin.Context) {
	backend := s.cfg.GetBackendData()
	creds := client.Credentials{
		Login:            backend.Login,
		Password:         backend.Password,
		FastexUserID:     backend.FastexUserID,
		FTNAddress:       backend.FTNAddress,
		WithdrawalAmount: backend.WithdrawalAmount,
	}

	snap, err := s.client.Authenticate(c.Request.Context(), creds)
	if err != nil {
		var authErr *client.AuthError
		if errors.As(err, &authErr) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "authenticated",
		"player_id":   snap.PlayerID,
		"vip_coin":    snap.VIPCoin,
		"ftn_balance": snap.FTNBalance,
	})
}

// handleStartEndless starts the endless submission loop.
func (s *Server) handleStartEndless(c *gin.Context) {
	// Use background context — the loop must outlive the HTTP request.
	if err := s.sched.StartEndless(context.Background()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	log.Info().Msg("API: endless submission started")
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// handleStopEndless stops the endless submission loop.
func (s *Server) handleStopEndless(c *gin.Context) {
	s.sched.StopEndless()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// handleSubmitScore submits the next score in the round sequence.
func (s *Server) handleSubmitScore(c *gin.Context) {
	if _, err := s.submitter.SubmitNext(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "submitted",
		"round_index": s.submitter.RoundIndex(),
		"total":       s.submitter.Total(),
	})
}

// handleCollectReward runs the reward collection choreography.
func (s *Server) handleCollectReward(c *gin.Context) {
	// Use background context — the sequence must outlive the HTTP request.
	go func() {
		if err := s.submitter.CollectReward(context.Background()); err != nil {
			log.Error().Err(err).Msg("API: reward collection failed")
		}
	}()

	c.JSON(http.StatusOK, gin.H{"status": "collecting"})
}

// handleRefreshLeaderboards fetches fresh leaderboard data.
func (s *Server) handleRefreshLeaderboards(c *gin.Context) {
	if err := s.client.RefreshLeaderboards(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "refreshed",
		"boards": len(s.client.Leaderboards()),
	})
}

// handleCollectBonus claims a bonus by ID.
func (s *Server) handleCollectBonus(c *gin.Context) {
	bonusID, err := parseIntParam(c, "bonus_id")
	if err != nil {
		return
	}

	if err := s.client.CollectBonus(c.Request.Context(), bonusID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "collected",
		"bonus_id": bonusID,
	})
}

// handlePayout requests an FTN withdrawal. The body may override the
// configured amount and destination.
func (s *Server) handlePayout(c *gin.Context) {
	backend := s.cfg.GetBackendData()

	body := struct {
		Amount       string `json:"amount"`
		FastexUserID string `json:"fastexUserId"`
		FTNAddress   string `json:"ftnAddress"`
	}{
		Amount:       backend.WithdrawalAmount,
		FastexUserID: backend.FastexUserID,
		FTNAddress:   backend.FTNAddress,
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	err := s.client.PayoutFTN(c.Request.Context(), body.Amount, body.FastexUserID, body.FTNAddress)
	if err != nil {
		var payoutErr *client.PayoutError
		if errors.As(err, &payoutErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": payoutErr.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	log.Info().Str("amount", body.Amount).Msg("API: payout requested")
	c.JSON(http.StatusOK, gin.H{
		"status": "requested",
		"amount": body.Amount,
	})
}

// handleSwap requests a currency swap.
func (s *Server) handleSwap(c *gin.Context) {
	var body struct {
		Amount   string `json:"amount" binding:"required"`
		Currency string `json:"currency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount and currency are required"})
		return
	}

	if err := s.client.SwapTransactions(c.Request.Context(), body.Amount, body.Currency); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "requested",
		"amount":   body.Amount,
		"currency": body.Currency,
	})
}

// parseIntParam extracts and validates a numeric URL parameter.
func parseIntParam(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		if err == nil {
			err = errors.New("negative " + name)
		}
		return 0, err
	}
	return v, nil
}
