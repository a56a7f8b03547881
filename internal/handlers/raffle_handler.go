// Raffle Handlers - public raffle API
package handlers

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"raffle-backend/internal/dto"
	"raffle-backend/internal/metrics"
	"raffle-backend/internal/raffle"
	"raffle-backend/internal/repository"
	"raffle-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// RaffleAPI operations the handler needs from the raffle
type RaffleAPI interface {
	Enter(ctx context.Context, participant common.Address, amount *big.Int) error
	EnterRound(ctx context.Context, round uint64, participant common.Address, amount *big.Int) error
	Round() uint64
	CheckUpkeep(ctx context.Context) raffle.UpkeepStatus
	PerformUpkeep(ctx context.Context) (*big.Int, error)
	Player(index int) (common.Address, error)
	Snapshot() raffle.Snapshot
	Config() raffle.Config
	NumWords() uint32
}

// PoolLedger balances of the prize pool and of participant accounts
type PoolLedger interface {
	Balance(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// RaffleHandler serves the public raffle endpoints
type RaffleHandler struct {
	raffle           RaffleAPI
	ledger           PoolLedger
	repo             repository.RaffleRepository // nil when history is disabled
	requireSignature bool
	logger           *logrus.Logger

	nonceMu    sync.Mutex
	nonceRound uint64
	usedNonces map[string]struct{} // nonces of nonceRound only
}

// NewRaffleHandler creates a new RaffleHandler instance
func NewRaffleHandler(r RaffleAPI, ledger PoolLedger, repo repository.RaffleRepository, requireSignature bool, logger *logrus.Logger) *RaffleHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RaffleHandler{
		raffle:           r,
		ledger:           ledger,
		repo:             repo,
		requireSignature: requireSignature,
		logger:           logger,
		usedNonces:       make(map[string]struct{}),
	}
}

// GetRaffleHandler returns the raffle snapshot
// GET /api/raffle
func (h *RaffleHandler) GetRaffleHandler(c *gin.Context) {
	ctx := c.Request.Context()
	cfg := h.raffle.Config()
	snap := h.raffle.Snapshot()

	balance, err := h.ledger.Balance(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read pool balance")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to read pool balance",
			"code":    "LEDGER_UNAVAILABLE",
		})
		return
	}

	resp := dto.RaffleStateResponse{
		Address:              cfg.Address.Hex(),
		Coordinator:          cfg.Coordinator.Hex(),
		RaffleState:          snap.Phase.String(),
		RaffleStateCode:      uint8(snap.Phase),
		EntranceFee:          cfg.EntranceFee.String(),
		EntranceFeeEther:     utils.WeiToEther(cfg.EntranceFee),
		IntervalSeconds:      int64(cfg.Interval.Seconds()),
		NumPlayers:           len(snap.Players),
		RecentWinner:         snap.RecentWinner.Hex(),
		LatestTimestamp:      snap.LastTimestamp.UTC(),
		Round:                snap.Round,
		PoolBalance:          balance.String(),
		PoolBalanceEther:     utils.WeiToEther(balance),
		NumWords:             h.raffle.NumWords(),
		RequestConfirmations: cfg.RequestConfirmations,
		UpkeepNeeded:         h.raffle.CheckUpkeep(ctx).Due,
	}
	if snap.PendingRequestID != nil {
		resp.PendingRequestID = snap.PendingRequestID.String()
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resp,
	})
}

// ListPlayersHandler lists current round entrants in entry order
// GET /api/raffle/players
func (h *RaffleHandler) ListPlayersHandler(c *gin.Context) {
	snap := h.raffle.Snapshot()
	players := make([]dto.PlayerResponse, len(snap.Players))
	for i, p := range snap.Players {
		players[i] = dto.PlayerResponse{Index: i, Address: p.Hex()}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"round":   snap.Round,
		"players": players,
		"total":   len(players),
	})
}

// GetPlayerHandler returns the entrant at an index
// GET /api/raffle/players/:index
func (h *RaffleHandler) GetPlayerHandler(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid player index",
			"code":    "INVALID_INDEX",
		})
		return
	}

	player, err := h.raffle.Player(index)
	if err != nil {
		respondRaffleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dto.PlayerResponse{Index: index, Address: player.Hex()},
	})
}

// EnterRaffleHandler enters a participant
// POST /api/raffle/enter
func (h *RaffleHandler) EnterRaffleHandler(c *gin.Context) {
	var req dto.EnterRaffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	participant, err := utils.ParseAddress(req.Participant)
	if err != nil {
		h.rejectEntry(c, http.StatusBadRequest, "INVALID_ADDRESS", err.Error())
		return
	}
	amount, err := utils.ParseWei(req.Amount)
	if err != nil {
		h.rejectEntry(c, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}

	nonceKey := ""
	round := req.Round
	if h.requireSignature || req.Signature != "" {
		if req.Nonce == "" || req.Signature == "" {
			h.rejectEntry(c, http.StatusUnauthorized, "SIGNATURE_REQUIRED", "nonce and signature are required")
			return
		}
		if round == 0 {
			round = h.raffle.Round()
		}
		message := utils.EntryMessage(h.raffle.Config().Address, round, participant, amount, req.Nonce)
		if err := utils.VerifySigner(message, req.Signature, participant); err != nil {
			h.logger.WithFields(logrus.Fields{
				"participant": participant.Hex(),
				"error":       err.Error(),
			}).Warn("Rejected entry signature")
			h.rejectEntry(c, http.StatusUnauthorized, "INVALID_SIGNATURE", err.Error())
			return
		}
		nonceKey = strings.ToLower(participant.Hex()) + ":" + req.Nonce
		if !h.reserveNonce(round, nonceKey) {
			h.rejectEntry(c, http.StatusConflict, "SIGNATURE_REPLAYED", "nonce already used")
			return
		}
	}

	if nonceKey != "" {
		err = h.raffle.EnterRound(c.Request.Context(), round, participant, amount)
	} else {
		err = h.raffle.Enter(c.Request.Context(), participant, amount)
	}
	if err != nil {
		if nonceKey != "" {
			h.releaseNonce(round, nonceKey)
		}
		status, code := raffleErrorStatus(err)
		metrics.RaffleEntries.WithLabelValues(strings.ToLower(code)).Inc()
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    code,
		})
		return
	}

	metrics.RaffleEntries.WithLabelValues("success").Inc()
	snap := h.raffle.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.EnterRaffleResponse{
			Participant: participant.Hex(),
			Amount:      amount.String(),
			Round:       snap.Round,
			Players:     len(snap.Players),
		},
	})
}

func (h *RaffleHandler) rejectEntry(c *gin.Context, status int, code, message string) {
	metrics.RaffleEntries.WithLabelValues(strings.ToLower(code)).Inc()
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// reserveNonce marks key used for round. Seeing a later round drops the
// nonces of earlier ones; signatures for those rounds are refused by
// EnterRound, so they are not tracked.
func (h *RaffleHandler) reserveNonce(round uint64, key string) bool {
	h.nonceMu.Lock()
	defer h.nonceMu.Unlock()
	if round > h.nonceRound {
		h.nonceRound = round
		h.usedNonces = make(map[string]struct{})
	}
	if round < h.nonceRound {
		return true
	}
	if _, used := h.usedNonces[key]; used {
		return false
	}
	h.usedNonces[key] = struct{}{}
	return true
}

func (h *RaffleHandler) releaseNonce(round uint64, key string) {
	h.nonceMu.Lock()
	defer h.nonceMu.Unlock()
	if round == h.nonceRound {
		delete(h.usedNonces, key)
	}
}

// CheckUpkeepHandler reports whether performUpkeep would succeed now
// GET /api/raffle/upkeep
func (h *RaffleHandler) CheckUpkeepHandler(c *gin.Context) {
	status := h.raffle.CheckUpkeep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    upkeepResponse(status),
	})
}

// PerformUpkeepHandler closes the round and requests randomness
// POST /api/raffle/upkeep
func (h *RaffleHandler) PerformUpkeepHandler(c *gin.Context) {
	requestID, err := h.raffle.PerformUpkeep(c.Request.Context())
	if err != nil {
		var notNeeded *raffle.UpkeepNotNeededError
		if errors.As(err, &notNeeded) {
			metrics.RandomnessRequests.WithLabelValues("skipped").Inc()
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "UPKEEP_NOT_NEEDED",
				"data":    upkeepResponse(notNeeded.Status),
			})
			return
		}
		metrics.RandomnessRequests.WithLabelValues("failed").Inc()
		respondRaffleError(c, err)
		return
	}

	metrics.RandomnessRequests.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.PerformUpkeepResponse{
			RequestID: requestID.String(),
			Round:     h.raffle.Snapshot().Round,
		},
	})
}

func upkeepResponse(status raffle.UpkeepStatus) dto.UpkeepStatusResponse {
	balance := "0"
	if status.Balance != nil {
		balance = status.Balance.String()
	}
	return dto.UpkeepStatusResponse{
		UpkeepNeeded: status.Due,
		IsOpen:       status.Open,
		HasPlayers:   status.HasPlayers,
		TimePassed:   status.TimePassed,
		HasBalance:   status.HasBalance,
		RaffleState:  status.Phase.String(),
		NumPlayers:   status.Players,
		Balance:      balance,
		Reason:       status.Reason(),
	}
}

// ListWinnersHandler settled rounds, newest first
// GET /api/raffle/winners?page=1&page_size=20&winner=0x...
func (h *RaffleHandler) ListWinnersHandler(c *gin.Context) {
	if !h.historyAvailable(c) {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := pagination(c)

	if winnerParam := c.Query("winner"); winnerParam != "" {
		winner, err := utils.ParseAddress(winnerParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "INVALID_ADDRESS",
			})
			return
		}
		settlements, err := h.repo.FindSettlementsByWinner(ctx, winner.Hex(), pageSize)
		if err != nil {
			h.historyFailed(c, err)
			return
		}
		winners := make([]dto.WinnerResponse, len(settlements))
		for i, s := range settlements {
			winners[i] = winnerResponse(s.Round, s.Winner, s.Prize, s.Players, s.RequestID, s.SettledAt)
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"winners": winners,
			"total":   len(winners),
		})
		return
	}

	settlements, total, err := h.repo.FindSettlements(ctx, h.raffle.Config().Address.Hex(), page, pageSize)
	if err != nil {
		h.historyFailed(c, err)
		return
	}
	winners := make([]dto.WinnerResponse, len(settlements))
	for i, s := range settlements {
		winners[i] = winnerResponse(s.Round, s.Winner, s.Prize, s.Players, s.RequestID, s.SettledAt)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"winners":   winners,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListRoundEntriesHandler recorded entries of one round
// GET /api/raffle/rounds/:round/entries
func (h *RaffleHandler) ListRoundEntriesHandler(c *gin.Context) {
	if !h.historyAvailable(c) {
		return
	}
	round, err := strconv.ParseUint(c.Param("round"), 10, 64)
	if err != nil || round == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid round",
			"code":    "INVALID_ROUND",
		})
		return
	}

	entries, err := h.repo.FindEntriesByRound(c.Request.Context(), h.raffle.Config().Address.Hex(), round)
	if err != nil {
		h.historyFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"round":   round,
		"entries": entries,
		"total":   len(entries),
	})
}

// GetRandomnessRequestHandler one recorded randomness request
// GET /api/raffle/requests/:id
func (h *RaffleHandler) GetRandomnessRequestHandler(c *gin.Context) {
	if !h.historyAvailable(c) {
		return
	}
	requestID, ok := new(big.Int).SetString(c.Param("id"), 0)
	if !ok || requestID.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request id",
			"code":    "INVALID_REQUEST_ID",
		})
		return
	}

	record, err := h.repo.GetRequest(c.Request.Context(), h.raffle.Config().Address.Hex(), requestID.String())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Randomness request not found",
				"code":    "UNKNOWN_REQUEST",
			})
			return
		}
		h.historyFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    record,
	})
}

func (h *RaffleHandler) historyAvailable(c *gin.Context) bool {
	if h.repo != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"success": false,
		"error":   "Raffle history is not enabled",
		"code":    "HISTORY_DISABLED",
	})
	return false
}

func (h *RaffleHandler) historyFailed(c *gin.Context, err error) {
	h.logger.WithError(err).Error("Raffle history query failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   "Failed to query raffle history",
		"code":    "HISTORY_QUERY_FAILED",
	})
}

// GetLedgerBalanceHandler balance of a ledger account
// GET /api/ledger/:address
func (h *RaffleHandler) GetLedgerBalanceHandler(c *gin.Context) {
	account, err := utils.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "INVALID_ADDRESS",
		})
		return
	}

	balance, err := h.ledger.BalanceOf(c.Request.Context(), account)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read ledger balance")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to read ledger balance",
			"code":    "LEDGER_UNAVAILABLE",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.LedgerBalanceResponse{
			Address:      account.Hex(),
			Balance:      balance.String(),
			BalanceEther: utils.WeiToEther(balance),
		},
	})
}

func pagination(c *gin.Context) (page, pageSize int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// raffleErrorStatus maps state machine errors to an HTTP status and code
func raffleErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, raffle.ErrInsufficientDeposit):
		return http.StatusBadRequest, "INSUFFICIENT_DEPOSIT"
	case errors.Is(err, raffle.ErrRaffleNotOpen):
		return http.StatusConflict, "RAFFLE_NOT_OPEN"
	case errors.Is(err, raffle.ErrRoundClosed):
		return http.StatusConflict, "ROUND_CLOSED"
	case errors.Is(err, raffle.ErrUpkeepNotNeeded):
		return http.StatusConflict, "UPKEEP_NOT_NEEDED"
	case errors.Is(err, raffle.ErrUnknownRequest):
		return http.StatusNotFound, "UNKNOWN_REQUEST"
	case errors.Is(err, raffle.ErrIndexOutOfRange):
		return http.StatusNotFound, "INDEX_OUT_OF_RANGE"
	case errors.Is(err, raffle.ErrNoRandomWords):
		return http.StatusBadRequest, "NO_RANDOM_WORDS"
	case errors.Is(err, raffle.ErrPayoutFailed):
		return http.StatusBadGateway, "PAYOUT_FAILED"
	case errors.Is(err, raffle.ErrDepositFailed):
		return http.StatusPaymentRequired, "DEPOSIT_FAILED"
	case errors.Is(err, raffle.ErrRandomnessRequestFailed):
		return http.StatusBadGateway, "RANDOMNESS_REQUEST_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func respondRaffleError(c *gin.Context, err error) {
	status, code := raffleErrorStatus(err)
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    code,
	})
}

func winnerResponse(round uint64, winner, prize string, players int, requestID string, settledAt time.Time) dto.WinnerResponse {
	return dto.WinnerResponse{
		Round:     round,
		Winner:    winner,
		Prize:     prize,
		Players:   players,
		RequestID: requestID,
		SettledAt: settledAt.UTC(),
	}
}
