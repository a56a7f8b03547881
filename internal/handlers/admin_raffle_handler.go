// Admin Raffle Handlers - local network operations (JWT + IP whitelist)
package handlers

import (
	"context"
	"errors"
	"math/big"
	"net/http"

	"raffle-backend/internal/clients"
	"raffle-backend/internal/dto"
	"raffle-backend/internal/ledger"
	"raffle-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// VRFFulfiller manual fulfilment on the in-process coordinator
type VRFFulfiller interface {
	FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer common.Address) error
	FulfillRandomWordsWithOverride(ctx context.Context, requestID *big.Int, consumer common.Address, words []*big.Int) error
	PendingRequests() []*big.Int
}

// LedgerCreditor funds development accounts
type LedgerCreditor interface {
	Credit(ctx context.Context, account common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// AdminRaffleHandler admin operations against the oracle mock and ledger
type AdminRaffleHandler struct {
	fulfiller VRFFulfiller // nil unless oracle.mode is mock
	consumer  common.Address
	ledger    LedgerCreditor
	logger    *logrus.Logger
}

// NewAdminRaffleHandler creates a new AdminRaffleHandler instance
func NewAdminRaffleHandler(fulfiller VRFFulfiller, consumer common.Address, ledger LedgerCreditor, logger *logrus.Logger) *AdminRaffleHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AdminRaffleHandler{
		fulfiller: fulfiller,
		consumer:  consumer,
		ledger:    ledger,
		logger:    logger,
	}
}

// ListPendingRequestsHandler outstanding coordinator requests
// GET /api/admin/vrf/pending
func (h *AdminRaffleHandler) ListPendingRequestsHandler(c *gin.Context) {
	if !h.mockAvailable(c) {
		return
	}
	pending := h.fulfiller.PendingRequests()
	ids := make([]string, len(pending))
	for i, id := range pending {
		ids[i] = id.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"requests": ids,
		"total":    len(ids),
	})
}

// FulfillHandler delivers random words for a pending request
// POST /api/admin/vrf/fulfill
func (h *AdminRaffleHandler) FulfillHandler(c *gin.Context) {
	if !h.mockAvailable(c) {
		return
	}

	var req dto.AdminFulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	requestID, ok := new(big.Int).SetString(req.RequestID, 0)
	if !ok || requestID.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request id",
			"code":    "INVALID_REQUEST_ID",
		})
		return
	}

	words := make([]*big.Int, 0, len(req.RandomWords))
	for _, raw := range req.RandomWords {
		word, ok := new(big.Int).SetString(raw, 0)
		if !ok || word.Sign() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid random word: " + raw,
				"code":    "INVALID_RANDOM_WORDS",
			})
			return
		}
		words = append(words, word)
	}

	ctx := c.Request.Context()
	var err error
	if len(words) == 0 {
		err = h.fulfiller.FulfillRandomWords(ctx, requestID, h.consumer)
	} else {
		err = h.fulfiller.FulfillRandomWordsWithOverride(ctx, requestID, h.consumer, words)
	}

	fields := logrus.Fields{
		"request_id": requestID.String(),
		"override":   len(words) > 0,
		"admin":      c.GetString("admin_username"),
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("Admin fulfilment failed")

		switch {
		case errors.Is(err, clients.ErrNonexistentRequest):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "NONEXISTENT_REQUEST",
			})
		case errors.Is(err, clients.ErrWrongNumWords):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "INVALID_RANDOM_WORDS",
			})
		case errors.Is(err, clients.ErrInsufficientBalance):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    "SUBSCRIPTION_UNDERFUNDED",
			})
		default:
			respondRaffleError(c, err)
		}
		return
	}

	h.logger.WithFields(fields).Info("Admin fulfilled randomness request")
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"request_id": requestID.String(),
	})
}

func (h *AdminRaffleHandler) mockAvailable(c *gin.Context) bool {
	if h.fulfiller != nil {
		return true
	}
	c.JSON(http.StatusConflict, gin.H{
		"success": false,
		"error":   "Manual fulfilment requires oracle mode mock",
		"code":    "ORACLE_MODE_UNSUPPORTED",
	})
	return false
}

// CreditHandler funds a ledger account with ether
// POST /api/admin/ledger/credit
func (h *AdminRaffleHandler) CreditHandler(c *gin.Context) {
	var req dto.AdminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request: " + err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	account, err := utils.ParseAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "INVALID_ADDRESS",
		})
		return
	}
	amount, err := utils.EtherToWei(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "INVALID_AMOUNT",
		})
		return
	}

	ctx := c.Request.Context()
	if err := h.ledger.Credit(ctx, account, amount); err != nil {
		status, code := http.StatusInternalServerError, "LEDGER_UNAVAILABLE"
		if errors.Is(err, ledger.ErrInvalidAmount) {
			status, code = http.StatusBadRequest, "INVALID_AMOUNT"
		} else if errors.Is(err, ledger.ErrPoolAccount) {
			status, code = http.StatusBadRequest, "POOL_ACCOUNT"
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    code,
		})
		return
	}

	balance, err := h.ledger.BalanceOf(ctx, account)
	if err != nil {
		balance = new(big.Int)
	}
	h.logger.WithFields(logrus.Fields{
		"account": account.Hex(),
		"amount":  amount.String(),
		"admin":   c.GetString("admin_username"),
	}).Info("Ledger account credited")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.LedgerBalanceResponse{
			Address:      account.Hex(),
			Balance:      balance.String(),
			BalanceEther: utils.WeiToEther(balance),
		},
	})
}
