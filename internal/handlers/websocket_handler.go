package handlers

import (
	"net/http"

	"raffle-backend/internal/services"
	"raffle-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades clients onto the raffle event stream
type WebSocketHandler struct {
	pushService *services.EventPushService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(pushService *services.EventPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// HandleWebSocket streams raffle events; ?address= limits the stream to
// events naming that address
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	address := c.Query("address")
	if address != "" && !utils.IsEvmAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid address filter",
			"code":    "INVALID_ADDRESS",
		})
		return
	}
	h.pushService.HandleWebSocket(c.Writer, c.Request, utils.NormalizeAddress(address))
}
