package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"RescueNet/pkg/push"
)

// handleWebSocket attaches the client to the push hub. Every lifecycle event
// they are a party to arrives on this connection.
func (h *Handlers) handleWebSocket(c *gin.Context) {
	userID := strconv.FormatUint(uint64(currentUserID(c)), 10)
	push.HandleWebSocket(h.hub, c.Writer, c.Request, userID)
}
