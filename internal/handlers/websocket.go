package handlers

import (
	"github.com/chachabrian/rentcar-backend/internal/middleware"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler attaches the caller to the booking feed.
func WebSocketHandler(hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := middleware.CurrentActor(c)
		services.HandleWebSocket(hub, c.Writer, c.Request, actor.ID, actor.Role)
	}
}
