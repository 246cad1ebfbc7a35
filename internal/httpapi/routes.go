package httpapi

import (
	"github.com/jonhson0816/nelly-api/internal/audit"

	"github.com/gin-gonic/gin"
)

// Register mounts the authenticated API on g. Callers attach the access-token
// middleware to g before calling.
func (h Handlers) Register(g *gin.RouterGroup) {
	g.GET("/me", h.Me)

	callsGroup := g.Group("/calls")
	{
		callsGroup.GET("/history", h.CallHistory)
		callsGroup.GET("/summary", h.CallSummary)
	}

	g.GET("/presence/:user_id", h.GetPresence)

	tags := g.Group("/hashtags")
	{
		tags.POST("", h.RecordHashtags)
		tags.GET("/trending", h.TrendingHashtags)
	}

	g.GET("/users/:user_id/progress", h.UserProgress)

	admin := g.Group("/admin")
	admin.Use(RequireStaff(), audit.StaffAccess(h.Audit, nil))
	{
		admin.GET("/calls/active", h.ActiveCalls)
	}
}
