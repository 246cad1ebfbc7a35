package audit

import (
	"log/slog"

	"github.com/jonhson0816/nelly-api/internal/auth"
	"github.com/jonhson0816/nelly-api/pkg/logger"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
)

type accessMeta struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Status int    `json:"status"`
}

// StaffAccess records every request that passes through it after the handler
// runs. Place it behind the RBAC check so only authorised staff reach it.
func StaffAccess(s *Service, l *slog.Logger) gin.HandlerFunc {
	l = logger.OrDefault(l)
	return func(c *gin.Context) {
		c.Next()
		if s == nil {
			return
		}
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			return
		}
		role, _ := auth.Role(c.Request.Context())
		meta, _ := json.Marshal(accessMeta{Method: c.Request.Method, Path: c.FullPath(), Status: c.Writer.Status()})
		if err := s.LogStaffAccess(c.Request.Context(), uid, role, c.ClientIP(), "staff endpoint accessed", string(meta)); err != nil {
			l.Warn("audit append failed", "user_id", uid, "path", c.FullPath(), "err", err)
		}
	}
}
