package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jonhson0816/nelly-api/internal/audit"
	"github.com/jonhson0816/nelly-api/internal/auth"
	"github.com/jonhson0816/nelly-api/internal/callhistory"
	"github.com/jonhson0816/nelly-api/internal/calls"
	"github.com/jonhson0816/nelly-api/internal/gamification"
	"github.com/jonhson0816/nelly-api/internal/hashtags"
	"github.com/jonhson0816/nelly-api/internal/rbac"
	"github.com/jonhson0816/nelly-api/internal/reporting"
	"github.com/jonhson0816/nelly-api/internal/users"
	"github.com/jonhson0816/nelly-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// defaultSummaryRange applies when /calls/summary is called without from/to.
const defaultSummaryRange = 30 * 24 * time.Hour

// PresenceReader answers whether a user has a live connection.
type PresenceReader interface {
	IsOnline(userID string) bool
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth         *auth.Manager
	History      *callhistory.Service
	Reporting    *reporting.Service
	Users        users.Directory
	Presence     PresenceReader
	Calls        *calls.Controller
	Hashtags     *hashtags.Tracker
	Gamification *gamification.Service
	Audit        *audit.Service

	// Now defaults to time.Now.
	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues a JWT token pair for a user known to the directory. The role
// always comes from the directory, never from the request.
//
// NOTE: credentials are not checked yet; this trusts the caller to be user_id.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	ctx := c.Request.Context()
	u, found, err := h.Users.FindByID(ctx, req.UserID)
	if err != nil {
		logger.FromGin(c).Error("user lookup failed", "user_id", req.UserID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if !found {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	if !rbac.IsKnownRole(u.Role) {
		logger.FromGin(c).Warn("directory role not recognised", "user_id", u.ID, "role", u.Role)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not permitted"})
		return
	}
	pair, err := h.Auth.IssuePair(h.now(), u.ID, u.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogTokenIssued(ctx, u.ID, u.Role, c.ClientIP()); err != nil {
			logger.FromGin(c).Warn("audit append failed", "user_id", u.ID, "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

var (
	errUnknownUser = errors.New("unknown user")
	errUnknownRole = errors.New("unrecognised directory role")
)

// Refresh rotates a refresh token; the new access token carries the user's
// current directory role.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	ctx := c.Request.Context()
	pair, claims, err := h.Auth.Refresh(req.RefreshToken, h.now(), func(userID string) (string, error) {
		u, found, err := h.Users.FindByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", errUnknownUser
		}
		if !rbac.IsKnownRole(u.Role) {
			return "", errUnknownRole
		}
		return u.Role, nil
	})
	if err != nil {
		logger.FromGin(c).Info("token refresh rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogTokenIssued(ctx, claims.UserID, claims.Role, c.ClientIP()); err != nil {
			logger.FromGin(c).Warn("audit append failed", "user_id", claims.UserID, "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
}

// --- Calls ---

type historyItem struct {
	callhistory.Record
	PeerName string `json:"peer_name,omitempty"`
}

// CallHistory lists the caller's own records, newest first.
func (h Handlers) CallHistory(c *gin.Context) {
	if h.History == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call history not configured"})
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	before, err := queryTime(c, "before")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "before must be RFC3339"})
		return
	}

	ctx := c.Request.Context()
	recs, err := h.History.List(ctx, userID, before, limit)
	if err != nil {
		logger.FromGin(c).Error("call history list failed", "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}

	names := map[string]string{}
	out := make([]historyItem, 0, len(recs))
	for _, r := range recs {
		name, seen := names[r.ReceiverID]
		if !seen && h.Users != nil {
			if u, found, err := h.Users.FindByID(ctx, r.ReceiverID); err == nil && found {
				name = u.Name()
			}
			names[r.ReceiverID] = name
		}
		out = append(out, historyItem{Record: r, PeerName: name})
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

// CallSummary aggregates the caller's history over [from, to).
func (h Handlers) CallSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	from, err := queryTime(c, "from")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}
	if to.IsZero() {
		to = h.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultSummaryRange)
	}

	sum, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		UserID: userID,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		logger.FromGin(c).Error("call summary failed", "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// ActiveCalls reports live call sessions.
// RBAC: moderator or admin.
func (h Handlers) ActiveCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	sessions := h.Calls.Sessions()
	c.JSON(http.StatusOK, gin.H{"count": len(sessions), "sessions": sessions})
}

// --- Presence ---

func (h Handlers) GetPresence(c *gin.Context) {
	if h.Presence == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "presence not configured"})
		return
	}
	userID := c.Param("user_id")
	if _, found, err := h.Users.FindByID(c.Request.Context(), userID); err != nil {
		logger.FromGin(c).Error("user lookup failed", "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	} else if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "isOnline": h.Presence.IsOnline(userID)})
}

// --- Hashtags ---

type recordHashtagsRequest struct {
	Text string `json:"text"`
}

func (h Handlers) RecordHashtags(c *gin.Context) {
	if h.Hashtags == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "hashtags not configured"})
		return
	}
	var req recordHashtagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tags, err := h.Hashtags.RecordText(c.Request.Context(), req.Text, h.now())
	if err != nil {
		if errors.Is(err, hashtags.ErrNoTags) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no hashtags in text"})
			return
		}
		logger.FromGin(c).Error("hashtag record failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "hashtag record failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"tags": tags})
}

func (h Handlers) TrendingHashtags(c *gin.Context) {
	if h.Hashtags == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "hashtags not configured"})
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	trends, err := h.Hashtags.Trending(c.Request.Context(), h.now(), limit)
	if err != nil {
		logger.FromGin(c).Error("trending lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trending lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trending": trends})
}

// --- Gamification ---

func (h Handlers) UserProgress(c *gin.Context) {
	if h.Gamification == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "gamification not configured"})
		return
	}
	userID := c.Param("user_id")
	if h.Users != nil {
		if _, found, err := h.Users.FindByID(c.Request.Context(), userID); err == nil && !found {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
	}
	p, err := h.Gamification.Progress(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gamification.ErrInvalidUser) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
			return
		}
		logger.FromGin(c).Error("progress lookup failed", "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "progress lookup failed"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// Convenience middleware bundles.

func RequireStaff() gin.HandlerFunc {
	return rbac.RequireAnyRole(rbac.RoleModerator, rbac.RoleAdmin)
}

func requireUser(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return uid, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
