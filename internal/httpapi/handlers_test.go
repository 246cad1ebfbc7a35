package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonhson0816/nelly-api/internal/audit"
	"github.com/jonhson0816/nelly-api/internal/auth"
	"github.com/jonhson0816/nelly-api/internal/callhistory"
	"github.com/jonhson0816/nelly-api/internal/calls"
	"github.com/jonhson0816/nelly-api/internal/config"
	"github.com/jonhson0816/nelly-api/internal/gamification"
	"github.com/jonhson0816/nelly-api/internal/hashtags"
	"github.com/jonhson0816/nelly-api/internal/presence"
	"github.com/jonhson0816/nelly-api/internal/presence/presencetest"
	"github.com/jonhson0816/nelly-api/internal/reporting"
	"github.com/jonhson0816/nelly-api/internal/users"
	"github.com/jonhson0816/nelly-api/pkg/logger"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
)

var fixedNow = time.Unix(1700000000, 0).UTC()

type fixture struct {
	h        Handlers
	history  *callhistory.Service
	registry *presence.Registry
	audit    *audit.MemoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	repo := callhistory.NewMemoryRepo()
	history := callhistory.NewService(repo, callhistory.WithRetry(1, 0))
	registry := presence.NewRegistry(&presencetest.Broadcaster{}, presence.WithLogger(logger.Discard()))
	auditRepo := audit.NewMemoryRepo()
	dir := users.NewMemoryDirectory(
		users.User{ID: "u1", Username: "one", Role: "fan"},
		users.User{ID: "u2", Username: "two", DisplayName: "Two", Role: "celebrity"},
	)
	return &fixture{
		h: Handlers{
			Auth:         m,
			History:      history,
			Reporting:    reporting.NewService(repo),
			Users:        dir,
			Presence:     registry,
			Calls:        calls.NewController(registry, history, calls.WithLogger(logger.Discard())),
			Hashtags:     hashtags.NewTracker(hashtags.NewMemoryStore(48*time.Hour), 24*time.Hour),
			Gamification: gamification.NewService(gamification.NewMemoryRepo(), logger.Discard()),
			Audit:        audit.NewService(auditRepo),
			Now:          func() time.Time { return fixedNow },
		},
		history:  history,
		registry: registry,
		audit:    auditRepo,
	}
}

// serve runs one request as userID/role; an empty userID skips identity.
func (f *fixture) serve(method, path, body, userID, role string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/auth/login", f.h.Login)
	r.POST("/v1/auth/refresh", f.h.Refresh)
	v1 := r.Group("/v1")
	v1.Use(func(c *gin.Context) {
		if userID != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), userID, role))
		}
		c.Next()
	})
	f.h.Register(v1)

	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestLogin_IssuesTokens(t *testing.T) {
	f := newFixture(t)
	w := f.serve(http.MethodPost, "/v1/auth/login", `{"user_id":"u1"}`, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &out)
	claims, err := f.h.Auth.Verify(out.AccessToken, auth.TokenTypeAccess, fixedNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "fan" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if evs := f.audit.Events(); len(evs) != 1 || evs[0].Type != audit.EventTypeTokenIssued {
		t.Fatalf("expected token_issued audit event, got %+v", evs)
	}
}

func TestRefresh_UsesDirectoryRole(t *testing.T) {
	f := newFixture(t)
	pair, err := f.h.Auth.IssuePair(fixedNow, "u2", "fan")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	w := f.serve(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+pair.RefreshToken+`"}`, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &out)
	claims, err := f.h.Auth.Verify(out.AccessToken, auth.TokenTypeAccess, fixedNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Role != "celebrity" {
		t.Fatalf("expected directory role celebrity, got %q", claims.Role)
	}

	ghost, _ := f.h.Auth.IssuePair(fixedNow, "ghost", "fan")
	if w := f.serve(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+ghost.RefreshToken+`"}`, "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", w.Code)
	}
	if w := f.serve(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+pair.AccessToken+`"}`, "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token, got %d", w.Code)
	}
}

func TestLogin_IgnoresRequestedRole(t *testing.T) {
	f := newFixture(t)
	w := f.serve(http.MethodPost, "/v1/auth/login", `{"user_id":"u1","role":"admin"}`, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &out)
	claims, err := f.h.Auth.Verify(out.AccessToken, auth.TokenTypeAccess, fixedNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Role != "fan" {
		t.Fatalf("expected directory role fan, got %q", claims.Role)
	}
}

func TestLogin_RejectsUnknownUser(t *testing.T) {
	f := newFixture(t)
	if w := f.serve(http.MethodPost, "/v1/auth/login", `{"user_id":"stranger","role":"admin"}`, "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := f.serve(http.MethodPost, "/v1/auth/login", `{}`, "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(f.audit.Events()) != 0 {
		t.Fatalf("expected no audit events for rejected logins")
	}
}

func TestLogin_RejectsUnrecognisedDirectoryRole(t *testing.T) {
	f := newFixture(t)
	f.h.Users.(*users.MemoryDirectory).Put(users.User{ID: "u9", Username: "nine", Role: "owner"})
	if w := f.serve(http.MethodPost, "/v1/auth/login", `{"user_id":"u9"}`, "", ""); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestCallHistory_OwnRecordsWithPeerNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, o := range []callhistory.Outcome{
		{CallID: "c1", CallerID: "u1", ReceiverID: "u2", Status: callhistory.StatusMissed, EndedAt: fixedNow.Add(-2 * time.Hour)},
		{CallID: "c2", CallerID: "u2", ReceiverID: "u1", Status: callhistory.StatusCompleted, DurationSeconds: 40, EndedAt: fixedNow.Add(-time.Hour)},
	} {
		if err := f.history.RecordCall(ctx, o); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	w := f.serve(http.MethodGet, "/v1/calls/history", "", "u1", "fan")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		Calls []struct {
			CallID    string `json:"call_id"`
			SenderID  string `json:"sender_id"`
			Direction string `json:"direction"`
			PeerName  string `json:"peer_name"`
		} `json:"calls"`
	}
	decode(t, w, &out)
	if len(out.Calls) != 2 {
		t.Fatalf("expected 2 records, got %+v", out.Calls)
	}
	if out.Calls[0].CallID != "c2" || out.Calls[0].Direction != "incoming" {
		t.Fatalf("expected newest first, got %+v", out.Calls)
	}
	for _, c := range out.Calls {
		if c.SenderID != "u1" || c.PeerName != "Two" {
			t.Fatalf("unexpected record: %+v", c)
		}
	}
}

func TestCallHistory_RequiresIdentity(t *testing.T) {
	f := newFixture(t)
	if w := f.serve(http.MethodGet, "/v1/calls/history", "", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if w := f.serve(http.MethodGet, "/v1/calls/history?limit=x", "", "u1", "fan"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCallSummary_DefaultRange(t *testing.T) {
	f := newFixture(t)
	err := f.history.RecordCall(context.Background(), callhistory.Outcome{
		CallID: "c1", CallerID: "u1", ReceiverID: "u2", Status: callhistory.StatusCompleted, DurationSeconds: 30, EndedAt: fixedNow.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	w := f.serve(http.MethodGet, "/v1/calls/summary", "", "u2", "celebrity")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out reporting.CallsSummary
	decode(t, w, &out)
	if out.TotalCalls != 1 || out.IncomingCalls != 1 || out.TotalDurationSeconds != 30 {
		t.Fatalf("unexpected summary: %+v", out)
	}

	bad := "/v1/calls/summary?from=" + fixedNow.Format(time.RFC3339) + "&to=" + fixedNow.Add(-time.Hour).Format(time.RFC3339)
	if w := f.serve(http.MethodGet, bad, "", "u2", "celebrity"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", w.Code)
	}
}

func TestGetPresence(t *testing.T) {
	f := newFixture(t)
	f.registry.SetOnline("u2", presencetest.NewConn("c-u2"))

	w := f.serve(http.MethodGet, "/v1/presence/u2", "", "u1", "fan")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		UserID   string `json:"userId"`
		IsOnline bool   `json:"isOnline"`
	}
	decode(t, w, &out)
	if out.UserID != "u2" || !out.IsOnline {
		t.Fatalf("unexpected presence: %+v", out)
	}

	w = f.serve(http.MethodGet, "/v1/presence/u1", "", "u2", "celebrity")
	decode(t, w, &out)
	if out.IsOnline {
		t.Fatalf("expected u1 offline")
	}

	if w := f.serve(http.MethodGet, "/v1/presence/ghost", "", "u1", "fan"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHashtags_RecordAndTrending(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"hello #Go and #music", "#go again"} {
		if w := f.serve(http.MethodPost, "/v1/hashtags", `{"text":"`+text+`"}`, "u1", "fan"); w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
		}
	}
	if w := f.serve(http.MethodPost, "/v1/hashtags", `{"text":"nothing here"}`, "u1", "fan"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w := f.serve(http.MethodGet, "/v1/hashtags/trending?limit=5", "", "u1", "fan")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		Trending []hashtags.Trend `json:"trending"`
	}
	decode(t, w, &out)
	if len(out.Trending) != 2 || out.Trending[0].Tag != "go" || out.Trending[1].Tag != "music" {
		t.Fatalf("unexpected trending: %+v", out.Trending)
	}
}

func TestUserProgress(t *testing.T) {
	f := newFixture(t)
	if _, err := f.h.Gamification.Award(context.Background(), "u2", gamification.ActionCallCompleted); err != nil {
		t.Fatalf("award: %v", err)
	}

	w := f.serve(http.MethodGet, "/v1/users/u2/progress", "", "u1", "fan")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out gamification.Progress
	decode(t, w, &out)
	if out.Points != 5 || out.Level != 1 {
		t.Fatalf("unexpected progress: %+v", out)
	}

	if w := f.serve(http.MethodGet, "/v1/users/ghost/progress", "", "u1", "fan"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestActiveCalls_StaffOnly(t *testing.T) {
	f := newFixture(t)
	if w := f.serve(http.MethodGet, "/v1/admin/calls/active", "", "u1", "fan"); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	caller := presencetest.NewConn("c-u1")
	f.registry.SetOnline("u1", caller)
	f.registry.SetOnline("u2", presencetest.NewConn("c-u2"))
	f.h.Calls.Initiate(context.Background(), caller, calls.InitiateRequest{CallerID: "u1", ReceiverID: "u2"})

	w := f.serve(http.MethodGet, "/v1/admin/calls/active", "", "m1", "moderator")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		Count int `json:"count"`
	}
	decode(t, w, &out)
	if out.Count != 1 {
		t.Fatalf("expected 1 active call, got %d", out.Count)
	}

	evs := f.audit.Events()
	if len(evs) != 1 || evs[0].ActorUserID != "m1" || evs[0].Type != audit.EventTypeStaffAccess {
		t.Fatalf("expected one staff_access event for m1, got %+v", evs)
	}
}
