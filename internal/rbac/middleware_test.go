package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonhson0816/nelly-api/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithRole(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serveWithRole(RoleAdmin, RoleModerator); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_FanDenied(t *testing.T) {
	if code := serveWithRole(RoleFan, RoleModerator); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	if code := serveWithRole("", RoleModerator); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsKnownRole(t *testing.T) {
	for _, r := range []string{RoleFan, RoleCelebrity, RoleModerator, RoleAdmin} {
		if !IsKnownRole(r) {
			t.Fatalf("expected %q known", r)
		}
	}
	if IsKnownRole("super_admin") {
		t.Fatalf("expected unknown role")
	}
}
