package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeAuthenticator map[string]*models.User

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (*models.User, error) {
	if token == "broken" {
		return nil, fmt.Errorf("database is down")
	}
	if u, ok := f[token]; ok {
		return u, nil
	}
	return nil, errors.Unauthorizedf("invalid token")
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	admin := &models.User{Role: models.RoleAdmin}
	admin.ID = 1
	renter := &models.User{Role: models.RoleRenter}
	renter.ID = 2
	auth := fakeAuthenticator{"admin-token": admin, "renter-token": renter}

	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/me", AuthMiddleware(auth), func(c *gin.Context) {
		actor := CurrentActor(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "role": actor.Role, "loaded": CurrentUser(c) != nil})
	})
	r.GET("/admin", AuthMiddleware(auth), RequireRole(models.RoleAdmin, models.RoleOwner), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthMiddlewareTokenSources(t *testing.T) {
	r := newRouter()

	tests := []struct {
		name   string
		setup  func(*http.Request)
		target string
		want   int
	}{
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer admin-token") }, "/me", http.StatusOK},
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "admin-token"}) }, "/me", http.StatusOK},
		{"query", func(*http.Request) {}, "/me?token=renter-token", http.StatusOK},
		{"missing", func(*http.Request) {}, "/me", http.StatusUnauthorized},
		{"malformed header", func(req *http.Request) { req.Header.Set("Authorization", "Token admin-token") }, "/me", http.StatusUnauthorized},
		{"unknown", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, "/me", http.StatusUnauthorized},
		{"backend failure", func(req *http.Request) { req.Header.Set("Authorization", "Bearer broken") }, "/me", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer renter-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCurrentActorCarriesRole(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer renter-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"id":2,"role":"renter","loaded":true}`, w.Body.String())
}
