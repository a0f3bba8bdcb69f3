package handlers

import (
	"net/http"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/middleware"
	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

type LoginInput struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
}

type DeviceInput struct {
	FCMToken string `json:"fcm_token" form:"fcm_token"`
}

func setSessionCookie(c *gin.Context, token string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(ttl.Seconds()), "/", "", c.Request.TLS != nil, true)
}

func Register(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.RegisterInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		session, err := accounts.Register(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "data": session})
	}
}

func Login(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LoginInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		session, err := accounts.Login(c.Request.Context(), input.Email, input.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": session})
	}
}

// AdminLogin signs staff into the admin panel through an HTTP-only cookie.
func AdminLogin(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LoginInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		session, err := accounts.Login(c.Request.Context(), input.Email, input.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		if session.User.Role == models.RoleRenter {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}

		setSessionCookie(c, session.Token, accounts.TokenTTL())
		c.JSON(http.StatusOK, gin.H{"user": session.User})
	}
}

// Logout ends every session of the user and clears the admin cookie.
func Logout(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := accounts.Logout(c.Request.Context(), middleware.CurrentActor(c).ID); err != nil {
			respondError(c, err)
			return
		}
		c.SetCookie(middleware.SessionCookie, "", -1, "/", "", c.Request.TLS != nil, true)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out."})
	}
}

// CurrentUser returns the authenticated user.
func CurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": middleware.CurrentUser(c)})
	}
}

// RegisterDevice stores the caller's FCM token for booking notifications.
func RegisterDevice(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input DeviceInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}
		if err := accounts.RegisterDevice(c.Request.Context(), middleware.CurrentActor(c).ID, input.FCMToken); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
