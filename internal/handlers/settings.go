package handlers

import (
	"net/http"
	"strings"

	"github.com/chachabrian/rentcar-backend/internal/middleware"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

var settingsFileFields = []string{"logo", "favicon", "default_car_placeholder"}

func GetSettings(settings *services.SettingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := settings.All(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"settings": all})
	}
}

// bindSettingsUpdate reads either a JSON object or a multipart form. Form
// fields sent more than once, or with a [] suffix, become lists.
func bindSettingsUpdate(c *gin.Context) (services.SettingsUpdate, error) {
	update := services.SettingsUpdate{
		Values: map[string]interface{}{},
		Files:  map[string]services.Upload{},
	}

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBindJSON(&update.Values); err != nil {
			return update, err
		}
		return update, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return update, err
	}
	for key, values := range form.Value {
		if name := strings.TrimSuffix(key, "[]"); name != key || len(values) > 1 {
			list := make([]interface{}, len(values))
			for i, v := range values {
				list[i] = v
			}
			update.Values[name] = list
			continue
		}
		update.Values[key] = values[0]
	}
	for _, key := range settingsFileFields {
		if headers := form.File[key]; len(headers) > 0 {
			update.Files[key] = services.UploadFromHeader(headers[0])
		}
	}
	return update, nil
}

func UpdateSettings(settings *services.SettingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		update, err := bindSettingsUpdate(c)
		if err != nil {
			badRequest(c, err)
			return
		}

		changed, err := settings.Update(c.Request.Context(), middleware.CurrentActor(c), update)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Settings updated.", "changed": changed})
	}
}

func GetSettingChanges(settings *services.SettingsStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		changes, err := settings.Changes(c.Request.Context(), queryInt(c, "limit"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"changes": changes})
	}
}

// ChangeAdminPassword rotates the session; the caller receives a fresh
// token because the current one stops validating.
func ChangeAdminPassword(settings *services.SettingsStore, accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.PasswordChange
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		user, err := settings.ChangePassword(c.Request.Context(), middleware.CurrentActor(c), input)
		if err != nil {
			respondError(c, err)
			return
		}
		session, err := accounts.Reissue(user)
		if err != nil {
			respondError(c, err)
			return
		}
		setSessionCookie(c, session.Token, accounts.TokenTTL())
		c.JSON(http.StatusOK, gin.H{"message": "Password updated.", "token": session.Token})
	}
}
