package handlers

import (
	"net/http"

	"github.com/chachabrian/rentcar-backend/internal/middleware"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

func ListUsers(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := accounts.List(c.Request.Context(), queryInt(c, "page"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func CreateUser(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.UserInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}
		user, err := accounts.Create(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "User created.", "user": user})
	}
}

func UpdateUser(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var input services.UserInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}
		user, err := accounts.Update(c.Request.Context(), id, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User updated.", "user": user})
	}
}

func DeleteUser(accounts *services.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := accounts.Delete(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted."})
	}
}
