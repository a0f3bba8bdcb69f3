package handlers

import (
	"net/http"

	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

func ListPromotions(promotions *services.PromotionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := promotions.List(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"promotions": list})
	}
}

func CreatePromotion(promotions *services.PromotionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.PromotionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		promo, err := promotions.Create(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Promo code created successfully.", "promotion": promo})
	}
}

func UpdatePromotion(promotions *services.PromotionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var input services.PromotionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}
		promo, err := promotions.Update(c.Request.Context(), id, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Promo code updated successfully.", "promotion": promo})
	}
}

func DeletePromotion(promotions *services.PromotionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := promotions.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Promo code deleted successfully."})
	}
}
