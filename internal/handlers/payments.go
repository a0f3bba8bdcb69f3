package handlers

import (
	"net/http"

	"github.com/chachabrian/rentcar-backend/internal/middleware"
	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// CreatePayment records a payment made from the mobile client.
func CreatePayment(payments *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.PaymentInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		payment, err := payments.Create(c.Request.Context(), middleware.CurrentActor(c), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	}
}

func AdminListPayments(payments *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := services.PaymentFilter{
			PaidFrom: queryDate(c, "start_date"),
			PaidTo:   queryDate(c, "end_date"),
			Status:   models.PaymentStatus(c.Query("status")),
			Method:   c.Query("method"),
			Page:     queryInt(c, "page"),
		}
		page, kpis, err := payments.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payments": page, "kpis": kpis})
	}
}

func UpdatePaymentStatus(payments *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var input struct {
			Status models.PaymentStatus `json:"status" form:"status"`
		}
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		payment, err := payments.UpdateStatus(c.Request.Context(), id, input.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Payment status updated successfully.", "payment": payment})
	}
}
