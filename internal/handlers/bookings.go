package handlers

import (
	"net/http"

	"github.com/chachabrian/rentcar-backend/internal/middleware"
	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

func queryDate(c *gin.Context, key string) *models.Date {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil
	}
	return &d
}

// CreateBooking handles booking requests from the mobile client. The
// booking is always made for the authenticated renter and starts pending.
func CreateBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.BookingInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}
		input.UserID = middleware.CurrentActor(c).ID

		booking, err := bookings.Create(c.Request.Context(), services.OriginAPI, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, booking)
	}
}

// GetMyBookings lists the renter's bookings.
func GetMyBookings(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := bookings.ListForUser(c.Request.Context(), middleware.CurrentActor(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
	}
}

// AdminCreateBooking books a car on behalf of a renter. Staff bookings
// are confirmed immediately.
func AdminCreateBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.BookingInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		booking, err := bookings.Create(c.Request.Context(), services.OriginAdmin, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Booking created.", "booking": booking})
	}
}

// AdminListBookings serves the paginated booking table, or with
// ?view=calendar every non-cancelled booking.
func AdminListBookings(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("view") == "calendar" {
			list, err := bookings.Calendar(c.Request.Context())
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, list)
			return
		}

		filter := services.BookingFilter{
			StartFrom:     queryDate(c, "start_date"),
			EndUntil:      queryDate(c, "end_date"),
			Status:        models.BookingStatus(c.Query("status")),
			PaymentStatus: models.PaymentStatus(c.Query("payment_status")),
			CarID:         queryUint(c, "car_id"),
			Page:          queryInt(c, "page"),
		}
		page, err := bookings.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func GetBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		booking, err := bookings.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// UpdateBookingStatus updates the status of a booking
func UpdateBookingStatus(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var input struct {
			Status models.BookingStatus `json:"status" form:"status"`
		}
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		booking, err := bookings.UpdateStatus(c.Request.Context(), id, input.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Booking status has been updated.", "booking": booking})
	}
}

func BulkUpdateBookingStatus(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			IDs    []uint               `json:"ids" form:"ids"`
			Status models.BookingStatus `json:"status" form:"status"`
		}
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		n, err := bookings.BulkUpdateStatus(c.Request.Context(), input.IDs, input.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Bookings have been updated.", "updated": n})
	}
}

func DeleteBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := bookings.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Booking has been deleted."})
	}
}
