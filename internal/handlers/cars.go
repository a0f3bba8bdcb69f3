package handlers

import (
	"mime/multipart"
	"net/http"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// carView adds public links to the stored image references.
type carView struct {
	*models.Car
	Images []string `json:"images"`
}

func newCarView(car *models.Car, files services.FileStore) carView {
	links := make([]string, len(car.ImageURLs))
	for i, p := range car.ImageURLs {
		links[i] = files.URL(p)
	}
	return carView{Car: car, Images: links}
}

func newCarViews(cars []models.Car, files services.FileStore) []carView {
	out := make([]carView, len(cars))
	for i := range cars {
		out[i] = newCarView(&cars[i], files)
	}
	return out
}

func uploads(form *multipart.Form, key string) []services.Upload {
	if form == nil {
		return nil
	}
	headers := form.File[key]
	if len(headers) == 0 {
		headers = form.File[key+"[]"]
	}
	out := make([]services.Upload, 0, len(headers))
	for _, h := range headers {
		out = append(out, services.UploadFromHeader(h))
	}
	return out
}

func formValues(form *multipart.Form, key string) []string {
	if form == nil {
		return nil
	}
	if v := form.Value[key]; len(v) > 0 {
		return v
	}
	return form.Value[key+"[]"]
}

// ListCars is the public catalogue of available cars.
func ListCars(cars *services.CarService, files services.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := cars.ListAvailable(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": newCarViews(list, files)})
	}
}

func GetCar(cars *services.CarService, files services.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		car, err := cars.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": newCarView(car, files)})
	}
}

func AdminListCars(cars *services.CarService, files services.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := services.CarFilter{
			Search:   c.Query("search"),
			Status:   models.CarStatus(c.Query("status")),
			Brand:    c.Query("brand"),
			YearFrom: queryInt(c, "year_from"),
			YearTo:   queryInt(c, "year_to"),
			Features: c.QueryArray("features[]"),
			Page:     queryInt(c, "page"),
		}
		if len(filter.Features) == 0 {
			filter.Features = c.QueryArray("features")
		}
		if p, err := decimal.NewFromString(c.Query("price_from")); err == nil {
			filter.PriceFrom = &p
		}
		if p, err := decimal.NewFromString(c.Query("price_to")); err == nil {
			filter.PriceTo = &p
		}

		page, err := cars.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		brands, err := cars.Brands(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"cars": gin.H{
				"data":        newCarViews(page.Items, files),
				"total":       page.Total,
				"currentPage": page.Page,
				"perPage":     page.PerPage,
				"lastPage":    page.LastPage,
			},
			"brands": brands,
		})
	}
}

// CreateCar expects a multipart form with one or more image_files.
func CreateCar(cars *services.CarService, files services.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.CarInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}
		form, _ := c.MultipartForm()
		if form != nil {
			input.Features = formValues(form, "features")
		}

		car, err := cars.Create(c.Request.Context(), input, uploads(form, "image_files"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Car added.", "car": newCarView(car, files)})
	}
}

func UpdateCar(cars *services.CarService, files services.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var input services.CarInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}
		form, _ := c.MultipartForm()
		if form != nil {
			input.Features = formValues(form, "features")
		}

		car, err := cars.Update(c.Request.Context(), id, services.CarUpdate{
			CarInput:       input,
			ImagesToDelete: formValues(form, "images_to_delete"),
			NewImages:      uploads(form, "new_images"),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Car updated.", "car": newCarView(car, files)})
	}
}

func DeleteCar(cars *services.CarService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := cars.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Car deleted."})
	}
}

func BulkUpdateCarStatus(cars *services.CarService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			IDs    []uint           `json:"ids" form:"ids"`
			Status models.CarStatus `json:"status" form:"status"`
		}
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}

		n, err := cars.BulkUpdateStatus(c.Request.Context(), input.IDs, input.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Cars have been updated.", "updated": n})
	}
}
