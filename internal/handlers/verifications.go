package handlers

import (
	"net/http"

	"github.com/chachabrian/rentcar-backend/internal/middleware"
	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// documentView adds a public link to the stored file reference.
type documentView struct {
	*models.Document
	URL string `json:"url"`
}

func newDocumentViews(docs []models.Document, files services.FileStore) []documentView {
	out := make([]documentView, len(docs))
	for i := range docs {
		out[i] = documentView{Document: &docs[i], URL: files.URL(docs[i].FilePath)}
	}
	return out
}

// SubmitDocument expects a multipart form with a type and a file.
func SubmitDocument(verifications *services.VerificationService, files services.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input services.DocumentInput
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}
		var file *services.Upload
		if h, err := c.FormFile("file"); err == nil {
			u := services.UploadFromHeader(h)
			file = &u
		}

		doc, err := verifications.Submit(c.Request.Context(), middleware.CurrentActor(c), input, file)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"message":  "Document submitted for review.",
			"document": documentView{Document: doc, URL: files.URL(doc.FilePath)},
		})
	}
}

func GetMyDocuments(verifications *services.VerificationService, files services.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := verifications.ListForUser(c.Request.Context(), middleware.CurrentActor(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": newDocumentViews(docs, files)})
	}
}

func ListPendingDocuments(verifications *services.VerificationService, files services.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := verifications.Pending(c.Request.Context(), queryInt(c, "page"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"pendingDocuments": gin.H{
				"data":        newDocumentViews(page.Items, files),
				"total":       page.Total,
				"currentPage": page.Page,
				"perPage":     page.PerPage,
				"lastPage":    page.LastPage,
			},
		})
	}
}

func ReviewDocument(verifications *services.VerificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		var input services.DocumentReview
		if err := c.ShouldBind(&input); err != nil {
			badRequest(c, err)
			return
		}
		doc, err := verifications.Review(c.Request.Context(), id, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Document status updated successfully.", "document": doc})
	}
}
