package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	documentsPerPage = 10
	documentsFolder  = "documents"
	documentMaxKB    = 4096
)

var documentFileTypes = []string{"jpeg", "jpg", "png", "pdf"}

// DocumentInput describes an identity document upload.
type DocumentInput struct {
	Type string `json:"type" form:"type" validate:"required,oneof=ktp sim passport"`
}

// DocumentReview is an administrator's decision on a pending document.
type DocumentReview struct {
	Status          models.DocumentStatus `json:"status" form:"status" validate:"required,oneof=approved rejected"`
	RejectionReason string                `json:"rejection_reason" form:"rejection_reason" validate:"required_if=Status rejected,max=255"`
}

// VerificationService stores renter identity documents and records the
// review that verifies their owners.
type VerificationService struct {
	db    *gorm.DB
	files FileStore
	log   *zap.Logger
}

func NewVerificationService(db *gorm.DB, files FileStore, log *zap.Logger) *VerificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationService{db: db, files: files, log: log}
}

// Submit stores file and queues it for review.
func (s *VerificationService) Submit(ctx context.Context, actor Actor, in DocumentInput, file *Upload) (*models.Document, error) {
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	v := validation{}
	if err := checkStruct(v, in); err != nil {
		return nil, err
	}
	if file == nil {
		v.add("file", "the file field is required")
	} else {
		if err := checkVar(v, "file", file.Ext(), "oneof="+strings.Join(documentFileTypes, " ")); err != nil {
			return nil, err
		}
		if err := checkVar(v, "file", (file.Size+1023)/1024, fmt.Sprintf("lte=%d", documentMaxKB)); err != nil {
			return nil, err
		}
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	path, err := s.files.Store(ctx, documentsFolder, *file)
	if err != nil {
		return nil, errors.Annotate(err, "storing document")
	}

	doc := models.Document{
		UserID:   actor.ID,
		Type:     in.Type,
		FilePath: path,
		Status:   models.DocumentStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		if derr := s.files.Delete(ctx, path); derr != nil {
			s.log.Warn("failed to delete orphaned document", zap.String("path", path), zap.Error(derr))
		}
		return nil, errors.Annotate(err, "creating document")
	}

	s.log.Info("document submitted",
		zap.Uint("document_id", doc.ID),
		zap.Uint("user_id", doc.UserID),
		zap.String("type", doc.Type))
	return &doc, nil
}

// ListForUser returns the documents userID has submitted, newest first.
func (s *VerificationService) ListForUser(ctx context.Context, userID uint) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Find(&docs).Error
	if err != nil {
		return nil, errors.Annotate(err, "loading user documents")
	}
	return docs, nil
}

// Pending returns one page of documents awaiting review with their owners,
// newest first.
func (s *VerificationService) Pending(ctx context.Context, page int) (Page[models.Document], error) {
	q := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("status = ?", models.DocumentStatusPending).
		Order("created_at desc").
		Order("id desc")
	out, err := paginate[models.Document](q, page, documentsPerPage, "User")
	if err != nil {
		return Page[models.Document]{}, errors.Annotate(err, "listing pending documents")
	}
	return out, nil
}

// Review approves or rejects a document. Approval verifies its owner; the
// rejection reason is kept only for rejected documents.
func (s *VerificationService) Review(ctx context.Context, id uint, in DocumentReview) (*models.Document, error) {
	in.RejectionReason = strings.TrimSpace(in.RejectionReason)
	v := validation{}
	if err := checkStruct(v, in); err != nil {
		return nil, err
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var doc models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&doc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFoundf("document %d", id)
			}
			return errors.Annotate(err, "loading document")
		}

		var reason *string
		if in.Status == models.DocumentStatusRejected {
			reason = &in.RejectionReason
		}
		err := tx.Model(&doc).Updates(map[string]interface{}{
			"status":           in.Status,
			"rejection_reason": reason,
		}).Error
		if err != nil {
			return errors.Annotate(err, "updating document")
		}
		doc.Status = in.Status
		doc.RejectionReason = reason

		if in.Status != models.DocumentStatusApproved {
			return nil
		}
		err = tx.Model(&models.User{}).
			Where("id = ?", doc.UserID).
			Update("is_verified", true).Error
		if err != nil {
			return errors.Annotatef(err, "verifying user %d", doc.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("document reviewed",
		zap.Uint("document_id", doc.ID),
		zap.Uint("user_id", doc.UserID),
		zap.String("status", string(doc.Status)))
	return &doc, nil
}
