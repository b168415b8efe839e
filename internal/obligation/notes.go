package obligation

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"obligation-service/internal/access"
	"obligation-service/internal/apperr"
	"obligation-service/internal/audit"
	"obligation-service/internal/model"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/logger"
	"obligation-service/prometheus"
)

const maxCommentLength = 10000

// AddComment appends a comment to an obligation the caller can access.
func (s *Service) AddComment(ctx context.Context, obligationID, message string) (_ *model.Comment, err error) {
	ctx, end := s.span(ctx, "add_comment", obligationID)
	defer func() {
		prometheus.RecordOperation("comment", "create", err)
		end(err)
	}()

	who, err := access.Authorize(ctx, access.Comment)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.Validation("message is required")
	}
	if len(message) > maxCommentLength {
		return nil, apperr.Validation("message is too long")
	}

	c := &model.Comment{
		ObligationID: obligationID,
		AuthorID:     who.ActorID,
		Message:      message,
	}
	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		if _, err := loadOwned(tx, who, obligationID); err != nil {
			return err
		}
		if err := tenantdb.Create(tx, c); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Entry{
			EntityType: model.EntityObligation,
			EntityID:   obligationID,
			Action:     model.ActionCommented,
			Metadata:   map[string]interface{}{"comment_id": c.ID},
		})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns an obligation's comments, newest first.
func (s *Service) ListComments(ctx context.Context, obligationID string) ([]model.Comment, error) {
	who, err := access.Authorize(ctx, access.ReadObligation)
	if err != nil {
		return nil, err
	}
	conn := s.store.Conn(ctx)
	if _, err := loadOwned(conn, who, obligationID); err != nil {
		return nil, err
	}

	var comments []model.Comment
	err = conn.Where("obligation_id = ?", obligationID).
		Order("created_at DESC").Order("id DESC").
		Find(&comments).Error
	if err != nil {
		return nil, tenantdb.Translate(err)
	}
	return comments, nil
}

// AddAttachment stores r as a file of the obligation. The stored bytes are
// removed again if the record cannot be written.
func (s *Service) AddAttachment(ctx context.Context, obligationID, fileName string, r io.Reader) (_ *model.Attachment, err error) {
	ctx, end := s.span(ctx, "add_attachment", obligationID)
	defer func() {
		prometheus.RecordOperation("attachment", "create", err)
		end(err)
	}()

	who, err := access.Authorize(ctx, access.Attach)
	if err != nil {
		return nil, err
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, apperr.Validation("file name is required")
	}
	if s.blobs == nil {
		return nil, apperr.New(apperr.CodeStorageFailure, "attachments are not configured")
	}
	if _, err := loadOwned(s.store.Conn(ctx), who, obligationID); err != nil {
		return nil, err
	}

	ref, size, err := s.blobs.Put(ctx, who.TenantID, obligationID, fileName, r)
	if err != nil {
		return nil, err
	}

	a := &model.Attachment{
		ObligationID: obligationID,
		UploaderID:   who.ActorID,
		FileName:     fileName,
		StorageRef:   ref,
		Size:         size,
	}
	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		// The obligation may have been reassigned since the first check.
		if _, err := loadOwned(tx, who, obligationID); err != nil {
			return err
		}
		if err := tenantdb.Create(tx, a); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Entry{
			EntityType: model.EntityObligation,
			EntityID:   obligationID,
			Action:     model.ActionAttachmentAdded,
			Metadata: map[string]interface{}{
				"attachment_id": a.ID,
				"file_name":     fileName,
			},
		})
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, ref); delErr != nil {
			logger.FromContext(ctx).Warn("Failed to remove orphaned attachment file",
				zap.String("ref", ref),
				zap.Error(delErr))
		}
		return nil, err
	}

	logger.FromContext(ctx).Info("Attachment added",
		zap.String("obligation_id", obligationID),
		zap.String("attachment_id", a.ID),
		zap.Int64("size", size))
	return a, nil
}

// ListAttachments returns an obligation's attachments, newest first.
func (s *Service) ListAttachments(ctx context.Context, obligationID string) ([]model.Attachment, error) {
	who, err := access.Authorize(ctx, access.ReadObligation)
	if err != nil {
		return nil, err
	}
	conn := s.store.Conn(ctx)
	if _, err := loadOwned(conn, who, obligationID); err != nil {
		return nil, err
	}

	var attachments []model.Attachment
	err = conn.Where("obligation_id = ?", obligationID).
		Order("created_at DESC").Order("id DESC").
		Find(&attachments).Error
	if err != nil {
		return nil, tenantdb.Translate(err)
	}
	return attachments, nil
}

// OpenAttachment returns an attachment record and a reader over its bytes.
// The caller closes the reader.
func (s *Service) OpenAttachment(ctx context.Context, attachmentID string) (*model.Attachment, io.ReadCloser, error) {
	who, err := access.Authorize(ctx, access.ReadObligation)
	if err != nil {
		return nil, nil, err
	}
	if s.blobs == nil {
		return nil, nil, apperr.New(apperr.CodeStorageFailure, "attachments are not configured")
	}
	conn := s.store.Conn(ctx)
	a, err := tenantdb.Get[model.Attachment](conn, attachmentID)
	if err != nil {
		return nil, nil, tenantdb.NotFoundAs(err, "attachment")
	}
	if _, err := loadOwned(conn, who, a.ObligationID); err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, a.StorageRef)
	if err != nil {
		return nil, nil, err
	}
	return a, rc, nil
}
