package models

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

const AttachmentModule = "Attachment"

// Attachment is metadata for evidence stored in the object store. File bytes
// never pass through this service; clients upload to a signed URL.
type Attachment struct {
	ID            int       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ReferenceType string    `gorm:"size:50;not null" json:"reference_type"`
	ReferenceId   int       `gorm:"not null" json:"reference_id"`
	ClauseNo      string    `gorm:"size:20" json:"clause_no"`
	FileName      string    `gorm:"size:255;not null" json:"file_name"`
	ObjectKey     string    `gorm:"size:512;not null" json:"object_key"`
	CreatedById   int       `gorm:"not null" json:"created_by_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type NewAttachment struct {
	ReferenceType string `json:"reference_type" validate:"required"`
	ReferenceId   int    `json:"reference_id" validate:"required,gt=0"`
	ClauseNo      string `json:"clause_no" validate:"max=20"`
	FileName      string `json:"file_name" validate:"required,max=255"`
	ObjectKey     string `json:"object_key" validate:"required,max=512"`
}

// attachable reference types, keyed by the logical table they point at
var attachableReferences = map[string]bool{
	tenant.InternalAuditMaster:     true,
	tenant.ExternalAuditMaster:     true,
	tenant.InternalNonconformities: true,
	tenant.ExternalNonconformities: true,
	tenant.GapAssessmentHeader:     true,
}

func validateReference(tx *gorm.DB, ns tenant.Namespace, referenceType string, referenceId int) error {
	if !attachableReferences[referenceType] {
		return utils.InvalidField("reference_type", "oneof")
	}
	var count int64
	if err := tx.Table(ns.Table(referenceType)).Where("id = ?", referenceId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s %d", utils.ErrorRecordNotFound, referenceType, referenceId)
	}
	return nil
}

// AttachmentObjectKey is where a new file for the reference should be uploaded.
func AttachmentObjectKey(ctx context.Context, referenceType, fileName string) (string, error) {
	ns, err := utils.GetNamespaceFromContext(ctx)
	if err != nil {
		return "", err
	}
	if !attachableReferences[referenceType] {
		return "", utils.InvalidField("reference_type", "oneof")
	}
	return utils.NewObjectKey(ns.Code(), referenceType, fileName), nil
}

func CreateAttachment(ctx context.Context, input *NewAttachment) (*Attachment, error) {
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	ns, err := utils.GetNamespaceFromContext(ctx)
	if err != nil {
		return nil, err
	}
	// object keys must stay inside the tenant's folder
	if !strings.HasPrefix(input.ObjectKey, ns.Code()+"/") || path.Clean(input.ObjectKey) != input.ObjectKey {
		return nil, utils.InvalidField("object_key", "tenant")
	}

	var attachment Attachment
	err = runTenantTx(ctx, "CreateAttachment", func(tx *gorm.DB, s *session) error {
		if err := validateReference(tx, s.ns, input.ReferenceType, input.ReferenceId); err != nil {
			return err
		}
		id, err := nextIds(tx, s.ns, tenant.Attachments, 1)
		if err != nil {
			return err
		}
		attachment = Attachment{
			ID:            id,
			ReferenceType: input.ReferenceType,
			ReferenceId:   input.ReferenceId,
			ClauseNo:      strings.TrimSpace(input.ClauseNo),
			FileName:      input.FileName,
			ObjectKey:     input.ObjectKey,
			CreatedById:   s.actorId,
		}
		if err := tx.Table(s.ns.Table(tenant.Attachments)).Create(&attachment).Error; err != nil {
			return err
		}
		return createLog(tx, s, AttachmentModule, attachment.ID, LogActionAdd)
	})
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

func GetAttachment(ctx context.Context, id int) (*Attachment, error) {
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var attachment Attachment
	err = db.Table(ns.Table(tenant.Attachments)).Where("id = ?", id).Take(&attachment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: attachment %d", utils.ErrorRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

func GetAttachments(ctx context.Context, referenceType string, referenceId int) ([]*Attachment, error) {
	if !attachableReferences[referenceType] {
		return nil, utils.InvalidField("reference_type", "oneof")
	}
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	var attachments []*Attachment
	if err := db.Table(ns.Table(tenant.Attachments)).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id").
		Find(&attachments).Error; err != nil {
		return nil, err
	}
	return attachments, nil
}

// DeleteAttachment removes the metadata row. Removing the object is up to the
// caller.
func DeleteAttachment(ctx context.Context, id int) (*Attachment, error) {
	var attachment Attachment
	err := runTenantTx(ctx, "DeleteAttachment", func(tx *gorm.DB, s *session) error {
		err := tx.Table(s.ns.Table(tenant.Attachments)).Where("id = ?", id).Take(&attachment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: attachment %d", utils.ErrorRecordNotFound, id)
		}
		if err != nil {
			return err
		}
		if err := tx.Table(s.ns.Table(tenant.Attachments)).Where("id = ?", id).Delete(&Attachment{}).Error; err != nil {
			return err
		}
		return createLog(tx, s, AttachmentModule, id, LogActionDelete)
	})
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}
