package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Standard, StandardClause and CertificationBody are shared by every tenant.

type Standard struct {
	ID          int       `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:150;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Standard) TableName() string { return tenant.StandardMaster }

type StandardClause struct {
	ID          int    `gorm:"primaryKey" json:"id"`
	StandardId  int    `gorm:"index;not null" json:"standard_id"`
	ClauseNo    string `gorm:"size:20;not null" json:"clause_no"`
	Title       string `gorm:"size:255" json:"title"`
	Requirement string `gorm:"type:text" json:"requirement"`
}

func (StandardClause) TableName() string { return tenant.ClauseMaster }

type CertificationBody struct {
	ID              int    `gorm:"primaryKey" json:"id"`
	Name            string `gorm:"size:150;not null;uniqueIndex" json:"name"`
	Country         string `gorm:"size:100" json:"country"`
	AccreditationNo string `gorm:"size:100" json:"accreditation_no"`
}

func (CertificationBody) TableName() string { return tenant.CertificationBody }

type NewStandard struct {
	Name        string              `json:"name" validate:"required,max=150"`
	Description string              `json:"description"`
	Clauses     []NewStandardClause `json:"clauses" validate:"dive"`
}

type NewStandardClause struct {
	ClauseNo    string `json:"clause_no" validate:"required,max=20"`
	Title       string `json:"title" validate:"max=255"`
	Requirement string `json:"requirement"`
}

type NewCertificationBody struct {
	Name            string `json:"name" validate:"required,max=150"`
	Country         string `json:"country"`
	AccreditationNo string `json:"accreditation_no"`
}

func findStandardByName(tx *gorm.DB, name string) (*Standard, error) {
	var standard Standard
	err := tx.Where("name = ?", strings.TrimSpace(name)).Take(&standard).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: standard %q", utils.ErrorRecordNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &standard, nil
}

func certificationBodyExists(tx *gorm.DB, id int) error {
	var count int64
	if err := tx.Model(&CertificationBody{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: certification body %d", utils.ErrorRecordNotFound, id)
	}
	return nil
}

func GetStandards(ctx context.Context) ([]*Standard, error) {
	cached, err := utils.RetrieveRedisList[Standard](ctx, "")
	if err != nil {
		config.LogWarn(config.GetLogger(), "Catalogue", "GetStandards", err)
	} else if cached != nil {
		return cached, nil
	}

	var standards []*Standard
	if err := config.GetDB().WithContext(ctx).Order("name").Find(&standards).Error; err != nil {
		return nil, err
	}
	if err := utils.StoreRedisList[Standard](ctx, standards, ""); err != nil {
		config.LogWarn(config.GetLogger(), "Catalogue", "GetStandards", err)
	}
	return standards, nil
}

func GetClauses(ctx context.Context, standardId int) ([]*StandardClause, error) {
	scope := fmt.Sprint(standardId)
	cached, err := utils.RetrieveRedisList[StandardClause](ctx, scope)
	if err != nil {
		config.LogWarn(config.GetLogger(), "Catalogue", "GetClauses", err)
	} else if cached != nil {
		return cached, nil
	}

	var clauses []*StandardClause
	if err := config.GetDB().WithContext(ctx).Where("standard_id = ?", standardId).Order("id").Find(&clauses).Error; err != nil {
		return nil, err
	}
	if err := utils.StoreRedisList[StandardClause](ctx, clauses, scope); err != nil {
		config.LogWarn(config.GetLogger(), "Catalogue", "GetClauses", err)
	}
	return clauses, nil
}

func GetCertificationBodies(ctx context.Context) ([]*CertificationBody, error) {
	cached, err := utils.RetrieveRedisList[CertificationBody](ctx, "")
	if err != nil {
		config.LogWarn(config.GetLogger(), "Catalogue", "GetCertificationBodies", err)
	} else if cached != nil {
		return cached, nil
	}

	var bodies []*CertificationBody
	if err := config.GetDB().WithContext(ctx).Order("name").Find(&bodies).Error; err != nil {
		return nil, err
	}
	if err := utils.StoreRedisList[CertificationBody](ctx, bodies, ""); err != nil {
		config.LogWarn(config.GetLogger(), "Catalogue", "GetCertificationBodies", err)
	}
	return bodies, nil
}

// SeedCatalogue inserts standards (with clauses) and certification bodies that
// are not there yet, matched by name. Existing rows are left as they are.
func SeedCatalogue(ctx context.Context, db *gorm.DB, standards []NewStandard, bodies []NewCertificationBody) error {
	for i := range standards {
		if err := utils.ValidateInput(&standards[i]); err != nil {
			return err
		}
	}
	for i := range bodies {
		if err := utils.ValidateInput(&bodies[i]); err != nil {
			return err
		}
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, input := range standards {
			standard := Standard{Name: strings.TrimSpace(input.Name), Description: input.Description}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&standard)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			if standard.ID == 0 {
				found, err := findStandardByName(tx, standard.Name)
				if err != nil {
					return err
				}
				standard.ID = found.ID
			}
			clauses := make([]StandardClause, 0, len(input.Clauses))
			for _, c := range input.Clauses {
				clauses = append(clauses, StandardClause{
					StandardId:  standard.ID,
					ClauseNo:    c.ClauseNo,
					Title:       c.Title,
					Requirement: c.Requirement,
				})
			}
			if len(clauses) > 0 {
				if err := tx.Create(&clauses).Error; err != nil {
					return err
				}
			}
		}
		for _, input := range bodies {
			body := CertificationBody{Name: strings.TrimSpace(input.Name), Country: input.Country, AccreditationNo: input.AccreditationNo}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&body).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return clearCatalogueCache(ctx)
}

func clearCatalogueCache(ctx context.Context) error {
	if err := utils.RemoveRedisList[Standard](ctx, ""); err != nil {
		return err
	}
	return utils.RemoveRedisList[CertificationBody](ctx, "")
}
