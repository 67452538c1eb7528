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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const GapAssessmentModule = "Gap Assessment"

type GapAssessmentHeader struct {
	ID            int       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	StandardId    int       `gorm:"not null" json:"standard_id"`
	StandardName  string    `gorm:"size:150;not null" json:"standard_name"`
	Department    string    `gorm:"size:100;not null" json:"department"`
	MeetingDate   string    `gorm:"size:10" json:"meeting_date"`
	MeetingTime   string    `gorm:"size:5" json:"meeting_time"`
	ContactPerson string    `gorm:"size:100" json:"contact_person"`
	ContactPhone  string    `gorm:"size:20" json:"contact_phone"`
	Remarks       string    `gorm:"type:text" json:"remarks"`
	CreatedById   int       `gorm:"not null" json:"created_by_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Details []GapAssessmentDetail `gorm:"-" json:"details,omitempty"`
}

type GapAssessmentDetail struct {
	ID                       int            `gorm:"primaryKey;autoIncrement:false" json:"id"`
	HeaderId                 int            `gorm:"not null" json:"header_id"`
	ClauseNo                 string         `gorm:"size:20;not null" json:"clause_no"`
	Description              string         `gorm:"type:text" json:"description"`
	AreaRequiringImprovement string         `gorm:"type:text" json:"area_requiring_improvement"`
	MaturityStatus           MaturityStatus `gorm:"size:20;not null" json:"maturity_status"`
	PossibleBarrier          bool           `gorm:"not null" json:"possible_barrier"`
	Remarks                  string         `gorm:"type:text" json:"remarks"`
}

type NewGapAssessment struct {
	StandardName  string                   `json:"standard_name" validate:"required,max=150"`
	Department    string                   `json:"department" validate:"required,max=100"`
	MeetingDate   string                   `json:"meeting_date" validate:"omitempty,datetime=2006-01-02"`
	MeetingTime   string                   `json:"meeting_time" validate:"omitempty,datetime=15:04"`
	ContactPerson string                   `json:"contact_person" validate:"max=100"`
	ContactPhone  string                   `json:"contact_phone"`
	Remarks       string                   `json:"remarks"`
	Details       []NewGapAssessmentDetail `json:"details" validate:"dive"`
}

type NewGapAssessmentDetail struct {
	ClauseNo                 string         `json:"clause_no" validate:"required,max=20"`
	Description              string         `json:"description"`
	AreaRequiringImprovement string         `json:"area_requiring_improvement"`
	MaturityStatus           MaturityStatus `json:"maturity_status" validate:"required"`
	PossibleBarrier          bool           `json:"possible_barrier"`
	Remarks                  string         `json:"remarks"`
}

// GapAssessmentSummary scores maturity from Nonexistent (0) to Optimized (5).
// Not Applicable clauses are left out of the average.
type GapAssessmentSummary struct {
	HeaderId         int                    `json:"header_id"`
	AssessedClauses  int                    `json:"assessed_clauses"`
	NotApplicable    int                    `json:"not_applicable"`
	PossibleBarriers int                    `json:"possible_barriers"`
	MaturityScore    decimal.Decimal        `json:"maturity_score"`
	StatusCounts     map[MaturityStatus]int `json:"status_counts"`
}

func (input *NewGapAssessment) validate() error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	for i, d := range input.Details {
		if !d.MaturityStatus.IsValid() {
			return utils.InvalidField(fmt.Sprintf("details[%d].maturity_status", i), "oneof")
		}
	}
	if input.ContactPhone != "" {
		phone, err := utils.FormatPhoneNumber(input.ContactPhone, config.DefaultPhoneRegion())
		if err != nil {
			return utils.InvalidField("contact_phone", "phone")
		}
		input.ContactPhone = phone
	}
	return nil
}

func findGapAssessment(db *gorm.DB, ns tenant.Namespace, id int, forUpdate bool) (*GapAssessmentHeader, error) {
	dbCtx := db.Table(ns.Table(tenant.GapAssessmentHeader))
	if forUpdate {
		dbCtx = dbCtx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var header GapAssessmentHeader
	err := dbCtx.Where("id = ?", id).Take(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: gap assessment %d", utils.ErrorRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &header, nil
}

func insertGapAssessmentDetails(tx *gorm.DB, ns tenant.Namespace, header *GapAssessmentHeader, details []NewGapAssessmentDetail) error {
	header.Details = make([]GapAssessmentDetail, 0, len(details))
	if len(details) == 0 {
		return nil
	}
	first, err := nextIds(tx, ns, tenant.GapAssessmentDetail, len(details))
	if err != nil {
		return err
	}
	for i, d := range details {
		header.Details = append(header.Details, GapAssessmentDetail{
			ID:                       first + i,
			HeaderId:                 header.ID,
			ClauseNo:                 strings.TrimSpace(d.ClauseNo),
			Description:              d.Description,
			AreaRequiringImprovement: d.AreaRequiringImprovement,
			MaturityStatus:           d.MaturityStatus,
			PossibleBarrier:          d.PossibleBarrier,
			Remarks:                  d.Remarks,
		})
	}
	return tx.Table(ns.Table(tenant.GapAssessmentDetail)).Create(&header.Details).Error
}

func CreateGapAssessment(ctx context.Context, input *NewGapAssessment) (*GapAssessmentHeader, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var header GapAssessmentHeader
	err := runTenantTx(ctx, "CreateGapAssessment", func(tx *gorm.DB, s *session) error {
		standard, err := findStandardByName(tx, input.StandardName)
		if err != nil {
			return err
		}
		id, err := nextIds(tx, s.ns, tenant.GapAssessmentHeader, 1)
		if err != nil {
			return err
		}
		header = GapAssessmentHeader{
			ID:            id,
			StandardId:    standard.ID,
			StandardName:  standard.Name,
			Department:    strings.TrimSpace(input.Department),
			MeetingDate:   input.MeetingDate,
			MeetingTime:   input.MeetingTime,
			ContactPerson: input.ContactPerson,
			ContactPhone:  input.ContactPhone,
			Remarks:       input.Remarks,
			CreatedById:   s.actorId,
		}
		if err := tx.Table(s.ns.Table(tenant.GapAssessmentHeader)).Create(&header).Error; err != nil {
			return err
		}
		if err := insertGapAssessmentDetails(tx, s.ns, &header, input.Details); err != nil {
			return err
		}
		return createLog(tx, s, GapAssessmentModule, header.ID, LogActionAdd)
	})
	if err != nil {
		return nil, err
	}
	return &header, nil
}

// UpdateGapAssessment replaces the header fields and every detail row.
func UpdateGapAssessment(ctx context.Context, id int, input *NewGapAssessment) (*GapAssessmentHeader, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var header *GapAssessmentHeader
	err := runTenantTx(ctx, "UpdateGapAssessment", func(tx *gorm.DB, s *session) error {
		if _, err := findGapAssessment(tx, s.ns, id, true); err != nil {
			return err
		}
		standard, err := findStandardByName(tx, input.StandardName)
		if err != nil {
			return err
		}
		if err := tx.Table(s.ns.Table(tenant.GapAssessmentHeader)).Where("id = ?", id).Updates(map[string]interface{}{
			"standard_id":    standard.ID,
			"standard_name":  standard.Name,
			"department":     strings.TrimSpace(input.Department),
			"meeting_date":   input.MeetingDate,
			"meeting_time":   input.MeetingTime,
			"contact_person": input.ContactPerson,
			"contact_phone":  input.ContactPhone,
			"remarks":        input.Remarks,
			"updated_at":     time.Now(),
		}).Error; err != nil {
			return err
		}
		if err := tx.Table(s.ns.Table(tenant.GapAssessmentDetail)).Where("header_id = ?", id).Delete(&GapAssessmentDetail{}).Error; err != nil {
			return err
		}
		if header, err = findGapAssessment(tx, s.ns, id, false); err != nil {
			return err
		}
		if err := insertGapAssessmentDetails(tx, s.ns, header, input.Details); err != nil {
			return err
		}
		return createLog(tx, s, GapAssessmentModule, id, LogActionEdit)
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

func DeleteGapAssessment(ctx context.Context, id int) (*GapAssessmentHeader, error) {
	var header *GapAssessmentHeader
	err := runTenantTx(ctx, "DeleteGapAssessment", func(tx *gorm.DB, s *session) error {
		current, err := findGapAssessment(tx, s.ns, id, true)
		if err != nil {
			return err
		}
		if err := tx.Table(s.ns.Table(tenant.GapAssessmentDetail)).Where("header_id = ?", id).Delete(&GapAssessmentDetail{}).Error; err != nil {
			return err
		}
		res := tx.Table(s.ns.Table(tenant.GapAssessmentHeader)).Where("id = ?", id).Delete(&GapAssessmentHeader{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: gap assessment %d", utils.ErrorRecordNotFound, id)
		}
		header = current
		return createLog(tx, s, GapAssessmentModule, id, LogActionDelete)
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

func GetGapAssessment(ctx context.Context, id int) (*GapAssessmentHeader, error) {
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	header, err := findGapAssessment(db, ns, id, false)
	if err != nil {
		return nil, err
	}
	if err := db.Table(ns.Table(tenant.GapAssessmentDetail)).Where("header_id = ?", id).Order("id").Find(&header.Details).Error; err != nil {
		return nil, err
	}
	return header, nil
}

type GapAssessmentFilter struct {
	StandardId *int
	Department *string
}

func GetGapAssessments(ctx context.Context, filter GapAssessmentFilter, page Page) (*PageResult[GapAssessmentHeader], error) {
	db, ns, err := tenantDB(ctx)
	if err != nil {
		return nil, err
	}
	dbCtx := db.Table(ns.Table(tenant.GapAssessmentHeader))
	if filter.StandardId != nil {
		dbCtx = dbCtx.Where("standard_id = ?", *filter.StandardId)
	}
	if filter.Department != nil {
		dbCtx = dbCtx.Where("department = ?", *filter.Department)
	}
	return paginate[GapAssessmentHeader](dbCtx, page)
}

func summarizeGapAssessment(header *GapAssessmentHeader) *GapAssessmentSummary {
	summary := &GapAssessmentSummary{
		HeaderId:      header.ID,
		MaturityScore: decimal.Zero,
		StatusCounts:  make(map[MaturityStatus]int),
	}
	total := decimal.Zero
	for _, d := range header.Details {
		summary.StatusCounts[d.MaturityStatus]++
		if d.PossibleBarrier {
			summary.PossibleBarriers++
		}
		score, ok := maturityScores[d.MaturityStatus]
		if !ok {
			summary.NotApplicable++
			continue
		}
		summary.AssessedClauses++
		total = total.Add(decimal.NewFromInt(score))
	}
	summary.MaturityScore = utils.RoundRatio(total, decimal.NewFromInt(int64(summary.AssessedClauses)))
	return summary
}

func GetGapAssessmentSummary(ctx context.Context, id int) (*GapAssessmentSummary, error) {
	header, err := GetGapAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	return summarizeGapAssessment(header), nil
}
