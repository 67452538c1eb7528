package models

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/compliance_backend/utils"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page asks for up to Limit rows after the opaque cursor, newest id first.
type Page struct {
	Limit int     `form:"limit"`
	After *string `form:"after"`
}

type PageInfo struct {
	EndCursor   string `json:"end_cursor"`
	HasNextPage bool   `json:"has_next_page"`
}

type PageResult[T any] struct {
	Items    []*T     `json:"items"`
	PageInfo PageInfo `json:"page_info"`
}

type identifiable interface {
	AuditPlan | Audit | Nonconformity | GapAssessmentHeader
}

func EncodeCursor(id int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(id)))
}

func DecodeCursor(cursor *string) (int, error) {
	if cursor == nil || *cursor == "" {
		return 0, nil
	}
	b, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return 0, utils.InvalidField("after", "cursor")
	}
	id, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, utils.InvalidField("after", "cursor")
	}
	return id, nil
}

func paginate[T identifiable](dbCtx *gorm.DB, page Page) (*PageResult[T], error) {
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	after, err := DecodeCursor(page.After)
	if err != nil {
		return nil, err
	}
	if after > 0 {
		dbCtx = dbCtx.Where("id < ?", after)
	}

	items := make([]*T, 0, limit+1)
	if err := dbCtx.Order("id DESC").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, err
	}

	result := &PageResult[T]{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.PageInfo.HasNextPage = true
	}
	if n := len(result.Items); n > 0 {
		result.PageInfo.EndCursor = EncodeCursor(idOf(result.Items[n-1]))
	}
	return result, nil
}

func idOf(item any) int {
	switch v := item.(type) {
	case *AuditPlan:
		return v.ID
	case *Audit:
		return v.ID
	case *Nonconformity:
		return v.ID
	case *GapAssessmentHeader:
		return v.ID
	}
	panic(fmt.Sprintf("models: no id for %T", item))
}
