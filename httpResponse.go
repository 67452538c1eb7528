package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrInvalidTenant), errors.Is(err, utils.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrMissingIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrDuplicateAudit),
		errors.Is(err, utils.ErrDuplicateSchedule),
		errors.Is(err, utils.ErrIllegalTransition),
		errors.Is(err, utils.ErrIllegalState):
		return http.StatusConflict
	case errors.Is(err, utils.ErrLockNotObtained):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes the mapped status. Storage faults are logged and never
// leak their cause to the client.
func respondError(c *gin.Context, funcName string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		tenantCode, _ := utils.GetTenantCodeFromContext(c.Request.Context())
		config.LogError(config.GetLogger(), "Handlers", funcName, c.FullPath(), tenantCode, err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": err.Error()}
	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		body["fields"] = validationErr.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

func paramId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) (*int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return nil, false
	}
	return &v, true
}

func queryString(c *gin.Context, name string) *string {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil
	}
	return &raw
}

// pageFromQuery reads ?limit=&after= cursors.
func pageFromQuery(c *gin.Context) (models.Page, bool) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return models.Page{}, false
	}
	return models.Page{Limit: utils.DereferencePtr(limit, 0), After: queryString(c, "after")}, true
}
