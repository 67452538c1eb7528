package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/middlewares"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/models/reports"
	"github.com/mmdatafocus/compliance_backend/utils"
)

const (
	logModule          = "Log"
	signedURLLifespan  = 15 * time.Minute
	defaultContentType = "application/octet-stream"
)

func registerSupportRoutes(api *gin.RouterGroup) {
	can := middlewares.RequireCapability

	catalogue := api.Group("/catalogue")
	catalogue.GET("/standards", listStandardsHandler)
	catalogue.GET("/standards/:id/clauses", listClausesHandler)
	catalogue.GET("/certification-bodies", listCertificationBodiesHandler)

	api.GET("/logs", can(logModule, middlewares.ActionView), listLogsHandler)

	attachments := api.Group("/attachments")
	attachments.GET("", can(models.AttachmentModule, middlewares.ActionView), listAttachmentsHandler)
	attachments.POST("/upload-url", can(models.AttachmentModule, middlewares.ActionAdd), attachmentUploadURLHandler)
	attachments.POST("", can(models.AttachmentModule, middlewares.ActionAdd), createAttachmentHandler)
	attachments.GET("/:id/download-url", can(models.AttachmentModule, middlewares.ActionView), attachmentDownloadURLHandler)
	attachments.DELETE("/:id", can(models.AttachmentModule, middlewares.ActionDelete), deleteAttachmentHandler)

	exports := api.Group("/exports")
	for _, kind := range models.Kinds() {
		exports.GET("/"+string(kind)+"/audits/:id", can(kind.ModuleNames().Audit, middlewares.ActionView), exportAuditHandler(kind))
	}
	exports.GET("/gap-assessments/:id", can(models.GapAssessmentModule, middlewares.ActionView), exportGapAssessmentHandler)
}

func listStandardsHandler(c *gin.Context) {
	standards, err := models.GetStandards(c.Request.Context())
	if err != nil {
		respondError(c, "listStandardsHandler", err)
		return
	}
	c.JSON(http.StatusOK, standards)
}

func listClausesHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	clauses, err := models.GetClauses(c.Request.Context(), id)
	if err != nil {
		respondError(c, "listClausesHandler", err)
		return
	}
	c.JSON(http.StatusOK, clauses)
}

func listCertificationBodiesHandler(c *gin.Context) {
	bodies, err := models.GetCertificationBodies(c.Request.Context())
	if err != nil {
		respondError(c, "listCertificationBodiesHandler", err)
		return
	}
	c.JSON(http.StatusOK, bodies)
}

func listLogsHandler(c *gin.Context) {
	moduleId, ok := queryInt(c, "module_id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	entries, err := models.GetLogEntries(c.Request.Context(), models.LogFilter{
		ModuleName: queryString(c, "module_name"),
		ModuleId:   moduleId,
		Limit:      utils.DereferencePtr(limit, 0),
	})
	if err != nil {
		respondError(c, "listLogsHandler", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func listAttachmentsHandler(c *gin.Context) {
	referenceId, ok := queryInt(c, "reference_id")
	if !ok {
		return
	}
	attachments, err := models.GetAttachments(c.Request.Context(), c.Query("reference_type"), utils.DereferencePtr(referenceId, 0))
	if err != nil {
		respondError(c, "listAttachmentsHandler", err)
		return
	}
	c.JSON(http.StatusOK, attachments)
}

type uploadURLRequest struct {
	ReferenceType string `json:"reference_type" binding:"required"`
	FileName      string `json:"file_name" binding:"required"`
	ContentType   string `json:"content_type"`
}

// attachmentUploadURLHandler hands out a signed PUT url. The client then
// registers the object with POST /attachments.
func attachmentUploadURLHandler(c *gin.Context) {
	var req uploadURLRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	objectKey, err := models.AttachmentObjectKey(ctx, req.ReferenceType, req.FileName)
	if err != nil {
		respondError(c, "attachmentUploadURLHandler", err)
		return
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	signed, err := utils.SignUpload(ctx, objectKey, contentType, signedURLLifespan)
	if err != nil {
		respondError(c, "attachmentUploadURLHandler", err)
		return
	}
	c.JSON(http.StatusOK, signed)
}

func createAttachmentHandler(c *gin.Context) {
	var input models.NewAttachment
	if !bindJSON(c, &input) {
		return
	}
	ctx := c.Request.Context()
	if config.VerifyAttachmentUploads() {
		exists, err := utils.ObjectExists(ctx, input.ObjectKey)
		if err != nil {
			respondError(c, "createAttachmentHandler", err)
			return
		}
		if !exists {
			respondError(c, "createAttachmentHandler", utils.InvalidField("object_key", "uploaded"))
			return
		}
	}
	attachment, err := models.CreateAttachment(ctx, &input)
	if err != nil {
		respondError(c, "createAttachmentHandler", err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

func attachmentDownloadURLHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	attachment, err := models.GetAttachment(ctx, id)
	if err != nil {
		respondError(c, "attachmentDownloadURLHandler", err)
		return
	}
	signed, err := utils.SignDownload(ctx, attachment.ObjectKey, attachment.FileName, signedURLLifespan)
	if err != nil {
		respondError(c, "attachmentDownloadURLHandler", err)
		return
	}
	c.JSON(http.StatusOK, signed)
}

func deleteAttachmentHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	attachment, err := models.DeleteAttachment(ctx, id)
	if err != nil {
		respondError(c, "deleteAttachmentHandler", err)
		return
	}
	if config.VerifyAttachmentUploads() {
		// the metadata row is gone either way; a leftover object only costs storage
		if err := utils.DeleteObject(ctx, attachment.ObjectKey); err != nil {
			config.LogWarn(config.GetLogger(), "Handlers", "deleteAttachmentHandler", err)
		}
	}
	c.JSON(http.StatusOK, attachment)
}

// writeXlsx buffers the workbook so a failed export still gets a JSON error.
func writeXlsx(c *gin.Context, funcName, fileName string, export func(buf *bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := export(&buf); err != nil {
		respondError(c, funcName, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, reports.ContentTypeXlsx, buf.Bytes())
}

func exportAuditHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		writeXlsx(c, "exportAuditHandler", fmt.Sprintf("%s-audit-%d.xlsx", kind, id), func(buf *bytes.Buffer) error {
			return reports.ExportAuditFindings(c.Request.Context(), kind, id, buf)
		})
	}
}

func exportGapAssessmentHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	writeXlsx(c, "exportGapAssessmentHandler", fmt.Sprintf("gap-assessment-%d.xlsx", id), func(buf *bytes.Buffer) error {
		return reports.ExportGapAssessment(c.Request.Context(), id, buf)
	})
}
