package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/middlewares"
	"github.com/mmdatafocus/compliance_backend/models"
)

func registerGapAssessmentRoutes(api *gin.RouterGroup) {
	g := api.Group("/gap-assessments")
	module := models.GapAssessmentModule
	can := middlewares.RequireCapability

	g.GET("", can(module, middlewares.ActionView), listGapAssessmentsHandler)
	g.POST("", can(module, middlewares.ActionAdd), createGapAssessmentHandler)
	g.GET("/:id", can(module, middlewares.ActionView), getGapAssessmentHandler)
	g.GET("/:id/summary", can(module, middlewares.ActionView), gapAssessmentSummaryHandler)
	g.PUT("/:id", can(module, middlewares.ActionEdit), updateGapAssessmentHandler)
	g.DELETE("/:id", can(module, middlewares.ActionDelete), deleteGapAssessmentHandler)
}

func listGapAssessmentsHandler(c *gin.Context) {
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}
	standardId, ok := queryInt(c, "standard_id")
	if !ok {
		return
	}
	filter := models.GapAssessmentFilter{StandardId: standardId, Department: queryString(c, "department")}
	result, err := models.GetGapAssessments(c.Request.Context(), filter, page)
	if err != nil {
		respondError(c, "listGapAssessmentsHandler", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createGapAssessmentHandler(c *gin.Context) {
	var input models.NewGapAssessment
	if !bindJSON(c, &input) {
		return
	}
	header, err := models.CreateGapAssessment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "createGapAssessmentHandler", err)
		return
	}
	c.JSON(http.StatusCreated, header)
}

func getGapAssessmentHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	header, err := models.GetGapAssessment(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getGapAssessmentHandler", err)
		return
	}
	c.JSON(http.StatusOK, header)
}

func gapAssessmentSummaryHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	summary, err := models.GetGapAssessmentSummary(c.Request.Context(), id)
	if err != nil {
		respondError(c, "gapAssessmentSummaryHandler", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func updateGapAssessmentHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	var input models.NewGapAssessment
	if !bindJSON(c, &input) {
		return
	}
	header, err := models.UpdateGapAssessment(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "updateGapAssessmentHandler", err)
		return
	}
	c.JSON(http.StatusOK, header)
}

func deleteGapAssessmentHandler(c *gin.Context) {
	id, ok := paramId(c, "id")
	if !ok {
		return
	}
	header, err := models.DeleteGapAssessment(c.Request.Context(), id)
	if err != nil {
		respondError(c, "deleteGapAssessmentHandler", err)
		return
	}
	c.JSON(http.StatusOK, header)
}
