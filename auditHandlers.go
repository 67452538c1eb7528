package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/compliance_backend/middlewares"
	"github.com/mmdatafocus/compliance_backend/models"
)

// registerAuditRoutes mounts plan, audit and nonconformity routes for one kind
// under /api/v1/<kind>.
func registerAuditRoutes(api *gin.RouterGroup, kind models.AuditKind) {
	modules := kind.ModuleNames()
	g := api.Group("/" + string(kind))
	can := middlewares.RequireCapability

	g.GET("/plans", can(modules.Plan, middlewares.ActionView), listPlansHandler(kind))
	g.POST("/plans", can(modules.Plan, middlewares.ActionAdd), createPlanHandler(kind))
	g.GET("/plans/:id", can(modules.Plan, middlewares.ActionView), getPlanHandler(kind))
	g.PUT("/plans/:id", can(modules.Plan, middlewares.ActionEdit), updatePlanHandler(kind))
	g.DELETE("/plans/:id", can(modules.Plan, middlewares.ActionDelete), deletePlanHandler(kind))
	g.PUT("/plans/:id/status", can(modules.Plan, middlewares.ActionApprove), updatePlanStatusHandler(kind))
	g.GET("/plans/:id/aggregate-status", can(modules.Plan, middlewares.ActionView), planAggregateStatusHandler(kind))

	g.GET("/audits", can(modules.Audit, middlewares.ActionView), listAuditsHandler(kind))
	g.POST("/audits", can(modules.Audit, middlewares.ActionAdd), createAuditHandler(kind))
	g.GET("/audits/:id", can(modules.Audit, middlewares.ActionView), getAuditHandler(kind))
	g.DELETE("/audits/:id", can(modules.Audit, middlewares.ActionDelete), deleteAuditHandler(kind))
	g.POST("/audits/:id/approve", can(modules.Audit, middlewares.ActionApprove), approveAuditHandler(kind))
	g.POST("/audits/:id/revert", can(modules.Audit, middlewares.ActionApprove), revertAuditHandler(kind))
	g.POST("/audits/:id/findings", can(modules.Finding, middlewares.ActionAdd), recordFindingHandler(kind))

	g.GET("/nonconformities", can(modules.Nonconformity, middlewares.ActionView), listNonconformitiesHandler(kind))
	g.GET("/nonconformities/:id", can(modules.Nonconformity, middlewares.ActionView), getNonconformityHandler(kind))
	g.PUT("/nonconformities/:id", can(modules.Nonconformity, middlewares.ActionEdit), updateNonconformityHandler(kind))
	g.DELETE("/nonconformities/:id", can(modules.Nonconformity, middlewares.ActionDelete), deleteNonconformityHandler(kind))
	g.POST("/nonconformities/:id/approve", can(modules.Nonconformity, middlewares.ActionApprove), approveNonconformityHandler(kind))
	g.POST("/nonconformities/:id/revert", can(modules.Nonconformity, middlewares.ActionApprove), revertNonconformityHandler(kind))
}

func listPlansHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := pageFromQuery(c)
		if !ok {
			return
		}
		filter := models.AuditPlanFilter{PlanNo: queryString(c, "plan_no")}
		if status := queryString(c, "status"); status != nil {
			s := models.AuditPlanStatus(*status)
			filter.Status = &s
		}
		result, err := models.PaginateAuditPlans(c.Request.Context(), kind, filter, page)
		if err != nil {
			respondError(c, "listPlansHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func createPlanHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAuditPlan
		if !bindJSON(c, &input) {
			return
		}
		plan, err := models.CreateAuditPlan(c.Request.Context(), kind, &input)
		if err != nil {
			respondError(c, "createPlanHandler", err)
			return
		}
		c.JSON(http.StatusCreated, plan)
	}
}

func getPlanHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		plan, err := models.GetAuditPlan(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, "getPlanHandler", err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

func updatePlanHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input models.NewAuditPlan
		if !bindJSON(c, &input) {
			return
		}
		plan, err := models.UpdateAuditPlan(c.Request.Context(), kind, id, &input)
		if err != nil {
			respondError(c, "updatePlanHandler", err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

func deletePlanHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		plan, err := models.DeleteAuditPlan(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, "deletePlanHandler", err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

type planStatusRequest struct {
	Status models.AuditPlanStatus `json:"status" binding:"required"`
}

func updatePlanStatusHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var req planStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()
		var plan *models.AuditPlan
		err := withPlanLock(ctx, kind, id, func() (err error) {
			plan, err = models.UpdateStatusAuditPlan(ctx, kind, id, req.Status)
			return err
		})
		if err != nil {
			respondError(c, "updatePlanStatusHandler", err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

func planAggregateStatusHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		status, err := models.DeriveAggregateStatus(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, "planAggregateStatusHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"plan_id": id, "status": status})
	}
}

func listAuditsHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := pageFromQuery(c)
		if !ok {
			return
		}
		planId, ok := queryInt(c, "plan_id")
		if !ok {
			return
		}
		filter := models.AuditFilter{PlanId: planId}
		if status := queryString(c, "status"); status != nil {
			s := models.AuditStatus(*status)
			filter.Status = &s
		}
		result, err := models.GetAudits(c.Request.Context(), kind, filter, page)
		if err != nil {
			respondError(c, "listAuditsHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func createAuditHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAudit
		if !bindJSON(c, &input) {
			return
		}
		ctx := c.Request.Context()
		var audit *models.Audit
		err := withPlanLock(ctx, kind, input.PlanId, func() (err error) {
			audit, err = models.CreateAudit(ctx, kind, &input)
			return err
		})
		if err != nil {
			respondError(c, "createAuditHandler", err)
			return
		}
		c.JSON(http.StatusCreated, audit)
	}
}

func getAuditHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		audit, err := models.GetAudit(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, "getAuditHandler", err)
			return
		}
		c.JSON(http.StatusOK, audit)
	}
}

// auditMutation runs an audit state change under its plan's lock.
func auditMutation(kind models.AuditKind, funcName string, op func(c *gin.Context, id int) (*models.Audit, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		var audit *models.Audit
		err := withPlanLock(ctx, kind, auditPlanId(ctx, kind, id), func() (err error) {
			audit, err = op(c, id)
			return err
		})
		if err != nil {
			respondError(c, funcName, err)
			return
		}
		c.JSON(http.StatusOK, audit)
	}
}

func approveAuditHandler(kind models.AuditKind) gin.HandlerFunc {
	return auditMutation(kind, "approveAuditHandler", func(c *gin.Context, id int) (*models.Audit, error) {
		return models.ApproveAudit(c.Request.Context(), kind, id)
	})
}

func revertAuditHandler(kind models.AuditKind) gin.HandlerFunc {
	return auditMutation(kind, "revertAuditHandler", func(c *gin.Context, id int) (*models.Audit, error) {
		return models.RevertAudit(c.Request.Context(), kind, id)
	})
}

func deleteAuditHandler(kind models.AuditKind) gin.HandlerFunc {
	return auditMutation(kind, "deleteAuditHandler", func(c *gin.Context, id int) (*models.Audit, error) {
		return models.DeleteAudit(c.Request.Context(), kind, id)
	})
}

func recordFindingHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input models.NewFinding
		if !bindJSON(c, &input) {
			return
		}
		result, err := models.RecordFinding(c.Request.Context(), kind, id, &input)
		if err != nil {
			respondError(c, "recordFindingHandler", err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func listNonconformitiesHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, ok := pageFromQuery(c)
		if !ok {
			return
		}
		auditId, ok := queryInt(c, "audit_id")
		if !ok {
			return
		}
		filter := models.NonconformityFilter{AuditId: auditId}
		if status := queryString(c, "status"); status != nil {
			s := models.NonconformityStatus(*status)
			filter.Status = &s
		}
		result, err := models.GetNonconformities(c.Request.Context(), kind, filter, page)
		if err != nil {
			respondError(c, "listNonconformitiesHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getNonconformityHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		nc, err := models.GetNonconformity(c.Request.Context(), kind, id)
		if err != nil {
			respondError(c, "getNonconformityHandler", err)
			return
		}
		c.JSON(http.StatusOK, nc)
	}
}

func updateNonconformityHandler(kind models.AuditKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		var input models.NewNonconformityCorrection
		if !bindJSON(c, &input) {
			return
		}
		nc, err := models.UpdateNonconformity(c.Request.Context(), kind, id, &input)
		if err != nil {
			respondError(c, "updateNonconformityHandler", err)
			return
		}
		c.JSON(http.StatusOK, nc)
	}
}

func nonconformityMutation(funcName string, op func(c *gin.Context, id int) (*models.Nonconformity, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramId(c, "id")
		if !ok {
			return
		}
		nc, err := op(c, id)
		if err != nil {
			respondError(c, funcName, err)
			return
		}
		c.JSON(http.StatusOK, nc)
	}
}

func approveNonconformityHandler(kind models.AuditKind) gin.HandlerFunc {
	return nonconformityMutation("approveNonconformityHandler", func(c *gin.Context, id int) (*models.Nonconformity, error) {
		return models.ApproveNonconformity(c.Request.Context(), kind, id)
	})
}

func revertNonconformityHandler(kind models.AuditKind) gin.HandlerFunc {
	return nonconformityMutation("revertNonconformityHandler", func(c *gin.Context, id int) (*models.Nonconformity, error) {
		return models.RevertNonconformity(c.Request.Context(), kind, id)
	})
}

func deleteNonconformityHandler(kind models.AuditKind) gin.HandlerFunc {
	return nonconformityMutation("deleteNonconformityHandler", func(c *gin.Context, id int) (*models.Nonconformity, error) {
		return models.DeleteNonconformity(c.Request.Context(), kind, id)
	})
}
