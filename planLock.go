package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/models"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/sirupsen/logrus"
)

func planLockKey(ctx context.Context, kind models.AuditKind, planId int) string {
	tenantCode, _ := utils.GetTenantCodeFromContext(ctx)
	return fmt.Sprintf("lock:%s:%s:plan:%d", tenantCode, kind, planId)
}

// withPlanLock serializes cascading mutations on one plan across instances.
// The row locks taken inside the transaction are what keep the data correct,
// so an unavailable redis only costs contention.
func withPlanLock(ctx context.Context, kind models.AuditKind, planId int, fn func() error) error {
	if !config.PlanLockEnabled() || planId <= 0 {
		return fn()
	}
	key := planLockKey(ctx, kind, planId)
	lock, err := utils.ObtainLock(ctx, key, config.PlanLockTTL())
	if errors.Is(err, utils.ErrLockNotObtained) {
		return err
	}
	if err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"field": "withPlanLock",
			"key":   key,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		lock = nil
	}
	defer func(lock *redislock.Lock) {
		utils.ReleaseLock(context.WithoutCancel(ctx), lock)
	}(lock)
	return fn()
}

// auditPlanId looks up the owning plan only when the lock is in use.
func auditPlanId(ctx context.Context, kind models.AuditKind, auditId int) int {
	if !config.PlanLockEnabled() {
		return 0
	}
	audit, err := models.GetAudit(ctx, kind, auditId)
	if err != nil {
		return 0
	}
	return audit.PlanId
}
