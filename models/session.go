package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/compliance_backend/config"
	"github.com/mmdatafocus/compliance_backend/tenant"
	"github.com/mmdatafocus/compliance_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/mmdatafocus/compliance_backend/models")

// session is the per-call identity every lifecycle operation runs under.
type session struct {
	ns        tenant.Namespace
	actorId   int
	actorName string
	// entries written in the current transaction, published once it commits
	logs []LogEntry
}

func sessionFromContext(ctx context.Context) (*session, error) {
	ns, err := utils.GetNamespaceFromContext(ctx)
	if err != nil {
		return nil, err
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: user id", utils.ErrMissingIdentity)
	}
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: user name", utils.ErrMissingIdentity)
	}
	return &session{ns: ns, actorId: userId, actorName: userName}, nil
}

// tenantDB is the read path: a context-bound handle plus the caller's namespace.
func tenantDB(ctx context.Context) (*gorm.DB, tenant.Namespace, error) {
	ns, err := utils.GetNamespaceFromContext(ctx)
	if err != nil {
		return nil, tenant.Namespace{}, err
	}
	return config.GetDB().WithContext(ctx), ns, nil
}

// runTenantTx runs fn in one transaction. Any error rolls back; errors that are
// not expected domain outcomes surface as *utils.StorageError.
func runTenantTx(ctx context.Context, op string, fn func(tx *gorm.DB, s *session) error) (err error) {
	s, err := sessionFromContext(ctx)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("tenant", s.ns.Code()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx := config.GetDB().WithContext(ctx).Begin()
	if tx.Error != nil {
		return utils.AsStorageFailure(op, tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx, s); err != nil {
		tx.Rollback()
		if !utils.IsDomainError(err) {
			config.LogError(config.GetLogger(), "Models", op, "transaction rolled back", s.ns.Code(), err)
		}
		return utils.AsStorageFailure(op, err)
	}
	if err := tx.Commit().Error; err != nil {
		config.LogError(config.GetLogger(), "Models", op, "commit failed", s.ns.Code(), err)
		return utils.AsStorageFailure(op, err)
	}

	for _, entry := range s.logs {
		config.GetLogger().WithFields(logrus.Fields{
			"tenant":    s.ns.Code(),
			"module":    entry.ModuleName,
			"module_id": entry.ModuleId,
			"action":    entry.Action,
		}).Info(op)
	}
	publishStatusEvents(ctx, s)
	return nil
}

func publishStatusEvents(ctx context.Context, s *session) {
	if len(s.logs) == 0 || !config.PublishStatusEvents() {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, entry := range s.logs {
		_, err := config.PublishStatusEvent(pubCtx, config.StatusEvent{
			TenantCode:    s.ns.Code(),
			LogId:         entry.ID,
			ModuleName:    entry.ModuleName,
			ModuleId:      entry.ModuleId,
			Action:        entry.Action,
			ActorId:       entry.ActorId,
			ActorName:     entry.ActorName,
			OccurredAt:    entry.LogDate,
			CorrelationId: correlationId,
		})
		if err != nil {
			config.LogWarn(config.GetLogger(), "Models", "publishStatusEvents", err)
		}
	}
}
