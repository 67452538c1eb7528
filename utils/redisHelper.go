package utils

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/compliance_backend/config"
)

var ErrLockNotObtained = errors.New("resource is busy, try again")

/* generic functions */

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

func listKey[T any](scope string) string {
	if scope == "" {
		return GetTypeName[T]() + "List"
	}
	return GetTypeName[T]() + "List:" + scope
}

/* Redis */

// StoreRedisList caches a list under TypeList[:scope].
func StoreRedisList[T any](ctx context.Context, list []*T, scope string) error {
	return config.SetRedisObject(ctx, listKey[T](scope), list, config.CatalogueCacheTTL())
}

// RetrieveRedisList returns nil, nil on a cache miss.
func RetrieveRedisList[T any](ctx context.Context, scope string) ([]*T, error) {
	var result []*T
	exists, err := config.GetRedisObject(ctx, listKey[T](scope), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

func RemoveRedisList[T any](ctx context.Context, scope string) error {
	return config.RemoveRedisKey(ctx, listKey[T](scope))
}

// ObtainLock takes a best-effort distributed lock. When redis is not
// configured it returns a nil lock and no error; callers must tolerate that.
func ObtainLock(ctx context.Context, key string, ttl time.Duration) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

func ReleaseLock(ctx context.Context, lock *redislock.Lock) {
	if lock == nil {
		return
	}
	if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		config.LogWarn(config.GetLogger(), "Redis", "ReleaseLock", err)
	}
}
