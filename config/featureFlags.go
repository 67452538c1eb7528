package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// PublishStatusEvents enables Pub/Sub status events after each committed mutation.
// Requires PUBSUB_TOPIC as well.
//
// Set via env:
// - PUBLISH_STATUS_EVENTS=true
func PublishStatusEvents() bool {
	return boolFromEnv("PUBLISH_STATUS_EVENTS") && strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")) != ""
}

// PlanLockEnabled turns on the best-effort redis lock around cascading plan mutations.
//
// Set via env:
// - PLAN_LOCK_ENABLED=true
func PlanLockEnabled() bool {
	return boolFromEnv("PLAN_LOCK_ENABLED")
}

// PlanLockTTL defaults to 10s.
func PlanLockTTL() time.Duration {
	return time.Duration(intFromEnv("PLAN_LOCK_TTL_SECONDS", 10)) * time.Second
}

// CatalogueCacheTTL defaults to 1h. Zero keeps entries until invalidated.
func CatalogueCacheTTL() time.Duration {
	return time.Duration(intFromEnv("CATALOGUE_CACHE_HOURS", 1)) * time.Hour
}

// DefaultPhoneRegion is the region used to parse contact numbers without a country prefix.
func DefaultPhoneRegion() string {
	if v := strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION")); v != "" {
		return strings.ToUpper(v)
	}
	return "MM"
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// VerifyAttachmentUploads makes attachment registration check that the object
// was actually uploaded, and attachment deletion remove the object.
//
// Set via env:
// - ATTACHMENT_OBJECT_CHECKS=true
func VerifyAttachmentUploads() bool {
	return boolFromEnv("ATTACHMENT_OBJECT_CHECKS")
}
