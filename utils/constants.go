package utils

import (
	"time"
)

type contextKey string

// RequestIDKey carries the X-Request-ID of the HTTP request into the flows
const RequestIDKey contextKey = "request_id"

// Counter limits accepted at creation time
const (
	MinDigitWidth = 1
	MaxDigitWidth = 8
)

// Cache key fragments, joined with the configured redis prefix
const (
	IssuanceGuardKey = "issuance:guard"
	AssetImageKey    = "asset:image"
	AssetMetaKey     = "asset:meta"
)

// Issuance timings
const (
	// DefaultIssuanceTimeout bounds a single external issuance call
	DefaultIssuanceTimeout = 2 * time.Minute

	// DefaultPersistTimeout bounds the guard and asset writes that follow an
	// issuance call
	DefaultPersistTimeout = 30 * time.Second

	// DefaultOrphanAfter is how long a pending guard may stay unresolved
	// before the reconciler marks it orphaned
	DefaultOrphanAfter = 30 * time.Minute
)
