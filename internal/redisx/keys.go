package redisx

import "time"

const (
	// Idempotency checkout: idem:checkout:{user_id}:{idempotency_key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache order lengkap: order:{order_id} -> JSON order
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

// pendingMarker is stored under an idempotency key while the first request
// holding it is still running.
const pendingMarker = "pending"

var (
	TTLIdempotency = 24 * time.Hour
	TTLPending     = 30 * time.Second
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
