package redisx

import "time"

const (
	// Idempotent checkout: idem:sale:checkout:{Idempotency-Key} -> sale number
	KeyIdemCheckout = "idem:sale:checkout:%s"

	// Cached sale view: sale_status:{sale_number} -> sale JSON
	KeySaleStatus = "sale_status:%s"

	// Dedup of consumed events: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

// InFlight marks a claimed idempotency key whose request has not finished.
const InFlight = "-"
