package store

import "time"

// PairingRecord describes one issued pairing token, keyed internally by its
// hash — the bearer token itself is never persisted or returned once issued.
type PairingRecord struct {
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Consumed  bool      `json:"consumed"`
}

// PairingStore persists single-use pairing tokens used to enroll new
// operators, nodes, and channel connections into the gateway.
type PairingStore interface {
	// Issue mints a new bearer token scoped to role, valid for ttl. The
	// plaintext token is returned exactly once and never recoverable again.
	Issue(role string, ttl time.Duration) (token string, expiresAt time.Time, err error)

	// Consume validates and burns a token exactly once. ok is false if the
	// token is unknown, expired, or already consumed.
	Consume(token string) (role string, ok bool, err error)

	// List reports all non-expired records for operator visibility
	// (pairing.list RPC), newest first.
	List() ([]PairingRecord, error)

	// Revoke invalidates a pending token before it is ever consumed.
	Revoke(token string) error
}
