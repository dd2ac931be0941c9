package sessionstore

import (
	"context"
	"errors"
	"time"
)

// TTL matches the lifetime of a session auth token.
const TTL = 600 * time.Second

// ErrNotFound is returned when no live record exists for a session id.
var ErrNotFound = errors.New("session not found")

// Record describes a liveness session started by this process.
type Record struct {
	SessionID     string    `json:"session_id"`
	Mode          string    `json:"mode"`
	URL           string    `json:"url"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store keeps started sessions until their auth token expires.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, sessionID string) (*Record, error)
}
