package repository

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/liveness-server/internal/logging"
)

// LivenessLog is one interpreted liveness result.
type LivenessLog struct {
	ID               uint      `gorm:"primaryKey"`
	SessionID        string    `gorm:"column:session_id;index;size:64"`
	Mode             string    `gorm:"column:mode;size:32"`
	CorrelationID    string    `gorm:"column:correlation_id;size:64"`
	Status           string    `gorm:"column:status;size:32"`
	LivenessDecision string    `gorm:"column:liveness_decision;size:32"`
	VerifyDecision   string    `gorm:"column:verify_decision;size:32"`
	EvidencePath     string    `gorm:"column:evidence_path;type:text"`
	EvidenceError    string    `gorm:"column:evidence_error;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (LivenessLog) TableName() string {
	return "liveness_logs"
}

// DecisionAggregation holds decision counts across all logs.
type DecisionAggregation struct {
	TotalCount         int64
	RealFaceCount      int64
	SpoofFaceCount     int64
	VerifyMatchCount   int64
	EvidenceSavedCount int64
}

const (
	defaultRetryAttempts  = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = time.Second
)

// LivenessRepository persists liveness logs with gorm.
type LivenessRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewLivenessRepository creates a new repository instance.
func NewLivenessRepository(db *gorm.DB, logger *zap.Logger) *LivenessRepository {
	return &LivenessRepository{
		db:             db,
		logger:         logger.Named("liveness_repository"),
		retryAttempts:  defaultRetryAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *LivenessRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&LivenessLog{})
}

// SaveLog persists a liveness log entry.
func (r *LivenessRepository) SaveLog(ctx context.Context, log *LivenessLog) error {
	err := r.executeWithRetry(ctx, "repository.save_log", log.SessionID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
	if err != nil {
		return err
	}
	r.logger.Debug("liveness log saved", zap.String("session_id", log.SessionID), zap.Uint("id", log.ID))
	return nil
}

// FindBySessionID returns every log of a session, newest first.
func (r *LivenessRepository) FindBySessionID(ctx context.Context, sessionID string) ([]*LivenessLog, error) {
	var logs []*LivenessLog
	err := r.executeWithRetry(ctx, "repository.find_by_session_id", sessionID, func() error {
		logs = nil
		return r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("created_at DESC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateDecisions counts decisions over all logs.
func (r *LivenessRepository) AggregateDecisions(ctx context.Context) (*DecisionAggregation, error) {
	var agg DecisionAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_decisions", "", func() error {
		return r.db.WithContext(ctx).
			Model(&LivenessLog{}).
			Select(`COUNT(*) AS total_count,
			COALESCE(SUM(CASE WHEN liveness_decision = ? THEN 1 ELSE 0 END), 0) AS real_face_count,
			COALESCE(SUM(CASE WHEN liveness_decision = ? THEN 1 ELSE 0 END), 0) AS spoof_face_count,
			COALESCE(SUM(CASE WHEN verify_decision = ? THEN 1 ELSE 0 END), 0) AS verify_match_count,
			COALESCE(SUM(CASE WHEN evidence_path <> '' THEN 1 ELSE 0 END), 0) AS evidence_saved_count`,
				"realface", "spoofface", "match").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// executeWithRetry runs fn, retrying transient failures with exponential backoff.
// Non-transient failures return immediately. The final error is an OperationError.
func (r *LivenessRepository) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := r.initialBackoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) || attempt == attempts {
			break
		}

		logging.WithOperation(r.logger, operation, sessionID).Warn("transient database error, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return logging.NewOperationError(operation, sessionID, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if r.maxBackoff > 0 && backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, gorm.ErrInvalidDB)
}
