package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/face-verify/internal/logging"
)

// VerificationAttempt is a persisted record of one verification request.
// History is an audit supplement: the verify flow itself never reads it.
type VerificationAttempt struct {
	ID               uint      `gorm:"primaryKey"`
	RequestID        string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Score            float64   `gorm:"column:score"`
	Verified         bool      `gorm:"column:verified"`
	VerificationType string    `gorm:"column:verification_type;size:16"`
	Message          string    `gorm:"column:message;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (VerificationAttempt) TableName() string {
	return "verification_attempts"
}

// AttemptRepository provides persistence for verification attempts.
type AttemptRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewAttemptRepository creates a new repository instance.
func NewAttemptRepository(db *gorm.DB, logger *zap.Logger) *AttemptRepository {
	return &AttemptRepository{
		db:             db,
		logger:         logger.Named("attempt_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *AttemptRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationAttempt{})
}

// SaveAttempt persists a verification attempt.
func (r *AttemptRepository) SaveAttempt(ctx context.Context, attempt *VerificationAttempt) error {
	return r.executeWithRetry(ctx, "repository.save_attempt", attempt.RequestID, func() error {
		return r.db.WithContext(ctx).Create(attempt).Error
	})
}

// FindByRequestID retrieves the attempt recorded for a request id.
func (r *AttemptRepository) FindByRequestID(ctx context.Context, requestID string) (*VerificationAttempt, error) {
	var attempt VerificationAttempt
	err := r.executeWithRetry(ctx, "repository.find_attempt", requestID, func() error {
		return r.db.WithContext(ctx).First(&attempt, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// AttemptAggregation holds aggregate statistics over recorded attempts.
type AttemptAggregation struct {
	TotalCount    int64
	VerifiedCount int64
	AverageScore  float64
}

// AggregateAttempts computes summary statistics across all recorded attempts.
func (r *AttemptRepository) AggregateAttempts(ctx context.Context) (*AttemptAggregation, error) {
	var agg AttemptAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_attempts", "", func() error {
		return r.db.WithContext(ctx).
			Model(&VerificationAttempt{}).
			Select("COUNT(*) AS total_count, COUNT(*) FILTER (WHERE verified) AS verified_count, COALESCE(AVG(score), 0) AS average_score").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *AttemptRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransient(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
