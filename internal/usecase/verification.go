package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/engine"
	"github.com/example/face-verify/internal/imagestore"
	"github.com/example/face-verify/internal/logging"
	"github.com/example/face-verify/internal/repository"
)

// TimestampLayout is the wire format of verification timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Verification types reported to the client: which reference the live
// capture was compared against.
const (
	TypeBank     = "bank"
	TypePrevious = "previous"
)

// ErrHistoryDisabled is returned by GetResult when neither a database nor a
// cache was configured.
var ErrHistoryDisabled = errors.New("attempt history is not configured")

// AttemptStore defines the persistence operations needed by the use case.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, attempt *repository.VerificationAttempt) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.VerificationAttempt, error)
	AggregateAttempts(ctx context.Context) (*repository.AttemptAggregation, error)
}

// VerificationUseCase orchestrates a verification request: reference
// selection, engine invocation, scoring, and snapshot promotion.
type VerificationUseCase struct {
	store      *imagestore.Store
	comparator engine.Comparator
	repo       AttemptStore
	cache      Cache
	logger     *zap.Logger
	threshold  float64
	dualMode   bool
}

// Result is the outcome of one verification request. It is built once per
// request and never persisted by the verify flow itself; the optional attempt
// history records a projection of it.
type Result struct {
	RequestID        string
	Timestamp        time.Time
	ThresholdPercent float64
	Score            float64
	Verified         bool
	Message          string
	LogMessage       string

	// Rolling mode.
	IsFirstLogin     bool
	VerificationType string
	ImageSaved       bool

	// Dual mode.
	Dual            bool
	AadhaarScore    float64
	BankScore       float64
	AadhaarVerified bool
	BankVerified    bool
}

type cachedAttempt struct {
	RequestID        string    `json:"request_id"`
	Score            float64   `json:"score"`
	Verified         bool      `json:"verified"`
	VerificationType string    `json:"verification_type"`
	Message          string    `json:"message"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewVerificationUseCase constructs a new use case. Threshold is a fraction
// in (0,1]. repo and cache may be nil, which disables attempt history.
func NewVerificationUseCase(store *imagestore.Store, comparator engine.Comparator, repo AttemptStore, cache Cache, logger *zap.Logger, threshold float64, dualMode bool) *VerificationUseCase {
	return &VerificationUseCase{
		store:      store,
		comparator: comparator,
		repo:       repo,
		cache:      cache,
		logger:     logger.Named("verification_usecase"),
		threshold:  threshold,
		dualMode:   dualMode,
	}
}

// Verify runs the verification flow for a staged live capture. The returned
// error covers only unexpected orchestration failures (snapshot promotion);
// a comparison that fails inside the engine scores 0 and produces a normal
// failed Result.
func (uc *VerificationUseCase) Verify(ctx context.Context, requestID, livePath string) (*Result, error) {
	if uc.dualMode {
		return uc.verifyDual(ctx, requestID, livePath)
	}
	return uc.verifyRolling(ctx, requestID, livePath)
}

func (uc *VerificationUseCase) verifyRolling(ctx context.Context, requestID, livePath string) (*Result, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.verify", requestID)

	isFirstLogin := !uc.store.SnapshotExists()
	refPath := uc.store.BankPath()
	verificationType := TypeBank
	if !isFirstLogin {
		refPath = uc.store.SnapshotPath()
		verificationType = TypePrevious
	}

	score := uc.scoreAgainst(ctx, opLogger, verificationType, livePath, refPath)
	thresholdPercent := round2(uc.threshold * 100)
	verified := Passes(score, thresholdPercent)

	res := &Result{
		RequestID:        requestID,
		Timestamp:        time.Now(),
		ThresholdPercent: thresholdPercent,
		Score:            score,
		Verified:         verified,
		IsFirstLogin:     isFirstLogin,
		VerificationType: verificationType,
	}

	if verified {
		// The accepted reference drifts toward the most recent successful
		// capture; the prior snapshot is overwritten with no backup.
		if err := uc.store.PromoteSnapshot(livePath); err != nil {
			wrapped := logging.NewOperationError("usecase.promote_snapshot", requestID, err)
			opLogger.Error("failed to promote live capture", zap.Error(wrapped))
			return nil, wrapped
		}
		res.ImageSaved = true
		res.Message = "Authentication Successful"
		res.LogMessage = fmt.Sprintf("User authenticated successfully with score %.2f%%", score)
	} else {
		res.Message = "Authentication Failed"
		res.LogMessage = fmt.Sprintf("Authentication failed. Score %.2f%% below threshold %.2f%%", score, thresholdPercent)
	}

	opLogger.Info("verification completed",
		zap.Float64("score", score),
		zap.Bool("verified", verified),
		zap.String("verification_type", verificationType),
		zap.Bool("is_first_login", isFirstLogin))

	uc.recordAttempt(ctx, res)
	return res, nil
}

func (uc *VerificationUseCase) verifyDual(ctx context.Context, requestID, livePath string) (*Result, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.verify_dual", requestID)

	aadhaarScore := uc.scoreAgainst(ctx, opLogger, "aadhaar", livePath, uc.store.AadhaarPath())
	bankScore := uc.scoreAgainst(ctx, opLogger, "bank", livePath, uc.store.BankPath())
	avgScore := round2((aadhaarScore + bankScore) / 2)

	thresholdPercent := round2(uc.threshold * 100)
	aadhaarVerified := Passes(aadhaarScore, thresholdPercent)
	bankVerified := Passes(bankScore, thresholdPercent)
	verified := aadhaarVerified && bankVerified

	res := &Result{
		RequestID:        requestID,
		Timestamp:        time.Now(),
		ThresholdPercent: thresholdPercent,
		Score:            avgScore,
		Verified:         verified,
		Dual:             true,
		AadhaarScore:     aadhaarScore,
		BankScore:        bankScore,
		AadhaarVerified:  aadhaarVerified,
		BankVerified:     bankVerified,
	}

	if verified {
		res.Message = "Authentication Successful"
		res.LogMessage = fmt.Sprintf("User authenticated successfully with score %.2f%%", avgScore)
	} else {
		res.Message = "Authentication Failed"
		res.LogMessage = fmt.Sprintf("Authentication failed. Score %.2f%% below threshold %.2f%%", avgScore, thresholdPercent)
	}

	opLogger.Info("dual verification completed",
		zap.Float64("aadhaar_score", aadhaarScore),
		zap.Float64("bank_score", bankScore),
		zap.Float64("avg_score", avgScore),
		zap.Bool("verified", verified))

	uc.recordAttempt(ctx, res)
	return res, nil
}

// scoreAgainst runs one engine comparison and maps the outcome to a score.
func (uc *VerificationUseCase) scoreAgainst(ctx context.Context, opLogger *zap.Logger, label, livePath, refPath string) float64 {
	distance, err := uc.comparator.Compare(ctx, livePath, refPath)
	if err != nil {
		opLogger.Warn("comparison failed, scoring zero",
			zap.String("reference", label),
			zap.Error(err))
	}
	return ScoreComparison(distance, err)
}

// Reset deletes the rolling snapshot, reverting to the first-login state.
func (uc *VerificationUseCase) Reset(requestID string) error {
	if err := uc.store.ResetSnapshot(); err != nil {
		return logging.NewOperationError("usecase.reset", requestID, err)
	}
	return nil
}

// HistoryEnabled reports whether past results can be looked up at all.
func (uc *VerificationUseCase) HistoryEnabled() bool {
	return uc.repo != nil || uc.cache != nil
}

// GetResult retrieves a past verification attempt, preferring the cache and
// falling back to the database.
func (uc *VerificationUseCase) GetResult(ctx context.Context, requestID string) (*repository.VerificationAttempt, error) {
	if !uc.HistoryEnabled() {
		return nil, ErrHistoryDisabled
	}

	if uc.cache != nil {
		cached, err := uc.cache.Get(ctx, cacheKey(requestID))
		if err == nil {
			var payload cachedAttempt
			if err := json.Unmarshal([]byte(cached), &payload); err != nil {
				logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to decode cached attempt", zap.Error(err))
			} else {
				return &repository.VerificationAttempt{
					RequestID:        payload.RequestID,
					Score:            payload.Score,
					Verified:         payload.Verified,
					VerificationType: payload.VerificationType,
					Message:          payload.Message,
					CreatedAt:        payload.CreatedAt,
				}, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return uc.repo.FindByRequestID(ctx, requestID)
}

// recordAttempt persists and caches a result projection. Recording is best
// effort: the verify flow stays stateless when history backends fail.
func (uc *VerificationUseCase) recordAttempt(ctx context.Context, res *Result) {
	if uc.repo == nil && uc.cache == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.record_attempt", res.RequestID)

	if uc.repo != nil {
		attempt := &repository.VerificationAttempt{
			RequestID:        res.RequestID,
			Score:            res.Score,
			Verified:         res.Verified,
			VerificationType: res.VerificationType,
			Message:          res.LogMessage,
			CreatedAt:        res.Timestamp.UTC(),
		}
		if err := uc.repo.SaveAttempt(ctx, attempt); err != nil {
			opLogger.Warn("failed to persist attempt", zap.Error(err))
		}
	}

	if uc.cache != nil {
		serialized, err := json.Marshal(cachedAttempt{
			RequestID:        res.RequestID,
			Score:            res.Score,
			Verified:         res.Verified,
			VerificationType: res.VerificationType,
			Message:          res.LogMessage,
			CreatedAt:        res.Timestamp.UTC(),
		})
		if err != nil {
			opLogger.Warn("failed to serialize attempt", zap.Error(err))
			return
		}
		if err := uc.cache.Set(ctx, cacheKey(res.RequestID), string(serialized), attemptTTL); err != nil {
			opLogger.Warn("failed to cache attempt", zap.Error(err))
		}
	}
}

func cacheKey(requestID string) string {
	return fmt.Sprintf("verification:%s", requestID)
}
