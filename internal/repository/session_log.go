package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/tray-verify/internal/logging"
)

// SessionLog is one append-only audit row: a computed verdict together
// with the operator action that produced or answered it.
type SessionLog struct {
	ID             uint      `gorm:"primaryKey"`
	ScanID         string    `gorm:"column:scan_id;index;size:64"`
	TrayID         string    `gorm:"column:tray_id;index;size:64"`
	Overall        string    `gorm:"column:overall;size:16"`
	AvgConfidence  float64   `gorm:"column:avg_confidence"`
	Verdict        string    `gorm:"column:verdict;type:text"`
	OperatorAction string    `gorm:"column:operator_action;size:16"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (SessionLog) TableName() string {
	return "session_logs"
}

// MetricsAggregation holds the raw aggregates computed over scan rows.
type MetricsAggregation struct {
	TotalCount        int64   `gorm:"column:total_count"`
	ConfirmedCount    int64   `gorm:"column:confirmed_count"`
	AverageConfidence float64 `gorm:"column:average_confidence"`
}

// SessionLogRepository persists session logs with retry on transient
// database errors.
type SessionLogRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewSessionLogRepository creates a new repository instance.
func NewSessionLogRepository(db *gorm.DB, logger *zap.Logger) *SessionLogRepository {
	return &SessionLogRepository{
		db:             db,
		logger:         logger.Named("session_log_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *SessionLogRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&SessionLog{})
}

// Append persists a session log entry. The table is append-only: there
// is no update or delete API.
func (r *SessionLogRepository) Append(ctx context.Context, log *SessionLog) error {
	return r.executeWithRetry(ctx, "repository.append_log", log.ScanID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByScanID retrieves the most recent log row for a scan.
func (r *SessionLogRepository) FindByScanID(ctx context.Context, scanID string) (*SessionLog, error) {
	var log SessionLog
	err := r.executeWithRetry(ctx, "repository.find_by_scan_id", scanID, func() error {
		return r.db.WithContext(ctx).Where("scan_id = ?", scanID).Order("id DESC").First(&log).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes summary aggregates over scan rows. Operator
// action rows are excluded so each scan counts once.
func (r *SessionLogRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&SessionLog{}).
			Where("operator_action = ?", "scan").
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN overall = 'CONFIRMED' THEN 1 ELSE 0 END), 0) AS confirmed_count, " +
				"COALESCE(AVG(avg_confidence), 0) AS average_confidence").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *SessionLogRepository) executeWithRetry(ctx context.Context, operation, scanID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, scanID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, scanID, ctx.Err())
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

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, scanID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, scanID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
