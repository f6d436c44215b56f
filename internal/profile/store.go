package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/tray-verify/internal/logging"
)

// Store loads immutable tray profiles keyed by tray id.
type Store interface {
	Load(ctx context.Context, trayID string) (*TrayProfile, error)
	List(ctx context.Context) ([]string, error)
}

// trayProfileRecord is the persisted form; zones are serialized as JSON.
type trayProfileRecord struct {
	ID        uint      `gorm:"primaryKey"`
	TrayID    string    `gorm:"column:tray_id;uniqueIndex;size:64"`
	Name      string    `gorm:"column:name;size:128"`
	Version   string    `gorm:"column:version;size:32"`
	Zones     string    `gorm:"column:zones;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (trayProfileRecord) TableName() string {
	return "tray_profiles"
}

// Repository is a gorm-backed profile store with optional Redis memoization.
type Repository struct {
	db       *gorm.DB
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRepository creates a profile store. cache may be nil to disable memoization.
func NewRepository(db *gorm.DB, cache Cache, logger *zap.Logger) *Repository {
	return &Repository{
		db:       db,
		cache:    cache,
		cacheTTL: 10 * time.Minute,
		logger:   logger.Named("profile_store"),
	}
}

// AutoMigrate ensures the schema is available.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&trayProfileRecord{})
}

// Load returns the profile for the tray id, or ErrNotFound.
func (r *Repository) Load(ctx context.Context, trayID string) (*TrayProfile, error) {
	cacheKey := fmt.Sprintf("tray_profile:%s", trayID)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey); err == nil {
			var p TrayProfile
			if err := json.Unmarshal([]byte(cached), &p); err == nil {
				return &p, nil
			}
			r.logger.Warn("failed to decode cached profile", zap.String("tray_id", trayID))
		}
	}

	var record trayProfileRecord
	if err := r.db.WithContext(ctx).First(&record, "tray_id = ?", trayID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, trayID)
		}
		return nil, logging.NewOperationError("profile.load", "", err)
	}

	p, err := decodeRecord(&record)
	if err != nil {
		return nil, logging.NewOperationError("profile.load", "", err)
	}

	if r.cache != nil {
		serialized, err := json.Marshal(p)
		if err == nil {
			if err := r.cache.Set(ctx, cacheKey, string(serialized), r.cacheTTL); err != nil {
				r.logger.Warn("failed to cache profile", zap.Error(err), zap.String("tray_id", trayID))
			}
		}
	}
	return p, nil
}

// List returns the known tray ids.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&trayProfileRecord{}).Order("tray_id").Pluck("tray_id", &ids).Error; err != nil {
		return nil, logging.NewOperationError("profile.list", "", err)
	}
	return ids, nil
}

// Save upserts a profile record. Used by provisioning, not by the scan flow.
func (r *Repository) Save(ctx context.Context, p *TrayProfile) error {
	zones, err := json.Marshal(p.Zones)
	if err != nil {
		return logging.NewOperationError("profile.save", "", err)
	}
	record := trayProfileRecord{
		TrayID:    p.TrayID,
		Name:      p.Name,
		Version:   p.Version,
		Zones:     string(zones),
		UpdatedAt: time.Now().UTC(),
	}
	err = r.db.WithContext(ctx).
		Where("tray_id = ?", p.TrayID).
		Assign(map[string]interface{}{
			"name":       record.Name,
			"version":    record.Version,
			"zones":      record.Zones,
			"updated_at": record.UpdatedAt,
		}).
		FirstOrCreate(&trayProfileRecord{}).Error
	if err != nil {
		return logging.NewOperationError("profile.save", "", err)
	}
	return nil
}

func decodeRecord(record *trayProfileRecord) (*TrayProfile, error) {
	p := &TrayProfile{
		TrayID:  record.TrayID,
		Name:    record.Name,
		Version: record.Version,
	}
	if record.Zones != "" {
		if err := json.Unmarshal([]byte(record.Zones), &p.Zones); err != nil {
			return nil, fmt.Errorf("decode zones for %s: %w", record.TrayID, err)
		}
	}
	return p, nil
}

var _ Store = (*Repository)(nil)
