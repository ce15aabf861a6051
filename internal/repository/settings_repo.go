package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/db"
)

// SettingsRepository provides data access for per-user settings.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(database *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: database}
}

// GetOrDefault returns the user's settings, materializing the default row
// on first read. Notification toggles default to on, recommendation filters
// to off.
func (r *SettingsRepository) GetOrDefault(ctx context.Context, userID string) (*db.Settings, error) {
	settings := db.Settings{
		UserID:         userID,
		NotifyMessages: true,
		NotifyLikes:    true,
	}
	err := r.db.WithContext(ctx).
		Where(db.Settings{UserID: userID}).
		Attrs(settings).
		FirstOrCreate(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save persists updated settings.
func (r *SettingsRepository) Save(ctx context.Context, settings *db.Settings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}
