package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/db"
)

// CandidateQuery narrows the candidate set for the recommendation engine.
// Zero values leave the corresponding filter off.
type CandidateQuery struct {
	ExcludeUserID     string
	ExcludeProfileIDs []string
	MinBirthYear      int
	MaxBirthYear      int
	City              string
}

// ProfileRepository provides data access for profiles and their image
// moderation records.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// GetByUserID returns the profile owned by the given user.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*db.Profile, error) {
	var profile db.Profile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByID returns a profile by its id.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*db.Profile, error) {
	var profile db.Profile
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindCandidates returns profiles eligible for recommendation, with the
// owning user preloaded for trust and block data.
//
// Behavior:
//   - The requester's own profile and already-decided profiles are excluded.
//   - Optional birth-year window and exact-city filters.
//   - Profiles of blocked users never appear.
func (r *ProfileRepository) FindCandidates(ctx context.Context, q CandidateQuery) ([]db.Profile, error) {
	query := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Joins("JOIN users u ON u.id = profiles.user_id AND u.blocked = ?", false).
		Preload("User")

	if q.ExcludeUserID != "" {
		query = query.Where("profiles.user_id <> ?", q.ExcludeUserID)
	}
	if len(q.ExcludeProfileIDs) > 0 {
		query = query.Where("profiles.id NOT IN ?", q.ExcludeProfileIDs)
	}
	if q.MinBirthYear != 0 {
		query = query.Where("profiles.birth_year >= ?", q.MinBirthYear)
	}
	if q.MaxBirthYear != 0 {
		query = query.Where("profiles.birth_year <= ?", q.MaxBirthYear)
	}
	if q.City != "" {
		query = query.Where("profiles.city = ?", q.City)
	}

	var profiles []db.Profile
	err := query.Find(&profiles).Error
	return profiles, err
}

// GetImageData returns the moderation records for a profile, in display
// order.
func (r *ProfileRepository) GetImageData(ctx context.Context, profileID string) ([]db.ImageData, error) {
	var images []db.ImageData
	err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("img_order ASC").
		Find(&images).Error
	return images, err
}

// AddImage stores a moderation record and appends the URL to the profile's
// ordered image list.
func (r *ProfileRepository) AddImage(ctx context.Context, img *db.ImageData) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile db.Profile
		if err := tx.Where("id = ?", img.ProfileID).First(&profile).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&db.ImageData{}).Where("profile_id = ?", img.ProfileID).Count(&count).Error; err != nil {
			return err
		}
		img.Order = int(count)

		if err := tx.Create(img).Error; err != nil {
			return err
		}

		profile.Images = append(profile.Images, img.URL)
		return tx.Model(&db.Profile{}).
			Where("id = ?", profile.ID).
			Update("images", profile.Images).Error
	})
}
