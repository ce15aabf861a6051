package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reflexapp/reflex-backend/internal/db"
)

// LikeRepository provides data access for the Like model: the directed
// like/dislike decision edges between a user and a profile.
type LikeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new repository bound to the given DB connection.
func NewLikeRepository(database *gorm.DB) *LikeRepository {
	return &LikeRepository{db: database}
}

// Create persists a decision made by fromUserID on toProfileID.
//
// Behavior:
//   - If no decision exists for the pair, a new row is inserted and
//     created=true is returned.
//   - If a decision already exists the insert is a no-op (first decision
//     wins) and created=false is returned, so callers never re-trigger
//     matching for a resubmitted decision.
func (r *LikeRepository) Create(
	ctx context.Context,
	fromUserID, toProfileID string,
	isLike bool,
) (bool, error) {
	like := db.Like{
		FromUserID:  fromUserID,
		ToProfileID: toProfileID,
		IsLike:      isLike,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like)
	return result.RowsAffected > 0, result.Error
}

// Get returns the decision for (fromUserID, toProfileID), or
// gorm.ErrRecordNotFound when none exists.
func (r *LikeRepository) Get(
	ctx context.Context,
	fromUserID, toProfileID string,
) (*db.Like, error) {
	var like db.Like
	err := r.db.WithContext(ctx).
		Where("from_user_id = ? AND to_profile_id = ?", fromUserID, toProfileID).
		First(&like).Error
	if err != nil {
		return nil, err
	}
	return &like, nil
}

// DecidedProfileIDs returns every profile id the user has already decided
// upon, liked or disliked. Used to build the recommendation exclusion set.
func (r *LikeRepository) DecidedProfileIDs(
	ctx context.Context,
	fromUserID string,
) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("from_user_id = ?", fromUserID).
		Pluck("to_profile_id", &ids).Error
	return ids, err
}

// GetIncomingLikerProfiles returns the profiles of users who liked the given
// profile and have not yet been decided upon in return.
//
// Behavior:
//   - Only is_like = true edges pointed at toProfileID are considered.
//   - Profiles the recipient already responded to (either way) are excluded.
//   - Ordered by the like's creation time, newest first.
func (r *LikeRepository) GetIncomingLikerProfiles(
	ctx context.Context,
	toProfileID, recipientUserID string,
) ([]db.Profile, error) {
	responded := r.db.
		Model(&db.Like{}).
		Select("to_profile_id").
		Where("from_user_id = ?", recipientUserID)

	var profiles []db.Profile
	err := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Joins("JOIN likes l ON l.from_user_id = profiles.user_id AND l.to_profile_id = ?", toProfileID).
		Where("l.is_like = ?", true).
		Where("profiles.id NOT IN (?)", responded).
		Order("l.created_at DESC").
		Find(&profiles).Error
	return profiles, err
}

// CountLikers returns how many users liked the given profile.
// Used in conjunction with the Redis cache (DB is fallback).
func (r *LikeRepository) CountLikers(
	ctx context.Context,
	toProfileID string,
) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("to_profile_id = ? AND is_like = ?", toProfileID, true).
		Count(&count).Error
	return count, err
}
