package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/db"
)

// UserRepository provides data access for user accounts.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// Get returns a user by id.
func (r *UserRepository) Get(ctx context.Context, id string) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetTrustScore updates the trust score and, when blocked, the block state.
func (r *UserRepository) SetTrustScore(
	ctx context.Context,
	id string,
	score int,
	blocked bool,
	blockReason string,
) error {
	updates := map[string]interface{}{
		"trust_score": score,
		"blocked":     blocked,
	}
	if blocked {
		updates["block_reason"] = blockReason
		updates["blocked_at"] = time.Now()
	}
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AppendTrustLog records a trust score change.
func (r *UserRepository) AppendTrustLog(ctx context.Context, entry *db.TrustLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
