package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/db"
)

// ChatRepository provides data access for the Chat model.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(database *gorm.DB) *ChatRepository {
	return &ChatRepository{db: database}
}

// Get returns a chat by id.
func (r *ChatRepository) Get(ctx context.Context, id string) (*db.Chat, error) {
	var chat db.Chat
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindByPair returns the chat for the unordered user pair, matching either
// slot ordering. gorm.ErrRecordNotFound when no chat exists yet.
func (r *ChatRepository) FindByPair(ctx context.Context, userID1, userID2 string) (*db.Chat, error) {
	var chat db.Chat
	err := r.db.WithContext(ctx).
		Where(
			"(user_a_id = ? AND user_b_id = ?) OR (user_a_id = ? AND user_b_id = ?)",
			userID1, userID2, userID2, userID1,
		).
		First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// Create inserts a new chat row.
func (r *ChatRepository) Create(ctx context.Context, chat *db.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

// ListForUser returns chats where the user participates and has not
// soft-deleted their side, ordered by recency (updated_at desc, id desc).
//
// Fetches up to limit+1 rows so callers can detect a further page. The
// cursor is the id of the last item of the previous page; its row is
// resolved to a (updated_at, id) position and the listing seeks strictly
// past it.
func (r *ChatRepository) ListForUser(
	ctx context.Context,
	userID string,
	limit int,
	cursorID string,
) ([]db.Chat, error) {
	query := r.db.WithContext(ctx).
		Model(&db.Chat{}).
		Where(
			"(user_a_id = ? AND is_deleted_by_a = ?) OR (user_b_id = ? AND is_deleted_by_b = ?)",
			userID, false, userID, false,
		).
		Order("updated_at DESC, id DESC").
		Limit(limit + 1)

	if cursorID != "" {
		var anchor db.Chat
		if err := r.db.WithContext(ctx).Where("id = ?", cursorID).First(&anchor).Error; err != nil {
			return nil, err
		}
		query = query.Where(
			"(updated_at < ?) OR (updated_at = ? AND id < ?)",
			anchor.UpdatedAt, anchor.UpdatedAt, anchor.ID,
		)
	}

	var chats []db.Chat
	err := query.Find(&chats).Error
	return chats, err
}

// CountForUser returns how many chats the user participates in and has not
// soft-deleted. Feeds the trust activity check.
func (r *ChatRepository) CountForUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Chat{}).
		Where(
			"(user_a_id = ? AND is_deleted_by_a = ?) OR (user_b_id = ? AND is_deleted_by_b = ?)",
			userID, false, userID, false,
		).
		Count(&count).Error
	return count, err
}

// UpdateFlags applies per-side flag changes (soft delete, archive).
func (r *ChatRepository) UpdateFlags(ctx context.Context, chatID string, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&db.Chat{}).
		Where("id = ?", chatID).
		Updates(updates).Error
}

// Touch bumps the chat's updated_at so recency ordering follows the latest
// message.
func (r *ChatRepository) Touch(ctx context.Context, chatID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Chat{}).
		Where("id = ?", chatID).
		Update("updated_at", at).Error
}
