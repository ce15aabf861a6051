package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/db"
)

// MessageRepository provides data access for the Message model.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// Create inserts a new message row.
func (r *MessageRepository) Create(ctx context.Context, msg *db.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// Get returns a message by id.
func (r *MessageRepository) Get(ctx context.Context, id string) (*db.Message, error) {
	var msg db.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByChat returns up to limit+1 messages of a chat, newest first
// (created_at desc, id desc).
//
// The cursor is the id of the first history item beyond the previous page
// (the overflow row of the limit+1 fetch), so the seek is inclusive: the
// cursor row itself starts the next page. This keeps page concatenation
// free of gaps.
func (r *MessageRepository) ListByChat(
	ctx context.Context,
	chatID string,
	limit int,
	cursorID string,
) ([]db.Message, error) {
	query := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if cursorID != "" {
		var anchor db.Message
		if err := r.db.WithContext(ctx).Where("id = ?", cursorID).First(&anchor).Error; err != nil {
			return nil, err
		}
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id <= ?)",
			anchor.CreatedAt, anchor.CreatedAt, anchor.ID,
		)
	}

	var messages []db.Message
	err := query.Find(&messages).Error
	return messages, err
}

// Latest returns the most recent message of a chat, or
// gorm.ErrRecordNotFound for an empty chat.
func (r *MessageRepository) Latest(ctx context.Context, chatID string) (*db.Message, error) {
	var msg db.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetText updates a message's text and edit timestamp.
func (r *MessageRepository) SetText(ctx context.Context, id, text string, editedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"text": text, "edited_at": editedAt}).Error
}

// Delete removes the message row for both participants.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&db.Message{}, "id = ?", id).Error
}

// SoftDeleteBySender hides the message on the sender's side only.
func (r *MessageRepository) SoftDeleteBySender(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id = ?", id).
		Update("is_deleted_by_sender", true).Error
}

// MarkRead stamps read_at on the given messages, skipping messages sent by
// readerID and messages already read. Returns how many rows were stamped.
func (r *MessageRepository) MarkRead(
	ctx context.Context,
	chatID string,
	messageIDs []string,
	readerID string,
	at time.Time,
) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id IN ? AND chat_id = ? AND sender_id <> ? AND read_at IS NULL", messageIDs, chatID, readerID).
		Update("read_at", at)
	return result.RowsAffected, result.Error
}
