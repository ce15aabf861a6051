package match

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/app"
	"github.com/reflexapp/reflex-backend/internal/db"
	"github.com/reflexapp/reflex-backend/internal/repository"
)

// Service guarantees exactly one Match row and exactly one Chat row per
// mutually-liking user pair, then notifies both parties.
//
// Both sides of a nearly-simultaneous mutual like may invoke EnsureMatch
// concurrently; the canonical sorted pair key plus the match table's
// composite primary key make the double-invocation converge on one row,
// and the chat is looked up in either slot ordering before being created.
type Service struct {
	appCtx   *app.AppContext
	matches  *repository.MatchRepository
	chats    *repository.ChatRepository
	users    *repository.UserRepository
	settings *repository.SettingsRepository
}

// Result reports the chat bound to the matched pair.
type Result struct {
	ChatID       string
	CreatedMatch bool
	CreatedChat  bool
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		matches:  repository.NewMatchRepository(appCtx.DB),
		chats:    repository.NewChatRepository(appCtx.DB),
		users:    repository.NewUserRepository(appCtx.DB),
		settings: repository.NewSettingsRepository(appCtx.DB),
	}
}

// CanonicalPair sorts two user ids into the fixed storage order.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// EnsureMatch upserts the match row for the pair and creates the chat if
// none exists yet (in either slot ordering). Safe to call from both sides
// of a mutual like.
func (s *Service) EnsureMatch(ctx context.Context, userID1, userID2 string) (Result, error) {
	user1, user2 := CanonicalPair(userID1, userID2)

	createdMatch, err := s.matches.Upsert(ctx, user1, user2)
	if err != nil {
		return Result{}, fmt.Errorf("upsert match: %w", err)
	}

	chat, err := s.chats.FindByPair(ctx, user1, user2)
	createdChat := false
	if errors.Is(err, gorm.ErrRecordNotFound) {
		chat = &db.Chat{UserAID: user1, UserBID: user2}
		if err := s.chats.Create(ctx, chat); err != nil {
			return Result{}, fmt.Errorf("create chat: %w", err)
		}
		createdChat = true
	} else if err != nil {
		return Result{}, fmt.Errorf("find chat: %w", err)
	}

	s.appCtx.Logger.Info("mutual match ensured",
		"user1", user1, "user2", user2,
		"chat_id", chat.ID, "created_match", createdMatch, "created_chat", createdChat)

	return Result{ChatID: chat.ID, CreatedMatch: createdMatch, CreatedChat: createdChat}, nil
}

// NotifyMatched sends the match notification to one user, gated on their
// notifyLikes preference (notify when no preference row exists). Delivery
// failures never propagate.
func (s *Service) NotifyMatched(ctx context.Context, userID, partnerName string) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		s.appCtx.Logger.Warn("match notification skipped", "user_id", userID, "err", err)
		return
	}

	settings, err := s.settings.GetOrDefault(ctx, userID)
	if err == nil && !settings.NotifyLikes {
		return
	}

	s.appCtx.Notifier.Send(ctx, user.TelegramID,
		fmt.Sprintf("🤝 You matched with %s! Open Reflex to start chatting.", partnerName))
}
