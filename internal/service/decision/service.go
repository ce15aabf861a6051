package decision

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/app"
	"github.com/reflexapp/reflex-backend/internal/repository"
	"github.com/reflexapp/reflex-backend/internal/service/match"
)

// massLikeThreshold is the hourly like rate above which the mass-like
// warning is logged. Auto-adjustment for mass likes ships disabled.
const massLikeThreshold = 100

// Outcome reports what a recorded decision led to.
type Outcome struct {
	Recorded      bool
	Matched       bool
	ChatID        string
	MatchedUserID string
}

// Service persists swipe decisions exactly once and detects the resulting
// mutual like.
type Service struct {
	appCtx   *app.AppContext
	likes    *repository.LikeRepository
	profiles *repository.ProfileRepository
	users    *repository.UserRepository
	settings *repository.SettingsRepository
	matcher  *match.Service
}

func NewService(appCtx *app.AppContext, matcher *match.Service) *Service {
	return &Service{
		appCtx:   appCtx,
		likes:    repository.NewLikeRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
		users:    repository.NewUserRepository(appCtx.DB),
		settings: repository.NewSettingsRepository(appCtx.DB),
		matcher:  matcher,
	}
}

// Record persists a like/dislike from raterUserID on targetProfileID.
//
// Behavior:
//   - A pair that was already decided upon is ignored entirely: no new row,
//     no matching re-trigger (first decision wins).
//   - A fresh like checks the reverse edge; a reverse like makes this a
//     mutual match and hands off to the orchestrator. Without a reverse
//     like the target gets an anonymous "someone liked you" notification,
//     gated on their notifyLikes preference.
//   - A dislike is persisted and nothing else happens.
func (s *Service) Record(ctx context.Context, raterUserID, targetProfileID string, isLike bool) (Outcome, error) {
	created, err := s.likes.Create(ctx, raterUserID, targetProfileID, isLike)
	if err != nil {
		return Outcome{}, fmt.Errorf("create decision: %w", err)
	}
	if !created {
		return Outcome{}, nil
	}

	if !isLike {
		return Outcome{Recorded: true}, nil
	}

	s.checkMassLikes(ctx, raterUserID)

	targetProfile, err := s.profiles.GetByID(ctx, targetProfileID)
	if err != nil {
		return Outcome{Recorded: true}, fmt.Errorf("load target profile: %w", err)
	}
	myProfile, err := s.profiles.GetByUserID(ctx, raterUserID)
	if err != nil {
		return Outcome{Recorded: true}, fmt.Errorf("load rater profile: %w", err)
	}

	if s.appCtx.RedisCache != nil {
		s.appCtx.RedisCache.IncrLikeCount(ctx, targetProfile.UserID)
	}

	reverse, err := s.likes.Get(ctx, targetProfile.UserID, myProfile.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Outcome{Recorded: true}, fmt.Errorf("check reverse like: %w", err)
	}

	if reverse != nil && reverse.IsLike {
		result, err := s.matcher.EnsureMatch(ctx, raterUserID, targetProfile.UserID)
		if err != nil {
			return Outcome{Recorded: true}, err
		}

		go func() {
			bg := context.Background()
			s.matcher.NotifyMatched(bg, raterUserID, targetProfile.PreferredName)
			s.matcher.NotifyMatched(bg, targetProfile.UserID, myProfile.PreferredName)
		}()

		return Outcome{
			Recorded:      true,
			Matched:       true,
			ChatID:        result.ChatID,
			MatchedUserID: targetProfile.UserID,
		}, nil
	}

	go s.notifyLiked(context.Background(), targetProfile.UserID, myProfile.PreferredName)

	return Outcome{Recorded: true}, nil
}

// notifyLiked sends the one-way "someone liked you" notification, revealing
// nothing beyond the rater's preferred name.
func (s *Service) notifyLiked(ctx context.Context, targetUserID, raterName string) {
	user, err := s.users.Get(ctx, targetUserID)
	if err != nil {
		s.appCtx.Logger.Warn("like notification skipped", "user_id", targetUserID, "err", err)
		return
	}

	settings, err := s.settings.GetOrDefault(ctx, targetUserID)
	if err == nil && !settings.NotifyLikes {
		return
	}

	s.appCtx.Notifier.Send(ctx, user.TelegramID,
		fmt.Sprintf("💖 %s liked your profile on Reflex!", raterName))
}

// checkMassLikes counts the caller's likes inside a rolling hour and logs
// when the rate crosses the threshold.
func (s *Service) checkMassLikes(ctx context.Context, raterUserID string) {
	if s.appCtx.RedisCache == nil {
		return
	}
	n, err := s.appCtx.RedisCache.BumpLikeRate(ctx, raterUserID)
	if err != nil {
		return
	}
	if n > massLikeThreshold {
		s.appCtx.Logger.Warn("mass-like rate exceeded", "user_id", raterUserID, "likes_last_hour", n)
	}
}
