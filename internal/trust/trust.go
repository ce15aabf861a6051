package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/db"
	"github.com/reflexapp/reflex-backend/internal/logger"
	"github.com/reflexapp/reflex-backend/internal/repository"
)

// Reason identifies why a trust score changed.
type Reason string

const (
	ReasonProfileCompleted      Reason = "profile_completed"
	ReasonPhotoAdded            Reason = "photo_added"
	ReasonVerifiedPhone         Reason = "verified_phone"
	ReasonActiveChats           Reason = "active_chats"
	ReasonPositiveReports       Reason = "positive_reports"
	ReasonGoodBehavior          Reason = "good_behavior"
	ReasonNsfwContent           Reason = "nsfw_content"
	ReasonSpamDetected          Reason = "spam_detected"
	ReasonInappropriateMessages Reason = "inappropriate_messages"
	ReasonFakeProfile           Reason = "fake_profile"
	ReasonUserReports           Reason = "user_reports"
	ReasonInactiveLong          Reason = "inactive_long"
	ReasonBlockedManyUsers      Reason = "blocked_many_users"
	ReasonMassLikes             Reason = "mass_likes"
	ReasonLowResponseRate       Reason = "low_response_rate"
)

// changeWeights maps each reason to its signed score delta.
var changeWeights = map[Reason]int{
	ReasonProfileCompleted:      +10,
	ReasonPhotoAdded:            +5,
	ReasonVerifiedPhone:         +15,
	ReasonActiveChats:           +3,
	ReasonPositiveReports:       +5,
	ReasonGoodBehavior:          +2,
	ReasonNsfwContent:           -20,
	ReasonSpamDetected:          -30,
	ReasonInappropriateMessages: -15,
	ReasonFakeProfile:           -50,
	ReasonUserReports:           -10,
	ReasonInactiveLong:          -5,
	ReasonBlockedManyUsers:      -10,
	ReasonMassLikes:             -15,
	ReasonLowResponseRate:       -5,
}

const (
	minScore       = 10
	maxScore       = 100
	blockThreshold = 15
)

// Adjustment is the outcome of a trust change.
type Adjustment struct {
	NewScore int
	Blocked  bool
}

// Service applies trust score changes and the derived auto-block state.
type Service struct {
	users *repository.UserRepository
}

func NewService(users *repository.UserRepository) *Service {
	return &Service{users: users}
}

// Adjust applies the delta for the reason, clamped to [10,100]. A score
// falling below 15 blocks the account. Every change is appended to the
// trust log. Already-blocked users are left untouched.
func (s *Service) Adjust(ctx context.Context, userID string, reason Reason, details any) (Adjustment, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return Adjustment{}, err
	}
	if user.Blocked {
		return Adjustment{NewScore: user.TrustScore, Blocked: true}, nil
	}

	oldScore := user.TrustScore
	newScore := oldScore + changeWeights[reason]
	if newScore < minScore {
		newScore = minScore
	}
	if newScore > maxScore {
		newScore = maxScore
	}

	blocked := newScore < blockThreshold
	blockReason := ""
	if blocked {
		blockReason = fmt.Sprintf("Trust score too low: %s", reason)
	}

	if err := s.users.SetTrustScore(ctx, userID, newScore, blocked, blockReason); err != nil {
		return Adjustment{}, err
	}

	detailsJSON := ""
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		}
	}
	if err := s.users.AppendTrustLog(ctx, &db.TrustLog{
		UserID:   userID,
		OldScore: oldScore,
		NewScore: newScore,
		Reason:   string(reason),
		Details:  detailsJSON,
	}); err != nil {
		logger.Warn("failed to append trust log", "user_id", userID, "err", err)
	}

	logger.Info("trust score changed", "user_id", userID, "old", oldScore, "new", newScore, "reason", reason)

	return Adjustment{NewScore: newScore, Blocked: blocked}, nil
}

// activeChatThreshold is the chat count at which the activity bonus is
// awarded.
const activeChatThreshold = 3

// CheckChatActivity awards the activity bonus once the user participates in
// enough live chats.
func (s *Service) CheckChatActivity(ctx context.Context, chats *repository.ChatRepository, userID string) error {
	count, err := chats.CountForUser(ctx, userID)
	if err != nil {
		return err
	}
	if count >= activeChatThreshold {
		_, err := s.Adjust(ctx, userID, ReasonActiveChats, map[string]any{"chats": count})
		return err
	}
	return nil
}

// CheckProfileCompleteness awards the completeness bonus when the profile
// carries a real description, at least two photos and at least two goals.
func (s *Service) CheckProfileCompleteness(ctx context.Context, profiles *repository.ProfileRepository, userID string) error {
	profile, err := profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if len(profile.Description) > 50 && len(profile.Images) >= 2 && len(profile.Goals) >= 2 {
		_, err := s.Adjust(ctx, userID, ReasonProfileCompleted, nil)
		return err
	}
	return nil
}
