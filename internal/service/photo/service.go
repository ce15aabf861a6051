package photo

import (
	"context"
	"fmt"

	"github.com/reflexapp/reflex-backend/internal/app"
	"github.com/reflexapp/reflex-backend/internal/db"
	"github.com/reflexapp/reflex-backend/internal/nsfw"
	"github.com/reflexapp/reflex-backend/internal/repository"
	"github.com/reflexapp/reflex-backend/internal/trust"
)

// Service ingests profile photos: classify, store the moderation record,
// append the URL to the profile's ordered list, adjust trust.
type Service struct {
	appCtx     *app.AppContext
	profiles   *repository.ProfileRepository
	classifier nsfw.Classifier
	trust      *trust.Service
}

func NewService(appCtx *app.AppContext, classifier nsfw.Classifier, trustSvc *trust.Service) *Service {
	if classifier == nil {
		classifier = nsfw.Disabled{}
	}
	return &Service{
		appCtx:     appCtx,
		profiles:   repository.NewProfileRepository(appCtx.DB),
		classifier: classifier,
		trust:      trustSvc,
	}
}

// AddPhoto stores a new photo for the user's profile. Classifier failure
// means the image proceeds unrated; it never blocks ingestion.
func (s *Service) AddPhoto(ctx context.Context, userID, url string, image []byte) (*db.ImageData, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	verdict, err := s.classifier.Classify(ctx, image)
	if err != nil {
		s.appCtx.Logger.Warn("photo stored unrated", "user_id", userID, "err", err)
		verdict = nsfw.Result{}
	}

	img := &db.ImageData{
		ProfileID: profile.ID,
		URL:       url,
		IsNsfw:    verdict.IsNsfw,
		NsfwScore: verdict.Score,
	}
	if err := s.profiles.AddImage(ctx, img); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	if _, err := s.trust.Adjust(ctx, userID, trust.ReasonPhotoAdded, nil); err != nil {
		s.appCtx.Logger.Warn("trust adjust failed", "user_id", userID, "err", err)
	}
	if verdict.IsNsfw {
		if _, err := s.trust.Adjust(ctx, userID, trust.ReasonNsfwContent, map[string]any{"url": url, "score": verdict.Score}); err != nil {
			s.appCtx.Logger.Warn("trust adjust failed", "user_id", userID, "err", err)
		}
	}

	return img, nil
}
