package recommend

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/reflexapp/reflex-backend/internal/app"
	"github.com/reflexapp/reflex-backend/internal/db"
	"github.com/reflexapp/reflex-backend/internal/ranking"
	"github.com/reflexapp/reflex-backend/internal/repository"
)

// Open-ended explicit age ranges fall back to these birth-year bounds.
const (
	openRangeMinYear = 1950
	openRangeMaxYear = 2006
)

// RecommendedUser is the owner projection attached to a recommendation.
type RecommendedUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RecommendedProfile is the enriched candidate pushed to the client.
type RecommendedProfile struct {
	ID            string          `json:"id"`
	PreferredName string          `json:"preferredName"`
	Description   string          `json:"description"`
	City          string          `json:"city"`
	Goals         []string        `json:"goals"`
	BirthYear     int             `json:"birthYear"`
	Images        []string        `json:"images"`
	User          RecommendedUser `json:"user"`
	TrustScore    int             `json:"trustScore"`
}

// Service produces the next best unseen candidate profile for a user,
// respecting the user's filters and the ranking oracle.
type Service struct {
	appCtx   *app.AppContext
	likes    *repository.LikeRepository
	profiles *repository.ProfileRepository
	settings *repository.SettingsRepository
	users    *repository.UserRepository
	oracle   ranking.Ranker
}

// NewService wires the engine. oracle may be nil, in which case every
// request is scored with the heuristic ranker.
func NewService(appCtx *app.AppContext, oracle ranking.Ranker) *Service {
	return &Service{
		appCtx:   appCtx,
		likes:    repository.NewLikeRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
		settings: repository.NewSettingsRepository(appCtx.DB),
		users:    repository.NewUserRepository(appCtx.DB),
		oracle:   oracle,
	}
}

// Next returns the single highest-scored eligible candidate for the user,
// or nil when no eligible candidate remains. Read-only: nothing is mutated,
// and the NSFW image substitution applies to the response only.
func (s *Service) Next(ctx context.Context, userID string) (*RecommendedProfile, error) {
	myProfile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load requester profile: %w", err)
	}
	settings, err := s.settings.GetOrDefault(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	decided, err := s.likes.DecidedProfileIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load decided profiles: %w", err)
	}

	query := repository.CandidateQuery{
		ExcludeUserID:     userID,
		ExcludeProfileIDs: decided,
	}
	applyAgeFilter(&query, settings, myProfile.BirthYear)
	if settings.SameCityOnly {
		query.City = myProfile.City
	}

	candidates, err := s.profiles.FindCandidates(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := s.pickBest(ctx, candidates, myProfile, settings)
	return s.enrich(ctx, best, settings)
}

// Enrich builds the client projection for a profile outside the scored
// recommendation path (the incoming-likes channel).
func (s *Service) Enrich(ctx context.Context, profile *db.Profile, viewerSettings *db.Settings) (*RecommendedProfile, error) {
	return s.enrich(ctx, profile, viewerSettings)
}

// applyAgeFilter derives the candidate birth-year window. similarAge takes
// priority over an explicit range: ±2 years around the requester's age up
// to age 22, ±5 beyond.
func applyAgeFilter(query *repository.CandidateQuery, settings *db.Settings, requesterBirthYear int) {
	year := time.Now().Year()

	if settings.SimilarAge {
		age := year - requesterBirthYear
		ageRange := 5
		if age <= 22 {
			ageRange = 2
		}
		query.MinBirthYear = year - (age + ageRange)
		query.MaxBirthYear = year - (age - ageRange)
		return
	}

	if settings.AgeRangeMin != nil || settings.AgeRangeMax != nil {
		query.MinBirthYear = openRangeMinYear
		query.MaxBirthYear = openRangeMaxYear
		if settings.AgeRangeMax != nil {
			query.MinBirthYear = year - *settings.AgeRangeMax
		}
		if settings.AgeRangeMin != nil {
			query.MaxBirthYear = year - *settings.AgeRangeMin
		}
	}
}

// pickBest scores the candidates and returns the top one. The oracle path
// gets the localFirst and trust-bonus modifiers applied on top; when the
// oracle is unavailable the heuristic ranker's ordering is used as-is.
func (s *Service) pickBest(
	ctx context.Context,
	candidates []db.Profile,
	myProfile *db.Profile,
	settings *db.Settings,
) *db.Profile {
	projections := make([]ranking.Candidate, len(candidates))
	for i, c := range candidates {
		projections[i] = ranking.Candidate{
			ID:                c.ID,
			City:              c.City,
			BirthYear:         c.BirthYear,
			Goals:             c.Goals,
			IsVerified:        c.IsVerified,
			LikesReceived:     s.likesReceived(ctx, c.UserID, c.ID),
			TrustScore:        trustScoreOf(&c.User),
			DescriptionLength: len(c.Description),
			ImageCount:        len(c.Images),
		}
	}
	requester := ranking.Requester{
		City:       myProfile.City,
		BirthYear:  myProfile.BirthYear,
		Goals:      myProfile.Goals,
		TrustScore: trustScoreOf(nil),
	}
	if user, err := s.users.Get(ctx, myProfile.UserID); err == nil {
		requester.TrustScore = trustScoreOf(user)
	}

	scored := make(map[string]float64, len(candidates))

	oracleScores, err := s.rankWithOracle(ctx, projections, requester)
	if err == nil {
		for _, sc := range oracleScores {
			scored[sc.ID] = sc.Score
		}
		for i := range candidates {
			c := &candidates[i]
			score := scored[c.ID]
			if settings.LocalFirst && c.City == myProfile.City {
				score *= 1.2
			}
			score += score * float64(trustScoreOf(&c.User)) / 1000
			scored[c.ID] = score
		}
	} else {
		fallback := &ranking.HeuristicRanker{LocalFirst: settings.LocalFirst}
		heuristicScores, _ := fallback.Rank(ctx, projections, requester)
		for _, sc := range heuristicScores {
			scored[sc.ID] = sc.Score
		}
	}

	best := &candidates[0]
	for i := range candidates {
		if scored[candidates[i].ID] > scored[best.ID] {
			best = &candidates[i]
		}
	}
	return best
}

// likesReceived returns how many likes the profile's owner has collected,
// served from the cache when warm and counted from the decision edges
// otherwise, with a write-back. The counter itself is bumped by the
// decision recorder on every fresh like.
func (s *Service) likesReceived(ctx context.Context, ownerUserID, profileID string) int64 {
	if s.appCtx.RedisCache != nil {
		if n, err := s.appCtx.RedisCache.GetLikeCount(ctx, ownerUserID); err == nil && n > 0 {
			return n
		}
	}

	n, err := s.likes.CountLikers(ctx, profileID)
	if err != nil {
		return 0
	}
	if s.appCtx.RedisCache != nil {
		if err := s.appCtx.RedisCache.UpdateLikeCount(ctx, ownerUserID, n); err != nil {
			s.appCtx.Logger.Warn("like count write-back failed", "user_id", ownerUserID, "err", err)
		}
	}
	return n
}

func (s *Service) rankWithOracle(ctx context.Context, candidates []ranking.Candidate, requester ranking.Requester) ([]ranking.Score, error) {
	if s.oracle == nil {
		return nil, ranking.ErrUnavailable
	}
	scores, err := s.oracle.Rank(ctx, candidates, requester)
	if err != nil {
		if !errors.Is(err, ranking.ErrUnavailable) {
			s.appCtx.Logger.Warn("oracle ranking failed", "err", err)
		}
		return nil, ranking.ErrUnavailable
	}
	return scores, nil
}

// enrich applies the presentation-only NSFW image substitution and the
// placeholder avatar, then attaches the owner projection.
func (s *Service) enrich(ctx context.Context, profile *db.Profile, viewerSettings *db.Settings) (*RecommendedProfile, error) {
	images := profile.Images

	if !viewerSettings.ShowNsfw {
		imageData, err := s.profiles.GetImageData(ctx, profile.ID)
		if err == nil && len(imageData) > 0 {
			safe := make([]string, 0, len(imageData))
			for _, img := range imageData {
				if !img.IsNsfw {
					safe = append(safe, img.URL)
				}
			}
			if len(safe) > 0 {
				images = safe
			}
		}
	}

	if len(images) == 0 {
		images = []string{fmt.Sprintf("https://api.dicebear.com/7.x/thumbs/svg?seed=%d", rand.Intn(1000000))}
	}

	enriched := &RecommendedProfile{
		ID:            profile.ID,
		PreferredName: profile.PreferredName,
		Description:   profile.Description,
		City:          profile.City,
		Goals:         profile.Goals,
		BirthYear:     profile.BirthYear,
		Images:        images,
		User:          RecommendedUser{ID: profile.UserID},
		TrustScore:    db.DefaultTrustScore,
	}

	if user, err := s.users.Get(ctx, profile.UserID); err == nil {
		enriched.User.Username = user.Username
		enriched.TrustScore = trustScoreOf(user)
	}

	return enriched, nil
}

func trustScoreOf(user *db.User) int {
	if user == nil || user.TrustScore == 0 {
		return db.DefaultTrustScore
	}
	return user.TrustScore
}
