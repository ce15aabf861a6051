package ws

import (
	"context"
	"encoding/json"

	"github.com/reflexapp/reflex-backend/internal/app"
	"github.com/reflexapp/reflex-backend/internal/repository"
	"github.com/reflexapp/reflex-backend/internal/service/decision"
	"github.com/reflexapp/reflex-backend/internal/service/recommend"
)

// SwipeEngine drives the card-stack channels: the search feed scored by the
// recommendation engine and the incoming-likes feed. Both speak the same
// frame shape; only the candidate source differs.
//
// Client frames carry the verdict in the type field:
//
//	{type:"like"|"dislike", profileId}
//	{type:"ping"}
//
// Server frames are typed pushes, not RPC replies:
//
//	{type:"recommendation", profile}
//	{type:"no-more-profiles"}
//	{type:"match", chatId, userId}
//	{type:"error", code, message}
type SwipeEngine struct {
	appCtx      *app.AppContext
	recommender *recommend.Service
	decisions   *decision.Service
	likes       *repository.LikeRepository
	profiles    *repository.ProfileRepository
	settings    *repository.SettingsRepository
}

func NewSwipeEngine(appCtx *app.AppContext, recommender *recommend.Service, decisions *decision.Service) *SwipeEngine {
	return &SwipeEngine{
		appCtx:      appCtx,
		recommender: recommender,
		decisions:   decisions,
		likes:       repository.NewLikeRepository(appCtx.DB),
		profiles:    repository.NewProfileRepository(appCtx.DB),
		settings:    repository.NewSettingsRepository(appCtx.DB),
	}
}

type swipeFrame struct {
	Type      string `json:"type"`
	ProfileID string `json:"profileId"`
}

type swipeError struct {
	Type    string `json:"type"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// candidateSource yields the next profile to show, or nil when the feed is
// exhausted.
type candidateSource func(ctx context.Context, userID string) (*recommend.RecommendedProfile, error)

// ServeSearch runs the scored recommendation feed for a connection.
func (e *SwipeEngine) ServeSearch(ctx context.Context, sess *Session) {
	e.serve(ctx, sess, e.recommender.Next)
}

// ServeLikes runs the incoming-likes feed: profiles of users who liked the
// caller and have not been decided upon yet, newest like first.
func (e *SwipeEngine) ServeLikes(ctx context.Context, sess *Session) {
	e.serve(ctx, sess, e.nextIncomingLiker)
}

// HandleSearchFrame processes one search-channel frame for the user.
func (e *SwipeEngine) HandleSearchFrame(ctx context.Context, userID string, sub Subscriber, raw []byte) {
	e.handleSwipe(ctx, userID, sub, e.recommender.Next, raw)
}

// HandleLikesFrame processes one likes-channel frame for the user.
func (e *SwipeEngine) HandleLikesFrame(ctx context.Context, userID string, sub Subscriber, raw []byte) {
	e.handleSwipe(ctx, userID, sub, e.nextIncomingLiker, raw)
}

// serve pushes the first candidate immediately, then advances the feed one
// card per decision.
func (e *SwipeEngine) serve(ctx context.Context, sess *Session, source candidateSource) {
	sess.Run()
	defer sess.Close()

	e.pushNext(ctx, sess.UserID, sess, source)

	for {
		raw, err := sess.ReadFrame()
		if err != nil {
			return
		}
		e.handleSwipe(ctx, sess.UserID, sess, source, raw)
	}
}

// handleSwipe processes one decision frame against the given source.
func (e *SwipeEngine) handleSwipe(ctx context.Context, userID string, sub Subscriber, source candidateSource, raw []byte) {
	var frame swipeFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		sub.Send(swipeError{Type: "error", Code: 400, Message: "Invalid JSON"})
		return
	}

	var isLike bool
	switch frame.Type {
	case "ping":
		sub.Send(map[string]string{"type": "pong"})
		return
	case "like":
		isLike = true
	case "dislike":
		isLike = false
	default:
		sub.Send(swipeError{Type: "error", Code: 400, Message: "type must be like or dislike"})
		return
	}

	if frame.ProfileID == "" {
		sub.Send(swipeError{Type: "error", Code: 400, Message: "profileId is required"})
		return
	}

	outcome, err := e.decisions.Record(ctx, userID, frame.ProfileID, isLike)
	if err != nil {
		e.appCtx.Logger.Error("decision failed", "user_id", userID, "profile_id", frame.ProfileID, "err", err)
		sub.Send(swipeError{Type: "error", Code: 500, Message: "Internal server error"})
		return
	}

	if outcome.Matched {
		sub.Send(map[string]any{
			"type":   "match",
			"chatId": outcome.ChatID,
			"userId": outcome.MatchedUserID,
		})
	}

	e.pushNext(ctx, userID, sub, source)
}

func (e *SwipeEngine) pushNext(ctx context.Context, userID string, sub Subscriber, source candidateSource) {
	profile, err := source(ctx, userID)
	if err != nil {
		e.appCtx.Logger.Error("candidate lookup failed", "user_id", userID, "err", err)
		sub.Send(swipeError{Type: "error", Code: 500, Message: "Internal server error"})
		return
	}
	if profile == nil {
		sub.Send(map[string]string{"type": "no-more-profiles"})
		return
	}
	sub.Send(map[string]any{"type": "recommendation", "profile": profile})
}

func (e *SwipeEngine) nextIncomingLiker(ctx context.Context, userID string) (*recommend.RecommendedProfile, error) {
	myProfile, err := e.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	likers, err := e.likes.GetIncomingLikerProfiles(ctx, myProfile.ID, userID)
	if err != nil {
		return nil, err
	}
	if len(likers) == 0 {
		return nil, nil
	}

	settings, err := e.settings.GetOrDefault(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.recommender.Enrich(ctx, &likers[0], settings)
}
