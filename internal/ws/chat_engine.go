package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/app"
	"github.com/reflexapp/reflex-backend/internal/db"
	svcErr "github.com/reflexapp/reflex-backend/internal/errors"
	"github.com/reflexapp/reflex-backend/internal/repository"
	"github.com/reflexapp/reflex-backend/internal/utils/pagination"
)

const (
	defaultChatPageSize    = 20
	defaultMessagePageSize = 30
	notifySnippetLen       = 30
)

// ChatEngine dispatches the chat channel's RPC actions. One instance is
// shared by all connections; per-connection state is the Session plus its
// registry subscriptions.
type ChatEngine struct {
	appCtx   *app.AppContext
	registry *Registry
	chats    *repository.ChatRepository
	messages *repository.MessageRepository
	profiles *repository.ProfileRepository
	users    *repository.UserRepository
	settings *repository.SettingsRepository
}

func NewChatEngine(appCtx *app.AppContext, registry *Registry) *ChatEngine {
	return &ChatEngine{
		appCtx:   appCtx,
		registry: registry,
		chats:    repository.NewChatRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
		users:    repository.NewUserRepository(appCtx.DB),
		settings: repository.NewSettingsRepository(appCtx.DB),
	}
}

// ServeChat runs the read loop for an authenticated chat connection until
// the client disconnects. Frames are handled sequentially, so replies and
// the pushes a frame triggers keep the client's submission order.
func (e *ChatEngine) ServeChat(ctx context.Context, sess *Session) {
	sess.Run()
	sess.Send(Notification{Event: "authenticated", Payload: map[string]bool{"success": true}})

	defer func() {
		e.registry.RemoveAll(sess)
		sess.Close()
	}()

	for {
		raw, err := sess.ReadFrame()
		if err != nil {
			return
		}
		e.HandleFrame(ctx, sess.UserID, sess, raw)
	}
}

// HandleFrame processes one client frame and writes the reply (and any
// broadcasts) through the subscriber. A malformed or failing frame never
// takes the connection down.
func (e *ChatEngine) HandleFrame(ctx context.Context, userID string, sub Subscriber, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		sub.Send(protocolError{Error: svcErr.InvalidArgument("Invalid JSON")})
		return
	}

	if req.Action == "ping" {
		sub.Send(Notification{Event: "pong"})
		return
	}

	if req.ID == nil {
		sub.Send(protocolError{Error: svcErr.InvalidArgument("Missing id")})
		return
	}
	id := *req.ID

	defer func() {
		if r := recover(); r != nil {
			e.appCtx.Logger.Error("action panicked", "action", req.Action, "user_id", userID, "panic", r)
			sub.Send(Response{ID: id, Error: svcErr.New(500, "Internal server error")})
		}
	}()

	result, err := e.dispatch(ctx, userID, sub, &req)
	if err != nil {
		sub.Send(Response{ID: id, Error: svcErr.Map(err)})
		return
	}
	sub.Send(Response{ID: id, Result: result})
}

func (e *ChatEngine) dispatch(ctx context.Context, userID string, sub Subscriber, req *Request) (any, error) {
	switch req.Action {
	case "subscribe":
		return e.subscribe(ctx, userID, sub, req.Params)
	case "unsubscribe":
		return e.unsubscribe(userID, sub, req.Params)
	case "getChats":
		return e.getChats(ctx, userID, req.Params)
	case "openChat":
		return e.openChat(ctx, userID, req.Params)
	case "deleteChat":
		return e.deleteChat(ctx, userID, req.Params)
	case "archiveChat":
		return e.archiveChat(ctx, userID, req.Params)
	case "getMessages":
		return e.getMessages(ctx, userID, req.Params)
	case "sendMessage":
		return e.sendMessage(ctx, userID, req.Params)
	case "editMessage":
		return e.editMessage(ctx, userID, req.Params)
	case "deleteMessage":
		return e.deleteMessage(ctx, userID, req.Params)
	case "markRead":
		return e.markRead(ctx, userID, req.Params)
	case "resume":
		return nil, svcErr.NotImplemented("resume is not supported")
	default:
		return nil, svcErr.InvalidArgument(fmt.Sprintf("Unknown action: %s", req.Action))
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return svcErr.InvalidArgument("Invalid params")
	}
	return nil
}

// loadChatFor fetches the chat and verifies the caller participates in it.
// A missing chat and a foreign chat are indistinguishable to the caller.
func (e *ChatEngine) loadChatFor(ctx context.Context, chatID, userID string) (*db.Chat, error) {
	if chatID == "" {
		return nil, svcErr.InvalidArgument("Missing chatId")
	}
	chat, err := e.chats.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.NotFound("Chat not found")
		}
		return nil, err
	}
	if chat.UserAID != userID && chat.UserBID != userID {
		return nil, svcErr.Forbidden("Not a participant of this chat")
	}
	return chat, nil
}

func otherUserID(chat *db.Chat, userID string) string {
	if chat.UserAID == userID {
		return chat.UserBID
	}
	return chat.UserAID
}

func (e *ChatEngine) subscribe(ctx context.Context, userID string, sub Subscriber, raw json.RawMessage) (any, error) {
	var p struct {
		ChatID string `json:"chatId"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if _, err := e.loadChatFor(ctx, p.ChatID, userID); err != nil {
		return nil, err
	}
	e.registry.Subscribe(p.ChatID, sub)
	return map[string]any{"subscribed": true, "chatId": p.ChatID}, nil
}

func (e *ChatEngine) unsubscribe(userID string, sub Subscriber, raw json.RawMessage) (any, error) {
	var p struct {
		ChatID string `json:"chatId"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ChatID == "" {
		return nil, svcErr.InvalidArgument("Missing chatId")
	}
	e.registry.Unsubscribe(p.ChatID, sub)
	return map[string]any{"unsubscribed": true, "chatId": p.ChatID}, nil
}

func (e *ChatEngine) getChats(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	var p struct {
		Limit  int    `json:"limit"`
		Cursor string `json:"cursor"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultChatPageSize
	}

	chats, err := e.chats.ListForUser(ctx, userID, p.Limit, p.Cursor)
	if err != nil {
		return nil, err
	}
	chats, hasMore := pagination.Trim(chats, p.Limit)

	views := make([]ChatItemView, 0, len(chats))
	for i := range chats {
		view, err := e.chatView(ctx, &chats[i], userID)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}

	next := pagination.NextCursor(chats, hasMore, func(c db.Chat) string { return c.ID })
	return map[string]any{"chats": views, "nextCursor": next}, nil
}

func (e *ChatEngine) chatView(ctx context.Context, chat *db.Chat, userID string) (*ChatItemView, error) {
	view := &ChatItemView{
		ID:              chat.ID,
		UserAID:         chat.UserAID,
		UserBID:         chat.UserBID,
		IsArchivedByA:   chat.IsArchivedByA,
		IsArchivedByB:   chat.IsArchivedByB,
		CreatedAt:       chat.CreatedAt,
		UpdatedAt:       chat.UpdatedAt,
		LastMessageTime: chat.UpdatedAt,
		OtherUser:       e.participantView(ctx, otherUserID(chat, userID)),
	}

	latest, err := e.messages.Latest(ctx, chat.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return view, nil
	}

	preview := latest.Text
	if preview == "" && latest.Media != "" {
		preview = "📷 Media"
	}
	view.LastMessage = &preview
	view.LastMessageTime = latest.CreatedAt
	return view, nil
}

// participantView resolves the display identity of a chat participant.
// Falls back to the username when the profile is incomplete.
func (e *ChatEngine) participantView(ctx context.Context, userID string) ParticipantView {
	view := ParticipantView{UserID: userID}

	if user, err := e.users.Get(ctx, userID); err == nil {
		view.PreferredName = user.Username
	}

	profile, err := e.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return view
	}
	view.ProfileID = &profile.ID
	if profile.PreferredName != "" {
		view.PreferredName = profile.PreferredName
	}
	if len(profile.Images) > 0 {
		view.Avatar = &profile.Images[0]
	}
	return view
}

func (e *ChatEngine) openChat(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	var p struct {
		ChatID string `json:"chatId"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	chat, err := e.loadChatFor(ctx, p.ChatID, userID)
	if err != nil {
		return nil, err
	}

	view, err := e.chatView(ctx, chat, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"chat": view,
		"me":   e.participantView(ctx, userID),
	}, nil
}

func (e *ChatEngine) deleteChat(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	var p struct {
		ChatID string `json:"chatId"`
		Scope  string `json:"scope"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Scope == "" {
		p.Scope = "self"
	}
	if p.Scope != "self" && p.Scope != "both" {
		return nil, svcErr.InvalidArgument("scope must be self or both")
	}

	chat, err := e.loadChatFor(ctx, p.ChatID, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if p.Scope == "both" {
		updates["is_deleted_by_a"] = true
		updates["is_deleted_by_b"] = true
	} else if chat.UserAID == userID {
		updates["is_deleted_by_a"] = true
	} else {
		updates["is_deleted_by_b"] = true
	}
	if err := e.chats.UpdateFlags(ctx, chat.ID, updates); err != nil {
		return nil, err
	}

	e.registry.Broadcast(chat.ID, Notification{
		Event:   "chat_deleted",
		Payload: map[string]any{"chatId": chat.ID, "by": userID, "scope": p.Scope},
	})
	return map[string]any{"deleted": true, "scope": p.Scope}, nil
}

func (e *ChatEngine) archiveChat(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	// An absent archive flag unarchives: the param is coerced to a plain
	// boolean, missing meaning false.
	var p struct {
		ChatID  string `json:"chatId"`
		Archive bool   `json:"archive"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	archive := p.Archive

	chat, err := e.loadChatFor(ctx, p.ChatID, userID)
	if err != nil {
		return nil, err
	}

	column := "is_archived_by_a"
	if chat.UserBID == userID {
		column = "is_archived_by_b"
	}
	if err := e.chats.UpdateFlags(ctx, chat.ID, map[string]interface{}{column: archive}); err != nil {
		return nil, err
	}

	e.registry.Broadcast(chat.ID, Notification{
		Event:   "chat_archived",
		Payload: map[string]any{"chatId": chat.ID, "by": userID, "archive": archive},
	})
	return map[string]any{"isArchived": archive}, nil
}

func (e *ChatEngine) getMessages(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	var p struct {
		ChatID string `json:"chatId"`
		Limit  int    `json:"limit"`
		Cursor string `json:"cursor"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultMessagePageSize
	}

	chat, err := e.loadChatFor(ctx, p.ChatID, userID)
	if err != nil {
		return nil, err
	}

	msgs, err := e.messages.ListByChat(ctx, chat.ID, p.Limit, p.Cursor)
	if err != nil {
		return nil, err
	}

	// The overflow row's id becomes the cursor; the next page starts at
	// that exact row, so concatenated pages have no gap.
	next := ""
	if len(msgs) > p.Limit {
		next = msgs[p.Limit].ID
		msgs = msgs[:p.Limit]
	}

	views := make([]MessageView, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := &msgs[i]
		if m.IsDeletedBySender && m.SenderID == userID {
			continue
		}
		views = append(views, newMessageView(m))
	}

	return map[string]any{"messages": views, "nextCursor": next}, nil
}

func (e *ChatEngine) sendMessage(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	var p struct {
		ChatID   string `json:"chatId"`
		Text     string `json:"text"`
		MediaURL string `json:"mediaUrl"`
		Type     string `json:"type"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Text == "" && p.MediaURL == "" {
		return nil, svcErr.InvalidArgument("Empty message")
	}
	if p.Type == "" {
		p.Type = "text"
		if p.MediaURL != "" {
			p.Type = "media"
		}
	}

	chat, err := e.loadChatFor(ctx, p.ChatID, userID)
	if err != nil {
		return nil, err
	}

	msg := &db.Message{
		ChatID:   chat.ID,
		SenderID: userID,
		Text:     p.Text,
		Media:    p.MediaURL,
		Type:     p.Type,
	}
	if err := e.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := e.chats.Touch(ctx, chat.ID, msg.CreatedAt); err != nil {
		e.appCtx.Logger.Warn("chat touch failed", "chat_id", chat.ID, "err", err)
	}

	view := newMessageView(msg)
	e.registry.Broadcast(chat.ID, Notification{Event: "new_message", Payload: view})

	go e.notifyNewMessage(context.Background(), otherUserID(chat, userID), userID, msg)

	return view, nil
}

// notifyNewMessage pushes the out-of-band notification for a message,
// gated on the recipient's notifyMessages preference.
func (e *ChatEngine) notifyNewMessage(ctx context.Context, recipientID, senderID string, msg *db.Message) {
	settings, err := e.settings.GetOrDefault(ctx, recipientID)
	if err == nil && !settings.NotifyMessages {
		return
	}

	recipient, err := e.users.Get(ctx, recipientID)
	if err != nil {
		return
	}

	senderName := "Someone"
	if profile, err := e.profiles.GetByUserID(ctx, senderID); err == nil {
		senderName = profile.PreferredName
	}

	snippet := "📷 Media"
	if msg.Text != "" {
		snippet = msg.Text
		if runes := []rune(snippet); len(runes) > notifySnippetLen {
			snippet = string(runes[:notifySnippetLen]) + "…"
		}
	}

	e.appCtx.Notifier.Send(ctx, recipient.TelegramID,
		fmt.Sprintf("💬 %s: %s", senderName, snippet))
}

func (e *ChatEngine) editMessage(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	var p struct {
		MessageID string `json:"messageId"`
		Text      string `json:"text"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.MessageID == "" {
		return nil, svcErr.InvalidArgument("Missing messageId")
	}
	if p.Text == "" {
		return nil, svcErr.InvalidArgument("Empty text")
	}

	msg, err := e.messages.Get(ctx, p.MessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.NotFound("Message not found")
		}
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, svcErr.Forbidden("Not your message")
	}

	now := time.Now()
	if err := e.messages.SetText(ctx, msg.ID, p.Text, now); err != nil {
		return nil, err
	}
	msg.Text = p.Text
	msg.EditedAt = &now

	view := newMessageView(msg)
	e.registry.Broadcast(msg.ChatID, Notification{Event: "message_updated", Payload: view})
	return view, nil
}

func (e *ChatEngine) deleteMessage(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	var p struct {
		MessageID string `json:"messageId"`
		Scope     string `json:"scope"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.MessageID == "" {
		return nil, svcErr.InvalidArgument("Missing messageId")
	}
	if p.Scope == "" {
		p.Scope = "both"
	}
	if p.Scope != "self" && p.Scope != "both" {
		return nil, svcErr.InvalidArgument("scope must be self or both")
	}

	msg, err := e.messages.Get(ctx, p.MessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.NotFound("Message not found")
		}
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, svcErr.Forbidden("Not your message")
	}

	if p.Scope == "both" {
		err = e.messages.Delete(ctx, msg.ID)
	} else {
		err = e.messages.SoftDeleteBySender(ctx, msg.ID)
	}
	if err != nil {
		return nil, err
	}

	// Scope is broadcast as-is; a self-scoped delete still reaches every
	// subscriber, which only affects the deleter's other devices.
	e.registry.Broadcast(msg.ChatID, Notification{
		Event:   "message_deleted",
		Payload: map[string]any{"messageId": msg.ID, "chatId": msg.ChatID, "scope": p.Scope},
	})
	return map[string]any{"deleted": true, "scope": p.Scope}, nil
}

func (e *ChatEngine) markRead(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	var p struct {
		ChatID     string   `json:"chatId"`
		MessageIDs []string `json:"messageIds"`
	}
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.MessageIDs) == 0 {
		return nil, svcErr.InvalidArgument("No message ids")
	}

	chat, err := e.loadChatFor(ctx, p.ChatID, userID)
	if err != nil {
		return nil, err
	}

	marked, err := e.messages.MarkRead(ctx, chat.ID, p.MessageIDs, userID, time.Now())
	if err != nil {
		return nil, err
	}

	if marked > 0 {
		e.registry.Broadcast(chat.ID, Notification{
			Event:   "messages_read",
			Payload: map[string]any{"chatId": chat.ID, "messageIds": p.MessageIDs, "by": userID},
		})
	}
	return map[string]any{"marked": marked}, nil
}
