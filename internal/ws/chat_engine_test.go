package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/app"
	"github.com/reflexapp/reflex-backend/internal/db"
	"github.com/reflexapp/reflex-backend/internal/ws"
)

func setupEngine(t *testing.T) (*ws.ChatEngine, *ws.Registry, *gorm.DB) {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))
	_, _, err = db.SeedMinimalTestData(dbase)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := ws.NewRegistry()
	engine := ws.NewChatEngine(app.New(dbase, nil, logger, nil), registry)
	return engine, registry, dbase
}

func createChat(t *testing.T, dbase *gorm.DB, id, userA, userB string) {
	t.Helper()
	require.NoError(t, dbase.Create(&db.Chat{ID: id, UserAID: userA, UserBID: userB}).Error)
}

// rpc sends one request frame and returns the reply, which is always the
// last frame the subscriber received.
func rpc(t *testing.T, e *ws.ChatEngine, userID string, sub *fakeSub, id int64, action string, params any) ws.Response {
	t.Helper()

	req := map[string]any{"id": id, "action": action}
	if params != nil {
		req["params"] = params
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	e.HandleFrame(context.Background(), userID, sub, raw)

	frames := sub.Frames()
	require.NotEmpty(t, frames)
	resp, ok := frames[len(frames)-1].(ws.Response)
	require.True(t, ok, "last frame is not an RPC reply: %#v", frames[len(frames)-1])
	return resp
}

func resultMap(t *testing.T, resp ws.Response) map[string]any {
	t.Helper()
	require.Nil(t, resp.Error)
	m, ok := resp.Result.(map[string]any)
	require.True(t, ok, "result is not a map: %#v", resp.Result)
	return m
}

func TestPingPong(t *testing.T) {
	engine, _, _ := setupEngine(t)
	sub := &fakeSub{}

	engine.HandleFrame(context.Background(), "u1", sub, []byte(`{"action":"ping"}`))

	frames := sub.Frames()
	require.Len(t, frames, 1)
	note, ok := frames[0].(ws.Notification)
	require.True(t, ok)
	assert.Equal(t, "pong", note.Event)
}

// A malformed frame gets an id-less error reply and the connection lives on.
func TestMalformedJSON(t *testing.T) {
	engine, _, _ := setupEngine(t)
	sub := &fakeSub{}

	engine.HandleFrame(context.Background(), "u1", sub, []byte(`{not json`))

	frames := sub.Frames()
	require.Len(t, frames, 1)
	raw, err := json.Marshal(frames[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"code":400,"message":"Invalid JSON"}}`, string(raw))
}

func TestMissingID(t *testing.T) {
	engine, _, _ := setupEngine(t)
	sub := &fakeSub{}

	engine.HandleFrame(context.Background(), "u1", sub, []byte(`{"action":"getChats"}`))

	frames := sub.Frames()
	require.Len(t, frames, 1)
	raw, err := json.Marshal(frames[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"code":400`)
	assert.Contains(t, string(raw), "Missing id")
}

func TestUnknownAction(t *testing.T) {
	engine, _, _ := setupEngine(t)
	sub := &fakeSub{}

	resp := rpc(t, engine, "u1", sub, 1, "teleport", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, 400, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "teleport")
}

func TestResumeNotImplemented(t *testing.T) {
	engine, _, _ := setupEngine(t)
	sub := &fakeSub{}

	resp := rpc(t, engine, "u1", sub, 1, "resume", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, 501, resp.Error.Code)
}

func TestSendMessageBroadcast(t *testing.T) {
	engine, registry, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")

	sender, peer := &fakeSub{}, &fakeSub{}
	registry.Subscribe("c12", sender)
	registry.Subscribe("c12", peer)

	resp := rpc(t, engine, "u1", sender, 1, "sendMessage",
		map[string]any{"chatId": "c12", "text": "hello"})

	view, ok := resp.Result.(ws.MessageView)
	require.True(t, ok)
	assert.Equal(t, "c12", view.ChatID)
	assert.Equal(t, "u1", view.SenderID)
	assert.Equal(t, "hello", view.Text)
	assert.Equal(t, "text", view.Type)

	// both subscribers, sender included, see the push before the reply
	for _, sub := range []*fakeSub{sender, peer} {
		var pushed bool
		for _, frame := range sub.Frames() {
			if note, ok := frame.(ws.Notification); ok && note.Event == "new_message" {
				pushed = true
			}
		}
		assert.True(t, pushed)
	}

	// the chat's recency timestamp follows the message
	var chat db.Chat
	require.NoError(t, dbase.First(&chat, "id = ?", "c12").Error)
	assert.WithinDuration(t, view.CreatedAt, chat.UpdatedAt, time.Second)
}

// A media-only message carries its URL under the mediaUrl key, in and out.
func TestSendMessageMediaOnly(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	resp := rpc(t, engine, "u1", sub, 1, "sendMessage",
		map[string]any{"chatId": "c12", "mediaUrl": "https://cdn.example.com/cat.jpg"})

	view, ok := resp.Result.(ws.MessageView)
	require.True(t, ok)
	assert.Equal(t, "media", view.Type)
	assert.Equal(t, "https://cdn.example.com/cat.jpg", view.Media)
	assert.Empty(t, view.Text)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"mediaUrl":"https://cdn.example.com/cat.jpg"`)

	var msg db.Message
	require.NoError(t, dbase.First(&msg, "id = ?", view.ID).Error)
	assert.Equal(t, "https://cdn.example.com/cat.jpg", msg.Media)
}

func TestSendMessageValidation(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	resp := rpc(t, engine, "u1", sub, 1, "sendMessage", map[string]any{"chatId": "c12"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 400, resp.Error.Code)

	// an outsider cannot post into a foreign chat
	resp = rpc(t, engine, "u3", sub, 2, "sendMessage",
		map[string]any{"chatId": "c12", "text": "hi"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 403, resp.Error.Code)
}

func TestOpenChat(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	resp := rpc(t, engine, "u1", sub, 1, "openChat", map[string]any{"chatId": "c12"})
	result := resultMap(t, resp)

	chat, ok := result["chat"].(*ws.ChatItemView)
	require.True(t, ok)
	assert.Equal(t, "c12", chat.ID)
	assert.Equal(t, "Bea", chat.OtherUser.PreferredName)

	me, ok := result["me"].(ws.ParticipantView)
	require.True(t, ok)
	assert.Equal(t, "Ann", me.PreferredName)
}

func TestOpenChatNotFound(t *testing.T) {
	engine, _, _ := setupEngine(t)
	sub := &fakeSub{}

	resp := rpc(t, engine, "u1", sub, 1, "openChat", map[string]any{"chatId": "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 404, resp.Error.Code)
	assert.Equal(t, "Chat not found", resp.Error.Message)
}

func TestEditMessageOnlySender(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	resp := rpc(t, engine, "u1", sub, 1, "sendMessage",
		map[string]any{"chatId": "c12", "text": "draft"})
	msg := resp.Result.(ws.MessageView)

	resp = rpc(t, engine, "u2", sub, 2, "editMessage",
		map[string]any{"messageId": msg.ID, "text": "hijacked"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 403, resp.Error.Code)

	resp = rpc(t, engine, "u1", sub, 3, "editMessage",
		map[string]any{"messageId": msg.ID, "text": "final"})
	edited := resp.Result.(ws.MessageView)
	assert.Equal(t, "final", edited.Text)
	assert.NotNil(t, edited.EditedAt)
}

func TestDeleteMessageScopes(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	first := rpc(t, engine, "u1", sub, 1, "sendMessage",
		map[string]any{"chatId": "c12", "text": "one"}).Result.(ws.MessageView)
	second := rpc(t, engine, "u1", sub, 2, "sendMessage",
		map[string]any{"chatId": "c12", "text": "two"}).Result.(ws.MessageView)

	// only the sender may delete
	resp := rpc(t, engine, "u2", sub, 3, "deleteMessage", map[string]any{"messageId": first.ID})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 403, resp.Error.Code)

	// scope both removes the row
	resp = rpc(t, engine, "u1", sub, 4, "deleteMessage",
		map[string]any{"messageId": first.ID, "scope": "both"})
	require.Nil(t, resp.Error)
	var count int64
	require.NoError(t, dbase.Model(&db.Message{}).Where("id = ?", first.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// scope self keeps the row but hides it from the sender's history
	resp = rpc(t, engine, "u1", sub, 5, "deleteMessage",
		map[string]any{"messageId": second.ID, "scope": "self"})
	require.Nil(t, resp.Error)

	senderView := resultMap(t, rpc(t, engine, "u1", sub, 6, "getMessages", map[string]any{"chatId": "c12"}))
	assert.Empty(t, senderView["messages"].([]ws.MessageView))

	peerView := resultMap(t, rpc(t, engine, "u2", sub, 7, "getMessages", map[string]any{"chatId": "c12"}))
	assert.Len(t, peerView["messages"].([]ws.MessageView), 1)
}

func TestMarkRead(t *testing.T) {
	engine, registry, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sender, reader := &fakeSub{}, &fakeSub{}
	registry.Subscribe("c12", sender)

	resp := rpc(t, engine, "u1", sender, 1, "markRead", map[string]any{"chatId": "c12"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 400, resp.Error.Code)

	msg := rpc(t, engine, "u1", sender, 2, "sendMessage",
		map[string]any{"chatId": "c12", "text": "unread"}).Result.(ws.MessageView)

	result := resultMap(t, rpc(t, engine, "u2", reader, 3, "markRead",
		map[string]any{"chatId": "c12", "messageIds": []string{msg.ID}}))
	assert.Equal(t, int64(1), result["marked"])

	// the sender's open connection learns about the read receipt
	var receipt bool
	for _, frame := range sender.Frames() {
		if note, ok := frame.(ws.Notification); ok && note.Event == "messages_read" {
			receipt = true
		}
	}
	assert.True(t, receipt)

	// own messages never count as read
	result = resultMap(t, rpc(t, engine, "u1", sender, 4, "markRead",
		map[string]any{"chatId": "c12", "messageIds": []string{msg.ID}}))
	assert.Equal(t, int64(0), result["marked"])
}

func TestGetChats(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	createChat(t, dbase, "c13", "u1", "u3")
	sub := &fakeSub{}

	rpc(t, engine, "u1", sub, 1, "sendMessage", map[string]any{"chatId": "c13", "text": "hey Cam"})

	result := resultMap(t, rpc(t, engine, "u1", sub, 2, "getChats", nil))
	chats := result["chats"].([]ws.ChatItemView)
	require.Len(t, chats, 2)

	// the chat with the newer message leads, carrying its preview
	assert.Equal(t, "c13", chats[0].ID)
	assert.Equal(t, "Cam", chats[0].OtherUser.PreferredName)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "hey Cam", *chats[0].LastMessage)

	assert.Equal(t, "c12", chats[1].ID)
	assert.Nil(t, chats[1].LastMessage)
	assert.Empty(t, result["nextCursor"])
}

func TestGetChatsPagination(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("c%d", i)
		createChat(t, dbase, id, "u1", "u2")
		require.NoError(t, dbase.Model(&db.Chat{}).Where("id = ?", id).
			Update("updated_at", base.Add(time.Duration(i)*time.Second)).Error)
	}
	sub := &fakeSub{}

	var got []string
	cursor := ""
	for i := 0; ; i++ {
		params := map[string]any{"limit": 2}
		if cursor != "" {
			params["cursor"] = cursor
		}
		result := resultMap(t, rpc(t, engine, "u1", sub, int64(i+1), "getChats", params))
		for _, c := range result["chats"].([]ws.ChatItemView) {
			got = append(got, c.ID)
		}
		cursor = result["nextCursor"].(string)
		if cursor == "" {
			break
		}
	}

	assert.Equal(t, []string{"c4", "c3", "c2", "c1", "c0"}, got)
}

func TestGetMessagesPagination(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	for i := 0; i < 7; i++ {
		require.NoError(t, dbase.Create(&db.Message{
			ID:        fmt.Sprintf("m%02d", i),
			ChatID:    "c12",
			SenderID:  "u1",
			Text:      fmt.Sprintf("msg %d", i),
			Type:      "text",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	var got []string
	cursor := ""
	for i := 0; ; i++ {
		params := map[string]any{"chatId": "c12", "limit": 3}
		if cursor != "" {
			params["cursor"] = cursor
		}
		result := resultMap(t, rpc(t, engine, "u2", sub, int64(100+i), "getMessages", params))

		msgs := result["messages"].([]ws.MessageView)
		// each page arrives in chronological order
		page := make([]string, 0, len(msgs))
		for _, m := range msgs {
			page = append(page, m.Text)
		}
		got = append(page, got...)

		cursor = result["nextCursor"].(string)
		if cursor == "" {
			break
		}
	}

	want := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		want = append(want, fmt.Sprintf("msg %d", i))
	}
	assert.Equal(t, want, got)
}

func TestDeleteChatSelfScope(t *testing.T) {
	engine, registry, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub, peer := &fakeSub{}, &fakeSub{}
	registry.Subscribe("c12", peer)

	result := resultMap(t, rpc(t, engine, "u1", sub, 1, "deleteChat",
		map[string]any{"chatId": "c12", "scope": "self"}))
	assert.Equal(t, true, result["deleted"])

	mine := resultMap(t, rpc(t, engine, "u1", sub, 2, "getChats", nil))
	assert.Empty(t, mine["chats"].([]ws.ChatItemView))

	theirs := resultMap(t, rpc(t, engine, "u2", sub, 3, "getChats", nil))
	assert.Len(t, theirs["chats"].([]ws.ChatItemView), 1)

	var deleted bool
	for _, frame := range peer.Frames() {
		if note, ok := frame.(ws.Notification); ok && note.Event == "chat_deleted" {
			deleted = true
		}
	}
	assert.True(t, deleted)
}

func TestDeleteChatBothScope(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	resultMap(t, rpc(t, engine, "u1", sub, 1, "deleteChat",
		map[string]any{"chatId": "c12", "scope": "both"}))

	theirs := resultMap(t, rpc(t, engine, "u2", sub, 2, "getChats", nil))
	assert.Empty(t, theirs["chats"].([]ws.ChatItemView))
}

func TestArchiveChat(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	result := resultMap(t, rpc(t, engine, "u2", sub, 1, "archiveChat",
		map[string]any{"chatId": "c12", "archive": true}))
	assert.Equal(t, true, result["isArchived"])

	var chat db.Chat
	require.NoError(t, dbase.First(&chat, "id = ?", "c12").Error)
	assert.True(t, chat.IsArchivedByB)
	assert.False(t, chat.IsArchivedByA)

	result = resultMap(t, rpc(t, engine, "u2", sub, 2, "archiveChat",
		map[string]any{"chatId": "c12", "archive": false}))
	assert.Equal(t, false, result["isArchived"])
}

// Leaving the archive flag out means false, so the call unarchives.
func TestArchiveChatDefaultsToUnarchive(t *testing.T) {
	engine, _, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	result := resultMap(t, rpc(t, engine, "u1", sub, 1, "archiveChat",
		map[string]any{"chatId": "c12", "archive": true}))
	assert.Equal(t, true, result["isArchived"])

	result = resultMap(t, rpc(t, engine, "u1", sub, 2, "archiveChat",
		map[string]any{"chatId": "c12"}))
	assert.Equal(t, false, result["isArchived"])

	var chat db.Chat
	require.NoError(t, dbase.First(&chat, "id = ?", "c12").Error)
	assert.False(t, chat.IsArchivedByA)
}

func TestSubscribeRequiresMembership(t *testing.T) {
	engine, registry, dbase := setupEngine(t)
	createChat(t, dbase, "c12", "u1", "u2")
	sub := &fakeSub{}

	resp := rpc(t, engine, "u3", sub, 1, "subscribe", map[string]any{"chatId": "c12"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 403, resp.Error.Code)
	assert.Equal(t, 0, registry.Count("c12"))

	resp = rpc(t, engine, "u1", sub, 2, "subscribe", map[string]any{"chatId": "c12"})
	require.Nil(t, resp.Error)
	assert.Equal(t, 1, registry.Count("c12"))

	resp = rpc(t, engine, "u1", sub, 3, "unsubscribe", map[string]any{"chatId": "c12"})
	require.Nil(t, resp.Error)
	assert.Equal(t, 0, registry.Count("c12"))
}
