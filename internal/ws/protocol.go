package ws

import (
	"encoding/json"
	"time"

	"github.com/reflexapp/reflex-backend/internal/db"
	svcErr "github.com/reflexapp/reflex-backend/internal/errors"
)

// Request is a client RPC frame: {id, action, params}. The id is absent
// only on keep-alive pings.
type Request struct {
	ID     *int64          `json:"id"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

// Response is a server reply frame: {id, result} or {id, error}.
type Response struct {
	ID     int64            `json:"id"`
	Result any              `json:"result,omitempty"`
	Error  *svcErr.RPCError `json:"error,omitempty"`
}

// Notification is an asynchronous server push: {event, payload}, no id.
type Notification struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// protocolError is the reply for frames that never reached dispatch
// (malformed JSON, missing id): {error:{code,message}} with no id.
type protocolError struct {
	Error *svcErr.RPCError `json:"error"`
}

// MessageView is the wire projection of a message.
type MessageView struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chatId"`
	SenderID  string     `json:"senderId"`
	Text      string     `json:"text"`
	Media     string     `json:"mediaUrl,omitempty"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt"`
	ReadAt    *time.Time `json:"readAt"`
}

func newMessageView(m *db.Message) MessageView {
	return MessageView{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Media:     m.Media,
		Type:      m.Type,
		CreatedAt: m.CreatedAt,
		EditedAt:  m.EditedAt,
		ReadAt:    m.ReadAt,
	}
}

// ParticipantView is the display identity of a chat participant.
type ParticipantView struct {
	UserID        string  `json:"userId"`
	ProfileID     *string `json:"profileId"`
	PreferredName string  `json:"preferredName"`
	Avatar        *string `json:"avatar"`
}

// ChatItemView is one getChats list entry.
type ChatItemView struct {
	ID              string          `json:"id"`
	UserAID         string          `json:"userAId"`
	UserBID         string          `json:"userBId"`
	IsArchivedByA   bool            `json:"isArchivedByA"`
	IsArchivedByB   bool            `json:"isArchivedByB"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	LastMessage     *string         `json:"lastMessage"`
	LastMessageTime time.Time       `json:"lastMessageTime"`
	OtherUser       ParticipantView `json:"otherUser"`
}
