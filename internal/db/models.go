package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultTrustScore is the score assigned to new accounts and used whenever
// a stored score is missing.
const DefaultTrustScore = 40

// User table. Created on first authentication; trust/ban fields are mutated
// by the trust adjuster.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	TelegramID   int64  `gorm:"index"`
	PasswordHash string `gorm:"size:255"`
	TrustScore   int    `gorm:"not null;default:40"`
	Blocked      bool   `gorm:"not null;default:false"`
	BlockReason  string `gorm:"size:255"`
	BlockedAt    *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Profile is one-to-one with User.
type Profile struct {
	ID            string   `gorm:"primaryKey;size:36"`
	UserID        string   `gorm:"uniqueIndex;size:36;not null"`
	PreferredName string   `gorm:"size:64;not null"`
	Description   string   `gorm:"type:text"`
	City          string   `gorm:"size:64;index"`
	BirthYear     int      `gorm:"index"`
	Goals         []string `gorm:"serializer:json"`
	Images        []string `gorm:"serializer:json"`
	IsVerified    bool     `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	User User `gorm:"foreignKey:UserID"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ImageData carries the per-image moderation verdict; the ordered URL list
// on Profile stays the display source of truth.
type ImageData struct {
	ID        string  `gorm:"primaryKey;size:36"`
	ProfileID string  `gorm:"index;size:36;not null"`
	URL       string  `gorm:"size:512;not null"`
	Order     int     `gorm:"column:img_order;not null;default:0"`
	IsNsfw    bool    `gorm:"not null;default:false"`
	NsfwScore float64 `gorm:"not null;default:0"`
	CreatedAt time.Time
}

func (i *ImageData) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// Like is a directed decision edge.
//
// Composite PK (FromUserID, ToProfileID) allows at most one decision per
// user-profile pair; the first decision is authoritative and later
// submissions are ignored.
type Like struct {
	FromUserID  string    `gorm:"primaryKey;size:36"`
	ToProfileID string    `gorm:"primaryKey;size:36;index:idx_to_profile_is_like,priority:1"`
	IsLike      bool      `gorm:"not null;index:idx_to_profile_is_like,priority:2"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// Match is an unordered pair stored in canonical sorted order so both sides
// of a mutual like upsert the same row.
type Match struct {
	User1ID   string    `gorm:"primaryKey;size:36"`
	User2ID   string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Chat is unique per unordered user pair. Storage is asymmetric (A/B slots)
// but the meaning is symmetric; per-side flags track soft deletion and
// archiving. UpdatedAt is bumped on every new message for recency ordering.
type Chat struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserAID       string `gorm:"size:36;not null;index:idx_chat_pair,priority:1"`
	UserBID       string `gorm:"size:36;not null;index:idx_chat_pair,priority:2"`
	IsDeletedByA  bool   `gorm:"not null;default:false"`
	IsDeletedByB  bool   `gorm:"not null;default:false"`
	IsArchivedByA bool   `gorm:"not null;default:false"`
	IsArchivedByB bool   `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
}

func (c *Chat) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Message belongs to exactly one Chat.
type Message struct {
	ID                string `gorm:"primaryKey;size:36"`
	ChatID            string `gorm:"index;size:36;not null"`
	SenderID          string `gorm:"index;size:36;not null"`
	Text              string `gorm:"type:text"`
	Media             string `gorm:"size:512"`
	Type              string `gorm:"size:16;not null;default:text"`
	IsDeletedBySender bool   `gorm:"not null;default:false"`
	CreatedAt         time.Time
	EditedAt          *time.Time
	ReadAt            *time.Time
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Settings is one-to-one with User; defaults are materialized lazily on
// first read.
type Settings struct {
	UserID         string `gorm:"primaryKey;size:36"`
	NotifyMessages bool   `gorm:"not null;default:true"`
	NotifyLikes    bool   `gorm:"not null;default:true"`
	SimilarAge     bool   `gorm:"not null;default:false"`
	LocalFirst     bool   `gorm:"not null;default:false"`
	ShowNsfw       bool   `gorm:"not null;default:false"`
	SameCityOnly   bool   `gorm:"not null;default:false"`
	AgeRangeMin    *int
	AgeRangeMax    *int
	UpdatedAt      time.Time
}

// TrustLog records every trust score change for auditability.
type TrustLog struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"index;size:36;not null"`
	OldScore  int    `gorm:"not null"`
	NewScore  int    `gorm:"not null"`
	Reason    string `gorm:"size:64;not null"`
	Details   string `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (t *TrustLog) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// ChatKey models the key material entity attached to a chat. Key generation
// and the exchange scheme live outside this service.
type ChatKey struct {
	ID             string `gorm:"primaryKey;size:36"`
	ChatID         string `gorm:"uniqueIndex;size:36;not null"`
	PubKey         string `gorm:"size:128"`
	PrivateKeyA    string `gorm:"size:256"`
	PrivateKeyB    string `gorm:"size:256"`
	NonceA         string `gorm:"size:64"`
	NonceB         string `gorm:"size:64"`
	CreatedAt      time.Time
}

func (k *ChatKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}
