package trust_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/db"
	"github.com/reflexapp/reflex-backend/internal/repository"
	"github.com/reflexapp/reflex-backend/internal/trust"
)

func setupService(t *testing.T) (*trust.Service, *gorm.DB) {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))
	require.NoError(t, dbase.Create(&db.User{ID: "u1", Username: "user1", TrustScore: db.DefaultTrustScore}).Error)

	return trust.NewService(repository.NewUserRepository(dbase)), dbase
}

func TestAdjustAppliesDelta(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t)

	adj, err := svc.Adjust(ctx, "u1", trust.ReasonPhotoAdded, nil)
	require.NoError(t, err)
	assert.Equal(t, 45, adj.NewScore)
	assert.False(t, adj.Blocked)

	var entry db.TrustLog
	require.NoError(t, dbase.First(&entry).Error)
	assert.Equal(t, 40, entry.OldScore)
	assert.Equal(t, 45, entry.NewScore)
	assert.Equal(t, string(trust.ReasonPhotoAdded), entry.Reason)
}

func TestAdjustClampsAndBlocks(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t)

	// -50 from 40 clamps to the floor of 10 and blocks the account
	adj, err := svc.Adjust(ctx, "u1", trust.ReasonFakeProfile, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, adj.NewScore)
	assert.True(t, adj.Blocked)

	var user db.User
	require.NoError(t, dbase.First(&user, "id = ?", "u1").Error)
	assert.True(t, user.Blocked)
	assert.Contains(t, user.BlockReason, string(trust.ReasonFakeProfile))
	assert.NotNil(t, user.BlockedAt)
}

func TestAdjustClampsAtCeiling(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t)

	require.NoError(t, dbase.Model(&db.User{}).Where("id = ?", "u1").Update("trust_score", 95).Error)

	adj, err := svc.Adjust(ctx, "u1", trust.ReasonVerifiedPhone, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, adj.NewScore)
}

func TestAdjustSkipsBlockedUsers(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t)

	_, err := svc.Adjust(ctx, "u1", trust.ReasonFakeProfile, nil)
	require.NoError(t, err)

	// further changes leave a blocked account untouched
	adj, err := svc.Adjust(ctx, "u1", trust.ReasonVerifiedPhone, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, adj.NewScore)
	assert.True(t, adj.Blocked)

	var logs int64
	require.NoError(t, dbase.Model(&db.TrustLog{}).Count(&logs).Error)
	assert.Equal(t, int64(1), logs)
}

func TestCheckChatActivity(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t)
	chats := repository.NewChatRepository(dbase)

	require.NoError(t, dbase.Create(&db.Chat{ID: "c1", UserAID: "u1", UserBID: "u2"}).Error)
	require.NoError(t, dbase.Create(&db.Chat{ID: "c2", UserAID: "u1", UserBID: "u3"}).Error)

	// two chats are not enough
	require.NoError(t, svc.CheckChatActivity(ctx, chats, "u1"))
	var user db.User
	require.NoError(t, dbase.First(&user, "id = ?", "u1").Error)
	assert.Equal(t, db.DefaultTrustScore, user.TrustScore)

	require.NoError(t, dbase.Create(&db.Chat{ID: "c3", UserAID: "u4", UserBID: "u1"}).Error)

	require.NoError(t, svc.CheckChatActivity(ctx, chats, "u1"))
	require.NoError(t, dbase.First(&user, "id = ?", "u1").Error)
	assert.Equal(t, db.DefaultTrustScore+3, user.TrustScore)
}

func TestCheckProfileCompleteness(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t)

	profile := &db.Profile{
		ID:          "p1",
		UserID:      "u1",
		PreferredName: "Ann",
		Description: "Short bio",
		Goals:       []string{"travel"},
	}
	require.NoError(t, dbase.Create(profile).Error)

	// incomplete profile earns nothing
	require.NoError(t, svc.CheckProfileCompleteness(ctx, repository.NewProfileRepository(dbase), "u1"))
	var user db.User
	require.NoError(t, dbase.First(&user, "id = ?", "u1").Error)
	assert.Equal(t, db.DefaultTrustScore, user.TrustScore)

	profile.Description = "A description long enough to clear the completeness threshold easily."
	profile.Images = []string{"a.jpg", "b.jpg"}
	profile.Goals = []string{"travel", "music"}
	require.NoError(t, dbase.Save(profile).Error)

	require.NoError(t, svc.CheckProfileCompleteness(ctx, repository.NewProfileRepository(dbase), "u1"))
	require.NoError(t, dbase.First(&user, "id = ?", "u1").Error)
	assert.Equal(t, db.DefaultTrustScore+10, user.TrustScore)
}
