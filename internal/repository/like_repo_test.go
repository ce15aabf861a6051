package repository_test

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
)

// setup in-memory DB
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func TestCreateFirstDecisionWins(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewLikeRepository(dbase)

	created, err := repo.Create(ctx, "u1", "p2", true)
	require.NoError(t, err)
	assert.True(t, created)

	// resubmission with the opposite verdict is ignored
	created, err = repo.Create(ctx, "u1", "p2", false)
	require.NoError(t, err)
	assert.False(t, created)

	like, err := repo.Get(ctx, "u1", "p2")
	require.NoError(t, err)
	assert.True(t, like.IsLike)
}

func TestDecidedProfileIDs(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewLikeRepository(dbase)

	_, err := repo.Create(ctx, "u1", "p2", true)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u1", "p3", false)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u2", "p3", true)
	require.NoError(t, err)

	ids, err := repo.DecidedProfileIDs(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p2", "p3"}, ids)
}

func TestGetIncomingLikerProfiles(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewLikeRepository(dbase)

	_, profiles, err := db.SeedMinimalTestData(dbase)
	require.NoError(t, err)

	// u2 and u3 both liked p1
	_, err = repo.Create(ctx, "u2", "p1", true)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u3", "p1", true)
	require.NoError(t, err)

	likers, err := repo.GetIncomingLikerProfiles(ctx, "p1", "u1")
	require.NoError(t, err)
	assert.Len(t, likers, 2)

	// u1 passed on p3 → u3 no longer shows up
	_, err = repo.Create(ctx, "u1", profiles[2].ID, false)
	require.NoError(t, err)

	likers, err = repo.GetIncomingLikerProfiles(ctx, "p1", "u1")
	require.NoError(t, err)
	require.Len(t, likers, 1)
	assert.Equal(t, "p2", likers[0].ID)
}

func TestCountLikers(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewLikeRepository(dbase)

	_, err := repo.Create(ctx, "u2", "p1", true)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u3", "p1", true)
	require.NoError(t, err)
	// a dislike never counts
	_, err = repo.Create(ctx, "u4", "p1", false)
	require.NoError(t, err)

	count, err := repo.CountLikers(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
