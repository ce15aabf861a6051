package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reflexapp/reflex-backend/internal/db"
)

// MatchRepository provides data access for the Match model.
//
// Matches are keyed on the canonical sorted user pair, so concurrent upserts
// from both sides of a mutual like target the same row and the composite
// primary key is the race backstop.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// Upsert inserts the match row for the canonical (user1, user2) pair.
// A no-op when the row already exists; created reports whether this call
// inserted it.
func (r *MatchRepository) Upsert(ctx context.Context, user1ID, user2ID string) (bool, error) {
	match := db.Match{User1ID: user1ID, User2ID: user2ID}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&match)
	return result.RowsAffected > 0, result.Error
}
