package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var seedCities = []string{"Berlin", "Hamburg", "Munich", "Cologne"}

var seedGoals = [][]string{
	{"friendship", "travel"},
	{"relationship"},
	{"relationship", "sport"},
	{"friendship", "music", "travel"},
}

// SeedTestData resets the database and populates it with demo users,
// profiles, settings and decisions.
//
// Behavior:
//  1. Clears likes, matches, chats, messages, settings, profiles and users.
//  2. Creates 20 users with profiles (varied city/birth year/goals).
//  3. Generates ~150 decisions with ~70% likes; every 3rd pair gets a
//     guaranteed reciprocal like so mutual matching paths have data.
func SeedTestData(database *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, table := range []string{"messages", "chats", "matches", "likes", "settings", "image_data", "profiles", "users"} {
		if err := database.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	year := time.Now().Year()
	users := make([]User, 0, 20)
	profiles := make([]Profile, 0, 20)

	for i := 1; i <= 20; i++ {
		user := User{
			Username:     fmt.Sprintf("user%d", i),
			PasswordHash: string(hash),
			TelegramID:   int64(100000 + i),
			TrustScore:   DefaultTrustScore,
		}
		if err := database.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		profile := Profile{
			UserID:        user.ID,
			PreferredName: fmt.Sprintf("Demo %d", i),
			Description:   "Here to meet interesting people and see where it goes.",
			City:          seedCities[i%len(seedCities)],
			BirthYear:     year - (19 + r.Intn(15)),
			Goals:         seedGoals[i%len(seedGoals)],
			Images:        []string{fmt.Sprintf("https://cdn.example.com/demo/%d-1.jpg", i)},
			IsVerified:    i%4 == 0,
		}
		if err := database.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}

		settings := Settings{
			UserID:         user.ID,
			NotifyMessages: true,
			NotifyLikes:    true,
			LocalFirst:     i%3 == 0,
		}
		if err := database.Create(&settings).Error; err != nil {
			return fmt.Errorf("failed to seed settings: %w", err)
		}

		users = append(users, user)
		profiles = append(profiles, profile)
	}
	log.Println("Seeded 20 users with profiles.")

	counter := 0
	for i := range users {
		for j := 0; j < 8; j++ {
			k := r.Intn(len(users))
			if k == i {
				continue
			}

			liked := r.Intn(100) < 70

			if counter%3 == 0 {
				liked = true
				reciprocal := Like{
					FromUserID:  users[k].ID,
					ToProfileID: profiles[i].ID,
					IsLike:      true,
				}
				database.Clauses(clause.OnConflict{DoNothing: true}).Create(&reciprocal)
			}

			decision := Like{
				FromUserID:  users[i].ID,
				ToProfileID: profiles[k].ID,
				IsLike:      liked,
			}
			if err := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&decision).Error; err != nil {
				return fmt.Errorf("failed to seed decision: %w", err)
			}
			counter++
		}
	}
	log.Printf("Seeded %d decisions.", counter)

	return nil
}

// SeedMinimalTestData inserts a small deterministic dataset for tests.
func SeedMinimalTestData(database *gorm.DB) ([]User, []Profile, error) {
	for _, table := range []string{"messages", "chats", "matches", "likes", "settings", "image_data", "profiles", "users"} {
		if err := database.Exec("DELETE FROM " + table).Error; err != nil {
			return nil, nil, err
		}
	}

	year := time.Now().Year()
	users := []User{
		{ID: "u1", Username: "user1", TrustScore: DefaultTrustScore},
		{ID: "u2", Username: "user2", TrustScore: DefaultTrustScore},
		{ID: "u3", Username: "user3", TrustScore: DefaultTrustScore},
	}
	if err := database.Create(&users).Error; err != nil {
		return nil, nil, err
	}

	profiles := []Profile{
		{ID: "p1", UserID: "u1", PreferredName: "Ann", City: "Berlin", BirthYear: year - 24, Goals: []string{"travel"}},
		{ID: "p2", UserID: "u2", PreferredName: "Bea", City: "Berlin", BirthYear: year - 25, Goals: []string{"travel"}},
		{ID: "p3", UserID: "u3", PreferredName: "Cam", City: "Hamburg", BirthYear: year - 30, Goals: []string{"sport"}},
	}
	if err := database.Create(&profiles).Error; err != nil {
		return nil, nil, err
	}

	return users, profiles, nil
}
