package repository

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-demo/meet/internal/model"
	"github.com/go-demo/meet/internal/pkg/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var testCounter int64

// GenerateUniquePrefix returns a prefix unique across parallel test runs.
func GenerateUniquePrefix() string {
	count := atomic.AddInt64(&testCounter, 1)
	return uuid.New().String()[:8] + "_" + time.Now().Format("150405") + "_" + string(rune(count%26+'a'))
}

// SetupIsolatedTestDB connects to the test database and hands out a unique
// prefix so parallel tests never touch each other's rows.
func SetupIsolatedTestDB(t *testing.T) (*sqlx.DB, string) {
	t.Helper()

	dsn := "host=localhost port=5432 user=postgres password=postgres dbname=meet_test sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("Skipping test, could not connect to test database: %v", err)
	}

	prefix := GenerateUniquePrefix()

	return db, prefix
}

// CleanupTestDataByPrefix removes only the rows this test created.
func CleanupTestDataByPrefix(t *testing.T, db *sqlx.DB, prefix string) {
	t.Helper()

	ctx := context.Background()

	// Delete in foreign-key dependency order.
	_, _ = db.ExecContext(ctx, "DELETE FROM rooms WHERE owner_id IN (SELECT id FROM users WHERE username LIKE $1)", prefix+"%")
	_, _ = db.ExecContext(ctx, "DELETE FROM rooms WHERE title LIKE $1", prefix+"%")
	_, _ = db.ExecContext(ctx, "DELETE FROM users WHERE username LIKE $1", prefix+"%")
	_, _ = db.ExecContext(ctx, "DELETE FROM users WHERE email LIKE $1", prefix+"%")
}

// CreateIsolatedTestUser inserts a user carrying the test's prefix.
func CreateIsolatedTestUser(t *testing.T, db *sqlx.DB, prefix, name string) *model.User {
	t.Helper()

	userRepo := NewUserRepository(db)
	username := prefix + "_" + name
	user := &model.User{
		Username:     username,
		Email:        username + "@test.example.com",
		PasswordHash: "hashedpassword",
		DisplayName:  sql.NullString{String: name, Valid: true},
	}

	if err := userRepo.Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// CreateIsolatedTestRoom inserts a room carrying the test's prefix.
func CreateIsolatedTestRoom(t *testing.T, db *sqlx.DB, prefix string, owner *model.User) *model.Room {
	t.Helper()

	roomRepo := NewRoomRepository(db)
	code, err := utils.GenerateRoomCode()
	if err != nil {
		t.Fatalf("Failed to generate room code: %v", err)
	}
	room := &model.Room{
		Code:            code,
		Title:           prefix + "_room",
		OwnerID:         owner.ID,
		MaxParticipants: 16,
	}

	if err := roomRepo.Create(context.Background(), room); err != nil {
		t.Fatalf("Failed to create test room: %v", err)
	}

	return room
}
