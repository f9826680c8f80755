package main

import (
	"context"
	"database/sql"
	"log"

	"github.com/go-demo/meet/internal/config"
	"github.com/go-demo/meet/internal/model"
	"github.com/go-demo/meet/internal/pkg/cache"
	"github.com/go-demo/meet/internal/pkg/database"
	"github.com/go-demo/meet/internal/pkg/utils"
	"github.com/go-demo/meet/internal/repository"
	"github.com/go-demo/meet/internal/store"
	"go.uber.org/zap"
)

func main() {
	log.Println("Starting database seed...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := zap.NewNop()
	db, err := database.NewPostgres(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(&cfg.Redis, logger)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	ctx := context.Background()

	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	state := store.NewRoomStateStore(redisClient, logger)

	log.Println("Creating users...")
	users := []struct {
		username    string
		email       string
		password    string
		displayName string
	}{
		{"alice", "alice@example.com", "password123", "Alice Chen"},
		{"bob", "bob@example.com", "password123", "Bob Wang"},
		{"charlie", "charlie@example.com", "password123", "Charlie Lin"},
	}

	var createdUsers []*model.User
	for _, u := range users {
		hash, _ := utils.HashPassword(u.password)
		user := &model.User{
			Username:     u.username,
			Email:        u.email,
			PasswordHash: hash,
			DisplayName:  sql.NullString{String: u.displayName, Valid: true},
		}
		if err := userRepo.Create(ctx, user); err != nil {
			log.Printf("Skipping user %s: %v", u.username, err)
			continue
		}
		createdUsers = append(createdUsers, user)
		log.Printf("Created user %s", user.Username)
	}

	if len(createdUsers) == 0 {
		log.Println("No users created, nothing to seed")
		return
	}

	log.Println("Creating rooms...")
	rooms := []struct {
		title    string
		password string
		max      int
	}{
		{"Daily Standup", "", 16},
		{"Design Review", "letmein1", 8},
	}

	for i, r := range rooms {
		owner := createdUsers[i%len(createdUsers)]
		code, err := utils.GenerateRoomCode()
		if err != nil {
			log.Fatalf("Failed to generate room code: %v", err)
		}

		room := &model.Room{
			Code:            code,
			Title:           r.title,
			OwnerID:         owner.ID,
			MaxParticipants: r.max,
		}
		if r.password != "" {
			hash, _ := utils.HashRoomPassword(r.password)
			room.PasswordHash = sql.NullString{String: hash, Valid: true}
		}

		if err := roomRepo.Create(ctx, room); err != nil {
			log.Printf("Skipping room %s: %v", r.title, err)
			continue
		}

		err = state.CreateRoom(ctx, room.Code, &store.RoomInfo{
			Code:            room.Code,
			Title:           room.Title,
			OwnerID:         room.OwnerID,
			MaxParticipants: room.MaxParticipants,
			PasswordHash:    room.GetPasswordHash(),
		})
		if err != nil {
			log.Printf("Failed to create room state for %s: %v", r.title, err)
			continue
		}

		log.Printf("Created room %s (code %s)", room.Title, room.Code)
	}

	log.Println("Seed completed")
}
