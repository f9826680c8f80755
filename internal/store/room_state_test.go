package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func testStore(t *testing.T) *RoomStateStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis is not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return NewRoomStateStore(client, zap.NewNop())
}

func createTestRoom(t *testing.T, s *RoomStateStore, roomID string, max int) {
	t.Helper()
	err := s.CreateRoom(context.Background(), roomID, &RoomInfo{
		Code:            roomID,
		Title:           "Test Room",
		OwnerID:         "owner-1",
		MaxParticipants: max,
	})
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
}

func TestCreateRoomAndGetInfo(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM01", 8)

	info, err := s.GetRoomInfo(ctx, "ROOM01")
	if err != nil {
		t.Fatalf("Failed to get room info: %v", err)
	}

	if info.Title != "Test Room" {
		t.Errorf("Expected title 'Test Room', got '%s'", info.Title)
	}
	if info.MaxParticipants != 8 {
		t.Errorf("Expected max_participants 8, got %d", info.MaxParticipants)
	}
	if info.CurrentParticipants != 0 {
		t.Errorf("Expected current_participants 0, got %d", info.CurrentParticipants)
	}
	if info.MainProducer != nil || info.SubProducer != nil {
		t.Error("Expected both slots to start vacant")
	}
}

func TestGetRoomInfoNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetRoomInfo(context.Background(), "MISSING")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestJoinRoomCapacity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM02", 2)

	if err := s.JoinRoom(ctx, "ROOM02", "user-a", Member{SocketID: "sock-a"}); err != nil {
		t.Fatalf("Failed to join first member: %v", err)
	}
	if err := s.JoinRoom(ctx, "ROOM02", "user-b", Member{SocketID: "sock-b"}); err != nil {
		t.Fatalf("Failed to join second member: %v", err)
	}

	err := s.JoinRoom(ctx, "ROOM02", "user-c", Member{SocketID: "sock-c"})
	if !errors.Is(err, ErrRoomFull) {
		t.Errorf("Expected ErrRoomFull for third member, got %v", err)
	}

	info, err := s.GetRoomInfo(ctx, "ROOM02")
	if err != nil {
		t.Fatalf("Failed to get room info: %v", err)
	}
	if info.CurrentParticipants != 2 {
		t.Errorf("Expected current_participants 2, got %d", info.CurrentParticipants)
	}
}

func TestJoinRoomNotFound(t *testing.T) {
	s := testStore(t)

	err := s.JoinRoom(context.Background(), "MISSING", "user-a", Member{SocketID: "sock-a"})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestJoinRoomRejoinKeepsCounter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM03", 4)

	if err := s.JoinRoom(ctx, "ROOM03", "user-a", Member{SocketID: "sock-1", Nickname: "first"}); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	// Same user reconnects on a new socket.
	if err := s.JoinRoom(ctx, "ROOM03", "user-a", Member{SocketID: "sock-2", Nickname: "second"}); err != nil {
		t.Fatalf("Failed to rejoin: %v", err)
	}

	info, err := s.GetRoomInfo(ctx, "ROOM03")
	if err != nil {
		t.Fatalf("Failed to get room info: %v", err)
	}
	if info.CurrentParticipants != 1 {
		t.Errorf("Expected current_participants 1 after rejoin, got %d", info.CurrentParticipants)
	}

	members, err := s.GetMembers(ctx, "ROOM03")
	if err != nil {
		t.Fatalf("Failed to get members: %v", err)
	}
	if members["user-a"].SocketID != "sock-2" {
		t.Errorf("Expected member record to carry the newest socket, got '%s'", members["user-a"].SocketID)
	}
}

func TestJoinRoomConcurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM04", 3)

	const joiners = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n)
			err := s.JoinRoom(ctx, "ROOM04", userID, Member{SocketID: fmt.Sprintf("sock-%d", n)})
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrRoomFull) && !errors.Is(err, ErrTooMuchContention) {
				t.Errorf("Unexpected join error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	info, err := s.GetRoomInfo(ctx, "ROOM04")
	if err != nil {
		t.Fatalf("Failed to get room info: %v", err)
	}
	if info.CurrentParticipants > 3 {
		t.Errorf("Capacity exceeded: current_participants %d", info.CurrentParticipants)
	}
	if info.CurrentParticipants != admitted {
		t.Errorf("Counter %d does not match admitted members %d", info.CurrentParticipants, admitted)
	}
}

func TestLeaveRoom(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM05", 4)
	if err := s.JoinRoom(ctx, "ROOM05", "user-a", Member{SocketID: "sock-a"}); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}

	if err := s.LeaveRoom(ctx, "ROOM05", "sock-a", "user-a"); err != nil {
		t.Fatalf("Failed to leave: %v", err)
	}

	info, err := s.GetRoomInfo(ctx, "ROOM05")
	if err != nil {
		t.Fatalf("Failed to get room info: %v", err)
	}
	if info.CurrentParticipants != 0 {
		t.Errorf("Expected current_participants 0 after leave, got %d", info.CurrentParticipants)
	}

	if _, err := s.GetSocket(ctx, "sock-a"); !errors.Is(err, ErrSocketNotFound) {
		t.Errorf("Expected socket index entry to be gone, got %v", err)
	}

	// Leaving again must not drive the counter negative.
	if err := s.LeaveRoom(ctx, "ROOM05", "sock-a", "user-a"); err != nil {
		t.Fatalf("Repeated leave failed: %v", err)
	}
	info, _ = s.GetRoomInfo(ctx, "ROOM05")
	if info.CurrentParticipants != 0 {
		t.Errorf("Expected current_participants to stay 0, got %d", info.CurrentParticipants)
	}
}

func TestLeaveRoomStaleSocket(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM06", 4)
	if err := s.JoinRoom(ctx, "ROOM06", "user-a", Member{SocketID: "sock-old"}); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	if err := s.JoinRoom(ctx, "ROOM06", "user-a", Member{SocketID: "sock-new"}); err != nil {
		t.Fatalf("Failed to rejoin: %v", err)
	}

	// The superseded socket disconnects after the rejoin landed.
	if err := s.LeaveRoom(ctx, "ROOM06", "sock-old", "user-a"); err != nil {
		t.Fatalf("Stale leave failed: %v", err)
	}

	members, err := s.GetMembers(ctx, "ROOM06")
	if err != nil {
		t.Fatalf("Failed to get members: %v", err)
	}
	if _, ok := members["user-a"]; !ok {
		t.Fatal("Expected member to survive a stale-socket leave")
	}
	if members["user-a"].SocketID != "sock-new" {
		t.Errorf("Expected member to keep socket 'sock-new', got '%s'", members["user-a"].SocketID)
	}

	info, _ := s.GetRoomInfo(ctx, "ROOM06")
	if info.CurrentParticipants != 1 {
		t.Errorf("Expected current_participants 1, got %d", info.CurrentParticipants)
	}

	if _, err := s.GetSocket(ctx, "sock-old"); !errors.Is(err, ErrSocketNotFound) {
		t.Errorf("Expected stale socket index entry to be gone, got %v", err)
	}
	if _, err := s.GetSocket(ctx, "sock-new"); err != nil {
		t.Errorf("Expected live socket index entry to survive, got %v", err)
	}
}

func TestGetSocket(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM07", 4)
	if err := s.JoinRoom(ctx, "ROOM07", "user-a", Member{SocketID: "sock-a", IP: "10.0.0.1"}); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}

	entry, err := s.GetSocket(ctx, "sock-a")
	if err != nil {
		t.Fatalf("Failed to resolve socket: %v", err)
	}
	if entry.UserID != "user-a" {
		t.Errorf("Expected user_id 'user-a', got '%s'", entry.UserID)
	}
	if entry.RoomID != "ROOM07" {
		t.Errorf("Expected room_id 'ROOM07', got '%s'", entry.RoomID)
	}
}

func TestDeleteRoom(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM08", 4)
	if err := s.JoinRoom(ctx, "ROOM08", "user-a", Member{SocketID: "sock-a"}); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}

	if err := s.DeleteRoom(ctx, "ROOM08"); err != nil {
		t.Fatalf("Failed to delete room: %v", err)
	}

	if _, err := s.GetRoomInfo(ctx, "ROOM08"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound after delete, got %v", err)
	}
}

func TestGetRoster(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	createTestRoom(t, s, "ROOM09", 4)
	if err := s.JoinRoom(ctx, "ROOM09", "user-a", Member{SocketID: "sock-a", Nickname: "alice"}); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	rec := ProducerRecord{ProducerID: "prod-1", Type: "mic", Status: "on"}
	if err := s.PutProducer(ctx, "ROOM09", "user-a", "audio", rec); err != nil {
		t.Fatalf("Failed to put producer: %v", err)
	}

	roster, err := s.GetRoster(ctx, "ROOM09")
	if err != nil {
		t.Fatalf("Failed to get roster: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("Expected 1 roster entry, got %d", len(roster))
	}
	if roster[0].UserID != "user-a" {
		t.Errorf("Expected user_id 'user-a', got '%s'", roster[0].UserID)
	}
	if roster[0].Producers["audio"].ProducerID != "prod-1" {
		t.Errorf("Expected audio producer 'prod-1', got '%s'", roster[0].Producers["audio"].ProducerID)
	}
}
