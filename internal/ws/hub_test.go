package ws

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-demo/meet/internal/sfu"
	"github.com/go-demo/meet/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestClient(hub *Hub, socketID, userID string) *Client {
	return NewClient(hub, nil, socketID, userID, userID, false, "127.0.0.1", zap.NewNop())
}

func testHubStore(t *testing.T) (*store.RoomStateStore, *redis.Client) {
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
	return store.NewRoomStateStore(client, zap.NewNop()), client
}

func TestDeliverToRoomDuringMembershipChurn(t *testing.T) {
	hub := NewHub(nil, nil, nil, nil, nil, zap.NewNop())
	msg, _ := NewMessage(MessageTypePong, nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	// Churn the room roster the way joins and disconnects do, while the
	// other goroutine fans out broadcasts to the same room.
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			client := newTestClient(hub, fmt.Sprintf("sock-%d", i), "user-a")
			hub.mu.Lock()
			if hub.rooms["room-1"] == nil {
				hub.rooms["room-1"] = make(map[*Client]bool)
			}
			hub.rooms["room-1"][client] = true
			if len(hub.rooms["room-1"]) > 8 {
				for c := range hub.rooms["room-1"] {
					delete(hub.rooms["room-1"], c)
					break
				}
			}
			hub.mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 2000; i++ {
			hub.deliverToRoom("room-1", msg, "")
		}
	}()

	wg.Wait()
}

func TestTeardownMemberKeepsSlotsWhenRosterUnreadable(t *testing.T) {
	st, client := testHubStore(t)
	ctx := context.Background()

	registry := sfu.NewRegistry(nil, st, zap.NewNop())
	hub := NewHub(nil, nil, st, registry, nil, zap.NewNop())

	info := &store.RoomInfo{Code: "room-1", Title: "Test Room", OwnerID: "owner", MaxParticipants: 4}
	if err := st.CreateRoom(ctx, "room-1", info); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	member := store.Member{SocketID: "sock-1", IP: "127.0.0.1", Nickname: "alice"}
	if err := st.JoinRoom(ctx, "room-1", "user-a", member); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	occupant := store.SlotOccupant{UserID: "user-a", Tool: "whiteboard"}
	if err := st.ClaimSlot(ctx, "room-1", store.SlotMain, occupant); err != nil {
		t.Fatalf("ClaimSlot failed: %v", err)
	}

	// Make the roster unreadable without touching the info record.
	if err := client.Set(ctx, "room:room-1:members", "not-a-hash", 0).Err(); err != nil {
		t.Fatalf("Failed to corrupt members key: %v", err)
	}

	hub.teardownMember(newTestClient(hub, "sock-1", "user-a"), "room-1")

	got, err := st.GetRoomInfo(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetRoomInfo failed: %v", err)
	}
	if got.MainProducer == nil || got.MainProducer.UserID != "user-a" {
		t.Fatalf("Expected main slot to survive a roster read failure, got %+v", got.MainProducer)
	}
}
