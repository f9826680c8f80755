package response

import (
	"time"

	"github.com/go-demo/meet/internal/model"
)

// RoomResponse represents a room response
type RoomResponse struct {
	ID              string `json:"id"`
	Code            string `json:"code"`
	Title           string `json:"title"`
	OwnerID         string `json:"owner_id"`
	HasPassword     bool   `json:"has_password"`
	MaxParticipants int    `json:"max_participants"`
	CreatedAt       string `json:"created_at"`
}

// NewRoomResponse creates a room response from model
func NewRoomResponse(room *model.Room) *RoomResponse {
	return &RoomResponse{
		ID:              room.ID,
		Code:            room.Code,
		Title:           room.Title,
		OwnerID:         room.OwnerID,
		HasPassword:     room.HasPassword(),
		MaxParticipants: room.MaxParticipants,
		CreatedAt:       room.CreatedAt.Format(time.RFC3339),
	}
}

// NewRoomListResponse creates room responses from models
func NewRoomListResponse(rooms []*model.Room) []*RoomResponse {
	out := make([]*RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, NewRoomResponse(room))
	}
	return out
}
