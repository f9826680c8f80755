package request

// CreateRoomRequest represents a room creation request
type CreateRoomRequest struct {
	Title           string `json:"title" binding:"required,min=2,max=100"`
	Password        string `json:"password,omitempty" binding:"omitempty,max=72"`
	MaxParticipants int    `json:"max_participants,omitempty" binding:"omitempty,min=2,max=64"`
}
