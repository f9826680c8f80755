package response

// VerifyTicketResponse tells a tool backend who redeemed a ticket
type VerifyTicketResponse struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Tool     string `json:"tool"`
	SocketID string `json:"socket_id"`
}
