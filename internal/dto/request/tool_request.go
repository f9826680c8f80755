package request

// VerifyTicketRequest is submitted by a tool backend to redeem a
// hand-off ticket
type VerifyTicketRequest struct {
	Ticket string `json:"ticket" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}
