package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/go-demo/meet/internal/dto/request"
	"github.com/go-demo/meet/internal/dto/response"
	"github.com/go-demo/meet/internal/service"
)

// ToolHandler serves tool backends, not room clients. Redemption needs no
// user session; the ticket itself is the credential.
type ToolHandler struct {
	ticketService *service.TicketService
}

func NewToolHandler(ticketService *service.TicketService) *ToolHandler {
	return &ToolHandler{
		ticketService: ticketService,
	}
}

// Verify godoc
// @Summary Redeem a tool ticket
// @Description Verify a hand-off ticket and consume its single-use secret
// @Tags tools
// @Accept json
// @Produce json
// @Param request body request.VerifyTicketRequest true "ticket and secret"
// @Success 200 {object} response.Response{data=response.VerifyTicketResponse}
// @Failure 401 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/tools/verify [post]
func (h *ToolHandler) Verify(c *gin.Context) {
	var req request.VerifyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}

	result, err := h.ticketService.Verify(c.Request.Context(), req.Ticket, req.Secret)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, &response.VerifyTicketResponse{
		RoomID:   result.RoomID,
		UserID:   result.UserID,
		Tool:     result.Tool,
		SocketID: result.SocketID,
	})
}
