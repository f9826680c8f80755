package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-demo/meet/internal/dto/request"
	"github.com/go-demo/meet/internal/dto/response"
	"github.com/go-demo/meet/internal/middleware"
	"github.com/go-demo/meet/internal/pkg/utils"
	"github.com/go-demo/meet/internal/service"
)

type RoomHandler struct {
	roomService *service.RoomService
}

func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
	}
}

// Create godoc
// @Summary Create a room
// @Description Create a meeting room and receive its join code
// @Tags rooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body request.CreateRoomRequest true "room data"
// @Success 201 {object} response.Response{data=response.RoomResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/rooms [post]
func (h *RoomHandler) Create(c *gin.Context) {
	var req request.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "malformed request body")
		return
	}

	v := utils.NewValidator()
	v.ValidateRoomTitle("title", req.Title)
	if v.HasErrors() {
		response.ValidationError(c, v.Errors())
		return
	}

	room, err := h.roomService.Create(c.Request.Context(), &service.CreateRoomInput{
		Title:           req.Title,
		OwnerID:         middleware.GetUserID(c),
		Password:        req.Password,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, response.NewRoomResponse(room))
}

// Get godoc
// @Summary Look up a room
// @Description Resolve a join code to room metadata
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Param code path string true "room join code"
// @Success 200 {object} response.Response{data=response.RoomResponse}
// @Failure 404 {object} response.Response
// @Router /api/v1/rooms/{code} [get]
func (h *RoomHandler) Get(c *gin.Context) {
	code := c.Param("code")

	v := utils.NewValidator()
	if !v.ValidateRoomCode("code", code) {
		response.ValidationError(c, v.Errors())
		return
	}

	room, err := h.roomService.GetByCode(c.Request.Context(), code)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, response.NewRoomResponse(room))
}

// List godoc
// @Summary List owned rooms
// @Description List rooms created by the caller, newest first
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} response.Response{data=[]response.RoomResponse}
// @Router /api/v1/rooms [get]
func (h *RoomHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rooms, err := h.roomService.List(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, response.NewRoomListResponse(rooms))
}

// Delete godoc
// @Summary Delete a room
// @Description Tear down a room's media and state, then remove it. Owner only.
// @Tags rooms
// @Produce json
// @Security BearerAuth
// @Param code path string true "room join code"
// @Success 204 {string} string "No Content"
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/rooms/{code} [delete]
func (h *RoomHandler) Delete(c *gin.Context) {
	code := c.Param("code")

	v := utils.NewValidator()
	if !v.ValidateRoomCode("code", code) {
		response.ValidationError(c, v.Errors())
		return
	}

	if err := h.roomService.Delete(c.Request.Context(), code, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
