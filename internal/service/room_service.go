package service

import (
	"context"
	"database/sql"

	"github.com/go-demo/meet/internal/model"
	apperrors "github.com/go-demo/meet/internal/pkg/errors"
	"github.com/go-demo/meet/internal/pkg/utils"
	"github.com/go-demo/meet/internal/repository"
	"github.com/go-demo/meet/internal/sfu"
	"github.com/go-demo/meet/internal/store"
	"go.uber.org/zap"
)

const defaultMaxParticipants = 16

type RoomService struct {
	roomRepo *repository.RoomRepository
	state    *store.RoomStateStore
	registry *sfu.Registry
	logger   *zap.Logger
}

func NewRoomService(roomRepo *repository.RoomRepository, state *store.RoomStateStore, registry *sfu.Registry, logger *zap.Logger) *RoomService {
	return &RoomService{
		roomRepo: roomRepo,
		state:    state,
		registry: registry,
		logger:   logger,
	}
}

// CreateRoomInput represents room creation input
type CreateRoomInput struct {
	Title           string
	OwnerID         string
	Password        string
	MaxParticipants int
}

// Create creates a catalog row and seeds the live room state. The join
// code identifies the room to clients; the database ID stays internal.
func (s *RoomService) Create(ctx context.Context, input *CreateRoomInput) (*model.Room, error) {
	code, err := utils.GenerateRoomCode()
	if err != nil {
		s.logger.Error("Failed to generate room code", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	maxParticipants := input.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = defaultMaxParticipants
	}

	room := &model.Room{
		Code:            code,
		Title:           input.Title,
		OwnerID:         input.OwnerID,
		MaxParticipants: maxParticipants,
	}
	if input.Password != "" {
		hash, err := utils.HashRoomPassword(input.Password)
		if err != nil {
			s.logger.Error("Failed to hash room password", zap.Error(err))
			return nil, apperrors.ErrInternal
		}
		room.PasswordHash = sql.NullString{String: hash, Valid: true}
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		s.logger.Error("Failed to create room", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	info := &store.RoomInfo{
		Code:            room.Code,
		Title:           room.Title,
		OwnerID:         room.OwnerID,
		MaxParticipants: room.MaxParticipants,
		PasswordHash:    room.GetPasswordHash(),
	}
	if err := s.state.CreateRoom(ctx, room.Code, info); err != nil {
		s.logger.Error("Failed to seed room state", zap.Error(err))
		if derr := s.roomRepo.Delete(ctx, room.ID); derr != nil {
			s.logger.Error("Failed to roll back room row", zap.Error(derr))
		}
		return nil, apperrors.ErrInternal
	}

	s.logger.Info("Room created",
		zap.String("room_id", room.ID),
		zap.String("code", room.Code),
		zap.String("owner_id", room.OwnerID),
	)

	return room, nil
}

// GetByCode retrieves a room by its join code
func (s *RoomService) GetByCode(ctx context.Context, code string) (*model.Room, error) {
	room, err := s.roomRepo.GetByCode(ctx, code)
	if err != nil {
		if apperrors.Is(err, repository.ErrRoomNotFound) {
			return nil, apperrors.ErrRoomNotFound
		}
		s.logger.Error("Failed to get room", zap.Error(err))
		return nil, apperrors.ErrInternal
	}
	return room, nil
}

// CheckPassword verifies a join password against the room's hash. Rooms
// without a password accept any input.
func (s *RoomService) CheckPassword(room *model.Room, password string) error {
	if !room.HasPassword() {
		return nil
	}
	if !utils.CheckPassword(password, room.GetPasswordHash()) {
		return apperrors.ErrInvalidPassword
	}
	return nil
}

// List retrieves the caller's rooms
func (s *RoomService) List(ctx context.Context, ownerID string, limit, offset int) ([]*model.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rooms, err := s.roomRepo.ListByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list rooms", zap.Error(err))
		return nil, apperrors.ErrInternal
	}
	return rooms, nil
}

// Delete tears down a room: native media first, then live state, then the
// catalog row. Only the owner may delete.
func (s *RoomService) Delete(ctx context.Context, code, callerID string) error {
	room, err := s.roomRepo.GetByCode(ctx, code)
	if err != nil {
		if apperrors.Is(err, repository.ErrRoomNotFound) {
			return apperrors.ErrRoomNotFound
		}
		s.logger.Error("Failed to get room", zap.Error(err))
		return apperrors.ErrInternal
	}
	if room.OwnerID != callerID {
		return apperrors.ErrPermissionDenied
	}

	s.registry.CloseRoom(room.Code)

	if err := s.state.DeleteRoom(ctx, room.Code); err != nil {
		s.logger.Error("Failed to delete room state", zap.Error(err))
		return apperrors.ErrInternal
	}
	if err := s.roomRepo.Delete(ctx, room.ID); err != nil {
		s.logger.Error("Failed to delete room row", zap.Error(err))
		return apperrors.ErrInternal
	}

	s.logger.Info("Room deleted",
		zap.String("room_id", room.ID),
		zap.String("code", room.Code),
	)
	return nil
}
