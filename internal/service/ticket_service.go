package service

import (
	"context"
	"time"

	apperrors "github.com/go-demo/meet/internal/pkg/errors"
	"github.com/go-demo/meet/internal/pkg/utils"
	"github.com/go-demo/meet/internal/store"
	"go.uber.org/zap"
)

// TicketService hands the presenter floor to an external tool. Issuing a
// ticket claims the main slot and stores a single-use companion secret;
// the tool backend redeems both through Verify before serving its session.
type TicketService struct {
	state   *store.RoomStateStore
	tickets *utils.TicketManager
	logger  *zap.Logger
}

func NewTicketService(state *store.RoomStateStore, tickets *utils.TicketManager, logger *zap.Logger) *TicketService {
	return &TicketService{
		state:   state,
		tickets: tickets,
		logger:  logger,
	}
}

// IssueInput identifies who opens which tool in which room.
type IssueInput struct {
	RoomID   string
	UserID   string
	Tool     string
	SocketID string
}

// TicketGrant is returned to the opening client, which forwards both
// values to the tool backend.
type TicketGrant struct {
	Ticket    string
	Secret    string
	Tool      string
	ExpiresAt time.Time
}

// Issue claims the room's main presenter slot for a tool and mints the
// hand-off ticket. The slot claim and the secret are both room state, so
// a second caller loses with a slot conflict, never a half-issued ticket.
func (s *TicketService) Issue(ctx context.Context, input *IssueInput) (*TicketGrant, error) {
	occupant := store.SlotOccupant{
		UserID: input.UserID,
		Tool:   input.Tool,
	}
	if err := s.state.ClaimSlot(ctx, input.RoomID, store.SlotMain, occupant); err != nil {
		switch {
		case apperrors.Is(err, store.ErrSlotOccupied):
			return nil, apperrors.ErrSlotOccupied
		case apperrors.Is(err, store.ErrRoomNotFound):
			return nil, apperrors.ErrRoomNotFound
		case apperrors.Is(err, store.ErrTooMuchContention):
			return nil, apperrors.ErrContention
		}
		s.logger.Error("Failed to claim main slot", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	ticket, expiresAt, err := s.tickets.Mint(input.UserID, input.RoomID, input.Tool, input.SocketID)
	if err != nil {
		s.logger.Error("Failed to mint ticket", zap.Error(err))
		s.releaseSlot(ctx, input.RoomID)
		return nil, apperrors.ErrInternal
	}

	secret, err := utils.GenerateTicketSecret()
	if err != nil {
		s.logger.Error("Failed to generate ticket secret", zap.Error(err))
		s.releaseSlot(ctx, input.RoomID)
		return nil, apperrors.ErrInternal
	}
	if err := s.state.PutTicket(ctx, input.RoomID, secret); err != nil {
		s.logger.Error("Failed to store ticket secret", zap.Error(err))
		s.releaseSlot(ctx, input.RoomID)
		return nil, apperrors.ErrInternal
	}

	s.logger.Info("Tool ticket issued",
		zap.String("room_id", input.RoomID),
		zap.String("user_id", input.UserID),
		zap.String("tool", input.Tool),
	)

	return &TicketGrant{
		Ticket:    ticket,
		Secret:    secret,
		Tool:      input.Tool,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyResult tells the tool backend who redeemed the ticket.
type VerifyResult struct {
	RoomID   string
	UserID   string
	Tool     string
	SocketID string
}

// Verify checks the signed ticket offline, then consumes its companion
// secret atomically. A replayed secret fails with a missing-ticket error
// even if the token itself is still within its lifetime.
func (s *TicketService) Verify(ctx context.Context, ticket, secret string) (*VerifyResult, error) {
	claims, err := s.tickets.Verify(ticket)
	if err != nil {
		if apperrors.Is(err, utils.ErrExpiredTicket) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	err = s.state.VerifyAndConsumeTicket(ctx, claims.RoomID, claims.Subject, claims.Tool, secret)
	if err != nil {
		switch {
		case apperrors.Is(err, store.ErrNoProducer):
			return nil, apperrors.ErrTicketNoProducer
		case apperrors.Is(err, store.ErrNoTicket):
			return nil, apperrors.ErrTicketNoTicket
		case apperrors.Is(err, store.ErrTicketMismatch):
			return nil, apperrors.ErrTicketMismatch
		case apperrors.Is(err, store.ErrUserMismatch):
			return nil, apperrors.ErrTicketUser
		case apperrors.Is(err, store.ErrToolMismatch):
			return nil, apperrors.ErrTicketTool
		}
		s.logger.Error("Ticket consume failed", zap.Error(err))
		return nil, apperrors.ErrInternal
	}

	s.logger.Info("Tool ticket redeemed",
		zap.String("room_id", claims.RoomID),
		zap.String("user_id", claims.Subject),
		zap.String("tool", claims.Tool),
	)

	return &VerifyResult{
		RoomID:   claims.RoomID,
		UserID:   claims.Subject,
		Tool:     claims.Tool,
		SocketID: claims.SocketID,
	}, nil
}

// releaseSlot undoes a claim after a failed issue.
func (s *TicketService) releaseSlot(ctx context.Context, roomID string) {
	if err := s.state.ReleaseSlot(ctx, roomID, store.SlotMain); err != nil {
		s.logger.Warn("Failed to release main slot", zap.Error(err))
	}
}
