package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/go-demo/meet/internal/pkg/errors"
	"github.com/go-demo/meet/internal/pkg/utils"
	"github.com/go-demo/meet/internal/service"
	"github.com/go-demo/meet/internal/sfu"
	"github.com/go-demo/meet/internal/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

// BroadcastMessage represents a message to broadcast to a room
type BroadcastMessage struct {
	RoomID  string
	Message *Message
	Exclude string // socket ID to skip, empty for none
}

// fanoutEnvelope is the cross-instance form of a broadcast published on
// Redis. Origin lets an instance skip its own publications.
type fanoutEnvelope struct {
	Origin  string          `json:"origin"`
	RoomID  string          `json:"room_id"`
	Exclude string          `json:"exclude,omitempty"`
	Message json.RawMessage `json:"message"`
}

// Hub maintains the set of active signaling clients, routes their
// requests to the room state, registry and services, and fans broadcasts
// out to room members on every instance.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients by room: roomID -> clients
	rooms map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast messages to room
	broadcast chan *BroadcastMessage

	// Mutex for thread-safe access
	mu sync.RWMutex

	roomService   *service.RoomService
	ticketService *service.TicketService
	state         *store.RoomStateStore
	registry      *sfu.Registry

	// Redis for Pub/Sub (horizontal scaling)
	redis      *redis.Client
	instanceID string

	logger *zap.Logger
}

// NewHub creates a new Hub
func NewHub(
	roomService *service.RoomService,
	ticketService *service.TicketService,
	state *store.RoomStateStore,
	registry *sfu.Registry,
	redisClient *redis.Client,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		rooms:         make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *BroadcastMessage, 256),
		roomService:   roomService,
		ticketService: ticketService,
		state:         state,
		registry:      registry,
		redis:         redisClient,
		instanceID:    uuid.New().String(),
		logger:        logger,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	go h.subscribeRedis()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliverToRoom(msg.RoomID, msg.Message, msg.Exclude)
			h.publishToRedis(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client connected",
		zap.String("socket_id", client.socketID),
		zap.String("user_id", client.userID),
		zap.Int("total_clients", total),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)

	roomID := client.RoomID()
	if roomID != "" {
		if roomClients, ok := h.rooms[roomID]; ok {
			delete(roomClients, client)
			if len(roomClients) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()

	if roomID != "" {
		go h.teardownMember(client, roomID)
	}

	client.Close()

	h.logger.Info("Client disconnected",
		zap.String("socket_id", client.socketID),
		zap.String("user_id", client.userID),
	)
}

// teardownMember cleans up everything a departed socket left behind:
// native media, presenter slots, mirror records, roster membership. A
// socket superseded by a rejoin only cleans its own transports and index
// entry; the member and their slots survive.
func (h *Hub) teardownMember(client *Client, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	h.registry.CloseSocket(client.socketID)

	members, err := h.state.GetMembers(ctx, roomID)
	if err != nil {
		// Without the roster this socket cannot be told apart from a
		// rejoined one; only the stale-safe index cleanup may proceed.
		h.logger.Error("Failed to read members on disconnect",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		if err := h.state.LeaveRoom(ctx, roomID, client.socketID, client.userID); err != nil {
			h.logger.Error("Failed to leave room on disconnect", zap.Error(err))
		}
		return
	}
	if m, ok := members[client.userID]; ok && m.SocketID != client.socketID {
		// Superseded by a newer connection of the same user.
		if err := h.state.LeaveRoom(ctx, roomID, client.socketID, client.userID); err != nil {
			h.logger.Error("Failed to drop stale socket index", zap.Error(err))
		}
		return
	}

	released, err := h.state.ReleaseSlotsOwnedBy(ctx, roomID, client.userID)
	if err != nil {
		h.logger.Error("Failed to release slots on disconnect",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
	}
	for _, slot := range released {
		h.broadcastSlotChanged(roomID, slot, nil, "")
	}

	if err := h.state.DeleteMemberMedia(ctx, roomID, client.userID); err != nil {
		h.logger.Error("Failed to delete media records on disconnect", zap.Error(err))
	}
	if err := h.state.LeaveRoom(ctx, roomID, client.socketID, client.userID); err != nil {
		h.logger.Error("Failed to leave room on disconnect", zap.Error(err))
	}

	leftMsg, _ := NewMessage(MessageTypeUserLeft, &UserLeftPayload{UserID: client.userID})
	h.broadcast <- &BroadcastMessage{RoomID: roomID, Message: leftMsg}
}

// JoinRoom admits a client into a room: password check against the
// catalog, capacity-checked roster write, router warm-up, then the join
// snapshot and the new-user announcement.
func (h *Hub) JoinRoom(client *Client, payload JoinRoomPayload, requestID string) {
	if client.RoomID() != "" {
		client.sendError(409, "already joined a room")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	room, err := h.roomService.GetByCode(ctx, payload.RoomID)
	if err != nil {
		h.sendAppError(client, err)
		return
	}
	if err := h.roomService.CheckPassword(room, payload.Password); err != nil {
		h.sendAppError(client, err)
		return
	}

	nickname := client.nickname
	if payload.Nickname != "" {
		nickname = payload.Nickname
	}
	member := store.Member{
		SocketID: client.socketID,
		IP:       client.ip,
		Nickname: nickname,
		IsGuest:  client.isGuest,
	}
	if err := h.state.JoinRoom(ctx, room.Code, client.userID, member); err != nil {
		h.sendStoreError(client, err)
		return
	}

	if _, err := h.registry.GetOrCreateRouter(ctx, room.Code); err != nil {
		h.logger.Error("Failed to create router",
			zap.String("room_id", room.Code),
			zap.Error(err),
		)
		if lerr := h.state.LeaveRoom(ctx, room.Code, client.socketID, client.userID); lerr != nil {
			h.logger.Error("Failed to roll back join", zap.Error(lerr))
		}
		client.sendError(500, "failed to prepare media routing")
		return
	}

	h.mu.Lock()
	if h.rooms[room.Code] == nil {
		h.rooms[room.Code] = make(map[*Client]bool)
	}
	h.rooms[room.Code][client] = true
	h.mu.Unlock()
	client.setRoomID(room.Code)

	roster, err := h.state.GetRoster(ctx, room.Code)
	if err != nil {
		h.logger.Error("Failed to read roster", zap.Error(err))
	}
	info, err := h.state.GetRoomInfo(ctx, room.Code)
	if err != nil {
		h.logger.Error("Failed to read room info", zap.Error(err))
		info = &store.RoomInfo{}
	}

	joinedMsg, _ := NewMessage(MessageTypeJoined, &JoinedPayload{
		RoomID:       room.Code,
		Title:        room.Title,
		Members:      roster,
		MainProducer: info.MainProducer,
		SubProducer:  info.SubProducer,
	})
	client.SendMessage(joinedMsg)

	newUserMsg, _ := NewMessage(MessageTypeNewUser, &NewUserPayload{
		UserID:   client.userID,
		Nickname: nickname,
		IsGuest:  client.isGuest,
	})
	h.broadcast <- &BroadcastMessage{
		RoomID:  room.Code,
		Message: newUserMsg,
		Exclude: client.socketID,
	}

	h.logger.Info("Client joined room",
		zap.String("socket_id", client.socketID),
		zap.String("user_id", client.userID),
		zap.String("room_id", room.Code),
	)
}

// NegotiateSDP returns the room router's codec capabilities
func (h *Hub) NegotiateSDP(client *Client, payload NegotiateSDPPayload) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}

	caps, err := h.registry.RouterCapabilities(roomID)
	if err != nil {
		client.sendError(404, "no live router for room")
		return
	}

	msg, _ := NewMessage(MessageTypeSDPNegotiated, &SDPNegotiatedPayload{
		RoomID:       roomID,
		Capabilities: caps,
	})
	client.SendMessage(msg)
}

// NegotiateICE creates a transport of the requested direction and returns
// the server-side parameters the client needs to connect
func (h *Hub) NegotiateICE(client *Client, payload NegotiateICEPayload) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}
	typ := sfu.TransportType(payload.Type)
	if typ != sfu.TransportSend && typ != sfu.TransportRecv {
		client.sendError(400, "transport type must be send or recv")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	params, err := h.registry.CreateTransport(ctx, sfu.CreateTransportInput{
		RoomID:   roomID,
		SocketID: client.socketID,
		UserID:   client.userID,
		Type:     typ,
	})
	if err != nil {
		h.sendRegistryError(client, err)
		return
	}

	msg, _ := NewMessage(MessageTypeICENegotiated, &ICENegotiatedPayload{
		RoomID:      roomID,
		Type:        payload.Type,
		TransportID: params.TransportID,
		Description: params.Description,
	})
	client.SendMessage(msg)
}

// DTLSHandshake completes or renegotiates a transport handshake
func (h *Hub) DTLSHandshake(client *Client, payload DTLSHandshakePayload, requestID string) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	err := h.registry.ConnectTransport(ctx, sfu.ConnectTransportInput{
		TransportID:    payload.TransportID,
		RoomID:         roomID,
		SocketID:       client.socketID,
		UserID:         client.userID,
		Type:           sfu.TransportType(payload.Type),
		DTLSParameters: payload.Description,
	})
	if err != nil {
		h.sendRegistryError(client, err)
		return
	}

	client.sendAck(requestID)
}

// Produce binds an incoming stream and announces it to the room. Screen
// shares additionally claim the sub presenter slot.
func (h *Hub) Produce(client *Client, payload ProducePayload) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}
	kind := sfu.Kind(payload.Kind)
	if kind != sfu.KindAudio && kind != sfu.KindVideo {
		client.sendError(400, "kind must be audio or video")
		return
	}
	switch payload.Type {
	case sfu.ProducerTypeMic, sfu.ProducerTypeCam, sfu.ProducerTypeScreenVideo, sfu.ProducerTypeScreenAudio:
	default:
		client.sendError(400, "unknown producer type")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	producerID, err := h.registry.CreateProducer(ctx, sfu.CreateProducerInput{
		TransportID: payload.TransportID,
		RoomID:      roomID,
		SocketID:    client.socketID,
		UserID:      client.userID,
		Kind:        kind,
		Type:        payload.Type,
	})
	if err != nil {
		h.sendRegistryError(client, err)
		return
	}

	if payload.Type == sfu.ProducerTypeScreenVideo {
		occupant := store.SlotOccupant{
			UserID:     client.userID,
			ProducerID: producerID,
			Kind:       payload.Kind,
			Type:       payload.Type,
		}
		if err := h.state.ClaimSlot(ctx, roomID, store.SlotSub, occupant); err != nil {
			if cerr := h.registry.CloseProducer(ctx, producerID, client.userID); cerr != nil {
				h.logger.Warn("Failed to close producer after slot conflict", zap.Error(cerr))
			}
			h.sendStoreError(client, err)
			return
		}
		h.broadcastSlotChanged(roomID, store.SlotSub, &occupant, "")
	}

	msg, _ := NewMessage(MessageTypeProduced, &ProducedPayload{
		ProducerID: producerID,
		Kind:       payload.Kind,
		Type:       payload.Type,
	})
	client.SendMessage(msg)

	announce, _ := NewMessage(MessageTypeNewProduced, &NewProducedPayload{
		UserID:     client.userID,
		ProducerID: producerID,
		Kind:       payload.Kind,
		Type:       payload.Type,
	})
	h.broadcast <- &BroadcastMessage{
		RoomID:  roomID,
		Message: announce,
		Exclude: client.socketID,
	}
}

// CloseProducer stops one of the caller's producers, releasing any
// presenter slot it held
func (h *Hub) CloseProducer(client *Client, payload CloseProducerPayload, requestID string) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := h.registry.CloseProducer(ctx, payload.ProducerID, client.userID); err != nil {
		h.sendRegistryError(client, err)
		return
	}

	info, err := h.state.GetRoomInfo(ctx, roomID)
	if err == nil {
		if info.SubProducer != nil && info.SubProducer.ProducerID == payload.ProducerID {
			if err := h.state.ReleaseSlot(ctx, roomID, store.SlotSub); err != nil {
				h.logger.Warn("Failed to release sub slot", zap.Error(err))
			} else {
				h.broadcastSlotChanged(roomID, store.SlotSub, nil, "")
			}
		}
		if info.MainProducer != nil && info.MainProducer.ProducerID == payload.ProducerID {
			if err := h.state.ReleaseSlot(ctx, roomID, store.SlotMain); err != nil {
				h.logger.Warn("Failed to release main slot", zap.Error(err))
			} else {
				h.broadcastSlotChanged(roomID, store.SlotMain, nil, "")
			}
		}
	}

	client.sendAck(requestID)
}

// Consume attaches a paused forwarded copy of a producer
func (h *Hub) Consume(client *Client, payload ConsumePayload) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	info, err := h.createConsumer(ctx, client, roomID, payload.TransportID, ConsumeItem{
		ProducerID: payload.ProducerID,
		Status:     payload.Status,
	})
	if err != nil {
		h.sendRegistryError(client, err)
		return
	}

	msg, _ := NewMessage(MessageTypeConsumed, info)
	client.SendMessage(msg)
}

// ConsumeBatch attaches consumers for several producers in one round
// trip. Failures are reported per item; one bad producer does not void
// the rest.
func (h *Hub) ConsumeBatch(client *Client, payload ConsumeBatchPayload) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	result := ConsumedBatchPayload{}
	for _, item := range payload.Items {
		info, err := h.createConsumer(ctx, client, roomID, payload.TransportID, item)
		if err != nil {
			result.Failed = append(result.Failed, ConsumeFailure{
				ProducerID: item.ProducerID,
				Message:    err.Error(),
			})
			continue
		}
		result.Consumers = append(result.Consumers, *info)
	}

	msg, _ := NewMessage(MessageTypeConsumedBatch, &result)
	client.SendMessage(msg)
}

func (h *Hub) createConsumer(ctx context.Context, client *Client, roomID, transportID string, item ConsumeItem) (*ConsumedPayload, error) {
	status := item.Status
	if status == "" {
		status = "user"
	}
	info, err := h.registry.CreateConsumer(ctx, sfu.CreateConsumerInput{
		TransportID: transportID,
		RoomID:      roomID,
		SocketID:    client.socketID,
		UserID:      client.userID,
		ProducerID:  item.ProducerID,
		Status:      status,
	})
	if err != nil {
		return nil, err
	}
	return &ConsumedPayload{
		ConsumerID:  info.ConsumerID,
		ProducerID:  info.ProducerID,
		Kind:        string(info.Kind),
		Description: info.Parameters,
	}, nil
}

// Resume starts media flow on the given consumers
func (h *Hub) Resume(client *Client, consumerIDs []string, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	for _, id := range consumerIDs {
		if err := h.registry.ResumeConsumer(ctx, id, client.userID); err != nil {
			h.sendRegistryError(client, err)
			return
		}
	}
	client.sendAck(requestID)
}

// Pause stops media flow on a consumer
func (h *Hub) Pause(client *Client, consumerID string, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := h.registry.PauseConsumer(ctx, consumerID, client.userID); err != nil {
		h.sendRegistryError(client, err)
		return
	}
	client.sendAck(requestID)
}

// RoomMembers returns the current roster with each member's producers
func (h *Hub) RoomMembers(client *Client, payload RoomMembersPayload) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	roster, err := h.state.GetRoster(ctx, roomID)
	if err != nil {
		h.logger.Error("Failed to read roster", zap.Error(err))
		client.sendError(500, "failed to read roster")
		return
	}
	info, err := h.state.GetRoomInfo(ctx, roomID)
	if err != nil {
		h.logger.Error("Failed to read room info", zap.Error(err))
		info = &store.RoomInfo{}
	}

	msg, _ := NewMessage(MessageTypeMemberList, &MemberListPayload{
		RoomID:       roomID,
		Members:      roster,
		MainProducer: info.MainProducer,
		SubProducer:  info.SubProducer,
	})
	client.SendMessage(msg)
}

// OpenTool claims the main presenter slot for an external tool and hands
// the opener a single-use ticket for the tool backend
func (h *Hub) OpenTool(client *Client, payload OpenToolPayload) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}
	v := utils.NewValidator()
	if !v.ValidateTool("tool", payload.Tool) {
		client.sendError(400, "unknown tool")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	grant, err := h.ticketService.Issue(ctx, &service.IssueInput{
		RoomID:   roomID,
		UserID:   client.userID,
		Tool:     payload.Tool,
		SocketID: client.socketID,
	})
	if err != nil {
		h.sendAppError(client, err)
		return
	}

	msg, _ := NewMessage(MessageTypeToolTicket, &ToolTicketPayload{
		Tool:      grant.Tool,
		Ticket:    grant.Ticket,
		Secret:    grant.Secret,
		ExpiresAt: grant.ExpiresAt.Format(time.RFC3339),
	})
	client.SendMessage(msg)

	occupant := &store.SlotOccupant{UserID: client.userID, Tool: payload.Tool}
	h.broadcastSlotChanged(roomID, store.SlotMain, occupant, "")
}

// StopPresenting releases a presenter slot held by the caller
func (h *Hub) StopPresenting(client *Client, payload StopPresentingPayload, requestID string) {
	roomID, ok := h.requireRoom(client, payload.RoomID)
	if !ok {
		return
	}
	slot := store.Slot(payload.Slot)
	if slot != store.SlotMain && slot != store.SlotSub {
		client.sendError(400, "slot must be main or sub")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	info, err := h.state.GetRoomInfo(ctx, roomID)
	if err != nil {
		h.sendStoreError(client, err)
		return
	}
	occupant := info.MainProducer
	if slot == store.SlotSub {
		occupant = info.SubProducer
	}
	if occupant == nil {
		client.sendAck(requestID)
		return
	}
	if occupant.UserID != client.userID {
		client.sendError(403, "slot is held by another user")
		return
	}

	if err := h.state.ReleaseSlot(ctx, roomID, slot); err != nil {
		h.sendStoreError(client, err)
		return
	}

	client.sendAck(requestID)
	h.broadcastSlotChanged(roomID, slot, nil, "")
}

// requireRoom checks the client is joined and that the payload addresses
// that same room. Payload room IDs are never trusted on their own.
func (h *Hub) requireRoom(client *Client, roomID string) (string, bool) {
	joined := client.RoomID()
	if joined == "" {
		client.sendError(409, "join a room first")
		return "", false
	}
	if roomID != "" && roomID != joined {
		client.sendError(403, "not a member of that room")
		return "", false
	}
	return joined, true
}

func (h *Hub) broadcastSlotChanged(roomID string, slot store.Slot, occupant *store.SlotOccupant, exclude string) {
	msg, _ := NewMessage(MessageTypeSlotChanged, &SlotChangedPayload{
		RoomID:   roomID,
		Slot:     string(slot),
		Occupant: occupant,
	})
	h.broadcast <- &BroadcastMessage{RoomID: roomID, Message: msg, Exclude: exclude}
}

func (h *Hub) deliverToRoom(roomID string, msg *Message, exclude string) {
	// Joins and disconnects mutate the room map concurrently; iterate a
	// snapshot, never the live map.
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		if exclude != "" && client.socketID == exclude {
			continue
		}
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.SendMessage(msg)
	}
}

func (h *Hub) sendAppError(client *Client, err error) {
	client.sendError(apperrors.GetHTTPStatus(err), apperrors.GetMessage(err))
}

func (h *Hub) sendStoreError(client *Client, err error) {
	switch {
	case apperrors.Is(err, store.ErrRoomFull):
		h.sendAppError(client, apperrors.ErrRoomFull)
	case apperrors.Is(err, store.ErrRoomNotFound):
		h.sendAppError(client, apperrors.ErrRoomNotFound)
	case apperrors.Is(err, store.ErrSlotOccupied):
		h.sendAppError(client, apperrors.ErrSlotOccupied)
	case apperrors.Is(err, store.ErrTooMuchContention):
		h.sendAppError(client, apperrors.ErrContention)
	default:
		h.logger.Error("Room state operation failed", zap.Error(err))
		h.sendAppError(client, apperrors.ErrInternal)
	}
}

func (h *Hub) sendRegistryError(client *Client, err error) {
	switch {
	case apperrors.Is(err, sfu.ErrRouterNotFound):
		client.sendError(404, "no live router for room")
	case apperrors.Is(err, sfu.ErrUnknownTransport):
		client.sendError(404, "unknown transport")
	case apperrors.Is(err, sfu.ErrUnknownProducer):
		client.sendError(404, "unknown producer")
	case apperrors.Is(err, sfu.ErrUnknownConsumer):
		client.sendError(404, "unknown consumer")
	case apperrors.Is(err, sfu.ErrNotOwner):
		h.sendAppError(client, apperrors.ErrNotOwned)
	case apperrors.Is(err, sfu.ErrAlreadyConsuming):
		client.sendError(409, "already consuming this producer")
	default:
		h.logger.Error("Media operation failed", zap.Error(err))
		h.sendAppError(client, apperrors.ErrInternal)
	}
}

// Redis Pub/Sub for horizontal scaling. Each broadcast is published once
// under the room's channel; other instances deliver it to their local
// members.
func (h *Hub) publishToRedis(bm *BroadcastMessage) {
	if h.redis == nil {
		return
	}

	raw, err := json.Marshal(bm.Message)
	if err != nil {
		return
	}
	data, err := json.Marshal(&fanoutEnvelope{
		Origin:  h.instanceID,
		RoomID:  bm.RoomID,
		Exclude: bm.Exclude,
		Message: raw,
	})
	if err != nil {
		return
	}

	ctx := context.Background()
	h.redis.Publish(ctx, "signal:"+bm.RoomID, data)
}

func (h *Hub) subscribeRedis() {
	if h.redis == nil {
		return
	}

	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "signal:*")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var envelope fanoutEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			continue
		}
		if envelope.Origin == h.instanceID {
			continue
		}

		var wsMsg Message
		if err := json.Unmarshal(envelope.Message, &wsMsg); err != nil {
			continue
		}
		h.deliverToRoom(envelope.RoomID, &wsMsg, envelope.Exclude)
	}
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]int{
		"total_clients": len(h.clients),
		"active_rooms":  len(h.rooms),
	}
}
