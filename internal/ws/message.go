package ws

import (
	"encoding/json"
	"time"

	"github.com/go-demo/meet/internal/store"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> Server messages
	MessageTypeJoinRoom       MessageType = "join_room"
	MessageTypeNegotiateSDP   MessageType = "negotiate_sdp"
	MessageTypeNegotiateICE   MessageType = "negotiate_ice"
	MessageTypeDTLSHandshake  MessageType = "dtls_handshake"
	MessageTypeRenegotiate    MessageType = "renegotiate"
	MessageTypeProduce        MessageType = "produce"
	MessageTypeCloseProducer  MessageType = "close_producer"
	MessageTypeConsume        MessageType = "consume"
	MessageTypeConsumeBatch   MessageType = "consume_batch"
	MessageTypeResume         MessageType = "resume"
	MessageTypeResumeBatch    MessageType = "resume_batch"
	MessageTypePause          MessageType = "pause"
	MessageTypeRoomMembers    MessageType = "room_members"
	MessageTypeOpenTool       MessageType = "open_tool"
	MessageTypeStopPresenting MessageType = "stop_presenting"
	MessageTypePing           MessageType = "ping"

	// Server -> Client replies
	MessageTypeJoined        MessageType = "joined"
	MessageTypeSDPNegotiated MessageType = "sdp_negotiated"
	MessageTypeICENegotiated MessageType = "ice_negotiated"
	MessageTypeProduced      MessageType = "produced"
	MessageTypeConsumed      MessageType = "consumed"
	MessageTypeConsumedBatch MessageType = "consumed_batch"
	MessageTypeMemberList    MessageType = "member_list"
	MessageTypeToolTicket    MessageType = "tool_ticket"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
	MessageTypeAck           MessageType = "ack"

	// Server -> Client broadcasts
	MessageTypeNewUser     MessageType = "new_user"
	MessageTypeUserLeft    MessageType = "user_left"
	MessageTypeNewProduced MessageType = "new_produced"
	MessageTypeSlotChanged MessageType = "slot_changed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// JoinRoomPayload represents a join request
type JoinRoomPayload struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// JoinedPayload is the join confirmation sent to the joining client
type JoinedPayload struct {
	RoomID       string              `json:"room_id"`
	Title        string              `json:"title"`
	Members      []store.RosterEntry `json:"members"`
	MainProducer *store.SlotOccupant `json:"main_producer,omitempty"`
	SubProducer  *store.SlotOccupant `json:"sub_producer,omitempty"`
}

// NegotiateSDPPayload asks for the room router's codec capabilities
type NegotiateSDPPayload struct {
	RoomID string `json:"room_id"`
}

// SDPNegotiatedPayload carries the router capabilities
type SDPNegotiatedPayload struct {
	RoomID       string          `json:"room_id"`
	Capabilities json.RawMessage `json:"capabilities"`
}

// NegotiateICEPayload asks for a transport of the given direction
type NegotiateICEPayload struct {
	RoomID string `json:"room_id"`
	Type   string `json:"type"` // send | recv
}

// ICENegotiatedPayload carries the server-side transport parameters
type ICENegotiatedPayload struct {
	RoomID      string          `json:"room_id"`
	Type        string          `json:"type"`
	TransportID string          `json:"transport_id"`
	Description json.RawMessage `json:"description"`
}

// DTLSHandshakePayload completes a transport handshake with the client's
// remote description. The same payload shape serves renegotiation.
type DTLSHandshakePayload struct {
	RoomID      string          `json:"room_id"`
	TransportID string          `json:"transport_id"`
	Type        string          `json:"type"` // send | recv
	Description json.RawMessage `json:"description"`
}

// ProducePayload announces an incoming media stream
type ProducePayload struct {
	RoomID      string `json:"room_id"`
	TransportID string `json:"transport_id"`
	Kind        string `json:"kind"` // audio | video
	Type        string `json:"type"` // mic | cam | screen_video | screen_audio
}

// ProducedPayload confirms a producer to its owner
type ProducedPayload struct {
	ProducerID string `json:"producer_id"`
	Kind       string `json:"kind"`
	Type       string `json:"type"`
}

// CloseProducerPayload stops one of the caller's own producers
type CloseProducerPayload struct {
	RoomID     string `json:"room_id"`
	ProducerID string `json:"producer_id"`
}

// ConsumePayload requests a forwarded copy of a producer
type ConsumePayload struct {
	RoomID      string `json:"room_id"`
	TransportID string `json:"transport_id"`
	ProducerID  string `json:"producer_id"`
	Status      string `json:"status,omitempty"` // user | main
}

// ConsumedPayload describes one created consumer
type ConsumedPayload struct {
	ConsumerID  string          `json:"consumer_id"`
	ProducerID  string          `json:"producer_id"`
	Kind        string          `json:"kind"`
	Description json.RawMessage `json:"description"`
}

// ConsumeBatchPayload requests consumers for several producers at once,
// typically the whole roster right after joining
type ConsumeBatchPayload struct {
	RoomID      string        `json:"room_id"`
	TransportID string        `json:"transport_id"`
	Items       []ConsumeItem `json:"items"`
}

// ConsumeItem is one entry of a batch consume
type ConsumeItem struct {
	ProducerID string `json:"producer_id"`
	Status     string `json:"status,omitempty"`
}

// ConsumedBatchPayload carries the consumers created for a batch. Items
// that failed are reported alongside the successes.
type ConsumedBatchPayload struct {
	Consumers []ConsumedPayload `json:"consumers"`
	Failed    []ConsumeFailure  `json:"failed,omitempty"`
}

// ConsumeFailure reports one producer that could not be consumed
type ConsumeFailure struct {
	ProducerID string `json:"producer_id"`
	Message    string `json:"message"`
}

// ResumePayload starts media flow on one consumer
type ResumePayload struct {
	ConsumerID string `json:"consumer_id"`
}

// ResumeBatchPayload starts media flow on several consumers
type ResumeBatchPayload struct {
	ConsumerIDs []string `json:"consumer_ids"`
}

// RoomMembersPayload asks for the current roster
type RoomMembersPayload struct {
	RoomID string `json:"room_id"`
}

// MemberListPayload carries the roster with each member's producers and
// the current presenter slots, so a client can resync spotlight state it
// may have missed.
type MemberListPayload struct {
	RoomID       string              `json:"room_id"`
	Members      []store.RosterEntry `json:"members"`
	MainProducer *store.SlotOccupant `json:"main_producer,omitempty"`
	SubProducer  *store.SlotOccupant `json:"sub_producer,omitempty"`
}

// OpenToolPayload claims the main presenter slot for an external tool
type OpenToolPayload struct {
	RoomID string `json:"room_id"`
	Tool   string `json:"tool"`
}

// ToolTicketPayload carries the hand-off credentials to the opener
type ToolTicketPayload struct {
	Tool      string `json:"tool"`
	Ticket    string `json:"ticket"`
	Secret    string `json:"secret"`
	ExpiresAt string `json:"expires_at"`
}

// StopPresentingPayload releases a presenter slot held by the caller
type StopPresentingPayload struct {
	RoomID string `json:"room_id"`
	Slot   string `json:"slot"` // main | sub
}

// NewUserPayload announces a new member to the room
type NewUserPayload struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	IsGuest  bool   `json:"is_guest"`
}

// UserLeftPayload announces a departure
type UserLeftPayload struct {
	UserID string `json:"user_id"`
}

// NewProducedPayload announces a new producer to the room
type NewProducedPayload struct {
	UserID     string `json:"user_id"`
	ProducerID string `json:"producer_id"`
	Kind       string `json:"kind"`
	Type       string `json:"type"`
}

// SlotChangedPayload announces a presenter slot change. A nil occupant
// means the slot was released.
type SlotChangedPayload struct {
	RoomID   string              `json:"room_id"`
	Slot     string              `json:"slot"`
	Occupant *store.SlotOccupant `json:"occupant,omitempty"`
}

// ErrorPayload represents error message
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AckPayload represents acknowledgement
type AckPayload struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
}

// NewMessage creates a new message
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now(),
	}, nil
}

// NewErrorMessage creates a new error message
func NewErrorMessage(code int, message string) (*Message, error) {
	return NewMessage(MessageTypeError, &ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// ParsePayload parses message payload into the given type
func (m *Message) ParsePayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
