package store

import "errors"

// Sentinel errors. The signaling and HTTP layers map these onto their own
// taxonomies; callers must be able to tell capacity, contention and
// malformed-state failures apart because only contention is retryable.
var (
	ErrRoomNotFound      = errors.New("room not found in store")
	ErrRoomFull          = errors.New("room is at capacity")
	ErrMalformedState    = errors.New("stored room state is malformed")
	ErrTooMuchContention = errors.New("optimistic retries exhausted")
	ErrSlotOccupied      = errors.New("producer slot is occupied")
	ErrSocketNotFound    = errors.New("socket not found in index")
	ErrTransportNotFound = errors.New("transport record not found")
	ErrProducerNotFound  = errors.New("producer record not found")

	// Ticket verification failure reasons, one per outcome of the atomic
	// consume script.
	ErrNoProducer     = errors.New("NO_PRODUCER")
	ErrNoTicket       = errors.New("NO_TICKET")
	ErrTicketMismatch = errors.New("TICKET_MISMATCH")
	ErrUserMismatch   = errors.New("USER_MISMATCH")
	ErrToolMismatch   = errors.New("TOOL_MISMATCH")
)

// Slot identifies one of the two presenter slots of a room.
type Slot string

const (
	SlotMain Slot = "main"
	SlotSub  Slot = "sub"
)

// RoomInfo is the decoded room:{id}:info hash.
type RoomInfo struct {
	Code                string        `json:"code"`
	Title               string        `json:"title"`
	OwnerID             string        `json:"owner_id"`
	MaxParticipants     int           `json:"max_participants"`
	CurrentParticipants int           `json:"current_participants"`
	PasswordHash        string        `json:"-"`
	MainProducer        *SlotOccupant `json:"main_producer,omitempty"`
	SubProducer         *SlotOccupant `json:"sub_producer,omitempty"`
	HasTicket           bool          `json:"has_ticket,omitempty"`
}

// SlotOccupant describes who holds a presenter slot: either a media
// producer (screen share) or a tool taking over the floor.
type SlotOccupant struct {
	UserID     string `json:"user_id"`
	ProducerID string `json:"producer_id,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Type       string `json:"type,omitempty"`
	Tool       string `json:"tool,omitempty"`
}

// Member is one entry of the room roster, keyed by user_id.
type Member struct {
	SocketID string `json:"socket_id"`
	IP       string `json:"ip"`
	Nickname string `json:"nickname"`
	IsGuest  bool   `json:"is_guest"`
}

// SocketEntry resolves a socket to its identity on disconnect, without
// trusting client-supplied state.
type SocketEntry struct {
	UserID string `json:"user_id"`
	RoomID string `json:"room_id"`
	IP     string `json:"ip"`
}

// TransportRecord mirrors a native transport for cross-process lookup and
// ownership checks.
type TransportRecord struct {
	RoomID   string `json:"room_id"`
	SocketID string `json:"socket_id"`
	UserID   string `json:"user_id"`
	Type     string `json:"type"` // send | recv
}

// ProducerRecord mirrors a native producer, keyed by media kind. At most
// one producer per (user, kind) exists; a new one supersedes.
type ProducerRecord struct {
	ProducerID string `json:"producer_id"`
	Type       string `json:"type"`   // mic | cam | screen_video | screen_audio
	Status     string `json:"status"` // on | off
}

// ConsumerRecord mirrors a native consumer.
type ConsumerRecord struct {
	TransportID string `json:"transport_id"`
	ProducerID  string `json:"producer_id"`
	Status      string `json:"status"` // user | main
}

// RosterEntry is a roster member joined with their current producers, for
// presentation to clients.
type RosterEntry struct {
	UserID    string                    `json:"user_id"`
	Member    Member                    `json:"member"`
	Producers map[string]ProducerRecord `json:"producers"` // audio|video -> record
}
