package store

import "fmt"

// Key layout. Everything the signaling layer shares across server
// instances lives under these keys; in-process SFU objects only mirror
// into them.
//
//	room:{room_id}:info      hash  code, title, owner_id, max_participants,
//	                               current_participants, password_hash?,
//	                               main_producer?, sub_producer?, tool_ticket?
//	room:{room_id}:members   hash  user_id -> Member JSON
//	room:sockets             hash  socket_id -> SocketEntry JSON
//	sfu:transports:{id}      hash  room_id, socket_id, user_id, type
//	sfu:producers:{room}:{user}  hash  audio|video -> ProducerRecord JSON
//	sfu:consumers:{room}:{user}  hash  consumer_id -> ConsumerRecord JSON
const (
	socketIndexKey = "room:sockets"
)

func roomInfoKey(roomID string) string {
	return fmt.Sprintf("room:%s:info", roomID)
}

func roomMembersKey(roomID string) string {
	return fmt.Sprintf("room:%s:members", roomID)
}

func transportKey(transportID string) string {
	return fmt.Sprintf("sfu:transports:%s", transportID)
}

func producersKey(roomID, userID string) string {
	return fmt.Sprintf("sfu:producers:%s:%s", roomID, userID)
}

func consumersKey(roomID, userID string) string {
	return fmt.Sprintf("sfu:consumers:%s:%s", roomID, userID)
}

// Field names inside room:{id}:info.
const (
	fieldCode                = "code"
	fieldTitle               = "title"
	fieldOwnerID             = "owner_id"
	fieldMaxParticipants     = "max_participants"
	fieldCurrentParticipants = "current_participants"
	fieldPasswordHash        = "password_hash"
	fieldMainProducer        = "main_producer"
	fieldSubProducer         = "sub_producer"
	fieldToolTicket          = "tool_ticket"
)
