package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// consumeTicketScript performs the whole verify-and-consume as one
// indivisible step against the room-info hash: decode the main-producer
// occupant, compare the stored secret and the presented identity, and
// delete the ticket field on success. A replay with the same secret then
// fails with NO_TICKET, which makes every ticket strictly single-use.
//
// KEYS[1] = room:{id}:info
// ARGV[1] = presented secret, ARGV[2] = user_id, ARGV[3] = tool
var consumeTicketScript = redis.NewScript(`
local main = redis.call('HGET', KEYS[1], 'main_producer')
if not main then
  return 'NO_PRODUCER'
end
local ok, occupant = pcall(cjson.decode, main)
if not ok then
  return 'NO_PRODUCER'
end
local ticket = redis.call('HGET', KEYS[1], 'tool_ticket')
if not ticket then
  return 'NO_TICKET'
end
if ticket ~= ARGV[1] then
  return 'TICKET_MISMATCH'
end
if occupant['user_id'] ~= ARGV[2] then
  return 'USER_MISMATCH'
end
if occupant['tool'] ~= ARGV[3] then
  return 'TOOL_MISMATCH'
end
redis.call('HDEL', KEYS[1], 'tool_ticket')
return 'OK'
`)

// PutTicket stores the companion secret alongside the room's presenter
// record. The signed token itself travels to the tool backend out of band.
func (s *RoomStateStore) PutTicket(ctx context.Context, roomID, secret string) error {
	if err := s.client.HSet(ctx, roomInfoKey(roomID), fieldToolTicket, secret).Err(); err != nil {
		return fmt.Errorf("failed to store ticket secret: %w", err)
	}
	return nil
}

// VerifyAndConsumeTicket atomically checks the presented secret against
// the room's ticket and current main-slot occupant, deleting the ticket on
// success. Each distinct failure maps to its own error so the caller can
// tell a stale ticket apart from a wrong caller.
func (s *RoomStateStore) VerifyAndConsumeTicket(ctx context.Context, roomID, userID, tool, secret string) error {
	res, err := consumeTicketScript.Run(ctx, s.client, []string{roomInfoKey(roomID)}, secret, userID, tool).Text()
	if err != nil {
		return fmt.Errorf("ticket consume script failed: %w", err)
	}

	switch res {
	case "OK":
		return nil
	case "NO_PRODUCER":
		return ErrNoProducer
	case "NO_TICKET":
		return ErrNoTicket
	case "TICKET_MISMATCH":
		return ErrTicketMismatch
	case "USER_MISMATCH":
		return ErrUserMismatch
	case "TOOL_MISMATCH":
		return ErrToolMismatch
	default:
		return fmt.Errorf("ticket consume script returned %q", res)
	}
}
