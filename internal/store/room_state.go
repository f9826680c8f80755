package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxCASAttempts bounds every optimistic watch+retry loop. Exhausting the
// budget fails closed so worst-case latency stays bounded under contention.
const maxCASAttempts = 5

// RoomStateStore is the single source of truth for room membership,
// presenter slots and SFU mirror records across server instances.
type RoomStateStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRoomStateStore(client *redis.Client, logger *zap.Logger) *RoomStateStore {
	return &RoomStateStore{
		client: client,
		logger: logger,
	}
}

// CreateRoom initializes the room-info record. The id is generated by the
// caller and assumed unique; any previous record under it is overwritten.
func (s *RoomStateStore) CreateRoom(ctx context.Context, roomID string, info *RoomInfo) error {
	fields := map[string]interface{}{
		fieldCode:                info.Code,
		fieldTitle:               info.Title,
		fieldOwnerID:             info.OwnerID,
		fieldMaxParticipants:     strconv.Itoa(info.MaxParticipants),
		fieldCurrentParticipants: "0",
	}
	if info.PasswordHash != "" {
		fields[fieldPasswordHash] = info.PasswordHash
	}

	if err := s.client.HSet(ctx, roomInfoKey(roomID), fields).Err(); err != nil {
		return fmt.Errorf("failed to create room record: %w", err)
	}
	return nil
}

// DeleteRoom removes the room-info and roster records.
func (s *RoomStateStore) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.client.Del(ctx, roomInfoKey(roomID), roomMembersKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete room records: %w", err)
	}
	return nil
}

// JoinRoom admits a member under the capacity invariant. The counter
// increment, roster upsert and socket index write commit atomically; a
// concurrent writer on the watched keys aborts the transaction and the
// attempt is retried. Rejoining with the same user_id only refreshes the
// member fields and socket index - the counter is untouched.
//
// Capacity exhaustion and malformed state are terminal, not retried:
// retrying cannot make room appear.
func (s *RoomStateStore) JoinRoom(ctx context.Context, roomID, userID string, member Member) error {
	infoKey := roomInfoKey(roomID)
	membersKey := roomMembersKey(roomID)

	memberRaw, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to encode member: %w", err)
	}
	socketRaw, err := json.Marshal(SocketEntry{UserID: userID, RoomID: roomID, IP: member.IP})
	if err != nil {
		return fmt.Errorf("failed to encode socket entry: %w", err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			_, err := tx.HGet(ctx, membersKey, userID).Result()
			switch {
			case err == nil:
				// Already a member: refresh in place, no counter change.
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.HSet(ctx, membersKey, userID, memberRaw)
					pipe.HSet(ctx, socketIndexKey, member.SocketID, socketRaw)
					return nil
				})
				return err
			case !errors.Is(err, redis.Nil):
				return err
			}

			vals, err := tx.HMGet(ctx, infoKey, fieldCurrentParticipants, fieldMaxParticipants).Result()
			if err != nil {
				return err
			}
			current, max, err := parseCounters(vals)
			if err != nil {
				return err
			}
			if current >= max {
				return ErrRoomFull
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HIncrBy(ctx, infoKey, fieldCurrentParticipants, 1)
				pipe.HSet(ctx, membersKey, userID, memberRaw)
				pipe.HSet(ctx, socketIndexKey, member.SocketID, socketRaw)
				return nil
			})
			return err
		}, infoKey, membersKey)

		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("Join transaction aborted, retrying",
				zap.String("room_id", roomID),
				zap.String("user_id", userID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return err
	}

	return ErrTooMuchContention
}

// LeaveRoom removes a member and decrements the counter atomically. A
// member record that is already gone leaves only the socket index to clean
// up, so repeated leave calls are idempotent.
func (s *RoomStateStore) LeaveRoom(ctx context.Context, roomID, socketID, userID string) error {
	infoKey := roomInfoKey(roomID)
	membersKey := roomMembersKey(roomID)

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGet(ctx, membersKey, userID).Result()
			if errors.Is(err, redis.Nil) {
				return tx.HDel(ctx, socketIndexKey, socketID).Err()
			}
			if err != nil {
				return err
			}

			var member Member
			if err := json.Unmarshal([]byte(raw), &member); err != nil {
				return ErrMalformedState
			}
			if member.SocketID != socketID {
				// A newer connection superseded this socket; only its
				// index entry goes.
				return tx.HDel(ctx, socketIndexKey, socketID).Err()
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HDel(ctx, socketIndexKey, socketID)
				pipe.HDel(ctx, membersKey, userID)
				pipe.HIncrBy(ctx, infoKey, fieldCurrentParticipants, -1)
				return nil
			})
			return err
		}, infoKey, membersKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrTooMuchContention
}

// GetRoomInfo reads and decodes the room-info hash.
func (s *RoomStateStore) GetRoomInfo(ctx context.Context, roomID string) (*RoomInfo, error) {
	fields, err := s.client.HGetAll(ctx, roomInfoKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room info: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrRoomNotFound
	}

	info := &RoomInfo{
		Code:         fields[fieldCode],
		Title:        fields[fieldTitle],
		OwnerID:      fields[fieldOwnerID],
		PasswordHash: fields[fieldPasswordHash],
		HasTicket:    fields[fieldToolTicket] != "",
	}

	if info.MaxParticipants, err = strconv.Atoi(fields[fieldMaxParticipants]); err != nil {
		return nil, ErrMalformedState
	}
	if info.CurrentParticipants, err = strconv.Atoi(fields[fieldCurrentParticipants]); err != nil {
		return nil, ErrMalformedState
	}

	if raw := fields[fieldMainProducer]; raw != "" {
		occ := &SlotOccupant{}
		if err := json.Unmarshal([]byte(raw), occ); err != nil {
			return nil, ErrMalformedState
		}
		info.MainProducer = occ
	}
	if raw := fields[fieldSubProducer]; raw != "" {
		occ := &SlotOccupant{}
		if err := json.Unmarshal([]byte(raw), occ); err != nil {
			return nil, ErrMalformedState
		}
		info.SubProducer = occ
	}

	return info, nil
}

// GetMembers returns the raw roster keyed by user_id.
func (s *RoomStateStore) GetMembers(ctx context.Context, roomID string) (map[string]Member, error) {
	raw, err := s.client.HGetAll(ctx, roomMembersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room members: %w", err)
	}

	members := make(map[string]Member, len(raw))
	for userID, val := range raw {
		var m Member
		if err := json.Unmarshal([]byte(val), &m); err != nil {
			return nil, ErrMalformedState
		}
		members[userID] = m
	}
	return members, nil
}

// GetRoster returns every member joined with their mirrored producer
// state, for the room_members sync message.
func (s *RoomStateStore) GetRoster(ctx context.Context, roomID string) ([]RosterEntry, error) {
	members, err := s.GetMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	roster := make([]RosterEntry, 0, len(members))
	for userID, m := range members {
		producers, err := s.GetProducers(ctx, roomID, userID)
		if err != nil {
			return nil, err
		}
		roster = append(roster, RosterEntry{
			UserID:    userID,
			Member:    m,
			Producers: producers,
		})
	}
	return roster, nil
}

// GetSocket resolves a socket id to its identity.
func (s *RoomStateStore) GetSocket(ctx context.Context, socketID string) (*SocketEntry, error) {
	raw, err := s.client.HGet(ctx, socketIndexKey, socketID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSocketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read socket index: %w", err)
	}

	var entry SocketEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, ErrMalformedState
	}
	return &entry, nil
}

func parseCounters(vals []interface{}) (current, max int, err error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return 0, 0, ErrRoomNotFound
	}
	currentStr, ok := vals[0].(string)
	if !ok {
		return 0, 0, ErrMalformedState
	}
	maxStr, ok := vals[1].(string)
	if !ok {
		return 0, 0, ErrMalformedState
	}
	if current, err = strconv.Atoi(currentStr); err != nil {
		return 0, 0, ErrMalformedState
	}
	if max, err = strconv.Atoi(maxStr); err != nil {
		return 0, 0, ErrMalformedState
	}
	return current, max, nil
}
