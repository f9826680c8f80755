package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func slotField(slot Slot) string {
	if slot == SlotSub {
		return fieldSubProducer
	}
	return fieldMainProducer
}

// ClaimSlot writes the occupant into a presenter slot, but only if the
// slot is vacant. The vacancy check and the write commit together under
// the same watch+retry discipline as membership updates.
func (s *RoomStateStore) ClaimSlot(ctx context.Context, roomID string, slot Slot, occupant SlotOccupant) error {
	infoKey := roomInfoKey(roomID)
	field := slotField(slot)

	raw, err := json.Marshal(occupant)
	if err != nil {
		return fmt.Errorf("failed to encode slot occupant: %w", err)
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.HExists(ctx, infoKey, field).Result()
			if err != nil {
				return err
			}
			if exists {
				return ErrSlotOccupied
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, infoKey, field, raw)
				return nil
			})
			return err
		}, infoKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrTooMuchContention
}

// ReleaseSlot vacates a presenter slot unconditionally. The companion
// ticket goes with the main slot: a slot without an owner must not keep a
// consumable ticket behind.
func (s *RoomStateStore) ReleaseSlot(ctx context.Context, roomID string, slot Slot) error {
	fields := []string{slotField(slot)}
	if slot == SlotMain {
		fields = append(fields, fieldToolTicket)
	}
	if err := s.client.HDel(ctx, roomInfoKey(roomID), fields...).Err(); err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}

// ReleaseSlotsOwnedBy vacates any slot currently held by the given user.
// Used on disconnect, where the leaving user may hold main, sub, or both.
func (s *RoomStateStore) ReleaseSlotsOwnedBy(ctx context.Context, roomID, userID string) ([]Slot, error) {
	info, err := s.GetRoomInfo(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var released []Slot
	if info.MainProducer != nil && info.MainProducer.UserID == userID {
		if err := s.ReleaseSlot(ctx, roomID, SlotMain); err != nil {
			return released, err
		}
		released = append(released, SlotMain)
	}
	if info.SubProducer != nil && info.SubProducer.UserID == userID {
		if err := s.ReleaseSlot(ctx, roomID, SlotSub); err != nil {
			return released, err
		}
		released = append(released, SlotSub)
	}
	return released, nil
}
