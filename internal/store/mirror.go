package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Mirror records let another server process (or this one after a restart)
// answer "does this transport/producer/consumer exist and who owns it"
// without holding the native handle. The registry's close observers are
// the only writers that delete them, so the mirror cannot drift from the
// in-process maps.

// PutTransport mirrors a native transport.
func (s *RoomStateStore) PutTransport(ctx context.Context, transportID string, rec TransportRecord) error {
	fields := map[string]interface{}{
		"room_id":   rec.RoomID,
		"socket_id": rec.SocketID,
		"user_id":   rec.UserID,
		"type":      rec.Type,
	}
	if err := s.client.HSet(ctx, transportKey(transportID), fields).Err(); err != nil {
		return fmt.Errorf("failed to mirror transport: %w", err)
	}
	return nil
}

// GetTransport reads a mirrored transport record.
func (s *RoomStateStore) GetTransport(ctx context.Context, transportID string) (*TransportRecord, error) {
	fields, err := s.client.HGetAll(ctx, transportKey(transportID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transport record: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrTransportNotFound
	}

	return &TransportRecord{
		RoomID:   fields["room_id"],
		SocketID: fields["socket_id"],
		UserID:   fields["user_id"],
		Type:     fields["type"],
	}, nil
}

// DeleteTransport removes a mirrored transport record.
func (s *RoomStateStore) DeleteTransport(ctx context.Context, transportID string) error {
	if err := s.client.Del(ctx, transportKey(transportID)).Err(); err != nil {
		return fmt.Errorf("failed to delete transport record: %w", err)
	}
	return nil
}

// PutProducer mirrors a producer under its (room, user, kind) key,
// superseding any previous producer of the same kind.
func (s *RoomStateStore) PutProducer(ctx context.Context, roomID, userID, kind string, rec ProducerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode producer record: %w", err)
	}
	if err := s.client.HSet(ctx, producersKey(roomID, userID), kind, raw).Err(); err != nil {
		return fmt.Errorf("failed to mirror producer: %w", err)
	}
	return nil
}

// GetProducer reads one mirrored producer record.
func (s *RoomStateStore) GetProducer(ctx context.Context, roomID, userID, kind string) (*ProducerRecord, error) {
	raw, err := s.client.HGet(ctx, producersKey(roomID, userID), kind).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrProducerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read producer record: %w", err)
	}

	var rec ProducerRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, ErrMalformedState
	}
	return &rec, nil
}

// GetProducers reads all mirrored producers of one member.
func (s *RoomStateStore) GetProducers(ctx context.Context, roomID, userID string) (map[string]ProducerRecord, error) {
	raw, err := s.client.HGetAll(ctx, producersKey(roomID, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read producer records: %w", err)
	}

	producers := make(map[string]ProducerRecord, len(raw))
	for kind, val := range raw {
		var rec ProducerRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, ErrMalformedState
		}
		producers[kind] = rec
	}
	return producers, nil
}

// DeleteProducer removes one mirrored producer record.
func (s *RoomStateStore) DeleteProducer(ctx context.Context, roomID, userID, kind string) error {
	if err := s.client.HDel(ctx, producersKey(roomID, userID), kind).Err(); err != nil {
		return fmt.Errorf("failed to delete producer record: %w", err)
	}
	return nil
}

// PutConsumer mirrors a consumer keyed by its id.
func (s *RoomStateStore) PutConsumer(ctx context.Context, roomID, userID, consumerID string, rec ConsumerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode consumer record: %w", err)
	}
	if err := s.client.HSet(ctx, consumersKey(roomID, userID), consumerID, raw).Err(); err != nil {
		return fmt.Errorf("failed to mirror consumer: %w", err)
	}
	return nil
}

// DeleteConsumer removes one mirrored consumer record.
func (s *RoomStateStore) DeleteConsumer(ctx context.Context, roomID, userID, consumerID string) error {
	if err := s.client.HDel(ctx, consumersKey(roomID, userID), consumerID).Err(); err != nil {
		return fmt.Errorf("failed to delete consumer record: %w", err)
	}
	return nil
}

// DeleteMemberMedia drops every mirrored producer and consumer of one
// member, as part of disconnect teardown.
func (s *RoomStateStore) DeleteMemberMedia(ctx context.Context, roomID, userID string) error {
	if err := s.client.Del(ctx, producersKey(roomID, userID), consumersKey(roomID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete member media records: %w", err)
	}
	return nil
}
