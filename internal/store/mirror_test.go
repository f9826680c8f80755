package store

import (
	"context"
	"errors"
	"testing"
)

func TestTransportMirror(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := TransportRecord{RoomID: "ROOM01", SocketID: "sock-a", UserID: "user-a", Type: "send"}
	if err := s.PutTransport(ctx, "tr-1", rec); err != nil {
		t.Fatalf("Failed to put transport: %v", err)
	}

	got, err := s.GetTransport(ctx, "tr-1")
	if err != nil {
		t.Fatalf("Failed to get transport: %v", err)
	}
	if got.UserID != "user-a" || got.Type != "send" {
		t.Errorf("Unexpected transport record: %+v", got)
	}

	if err := s.DeleteTransport(ctx, "tr-1"); err != nil {
		t.Fatalf("Failed to delete transport: %v", err)
	}
	if _, err := s.GetTransport(ctx, "tr-1"); !errors.Is(err, ErrTransportNotFound) {
		t.Errorf("Expected ErrTransportNotFound, got %v", err)
	}
}

func TestProducerMirror(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := ProducerRecord{ProducerID: "prod-1", Type: "mic", Status: "on"}
	if err := s.PutProducer(ctx, "ROOM01", "user-a", "audio", rec); err != nil {
		t.Fatalf("Failed to put producer: %v", err)
	}

	got, err := s.GetProducer(ctx, "ROOM01", "user-a", "audio")
	if err != nil {
		t.Fatalf("Failed to get producer: %v", err)
	}
	if got.ProducerID != "prod-1" {
		t.Errorf("Expected producer 'prod-1', got '%s'", got.ProducerID)
	}

	if _, err := s.GetProducer(ctx, "ROOM01", "user-a", "video"); !errors.Is(err, ErrProducerNotFound) {
		t.Errorf("Expected ErrProducerNotFound for vacant kind, got %v", err)
	}
}

func TestDeleteMemberMedia(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutProducer(ctx, "ROOM01", "user-a", "audio", ProducerRecord{ProducerID: "prod-1", Type: "mic", Status: "on"}); err != nil {
		t.Fatalf("Failed to put producer: %v", err)
	}
	if err := s.PutConsumer(ctx, "ROOM01", "user-a", "cons-1", ConsumerRecord{TransportID: "tr-1", ProducerID: "prod-9", Status: "user"}); err != nil {
		t.Fatalf("Failed to put consumer: %v", err)
	}

	if err := s.DeleteMemberMedia(ctx, "ROOM01", "user-a"); err != nil {
		t.Fatalf("Failed to delete member media: %v", err)
	}

	producers, err := s.GetProducers(ctx, "ROOM01", "user-a")
	if err != nil {
		t.Fatalf("Failed to get producers: %v", err)
	}
	if len(producers) != 0 {
		t.Errorf("Expected no producers after cleanup, got %d", len(producers))
	}
}
