package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-demo/meet/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrRouterNotFound   = errors.New("no live router for room")
	ErrUnknownTransport = errors.New("unknown transport")
	ErrUnknownProducer  = errors.New("unknown producer")
	ErrUnknownConsumer  = errors.New("unknown consumer")
	ErrNotOwner         = errors.New("resource is owned by another caller")
	ErrAlreadyConsuming = errors.New("caller already consumes this producer")
)

// Registry owns every native SFU object of this process and keeps the
// store's mirror records consistent with them. All map mutation goes
// through its methods; close observers are the only deletion path, so the
// local maps and the mirror cannot drift apart.
type Registry struct {
	engine Engine
	store  *store.RoomStateStore
	logger *zap.Logger

	group singleflight.Group
	next  atomic.Uint64 // round-robin worker cursor

	mu         sync.RWMutex
	routers    map[string]Router          // room_id -> router
	transports map[string]*transportEntry // transport_id -> entry
	byOwner    map[string]string          // room|user|type -> transport_id
	producers  map[string]*producerEntry  // producer_id -> entry
	consumers  map[string]*consumerEntry  // consumer_id -> entry
	consuming  map[string]string          // transport_id|producer_id -> consumer_id
}

type transportEntry struct {
	t   Transport
	rec store.TransportRecord
}

type producerEntry struct {
	p      Producer
	roomID string
	userID string
	ptype  string
}

type consumerEntry struct {
	c           Consumer
	roomID      string
	userID      string
	transportID string
	producerID  string
	status      string
}

func NewRegistry(engine Engine, stateStore *store.RoomStateStore, logger *zap.Logger) *Registry {
	return &Registry{
		engine:     engine,
		store:      stateStore,
		logger:     logger,
		routers:    make(map[string]Router),
		transports: make(map[string]*transportEntry),
		byOwner:    make(map[string]string),
		producers:  make(map[string]*producerEntry),
		consumers:  make(map[string]*consumerEntry),
		consuming:  make(map[string]string),
	}
}

func ownerKey(roomID, userID string, typ TransportType) string {
	return roomID + "|" + userID + "|" + string(typ)
}

// GetOrCreateRouter returns the room's live router, creating one on a
// round-robin worker if needed. Concurrent first-joiners share a single
// in-flight creation; a router whose worker died removes itself via its
// close observer so the next call re-creates it.
func (r *Registry) GetOrCreateRouter(ctx context.Context, roomID string) (Router, error) {
	r.mu.RLock()
	router, ok := r.routers[roomID]
	r.mu.RUnlock()
	if ok {
		return router, nil
	}

	v, err, _ := r.group.Do(roomID, func() (interface{}, error) {
		r.mu.RLock()
		router, ok := r.routers[roomID]
		r.mu.RUnlock()
		if ok {
			return router, nil
		}

		worker := int(r.next.Add(1)-1) % r.engine.Workers()
		router, err := r.engine.NewRouter(ctx, worker, roomID)
		if err != nil {
			return nil, fmt.Errorf("failed to create router for room %s: %w", roomID, err)
		}

		router.OnClose(func() {
			r.mu.Lock()
			// A re-created router must not be dropped by the old observer.
			if r.routers[roomID] == router {
				delete(r.routers, roomID)
			}
			r.mu.Unlock()
			r.logger.Info("Router closed", zap.String("room_id", roomID))
		})

		r.mu.Lock()
		r.routers[roomID] = router
		r.mu.Unlock()

		r.logger.Info("Router created",
			zap.String("room_id", roomID),
			zap.Int("worker", worker),
		)
		return router, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Router), nil
}

// RouterCapabilities returns the codec capabilities for a room's router.
func (r *Registry) RouterCapabilities(roomID string) (json.RawMessage, error) {
	r.mu.RLock()
	router, ok := r.routers[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrRouterNotFound
	}
	return router.Capabilities(), nil
}

// CreateTransportInput carries the identity under which a transport is
// created; the same fields are mirrored for later ownership checks.
type CreateTransportInput struct {
	RoomID   string
	SocketID string
	UserID   string
	Type     TransportType
}

// CreateTransport creates a transport on the room's router and mirrors it
// into the store. An existing transport of the same (user, type) is
// superseded, not multiplied.
func (r *Registry) CreateTransport(ctx context.Context, in CreateTransportInput) (TransportParameters, error) {
	r.mu.RLock()
	router, ok := r.routers[in.RoomID]
	r.mu.RUnlock()
	if !ok {
		return TransportParameters{}, ErrRouterNotFound
	}

	transportID := uuid.New().String()
	t, err := router.NewTransport(ctx, transportID, in.Type)
	if err != nil {
		return TransportParameters{}, fmt.Errorf("failed to create transport: %w", err)
	}

	rec := store.TransportRecord{
		RoomID:   in.RoomID,
		SocketID: in.SocketID,
		UserID:   in.UserID,
		Type:     string(in.Type),
	}
	if err := r.store.PutTransport(ctx, transportID, rec); err != nil {
		_ = t.Close()
		return TransportParameters{}, err
	}

	key := ownerKey(in.RoomID, in.UserID, in.Type)
	r.mu.Lock()
	var superseded Transport
	if oldID, ok := r.byOwner[key]; ok {
		if old, ok := r.transports[oldID]; ok {
			superseded = old.t
		}
	}
	r.transports[transportID] = &transportEntry{t: t, rec: rec}
	r.byOwner[key] = transportID
	r.mu.Unlock()

	// The close observer is the only place transport records are deleted,
	// locally and in the mirror.
	t.OnClose(func() {
		r.mu.Lock()
		delete(r.transports, transportID)
		if r.byOwner[key] == transportID {
			delete(r.byOwner, key)
		}
		dropped := r.dropMediaOfTransportLocked(transportID)
		r.mu.Unlock()

		ctx := context.Background()
		if err := r.store.DeleteTransport(ctx, transportID); err != nil {
			r.logger.Warn("Failed to delete transport record",
				zap.String("transport_id", transportID),
				zap.Error(err),
			)
		}
		for id, entry := range dropped {
			if err := r.store.DeleteConsumer(ctx, entry.roomID, entry.userID, id); err != nil {
				r.logger.Warn("Failed to delete consumer record",
					zap.String("consumer_id", id),
					zap.Error(err),
				)
			}
		}
	})

	if superseded != nil {
		_ = superseded.Close()
	}

	return t.Parameters(), nil
}

// ConnectTransportInput identifies the caller completing a handshake.
type ConnectTransportInput struct {
	TransportID    string
	RoomID         string
	SocketID       string
	UserID         string
	Type           TransportType
	DTLSParameters json.RawMessage
}

// ConnectTransport completes (or renegotiates) a transport's handshake,
// rejecting callers whose claimed identity does not match the mirrored
// record.
func (r *Registry) ConnectTransport(ctx context.Context, in ConnectTransportInput) error {
	rec, err := r.store.GetTransport(ctx, in.TransportID)
	if err != nil {
		if errors.Is(err, store.ErrTransportNotFound) {
			return ErrUnknownTransport
		}
		return err
	}
	if rec.RoomID != in.RoomID || rec.SocketID != in.SocketID ||
		rec.UserID != in.UserID || rec.Type != string(in.Type) {
		return ErrNotOwner
	}

	r.mu.RLock()
	entry, ok := r.transports[in.TransportID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownTransport
	}

	return entry.t.Connect(ctx, in.DTLSParameters)
}

// CreateProducerInput describes a produce request.
type CreateProducerInput struct {
	TransportID string
	RoomID      string
	SocketID    string
	UserID      string
	Kind        Kind
	Type        string // mic | cam | screen_video | screen_audio
}

// CreateProducer binds an incoming stream. A producer of the same kind
// for the same user is superseded: the old native object is closed and
// the mirror record overwritten, never duplicated.
func (r *Registry) CreateProducer(ctx context.Context, in CreateProducerInput) (string, error) {
	entry, err := r.ownedTransport(in.TransportID, in.RoomID, in.SocketID, in.UserID, TransportSend)
	if err != nil {
		return "", err
	}

	// Supersede any prior producer of this kind.
	if prior, err := r.store.GetProducer(ctx, in.RoomID, in.UserID, string(in.Kind)); err == nil {
		r.mu.RLock()
		old, ok := r.producers[prior.ProducerID]
		r.mu.RUnlock()
		if ok {
			_ = old.p.Close()
		}
	} else if !errors.Is(err, store.ErrProducerNotFound) {
		return "", err
	}

	producerID := uuid.New().String()
	p, err := entry.t.Produce(ctx, producerID, in.Kind)
	if err != nil {
		return "", fmt.Errorf("failed to create producer: %w", err)
	}

	rec := store.ProducerRecord{ProducerID: producerID, Type: in.Type, Status: "on"}
	if err := r.store.PutProducer(ctx, in.RoomID, in.UserID, string(in.Kind), rec); err != nil {
		_ = p.Close()
		return "", err
	}

	r.mu.Lock()
	r.producers[producerID] = &producerEntry{p: p, roomID: in.RoomID, userID: in.UserID, ptype: in.Type}
	r.mu.Unlock()

	kind := string(in.Kind)
	p.OnClose(func() {
		r.mu.Lock()
		delete(r.producers, producerID)
		r.mu.Unlock()

		// Only clear the mirror if it still points at this producer; a
		// superseding producer may already have overwritten it.
		ctx := context.Background()
		if cur, err := r.store.GetProducer(ctx, in.RoomID, in.UserID, kind); err == nil && cur.ProducerID == producerID {
			if err := r.store.DeleteProducer(ctx, in.RoomID, in.UserID, kind); err != nil {
				r.logger.Warn("Failed to delete producer record",
					zap.String("producer_id", producerID),
					zap.Error(err),
				)
			}
		}
	})

	return producerID, nil
}

// CreateConsumerInput describes a consume request.
type CreateConsumerInput struct {
	TransportID string
	RoomID      string
	SocketID    string
	UserID      string
	ProducerID  string
	Status      string // user | main
}

// ConsumerInfo is returned to the consuming client.
type ConsumerInfo struct {
	ConsumerID string
	ProducerID string
	Kind       Kind
	Parameters json.RawMessage
}

// CreateConsumer attaches a paused forwarded copy of a producer to the
// caller's recv transport.
func (r *Registry) CreateConsumer(ctx context.Context, in CreateConsumerInput) (*ConsumerInfo, error) {
	entry, err := r.ownedTransport(in.TransportID, in.RoomID, in.SocketID, in.UserID, TransportRecv)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	pe, ok := r.producers[in.ProducerID]
	_, already := r.consuming[in.TransportID+"|"+in.ProducerID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownProducer
	}
	if already {
		return nil, ErrAlreadyConsuming
	}

	consumerID := uuid.New().String()
	c, err := entry.t.Consume(ctx, consumerID, pe.p)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	rec := store.ConsumerRecord{TransportID: in.TransportID, ProducerID: in.ProducerID, Status: in.Status}
	if err := r.store.PutConsumer(ctx, in.RoomID, in.UserID, consumerID, rec); err != nil {
		_ = c.Close()
		return nil, err
	}

	r.mu.Lock()
	r.consumers[consumerID] = &consumerEntry{
		c:           c,
		roomID:      in.RoomID,
		userID:      in.UserID,
		transportID: in.TransportID,
		producerID:  in.ProducerID,
		status:      in.Status,
	}
	r.consuming[in.TransportID+"|"+in.ProducerID] = consumerID
	r.mu.Unlock()

	return &ConsumerInfo{
		ConsumerID: consumerID,
		ProducerID: in.ProducerID,
		Kind:       c.Kind(),
		Parameters: c.Parameters(),
	}, nil
}

// ResumeConsumer starts media flow on a consumer owned by the caller.
func (r *Registry) ResumeConsumer(ctx context.Context, consumerID, userID string) error {
	r.mu.RLock()
	entry, ok := r.consumers[consumerID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownConsumer
	}
	if entry.userID != userID {
		return ErrNotOwner
	}
	entry.c.Resume()
	return nil
}

// PauseConsumer stops media flow on a consumer owned by the caller.
func (r *Registry) PauseConsumer(ctx context.Context, consumerID, userID string) error {
	r.mu.RLock()
	entry, ok := r.consumers[consumerID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownConsumer
	}
	if entry.userID != userID {
		return ErrNotOwner
	}
	entry.c.Pause()
	return nil
}

// CloseProducer closes one producer owned by the caller (explicit stop,
// e.g. ending a screen share).
func (r *Registry) CloseProducer(ctx context.Context, producerID, userID string) error {
	r.mu.RLock()
	entry, ok := r.producers[producerID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownProducer
	}
	if entry.userID != userID {
		return ErrNotOwner
	}
	return entry.p.Close()
}

// CloseSocket tears down every transport created by a socket, cascading
// to its producers and consumers. Called on disconnect.
func (r *Registry) CloseSocket(socketID string) {
	r.mu.RLock()
	var doomed []Transport
	for _, entry := range r.transports {
		if entry.rec.SocketID == socketID {
			doomed = append(doomed, entry.t)
		}
	}
	r.mu.RUnlock()

	for _, t := range doomed {
		_ = t.Close()
	}
}

// CloseRoom tears down every transport of a room and then its router.
// Called on explicit room teardown, not on ordinary member leave.
func (r *Registry) CloseRoom(roomID string) {
	r.mu.RLock()
	var doomed []Transport
	for _, entry := range r.transports {
		if entry.rec.RoomID == roomID {
			doomed = append(doomed, entry.t)
		}
	}
	router, hasRouter := r.routers[roomID]
	r.mu.RUnlock()

	for _, t := range doomed {
		_ = t.Close()
	}
	if hasRouter {
		_ = router.Close()
	}
}

// ownedTransport resolves a transport and enforces that the caller's
// claimed identity matches the record it was created under.
func (r *Registry) ownedTransport(transportID, roomID, socketID, userID string, typ TransportType) (*transportEntry, error) {
	r.mu.RLock()
	entry, ok := r.transports[transportID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTransport
	}
	rec := entry.rec
	if rec.RoomID != roomID || rec.SocketID != socketID || rec.UserID != userID || rec.Type != string(typ) {
		return nil, ErrNotOwner
	}
	return entry, nil
}

// dropMediaOfTransportLocked removes consumer bookkeeping referencing a
// closed transport and returns the dropped entries so the caller can
// clear their mirror records. Caller holds r.mu.
func (r *Registry) dropMediaOfTransportLocked(transportID string) map[string]*consumerEntry {
	dropped := make(map[string]*consumerEntry)
	for id, entry := range r.consumers {
		if entry.transportID == transportID {
			delete(r.consumers, id)
			delete(r.consuming, transportID+"|"+entry.producerID)
			dropped[id] = entry
		}
	}
	return dropped
}

// Stats reports registry sizes for the ws stats endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"routers":    len(r.routers),
		"transports": len(r.transports),
		"producers":  len(r.producers),
		"consumers":  len(r.consumers),
	}
}
