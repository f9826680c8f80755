package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-demo/meet/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fakeEngine stands in for the native media layer so registry semantics
// can be tested without opening sockets.
type fakeEngine struct {
	workers int
	delay   time.Duration
	created atomic.Int32
}

func (e *fakeEngine) Workers() int { return e.workers }

func (e *fakeEngine) NewRouter(ctx context.Context, worker int, roomID string) (Router, error) {
	e.created.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return &fakeRouter{id: roomID}, nil
}

type fakeRouter struct {
	id        string
	mu        sync.Mutex
	closed    bool
	observers []func()
}

func (r *fakeRouter) ID() string                    { return r.id }
func (r *fakeRouter) Capabilities() json.RawMessage { return json.RawMessage(`{"codecs":[]}`) }

func (r *fakeRouter) NewTransport(ctx context.Context, transportID string, typ TransportType) (Transport, error) {
	return &fakeTransport{id: transportID, typ: typ}, nil
}

func (r *fakeRouter) OnClose(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		fn()
		return
	}
	r.observers = append(r.observers, fn)
}

func (r *fakeRouter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	observers := r.observers
	r.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
	return nil
}

type fakeTransport struct {
	id        string
	typ       TransportType
	connected atomic.Bool
	mu        sync.Mutex
	closed    bool
	observers []func()
	children  []func() error
}

func (t *fakeTransport) ID() string          { return t.id }
func (t *fakeTransport) Type() TransportType { return t.typ }

func (t *fakeTransport) Parameters() TransportParameters {
	return TransportParameters{TransportID: t.id, Description: json.RawMessage(`{"type":"offer"}`)}
}

func (t *fakeTransport) Connect(ctx context.Context, remoteDescription json.RawMessage) error {
	t.connected.Store(true)
	return nil
}

func (t *fakeTransport) Produce(ctx context.Context, producerID string, kind Kind) (Producer, error) {
	if t.typ != TransportSend {
		return nil, errors.New("produce on recv transport")
	}
	p := &fakeProducer{id: producerID, kind: kind}
	t.mu.Lock()
	t.children = append(t.children, p.Close)
	t.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) Consume(ctx context.Context, consumerID string, producer Producer) (Consumer, error) {
	if t.typ != TransportRecv {
		return nil, errors.New("consume on send transport")
	}
	c := &fakeConsumer{id: consumerID, producerID: producer.ID(), kind: producer.Kind()}
	c.paused.Store(true)
	t.mu.Lock()
	t.children = append(t.children, c.Close)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		fn()
		return
	}
	t.observers = append(t.observers, fn)
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	observers := t.observers
	children := t.children
	t.mu.Unlock()
	for _, close := range children {
		_ = close()
	}
	for _, fn := range observers {
		fn()
	}
	return nil
}

type fakeProducer struct {
	id        string
	kind      Kind
	mu        sync.Mutex
	closed    bool
	observers []func()
}

func (p *fakeProducer) ID() string { return p.id }
func (p *fakeProducer) Kind() Kind { return p.kind }

func (p *fakeProducer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		fn()
		return
	}
	p.observers = append(p.observers, fn)
}

func (p *fakeProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	observers := p.observers
	p.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
	return nil
}

func (p *fakeProducer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeConsumer struct {
	id         string
	producerID string
	kind       Kind
	paused     atomic.Bool
	closed     atomic.Bool
}

func (c *fakeConsumer) ID() string                  { return c.id }
func (c *fakeConsumer) ProducerID() string          { return c.producerID }
func (c *fakeConsumer) Kind() Kind                  { return c.kind }
func (c *fakeConsumer) Parameters() json.RawMessage { return json.RawMessage(`{"type":"offer"}`) }
func (c *fakeConsumer) Pause()                      { c.paused.Store(true) }
func (c *fakeConsumer) Resume()                     { c.paused.Store(false) }
func (c *fakeConsumer) Close() error                { c.closed.Store(true); return nil }

func testRegistryStore(t *testing.T) *store.RoomStateStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis is not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return store.NewRoomStateStore(client, zap.NewNop())
}

func TestGetOrCreateRouterSingleFlight(t *testing.T) {
	engine := &fakeEngine{workers: 4, delay: 20 * time.Millisecond}
	reg := NewRegistry(engine, testRegistryStore(t), zap.NewNop())

	const callers = 10
	routers := make([]Router, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			router, err := reg.GetOrCreateRouter(context.Background(), "room-1")
			if err != nil {
				t.Errorf("GetOrCreateRouter failed: %v", err)
				return
			}
			routers[i] = router
		}(i)
	}
	wg.Wait()

	if got := engine.created.Load(); got != 1 {
		t.Fatalf("expected exactly one router to be created, got %d", got)
	}
	for i := 1; i < callers; i++ {
		if routers[i] != routers[0] {
			t.Fatalf("caller %d got a different router", i)
		}
	}
}

func TestRouterRecreatedAfterClose(t *testing.T) {
	engine := &fakeEngine{workers: 2}
	reg := NewRegistry(engine, testRegistryStore(t), zap.NewNop())
	ctx := context.Background()

	first, err := reg.GetOrCreateRouter(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetOrCreateRouter failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := reg.GetOrCreateRouter(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetOrCreateRouter after close failed: %v", err)
	}
	if second == first {
		t.Fatal("expected a fresh router after the old one closed")
	}
	if got := engine.created.Load(); got != 2 {
		t.Fatalf("expected two routers created, got %d", got)
	}
}

func TestCreateTransportSupersedesSameType(t *testing.T) {
	engine := &fakeEngine{workers: 1}
	st := testRegistryStore(t)
	reg := NewRegistry(engine, st, zap.NewNop())
	ctx := context.Background()

	if _, err := reg.GetOrCreateRouter(ctx, "room-1"); err != nil {
		t.Fatalf("GetOrCreateRouter failed: %v", err)
	}

	in := CreateTransportInput{RoomID: "room-1", SocketID: "sock-1", UserID: "alice", Type: TransportSend}
	first, err := reg.CreateTransport(ctx, in)
	if err != nil {
		t.Fatalf("first CreateTransport failed: %v", err)
	}
	in.SocketID = "sock-2"
	second, err := reg.CreateTransport(ctx, in)
	if err != nil {
		t.Fatalf("second CreateTransport failed: %v", err)
	}

	if _, err := st.GetTransport(ctx, first.TransportID); !errors.Is(err, store.ErrTransportNotFound) {
		t.Fatalf("expected superseded transport record to be gone, got %v", err)
	}
	rec, err := st.GetTransport(ctx, second.TransportID)
	if err != nil {
		t.Fatalf("GetTransport failed: %v", err)
	}
	if rec.SocketID != "sock-2" {
		t.Fatalf("expected record of the new transport, got socket %s", rec.SocketID)
	}
}

func TestConnectTransportRejectsWrongOwner(t *testing.T) {
	engine := &fakeEngine{workers: 1}
	reg := NewRegistry(engine, testRegistryStore(t), zap.NewNop())
	ctx := context.Background()

	if _, err := reg.GetOrCreateRouter(ctx, "room-1"); err != nil {
		t.Fatalf("GetOrCreateRouter failed: %v", err)
	}
	params, err := reg.CreateTransport(ctx, CreateTransportInput{
		RoomID: "room-1", SocketID: "sock-1", UserID: "alice", Type: TransportSend,
	})
	if err != nil {
		t.Fatalf("CreateTransport failed: %v", err)
	}

	err = reg.ConnectTransport(ctx, ConnectTransportInput{
		TransportID: params.TransportID,
		RoomID:      "room-1",
		SocketID:    "sock-1",
		UserID:      "mallory",
		Type:        TransportSend,
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	err = reg.ConnectTransport(ctx, ConnectTransportInput{
		TransportID: params.TransportID,
		RoomID:      "room-1",
		SocketID:    "sock-1",
		UserID:      "alice",
		Type:        TransportSend,
	})
	if err != nil {
		t.Fatalf("ConnectTransport by the owner failed: %v", err)
	}
}

func TestCreateProducerSupersedesSameKind(t *testing.T) {
	engine := &fakeEngine{workers: 1}
	st := testRegistryStore(t)
	reg := NewRegistry(engine, st, zap.NewNop())
	ctx := context.Background()

	if _, err := reg.GetOrCreateRouter(ctx, "room-1"); err != nil {
		t.Fatalf("GetOrCreateRouter failed: %v", err)
	}
	params, err := reg.CreateTransport(ctx, CreateTransportInput{
		RoomID: "room-1", SocketID: "sock-1", UserID: "alice", Type: TransportSend,
	})
	if err != nil {
		t.Fatalf("CreateTransport failed: %v", err)
	}

	in := CreateProducerInput{
		TransportID: params.TransportID,
		RoomID:      "room-1",
		SocketID:    "sock-1",
		UserID:      "alice",
		Kind:        KindVideo,
		Type:        ProducerTypeCam,
	}
	firstID, err := reg.CreateProducer(ctx, in)
	if err != nil {
		t.Fatalf("first CreateProducer failed: %v", err)
	}
	reg.mu.RLock()
	firstNative := reg.producers[firstID].p.(*fakeProducer)
	reg.mu.RUnlock()

	secondID, err := reg.CreateProducer(ctx, in)
	if err != nil {
		t.Fatalf("second CreateProducer failed: %v", err)
	}

	if !firstNative.isClosed() {
		t.Fatal("expected superseded producer to be closed")
	}
	rec, err := st.GetProducer(ctx, "room-1", "alice", string(KindVideo))
	if err != nil {
		t.Fatalf("GetProducer failed: %v", err)
	}
	if rec.ProducerID != secondID {
		t.Fatalf("expected mirror to point at %s, got %s", secondID, rec.ProducerID)
	}
}

func TestCreateConsumerAndResume(t *testing.T) {
	engine := &fakeEngine{workers: 1}
	reg := NewRegistry(engine, testRegistryStore(t), zap.NewNop())
	ctx := context.Background()

	if _, err := reg.GetOrCreateRouter(ctx, "room-1"); err != nil {
		t.Fatalf("GetOrCreateRouter failed: %v", err)
	}
	send, err := reg.CreateTransport(ctx, CreateTransportInput{
		RoomID: "room-1", SocketID: "sock-a", UserID: "alice", Type: TransportSend,
	})
	if err != nil {
		t.Fatalf("CreateTransport(send) failed: %v", err)
	}
	recv, err := reg.CreateTransport(ctx, CreateTransportInput{
		RoomID: "room-1", SocketID: "sock-b", UserID: "bob", Type: TransportRecv,
	})
	if err != nil {
		t.Fatalf("CreateTransport(recv) failed: %v", err)
	}
	producerID, err := reg.CreateProducer(ctx, CreateProducerInput{
		TransportID: send.TransportID, RoomID: "room-1", SocketID: "sock-a",
		UserID: "alice", Kind: KindAudio, Type: ProducerTypeMic,
	})
	if err != nil {
		t.Fatalf("CreateProducer failed: %v", err)
	}

	consumeIn := CreateConsumerInput{
		TransportID: recv.TransportID,
		RoomID:      "room-1",
		SocketID:    "sock-b",
		UserID:      "bob",
		ProducerID:  producerID,
		Status:      "user",
	}
	info, err := reg.CreateConsumer(ctx, consumeIn)
	if err != nil {
		t.Fatalf("CreateConsumer failed: %v", err)
	}
	if info.Kind != KindAudio || info.ProducerID != producerID {
		t.Fatalf("unexpected consumer info: %+v", info)
	}

	reg.mu.RLock()
	native := reg.consumers[info.ConsumerID].c.(*fakeConsumer)
	reg.mu.RUnlock()
	if !native.paused.Load() {
		t.Fatal("expected consumer to start paused")
	}

	if _, err := reg.CreateConsumer(ctx, consumeIn); !errors.Is(err, ErrAlreadyConsuming) {
		t.Fatalf("expected ErrAlreadyConsuming, got %v", err)
	}

	if err := reg.ResumeConsumer(ctx, info.ConsumerID, "alice"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for foreign resume, got %v", err)
	}
	if err := reg.ResumeConsumer(ctx, info.ConsumerID, "bob"); err != nil {
		t.Fatalf("ResumeConsumer failed: %v", err)
	}
	if native.paused.Load() {
		t.Fatal("expected consumer to be resumed")
	}
}

func TestTransportCloseClearsConsumerRecords(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis is not available: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	st := store.NewRoomStateStore(client, zap.NewNop())

	engine := &fakeEngine{workers: 1}
	reg := NewRegistry(engine, st, zap.NewNop())
	ctx := context.Background()

	if _, err := reg.GetOrCreateRouter(ctx, "room-1"); err != nil {
		t.Fatalf("GetOrCreateRouter failed: %v", err)
	}
	send, err := reg.CreateTransport(ctx, CreateTransportInput{
		RoomID: "room-1", SocketID: "sock-a", UserID: "alice", Type: TransportSend,
	})
	if err != nil {
		t.Fatalf("CreateTransport(send) failed: %v", err)
	}
	recv, err := reg.CreateTransport(ctx, CreateTransportInput{
		RoomID: "room-1", SocketID: "sock-b", UserID: "bob", Type: TransportRecv,
	})
	if err != nil {
		t.Fatalf("CreateTransport(recv) failed: %v", err)
	}
	producerID, err := reg.CreateProducer(ctx, CreateProducerInput{
		TransportID: send.TransportID, RoomID: "room-1", SocketID: "sock-a",
		UserID: "alice", Kind: KindAudio, Type: ProducerTypeMic,
	})
	if err != nil {
		t.Fatalf("CreateProducer failed: %v", err)
	}
	info, err := reg.CreateConsumer(ctx, CreateConsumerInput{
		TransportID: recv.TransportID, RoomID: "room-1", SocketID: "sock-b",
		UserID: "bob", ProducerID: producerID, Status: "user",
	})
	if err != nil {
		t.Fatalf("CreateConsumer failed: %v", err)
	}

	if n, err := client.HLen(ctx, "sfu:consumers:room-1:bob").Result(); err != nil || n != 1 {
		t.Fatalf("expected one mirrored consumer before close, got %d (%v)", n, err)
	}

	reg.CloseSocket("sock-b")

	if n, err := client.HLen(ctx, "sfu:consumers:room-1:bob").Result(); err != nil || n != 0 {
		t.Fatalf("expected consumer records to be cleared on transport close, got %d (%v)", n, err)
	}
	reg.mu.RLock()
	_, tracked := reg.consumers[info.ConsumerID]
	reg.mu.RUnlock()
	if tracked {
		t.Fatal("expected consumer to be dropped from the registry")
	}
}

func TestCloseSocketTearsDownTransports(t *testing.T) {
	engine := &fakeEngine{workers: 1}
	st := testRegistryStore(t)
	reg := NewRegistry(engine, st, zap.NewNop())
	ctx := context.Background()

	if _, err := reg.GetOrCreateRouter(ctx, "room-1"); err != nil {
		t.Fatalf("GetOrCreateRouter failed: %v", err)
	}
	send, err := reg.CreateTransport(ctx, CreateTransportInput{
		RoomID: "room-1", SocketID: "sock-1", UserID: "alice", Type: TransportSend,
	})
	if err != nil {
		t.Fatalf("CreateTransport failed: %v", err)
	}
	producerID, err := reg.CreateProducer(ctx, CreateProducerInput{
		TransportID: send.TransportID, RoomID: "room-1", SocketID: "sock-1",
		UserID: "alice", Kind: KindAudio, Type: ProducerTypeMic,
	})
	if err != nil {
		t.Fatalf("CreateProducer failed: %v", err)
	}

	reg.CloseSocket("sock-1")

	if _, err := st.GetTransport(ctx, send.TransportID); !errors.Is(err, store.ErrTransportNotFound) {
		t.Fatalf("expected transport record to be gone, got %v", err)
	}
	if _, err := st.GetProducer(ctx, "room-1", "alice", string(KindAudio)); !errors.Is(err, store.ErrProducerNotFound) {
		t.Fatalf("expected producer record to be gone, got %v", err)
	}
	reg.mu.RLock()
	_, stillTracked := reg.producers[producerID]
	reg.mu.RUnlock()
	if stillTracked {
		t.Fatal("expected producer to be dropped from the registry")
	}
}
