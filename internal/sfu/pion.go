package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-demo/meet/internal/config"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

var (
	ErrWrongTransportType = errors.New("operation not valid for this transport type")
	ErrTransportClosed    = errors.New("transport is closed")
	ErrNoTrack            = errors.New("no incoming track of that kind")
)

// routerCapabilities is the codec surface advertised to clients during
// device setup. It mirrors what RegisterDefaultCodecs enables.
type routerCapabilities struct {
	Audio []string `json:"audio"`
	Video []string `json:"video"`
}

var defaultCapabilities = routerCapabilities{
	Audio: []string{"audio/opus"},
	Video: []string{"video/VP8", "video/H264"},
}

// pionWorker is one member of the fixed media worker pool. Each worker
// owns a webrtc.API with its own slice of the UDP port range, so routers
// placed on different workers never contend for ports.
type pionWorker struct {
	index     int
	api       *webrtc.API
	rtcConfig webrtc.Configuration
}

// PionEngine implements Engine on pion/webrtc.
type PionEngine struct {
	workers []*pionWorker
	logger  *zap.Logger
}

func NewPionEngine(cfg *config.SFUConfig, logger *zap.Logger) (*PionEngine, error) {
	count := cfg.Workers
	if count < 1 {
		count = 1
	}

	span := (cfg.UDPPortMax - cfg.UDPPortMin + 1) / count
	if span < 16 {
		return nil, fmt.Errorf("udp port range %d-%d is too small for %d workers", cfg.UDPPortMin, cfg.UDPPortMax, count)
	}

	rtcConfig := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		rtcConfig.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	workers := make([]*pionWorker, 0, count)
	for i := 0; i < count; i++ {
		me := &webrtc.MediaEngine{}
		if err := me.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("failed to register codecs: %w", err)
		}

		se := webrtc.SettingEngine{}
		lo := cfg.UDPPortMin + i*span
		hi := lo + span - 1
		if err := se.SetEphemeralUDPPortRange(uint16(lo), uint16(hi)); err != nil {
			return nil, fmt.Errorf("failed to set udp port range %d-%d: %w", lo, hi, err)
		}
		if cfg.PublicIP != "" {
			se.SetNAT1To1IPs([]string{cfg.PublicIP}, webrtc.ICECandidateTypeHost)
		}

		workers = append(workers, &pionWorker{
			index:     i,
			api:       webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se)),
			rtcConfig: rtcConfig,
		})

		logger.Info("Media worker ready",
			zap.Int("worker", i),
			zap.Int("udp_port_min", lo),
			zap.Int("udp_port_max", hi),
		)
	}

	return &PionEngine{workers: workers, logger: logger}, nil
}

func (e *PionEngine) Workers() int {
	return len(e.workers)
}

func (e *PionEngine) NewRouter(ctx context.Context, worker int, roomID string) (Router, error) {
	if worker < 0 || worker >= len(e.workers) {
		return nil, fmt.Errorf("worker index %d out of range", worker)
	}

	caps, err := json.Marshal(defaultCapabilities)
	if err != nil {
		return nil, err
	}

	return &pionRouter{
		id:     fmt.Sprintf("router-%s-w%d", roomID, worker),
		roomID: roomID,
		worker: e.workers[worker],
		caps:   caps,
		logger: e.logger,
	}, nil
}

type pionRouter struct {
	id     string
	roomID string
	worker *pionWorker
	caps   json.RawMessage
	logger *zap.Logger

	mu        sync.Mutex
	closed    bool
	closeObs  []func()
	closeOnce sync.Once
}

func (r *pionRouter) ID() string                    { return r.id }
func (r *pionRouter) Capabilities() json.RawMessage { return r.caps }

func (r *pionRouter) OnClose(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeObs = append(r.closeObs, fn)
}

func (r *pionRouter) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		obs := r.closeObs
		r.mu.Unlock()
		for _, fn := range obs {
			fn()
		}
	})
	return nil
}

func (r *pionRouter) NewTransport(ctx context.Context, transportID string, typ TransportType) (Transport, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("router %s is closed", r.id)
	}
	r.mu.Unlock()

	pc, err := r.worker.api.NewPeerConnection(r.worker.rtcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	t := &pionTransport{
		id:     transportID,
		typ:    typ,
		pc:     pc,
		logger: r.logger,
		tracks: map[Kind]chan *webrtc.TrackRemote{
			KindAudio: make(chan *webrtc.TrackRemote, 2),
			KindVideo: make(chan *webrtc.TrackRemote, 2),
		},
	}

	if typ == TransportSend {
		// The client pushes media here, so the server side receives.
		init := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, init); err != nil {
			pc.Close()
			return nil, err
		}
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, init); err != nil {
			pc.Close()
			return nil, err
		}

		pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			kind := KindAudio
			if remote.Kind() == webrtc.RTPCodecTypeVideo {
				kind = KindVideo
			}
			select {
			case t.tracks[kind] <- remote:
			default:
				r.logger.Warn("Dropping unexpected incoming track",
					zap.String("transport_id", transportID),
					zap.String("kind", string(kind)),
				)
			}
		})
	} else {
		// Give the recv transport something to negotiate before the first
		// consumer arrives.
		if _, err := pc.CreateDataChannel("sync", nil); err != nil {
			pc.Close()
			return nil, err
		}
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			t.fireClose()
		}
	})

	desc, err := t.createOffer(ctx)
	if err != nil {
		pc.Close()
		return nil, err
	}
	t.localDesc = desc

	return t, nil
}

type pionTransport struct {
	id     string
	typ    TransportType
	pc     *webrtc.PeerConnection
	logger *zap.Logger

	tracks map[Kind]chan *webrtc.TrackRemote

	mu        sync.Mutex
	localDesc json.RawMessage
	closed    bool
	closeObs  []func()
	closeOnce sync.Once
}

func (t *pionTransport) ID() string          { return t.id }
func (t *pionTransport) Type() TransportType { return t.typ }

func (t *pionTransport) Parameters() TransportParameters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TransportParameters{
		TransportID: t.id,
		Description: t.localDesc,
	}
}

func (t *pionTransport) OnClose(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeObs = append(t.closeObs, fn)
}

func (t *pionTransport) fireClose() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		obs := t.closeObs
		t.mu.Unlock()
		for _, fn := range obs {
			fn()
		}
	})
}

func (t *pionTransport) Close() error {
	err := t.pc.Close()
	t.fireClose()
	return err
}

// createOffer produces a local description with ICE candidates gathered,
// so the client gets candidates in one round trip instead of trickling.
func (t *pionTransport) createOffer(ctx context.Context) (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	local := t.pc.LocalDescription()
	raw, err := json.Marshal(local)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (t *pionTransport) Connect(ctx context.Context, remoteDescription json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(remoteDescription, &desc); err != nil {
		return fmt.Errorf("malformed remote description: %w", err)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

func (t *pionTransport) Produce(ctx context.Context, producerID string, kind Kind) (Producer, error) {
	if t.typ != TransportSend {
		return nil, ErrWrongTransportType
	}

	ch, ok := t.tracks[kind]
	if !ok {
		return nil, ErrNoTrack
	}

	var remote *webrtc.TrackRemote
	select {
	case remote = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("no %s track arrived: %w", kind, ctx.Err())
	}

	p := &pionProducer{
		id:     producerID,
		kind:   kind,
		remote: remote,
		sinks:  make(map[string]*consumerSink),
		done:   make(chan struct{}),
		logger: t.logger,
	}
	go p.forward()

	// The producer dies with its transport.
	t.OnClose(func() { p.Close() })

	return p, nil
}

func (t *pionTransport) Consume(ctx context.Context, consumerID string, producer Producer) (Consumer, error) {
	if t.typ != TransportRecv {
		return nil, ErrWrongTransportType
	}

	prod, ok := producer.(*pionProducer)
	if !ok {
		return nil, fmt.Errorf("producer %s is not backed by this engine", producer.ID())
	}

	local, err := webrtc.NewTrackLocalStaticRTP(
		prod.remote.Codec().RTPCodecCapability,
		consumerID,
		prod.remote.StreamID(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create local track: %w", err)
	}

	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	sink := &consumerSink{track: local}
	sink.paused.Store(true) // created paused; client must resume
	prod.addSink(consumerID, sink)

	// The new track needs a renegotiation round with the owning client.
	params, err := t.createOffer(ctx)
	if err != nil {
		prod.removeSink(consumerID)
		_ = t.pc.RemoveTrack(sender)
		return nil, err
	}

	t.mu.Lock()
	t.localDesc = params
	t.mu.Unlock()

	return &pionConsumer{
		id:        consumerID,
		producer:  prod,
		sink:      sink,
		sender:    sender,
		transport: t,
		params:    params,
	}, nil
}

// consumerSink is one fan-out target of a producer.
type consumerSink struct {
	track  *webrtc.TrackLocalStaticRTP
	paused atomic.Bool
}

type pionProducer struct {
	id     string
	kind   Kind
	remote *webrtc.TrackRemote
	logger *zap.Logger

	mu    sync.RWMutex
	sinks map[string]*consumerSink

	closeObs  []func()
	closeOnce sync.Once
	done      chan struct{}
}

func (p *pionProducer) ID() string { return p.id }
func (p *pionProducer) Kind() Kind { return p.kind }

func (p *pionProducer) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeObs = append(p.closeObs, fn)
}

func (p *pionProducer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		obs := p.closeObs
		p.mu.Unlock()
		for _, fn := range obs {
			fn()
		}
	})
	return nil
}

func (p *pionProducer) addSink(id string, sink *consumerSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks[id] = sink
}

func (p *pionProducer) removeSink(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sinks, id)
}

// forward pumps RTP from the incoming track to every non-paused sink.
// It exits when the remote track errors out or the producer closes.
func (p *pionProducer) forward() {
	defer p.Close()

	buf := make([]byte, 1500)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		n, _, err := p.remote.Read(buf)
		if err != nil {
			return
		}

		p.mu.RLock()
		for _, sink := range p.sinks {
			if sink.paused.Load() {
				continue
			}
			if _, err := sink.track.Write(buf[:n]); err != nil {
				p.logger.Debug("Dropping RTP write", zap.String("producer_id", p.id), zap.Error(err))
			}
		}
		p.mu.RUnlock()
	}
}

type pionConsumer struct {
	id        string
	producer  *pionProducer
	sink      *consumerSink
	sender    *webrtc.RTPSender
	transport *pionTransport
	params    json.RawMessage
}

func (c *pionConsumer) ID() string                  { return c.id }
func (c *pionConsumer) ProducerID() string          { return c.producer.id }
func (c *pionConsumer) Kind() Kind                  { return c.producer.kind }
func (c *pionConsumer) Parameters() json.RawMessage { return c.params }

func (c *pionConsumer) Pause()  { c.sink.paused.Store(true) }
func (c *pionConsumer) Resume() { c.sink.paused.Store(false) }

func (c *pionConsumer) Close() error {
	c.producer.removeSink(c.id)
	return c.transport.pc.RemoveTrack(c.sender)
}
