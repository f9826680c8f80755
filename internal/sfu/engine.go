package sfu

import (
	"context"
	"encoding/json"
)

// Kind is a media kind.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// TransportType is the direction of a transport from the client's point of
// view: a send transport carries media into the SFU, a recv transport
// carries forwarded media out.
type TransportType string

const (
	TransportSend TransportType = "send"
	TransportRecv TransportType = "recv"
)

// Producer types, describing what a media stream is.
const (
	ProducerTypeMic         = "mic"
	ProducerTypeCam         = "cam"
	ProducerTypeScreenVideo = "screen_video"
	ProducerTypeScreenAudio = "screen_audio"
)

// Engine abstracts the native media layer behind the registry. There is
// one fixed pool of workers per process; routers are placed on workers
// round-robin.
type Engine interface {
	// Workers returns the pool size.
	Workers() int
	// NewRouter creates a router on the given worker for a room.
	NewRouter(ctx context.Context, worker int, roomID string) (Router, error)
}

// Router is the per-room media context.
type Router interface {
	ID() string
	// Capabilities describes the codecs the router can route, for client
	// device setup.
	Capabilities() json.RawMessage
	NewTransport(ctx context.Context, transportID string, typ TransportType) (Transport, error)
	// OnClose registers a callback fired exactly once when the router
	// closes, including when its worker dies.
	OnClose(fn func())
	Close() error
}

// TransportParameters is what the client needs to complete ICE/DTLS setup
// for one transport.
type TransportParameters struct {
	TransportID string          `json:"transport_id"`
	Description json.RawMessage `json:"description"`
}

// Transport is one negotiated ICE/DTLS connection with a client.
type Transport interface {
	ID() string
	Type() TransportType
	Parameters() TransportParameters
	// Connect completes (or renegotiates) the handshake with the client's
	// remote description.
	Connect(ctx context.Context, remoteDescription json.RawMessage) error
	// Produce binds an incoming media stream of the given kind. Only valid
	// on send transports.
	Produce(ctx context.Context, producerID string, kind Kind) (Producer, error)
	// Consume attaches a forwarded copy of a producer. Only valid on recv
	// transports. Consumers start paused.
	Consume(ctx context.Context, consumerID string, producer Producer) (Consumer, error)
	OnClose(fn func())
	Close() error
}

// Producer is a media stream a client sends into the SFU.
type Producer interface {
	ID() string
	Kind() Kind
	OnClose(fn func())
	Close() error
}

// Consumer is a forwarded copy of a producer sent to one recipient. It is
// created paused and must be resumed before media flows.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() Kind
	// Parameters carries the renegotiation description the owning client
	// must answer before the consumer's track is live.
	Parameters() json.RawMessage
	Pause()
	Resume()
	Close() error
}
