package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP blobs are a few KB.
	maxMessageSize = 65536

	// Send buffer size
	sendBufferSize = 256
)

// Client represents one signaling connection. A socket belongs to at most
// one room; the socket ID is minted server-side and never trusted from
// payloads.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	socketID string
	userID   string
	nickname string
	isGuest  bool
	ip       string

	mu     sync.RWMutex
	roomID string

	logger *zap.Logger
}

// NewClient creates a new client
func NewClient(hub *Hub, conn *websocket.Conn, socketID, userID, nickname string, isGuest bool, ip string, logger *zap.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		socketID: socketID,
		userID:   userID,
		nickname: nickname,
		isGuest:  isGuest,
		ip:       ip,
		logger:   logger,
	}
}

// SocketID returns the server-minted connection ID
func (c *Client) SocketID() string {
	return c.socketID
}

// UserID returns the authenticated user ID
func (c *Client) UserID() string {
	return c.userID
}

// RoomID returns the joined room, or empty if not joined
func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *Client) setRoomID(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.String("socket_id", c.socketID),
					zap.Error(err),
				)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Failed to parse message",
				zap.String("socket_id", c.socketID),
				zap.Error(err),
			)
			c.sendError(400, "invalid message format")
			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages based on type
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeJoinRoom:
		c.handleJoinRoom(msg)
	case MessageTypeNegotiateSDP:
		c.handleNegotiateSDP(msg)
	case MessageTypeNegotiateICE:
		c.handleNegotiateICE(msg)
	case MessageTypeDTLSHandshake, MessageTypeRenegotiate:
		c.handleDTLSHandshake(msg)
	case MessageTypeProduce:
		c.handleProduce(msg)
	case MessageTypeCloseProducer:
		c.handleCloseProducer(msg)
	case MessageTypeConsume:
		c.handleConsume(msg)
	case MessageTypeConsumeBatch:
		c.handleConsumeBatch(msg)
	case MessageTypeResume:
		c.handleResume(msg)
	case MessageTypeResumeBatch:
		c.handleResumeBatch(msg)
	case MessageTypePause:
		c.handlePause(msg)
	case MessageTypeRoomMembers:
		c.handleRoomMembers(msg)
	case MessageTypeOpenTool:
		c.handleOpenTool(msg)
	case MessageTypeStopPresenting:
		c.handleStopPresenting(msg)
	case MessageTypePing:
		c.handlePing(msg)
	default:
		c.sendError(400, "unknown message type")
	}
}

func (c *Client) handleJoinRoom(msg *Message) {
	var payload JoinRoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.JoinRoom(c, payload, msg.RequestID)
}

func (c *Client) handleNegotiateSDP(msg *Message) {
	var payload NegotiateSDPPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.NegotiateSDP(c, payload)
}

func (c *Client) handleNegotiateICE(msg *Message) {
	var payload NegotiateICEPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.NegotiateICE(c, payload)
}

func (c *Client) handleDTLSHandshake(msg *Message) {
	var payload DTLSHandshakePayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.DTLSHandshake(c, payload, msg.RequestID)
}

func (c *Client) handleProduce(msg *Message) {
	var payload ProducePayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.Produce(c, payload)
}

func (c *Client) handleCloseProducer(msg *Message) {
	var payload CloseProducerPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.CloseProducer(c, payload, msg.RequestID)
}

func (c *Client) handleConsume(msg *Message) {
	var payload ConsumePayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.Consume(c, payload)
}

func (c *Client) handleConsumeBatch(msg *Message) {
	var payload ConsumeBatchPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.ConsumeBatch(c, payload)
}

func (c *Client) handleResume(msg *Message) {
	var payload ResumePayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.Resume(c, []string{payload.ConsumerID}, msg.RequestID)
}

func (c *Client) handleResumeBatch(msg *Message) {
	var payload ResumeBatchPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.Resume(c, payload.ConsumerIDs, msg.RequestID)
}

func (c *Client) handlePause(msg *Message) {
	var payload ResumePayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.Pause(c, payload.ConsumerID, msg.RequestID)
}

func (c *Client) handleRoomMembers(msg *Message) {
	var payload RoomMembersPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.RoomMembers(c, payload)
}

func (c *Client) handleOpenTool(msg *Message) {
	var payload OpenToolPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.OpenTool(c, payload)
}

func (c *Client) handleStopPresenting(msg *Message) {
	var payload StopPresentingPayload
	if err := msg.ParsePayload(&payload); err != nil {
		c.sendError(400, "invalid request payload")
		return
	}
	c.hub.StopPresenting(c, payload, msg.RequestID)
}

func (c *Client) handlePing(msg *Message) {
	pongMsg, _ := NewMessage(MessageTypePong, nil)
	c.SendMessage(pongMsg)
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message",
			zap.String("socket_id", c.socketID),
			zap.Error(err),
		)
		return
	}

	select {
	case c.send <- data:
	default:
		// Channel is full, client is slow
		c.logger.Warn("Client send buffer full",
			zap.String("socket_id", c.socketID),
		)
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(code int, message string) {
	errMsg, _ := NewErrorMessage(code, message)
	c.SendMessage(errMsg)
}

// sendAck acknowledges a request by its request ID
func (c *Client) sendAck(requestID string) {
	ackMsg, _ := NewMessage(MessageTypeAck, &AckPayload{
		RequestID: requestID,
		Success:   true,
	})
	c.SendMessage(ackMsg)
}

// Close closes the client connection
func (c *Client) Close() {
	close(c.send)
}
