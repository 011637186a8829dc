package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"teamchat/internal/domain"
	"teamchat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 64 * 1024
	dispatchWait   = 5 * time.Second

	defaultSendBuffer   = 256
	defaultMessageRate  = rate.Limit(20)
	defaultMessageBurst = 40
)

var (
	errRateLimited      = fmt.Errorf("%w: rate limit exceeded", domain.ErrInvalidArgument)
	errInvalidFrame     = fmt.Errorf("%w: invalid message format", domain.ErrInvalidArgument)
	errUnknownFrameType = fmt.Errorf("%w: unknown message type", domain.ErrInvalidArgument)
	errMissingChannel   = fmt.Errorf("%w: channel_id is required", domain.ErrInvalidArgument)
)

// Inbound message types
const (
	MessageJoinChannel  = "join_channel"
	MessageLeaveChannel = "leave_channel"
	MessageSendMessage  = "send_message"
	MessageTaskUpdated  = "task_updated"
)

// Conn is the part of *websocket.Conn the client pumps use
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Dispatcher executes the operations a live connection can request.
type Dispatcher interface {
	CreateMessage(ctx context.Context, actorID, channelID, content, excludeConnID string) (*domain.Message, error)
	PublishTaskChange(ctx context.Context, actorID string, payload json.RawMessage, excludeConnID string) error
}

// ClientMessage is an inbound frame
type ClientMessage struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ClientOptions tunes a client's queue and inbound rate limit
type ClientOptions struct {
	SendBuffer   int
	MessageRate  rate.Limit
	MessageBurst int
}

// Client is one live connection. Outbound frames go through a bounded queue
// drained by WritePump; inbound frames are handled by ReadPump.
type Client struct {
	id         string
	hub        *Hub
	conn       Conn
	send       chan []byte
	done       chan struct{}
	stopOnce   sync.Once
	userID     string
	dispatcher Dispatcher
	limiter    *rate.Limiter
	writeMu    sync.Mutex
	closed     atomic.Bool
	ctx        context.Context
	ctxCancel  context.CancelFunc
}

// NewClient creates a client for an authenticated actor. It must be passed
// to Hub.Register before the pumps are started.
func NewClient(ctx context.Context, hub *Hub, conn Conn, userID string, dispatcher Dispatcher, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.MessageRate <= 0 {
		opts.MessageRate = defaultMessageRate
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = defaultMessageBurst
	}

	clientCtx, cancel := context.WithCancel(observability.WithUserID(ctx, userID))

	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, opts.SendBuffer),
		done:       make(chan struct{}),
		userID:     userID,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(opts.MessageRate, opts.MessageBurst),
		ctx:        clientCtx,
		ctxCancel:  cancel,
	}
}

// ID returns the connection id assigned at registration
func (c *Client) ID() string {
	return c.id
}

// enqueue queues data without blocking. It reports false when the queue is
// full or the client is stopping.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// stop signals both pumps to exit. The send queue is never closed, so a
// concurrent enqueue cannot panic.
func (c *Client) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.ctxCancel()
	})
}

func (c *Client) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// ReadPump reads inbound frames until the connection fails or the client is
// stopped, then unregisters the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.closeConnection()
	}()

	log := c.logger()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Warn("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket error", slog.String("error", err.Error()))
			}
			return
		}

		if !c.limiter.Allow() {
			c.replyError("", errRateLimited)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("invalid message format", slog.String("error", err.Error()))
			c.replyError("", errInvalidFrame)
			continue
		}

		c.handle(msg)
	}
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Type {
	case MessageJoinChannel:
		c.handleJoin(msg.ChannelID)
	case MessageLeaveChannel:
		c.handleLeave(msg.ChannelID)
	case MessageSendMessage:
		c.handleSend(msg.ChannelID, msg.Content)
	case MessageTaskUpdated:
		c.handleTaskUpdated(msg.Payload)
	default:
		c.replyError(msg.ChannelID, errUnknownFrameType)
	}
}

func (c *Client) handleJoin(channelID string) {
	if channelID == "" {
		c.replyError("", errMissingChannel)
		return
	}
	if err := c.hub.Join(c.id, channelID); err != nil {
		c.replyError(channelID, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, dispatchWait)
	defer cancel()

	exists, err := c.hub.ChannelExists(ctx, channelID)
	if err != nil {
		c.logger().Warn("channel existence check failed",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()))
	}

	c.reply(domain.Event{
		Type:      domain.EventJoined,
		ChannelID: channelID,
		Data:      map[string]bool{"exists": exists},
	})
}

func (c *Client) handleLeave(channelID string) {
	if channelID == "" {
		c.replyError("", errMissingChannel)
		return
	}
	if err := c.hub.Leave(c.id, channelID); err != nil {
		c.replyError(channelID, err)
		return
	}
	c.reply(domain.Event{Type: domain.EventLeft, ChannelID: channelID})
}

func (c *Client) handleSend(channelID, content string) {
	ctx, cancel := context.WithTimeout(c.ctx, dispatchWait)
	defer cancel()

	msg, err := c.dispatcher.CreateMessage(ctx, c.userID, channelID, content, c.id)
	if err != nil {
		c.replyError(channelID, err)
		return
	}
	c.reply(domain.Event{Type: domain.EventAck, ChannelID: channelID, Data: msg})
}

func (c *Client) handleTaskUpdated(payload json.RawMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, dispatchWait)
	defer cancel()

	if err := c.dispatcher.PublishTaskChange(ctx, c.userID, payload, c.id); err != nil {
		c.replyError("", err)
	}
}

func (c *Client) reply(evt domain.Event) {
	if err := c.hub.SendTo(c.id, evt); err != nil && !errors.Is(err, ErrConnectionNotFound) {
		c.logger().Error("failed to queue reply",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()))
	}
}

func (c *Client) replyError(channelID string, err error) {
	c.reply(domain.Event{
		Type:      domain.EventError,
		ChannelID: channelID,
		Data:      map[string]string{"message": clientErrorMessage(err)},
	})
}

// clientErrorMessage exposes domain errors verbatim and hides everything else.
func clientErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnauthorized):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	default:
		return "internal error"
	}
}

// WritePump drains the send queue to the connection and keeps it alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case <-c.done:
			_ = c.writeMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger().Warn("failed to set write deadline", slog.String("error", err.Error()))
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// closeConnection safely closes the WebSocket connection
func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}

func (c *Client) logger() *slog.Logger {
	return observability.FromContext(observability.WithConnectionID(c.ctx, c.id))
}
