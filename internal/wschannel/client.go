// Package wschannel implements the detection channel over a WebSocket.
//
// Every request is one binary message carrying an encoded frame. The service
// answers each frame, in order, with one JSON message:
//
//	{"detections": [{"class": "car", "confidence": 0.91, "x": 10, "y": 20, "w": 30, "h": 40}], "stats": {"car": 1}}
//
// Responses carry no correlation id, so they are matched to requests by
// arrival order.
package wschannel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/pkg/errors"

	"github.com/LdDl/mot-linecount/mot"
	"github.com/LdDl/mot-linecount/pump"
)

// ErrNotConnected is returned by Send while no connection is established.
var ErrNotConnected = errors.New("detection channel is not connected")

const (
	defaultReconnectDelay = time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultReadLimit      = 1 << 20
)

// Handler receives responses and connectivity changes. Calls are made from
// the Run goroutine and must not block for long.
type Handler interface {
	OnResponse(resp pump.Response)
	OnConnectivity(up bool)
}

// Client is a reconnecting detection channel. It implements [pump.Channel].
type Client struct {
	url            string
	reconnectDelay time.Duration
	writeTimeout   time.Duration
	logger         *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	// Sequence numbers of sent requests still waiting for an answer, oldest first
	pending []uint64
}

// Option configures Client
type Option func(*Client)

// WithReconnectDelay sets pause before redialing after the connection is lost
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		c.reconnectDelay = d
	}
}

// WithWriteTimeout bounds a single frame write
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.writeTimeout = d
	}
}

// WithLogger sets logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates client for the given ws:// or wss:// URL. Nothing is dialed until Run.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		reconnectDelay: defaultReconnectDelay,
		writeTimeout:   defaultWriteTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run keeps the connection alive until ctx is done, redialing after
// reconnectDelay whenever it drops. It always returns a non-nil error.
func (c *Client) Run(ctx context.Context, h Handler) error {
	for {
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("detection channel dial failed", "url", c.url, "error", err)
		} else {
			conn.SetReadLimit(defaultReadLimit)
			c.setConn(conn)
			c.logger.Info("detection channel connected", "url", c.url)
			h.OnConnectivity(true)

			err = c.readLoop(ctx, conn, h)

			c.setConn(nil)
			conn.Close(websocket.StatusNormalClosure, "")
			h.OnConnectivity(false)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("detection channel closed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

// Send writes the encoded frame of req as one binary message.
func (c *Client) Send(ctx context.Context, req pump.Request) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.pending = append(c.pending, req.Seq)
	c.mu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageBinary, req.Frame); err != nil {
		c.forget(req.Seq)
		return errors.Wrapf(err, "Can't send frame %d", req.Seq)
	}
	return nil
}

// Connected reports whether a connection is currently established
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, h Handler) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		seq, ok := c.popPending()
		if !ok {
			c.logger.Debug("unsolicited message from detection service dropped", "bytes", len(data))
			continue
		}
		h.OnResponse(decodeResponse(seq, data, c.logger))
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	// Requests of a dead connection will never be answered
	c.pending = c.pending[:0]
}

func (c *Client) popPending() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return 0, false
	}
	seq := c.pending[0]
	c.pending = c.pending[1:]
	return seq, true
}

func (c *Client) forget(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.pending {
		if s == seq {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

type detectionPayload struct {
	// Service side track id, not used
	ID         string  `json:"id"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

type responsePayload struct {
	Detections []detectionPayload `json:"detections"`
	Stats      map[string]int     `json:"stats"`
}

// decodeResponse turns one service message into a response. Invalid
// detections are dropped one by one; an undecodable message resolves the
// request as malformed.
func decodeResponse(seq uint64, data []byte, logger *slog.Logger) pump.Response {
	var payload *responsePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return pump.Response{Seq: seq, Err: errors.Wrapf(pump.ErrMalformedResponse, "%v", err)}
	}
	if payload == nil {
		return pump.Response{Seq: seq, Err: errors.Wrap(pump.ErrMalformedResponse, "empty payload")}
	}
	detections := make([]mot.Detection, 0, len(payload.Detections))
	for i, d := range payload.Detections {
		detection, err := mot.NewDetection(d.Class, d.Confidence, d.X, d.Y, d.W, d.H)
		if err != nil {
			logger.Debug("invalid detection dropped", "seq", seq, "index", i, "error", err)
			continue
		}
		detections = append(detections, detection)
	}
	return pump.Response{
		Seq:        seq,
		Detections: detections,
		Stats:      payload.Stats,
	}
}
