package websocket

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Janekook7/AudioVideoServer/domain"
)

type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Conn binds one upgraded socket to a device slot. Reads happen on the
// goroutine running Serve; writes are serialized and never queued.
type Conn struct {
	id      string
	device  string
	ws      *websocket.Conn
	relay   domain.Relay
	handler domain.MessageHandler
	opts    Options

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// withDefaults replaces non-positive settings, which would otherwise expire
// every write or stop the keepalive ticker.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = def.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = def.PongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = def.MaxMessageSize
	}
	return o
}

func NewConn(id, device string, ws *websocket.Conn, r domain.Relay, h domain.MessageHandler, opts Options) *Conn {
	opts = opts.withDefaults()
	return &Conn{
		id:      id,
		device:  device,
		ws:      ws,
		relay:   r,
		handler: h,
		opts:    opts,
		done:    make(chan struct{}),
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) Device() string { return c.device }

func (c *Conn) Send(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Conn) SendText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Serve registers the connection, runs the receive loop until the socket
// fails or closes, then releases the slot. It blocks for the connection's
// whole life.
func (c *Conn) Serve() domain.Outcome {
	c.relay.Register(c)
	go c.keepalive()

	outcome := c.readLoop()

	c.relay.Unregister(c)
	c.Close()

	if outcome.Kind == domain.ClosedNormally {
		slog.Debug("connection closed", "device", c.device, "clientId", c.id)
	} else {
		slog.Warn("connection closed with error", "device", c.device, "clientId", c.id, "cause", outcome.Cause, "error", outcome.Err)
	}
	return outcome
}

func (c *Conn) readLoop() domain.Outcome {
	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return classify(err)
		}
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		switch messageType {
		case websocket.BinaryMessage:
			c.handler.Handle(c, domain.BinaryMessage, data)
		case websocket.TextMessage:
			c.handler.Handle(c, domain.TextMessage, data)
		}
	}
}

func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func classify(err error) domain.Outcome {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return domain.Outcome{Kind: domain.ClosedNormally}
	}
	if errors.Is(err, net.ErrClosed) {
		return domain.Outcome{Kind: domain.ClosedNormally}
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return domain.Outcome{Kind: domain.ClosedWithError, Cause: "oversize", Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.Outcome{Kind: domain.ClosedWithError, Cause: "timeout", Err: err}
	}
	return domain.Outcome{Kind: domain.ClosedWithError, Cause: "transport", Err: err}
}
