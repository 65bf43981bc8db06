// Package cdp implements the raw protocol driver: one persistent websocket
// to a Chromium remote-debugging target, a background reader that
// demultiplexes inbound frames into id-correlated responses and
// method-keyed events, and a synchronous Send facade on top.
package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// State describes the lifecycle of a connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Message is the wire frame. Outbound frames carry id/method/params;
// inbound frames carry either id with result or error (a response), or
// method with params (an event).
type Message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ProtocolError  `json:"error,omitempty"`
}

// pendingRequest is one in-flight command. The reader goroutine is the
// only writer to ch; completion and removal happen under Conn.mu so a
// late response and a timeout can never both claim the same entry.
type pendingRequest struct {
	method string
	ch     chan *Message
}

// Conn owns the single socket to the debugging endpoint. All commands from
// all goroutines serialize through one id counter; sends themselves may
// overlap, and each response is delivered to exactly the request carrying
// its id.
type Conn struct {
	logger *zap.Logger
	ws     *websocket.Conn

	writeMu sync.Mutex // one frame writer at a time

	mu      sync.Mutex
	pending map[int64]*pendingRequest

	nextID  atomic.Int64
	state   atomic.Int32
	events  *eventHub
	timeout time.Duration

	closeOnce sync.Once
	readDone  chan struct{}
}

// Dial connects to a remote-debugging websocket URL. commandTimeout is the
// default per-command deadline; navigation-class callers can override it
// per call with SendTimeout.
func Dial(ctx context.Context, wsURL string, commandTimeout time.Duration, logger *zap.Logger) (*Conn, error) {
	c := &Conn{
		logger:   logger.Named("cdp"),
		pending:  make(map[int64]*pendingRequest),
		events:   newEventHub(),
		timeout:  commandTimeout,
		readDone: make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
		// Full-page DOM snapshots routinely exceed the default buffer.
		ReadBufferSize:  1 << 20,
		WriteBufferSize: 1 << 20,
	}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return nil, err
	}
	c.ws = ws
	c.state.Store(int32(StateConnected))

	go c.readLoop()

	c.logger.Debug("Connected to debugging endpoint", zap.String("url", wsURL))
	return c, nil
}

// State reports the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// readLoop is the sole reader of the socket and the sole writer to the
// response and event delivery paths. It exits on socket closure or a
// decode failure, failing every still-pending request.
func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer c.failAllPending()

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if c.State() != StateClosed {
				c.logger.Debug("Reader loop terminated", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := jsonAPI.Unmarshal(frame, &msg); err != nil {
			c.logger.Error("Undecodable protocol frame, closing session", zap.Error(err))
			return
		}

		switch {
		case msg.ID != 0:
			c.deliverResponse(&msg)
		case msg.Method != "":
			c.events.publish(Event{Method: msg.Method, Params: msg.Params})
		default:
			c.logger.Debug("Frame with neither id nor method, dropped")
		}
	}
}

func (c *Conn) deliverResponse(msg *Message) {
	c.mu.Lock()
	req, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		// Late response for a command that already timed out, or a frame
		// we never sent. Either way, nobody is waiting.
		c.logger.Debug("Discarding response for unknown request id", zap.Int64("id", msg.ID))
		return
	}
	req.ch <- msg // buffered, never blocks
}

// failAllPending resolves every in-flight command with a closed-connection
// response. Runs exactly once, when the reader exits.
func (c *Conn) failAllPending() {
	c.state.Store(int32(StateClosed))
	c.events.close()

	c.mu.Lock()
	stale := c.pending
	c.pending = make(map[int64]*pendingRequest)
	c.mu.Unlock()

	for _, req := range stale {
		req.ch <- nil // nil response means connection closed
	}
}

// Send issues a command and blocks until its response, the default command
// timeout, or context cancellation.
func (c *Conn) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.SendTimeout(ctx, method, params, c.timeout)
}

// SendTimeout is Send with an explicit per-command deadline.
func (c *Conn) SendTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if c.State() != StateConnected {
		return nil, ErrConnectionClosed
	}

	var rawParams json.RawMessage
	if params != nil {
		encoded, err := jsonAPI.Marshal(params)
		if err != nil {
			return nil, err
		}
		rawParams = encoded
	} else {
		rawParams = json.RawMessage(`{}`)
	}

	id := c.nextID.Add(1)
	req := &pendingRequest{
		method: method,
		ch:     make(chan *Message, 1),
	}
	c.mu.Lock()
	c.pending[id] = req
	c.mu.Unlock()

	// Re-check after registering: failAllPending marks the state closed
	// before it swaps the pending map, so an entry registered after the
	// swap is only reachable through this check.
	if c.State() != StateConnected {
		c.removePending(id)
		return nil, ErrConnectionClosed
	}

	frame := Message{ID: id, Method: method, Params: rawParams}
	c.writeMu.Lock()
	err := c.ws.WriteJSON(&frame)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(id)
		return nil, ErrConnectionClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-req.ch:
		if msg == nil {
			return nil, ErrConnectionClosed
		}
		if msg.Error != nil {
			msg.Error.Method = method
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-timer.C:
		c.removePending(id)
		return nil, &CommandTimeoutError{Method: method, Timeout: timeout}
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

func (c *Conn) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// WaitFor registers an event waiter for a method name. Register before
// sending the command that triggers the event.
func (c *Conn) WaitFor(method string) *EventWaiter {
	return c.events.waitFor(method)
}

// Close tears the socket down. All pending commands fail with
// ErrConnectionClosed; Close waits for the reader to finish so no delivery
// races the teardown.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		err = c.ws.Close()
		<-c.readDone
	})
	return err
}
