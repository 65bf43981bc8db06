package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// stubEndpoint is a scripted remote-debugging endpoint: the handler
// receives decoded frames and may write frames back at will.
type stubEndpoint struct {
	t       *testing.T
	server  *httptest.Server
	handler func(s *stubSession, msg Message)

	mu       sync.Mutex
	sessions []*stubSession
}

type stubSession struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (s *stubSession) write(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.WriteJSON(v)
}

func (s *stubSession) reply(id int64, result string) {
	s.write(map[string]any{"id": id, "result": json.RawMessage(result)})
}

func (s *stubSession) event(method, params string) {
	s.write(map[string]any{"method": method, "params": json.RawMessage(params)})
}

func newStubEndpoint(t *testing.T, handler func(s *stubSession, msg Message)) *stubEndpoint {
	t.Helper()
	ep := &stubEndpoint{t: t, handler: handler}
	upgrader := websocket.Upgrader{}
	ep.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		sess := &stubSession{ws: ws}
		ep.mu.Lock()
		ep.sessions = append(ep.sessions, sess)
		ep.mu.Unlock()
		for {
			var msg Message
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if ep.handler != nil {
				ep.handler(sess, msg)
			}
		}
	}))
	t.Cleanup(ep.server.Close)
	return ep
}

func (ep *stubEndpoint) wsURL() string {
	return "ws" + strings.TrimPrefix(ep.server.URL, "http")
}

func dialStub(t *testing.T, ep *stubEndpoint, timeout time.Duration) *Conn {
	t.Helper()
	conn, err := Dial(context.Background(), ep.wsURL(), timeout, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// TestMain verifies no goroutine leaks once every connection and stub
// server has shut down.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSend_RoundTrip(t *testing.T) {
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		assert.Equal(t, "Runtime.evaluate", msg.Method)
		s.reply(msg.ID, `{"result":{"value":42}}`)
	})
	conn := dialStub(t, ep, 5*time.Second)

	res, err := conn.Send(context.Background(), "Runtime.evaluate", map[string]any{"expression": "6*7"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"value":42}}`, string(res))

	require.NoError(t, conn.Close())
}

func TestSend_IDsUniqueAndStrictlyIncreasing(t *testing.T) {
	var mu sync.Mutex
	var seen []int64
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		mu.Lock()
		seen = append(seen, msg.ID)
		mu.Unlock()
		s.reply(msg.ID, `{}`)
	})
	conn := dialStub(t, ep, 5*time.Second)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := conn.Send(context.Background(), "Page.enable", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.NoError(t, conn.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, n)
	unique := make(map[int64]bool, n)
	for _, id := range seen {
		assert.Positive(t, id)
		assert.False(t, unique[id], "request id %d reused", id)
		unique[id] = true
	}
}

func TestSend_ProtocolError(t *testing.T) {
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		s.write(map[string]any{
			"id":    msg.ID,
			"error": map[string]any{"code": -32000, "message": "Cannot find context"},
		})
	})
	conn := dialStub(t, ep, 5*time.Second)

	_, err := conn.Send(context.Background(), "Runtime.evaluate", nil)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Runtime.evaluate", perr.Method)
	assert.Equal(t, -32000, perr.Code)
	assert.Equal(t, "Cannot find context", perr.Message)

	require.NoError(t, conn.Close())
}

func TestSend_Timeout_RemovesStaleEntry(t *testing.T) {
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		// Never answer.
	})
	conn := dialStub(t, ep, 5*time.Second)

	_, err := conn.SendTimeout(context.Background(), "Page.navigate", nil, 50*time.Millisecond)
	var terr *CommandTimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "Page.navigate", terr.Method)

	conn.mu.Lock()
	remaining := len(conn.pending)
	conn.mu.Unlock()
	assert.Zero(t, remaining, "timed-out request left in pending table")

	require.NoError(t, conn.Close())
}

func TestReadLoop_UnknownIDDiscarded_NoCrossTalk(t *testing.T) {
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		// Answer with a bogus id first, then the real one.
		s.reply(msg.ID+1000, `{"bogus":true}`)
		s.reply(msg.ID, `{"ok":true}`)
	})
	conn := dialStub(t, ep, 5*time.Second)

	res, err := conn.Send(context.Background(), "DOM.enable", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(res))

	require.NoError(t, conn.Close())
}

func TestClose_FailsAllPendingWithConnectionClosed(t *testing.T) {
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		// Never answer; both commands stay in flight.
	})
	conn := dialStub(t, ep, 30*time.Second)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := conn.Send(context.Background(), "Page.enable", nil)
			errs <- err
		}()
	}
	// Let both commands register before closing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, conn.Close())

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrConnectionClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("pending command hung after close")
		}
	}
}

func TestSend_AfterClose(t *testing.T) {
	ep := newStubEndpoint(t, nil)
	conn := dialStub(t, ep, time.Second)
	require.NoError(t, conn.Close())

	_, err := conn.Send(context.Background(), "Page.enable", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, StateClosed, conn.State())
}

func TestWaitFor_EventBeforeWaitIsNotMissed(t *testing.T) {
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		if msg.Method == "Page.navigate" {
			// Fire the event before replying to the command, mimicking a
			// fast load.
			s.event("Page.loadEventFired", `{"timestamp":1}`)
			s.reply(msg.ID, `{"frameId":"F1"}`)
		}
	})
	conn := dialStub(t, ep, 5*time.Second)

	waiter := conn.WaitFor("Page.loadEventFired")
	defer waiter.Cancel()

	_, err := conn.Send(context.Background(), "Page.navigate", map[string]any{"url": "https://example.test"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := waiter.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Page.loadEventFired", ev.Method)

	require.NoError(t, conn.Close())
}

func TestWaitFor_UnconsumedEventsDropped(t *testing.T) {
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		for i := 0; i < waiterBacklog*3; i++ {
			s.event("Network.requestWillBeSent", `{"n":1}`)
		}
		s.reply(msg.ID, `{}`)
	})
	conn := dialStub(t, ep, 5*time.Second)

	waiter := conn.WaitFor("Network.requestWillBeSent")
	defer waiter.Cancel()

	_, err := conn.Send(context.Background(), "Network.enable", nil)
	require.NoError(t, err)

	// The backlog is bounded; the waiter still sees recent events and the
	// reader never blocked on the flood.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = waiter.Wait(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
}

func TestWaitFor_CloseReleasesWaiter(t *testing.T) {
	ep := newStubEndpoint(t, nil)
	conn := dialStub(t, ep, time.Second)

	waiter := conn.WaitFor("Page.loadEventFired")
	done := make(chan error, 1)
	go func() {
		_, err := waiter.Wait(context.Background())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter hung after close")
	}
}

func TestReadLoop_DecodeFailureClosesSession(t *testing.T) {
	ep := newStubEndpoint(t, func(s *stubSession, msg Message) {
		s.writeMu.Lock()
		_ = s.ws.WriteMessage(websocket.TextMessage, []byte("this is not json"))
		s.writeMu.Unlock()
	})
	conn := dialStub(t, ep, 2*time.Second)

	_, err := conn.Send(context.Background(), "Page.enable", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionClosed) || isTimeout(err))

	// The session must be unusable afterwards.
	assert.Eventually(t, func() bool {
		return conn.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)
}

func isTimeout(err error) bool {
	var terr *CommandTimeoutError
	return errors.As(err, &terr)
}
