// Package session drives a single page target over an established
// debugging connection: navigation, script evaluation, element
// resolution and the interaction primitives built on top of them.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/knrv/webpilot/internal/browser/cdp"
	"github.com/knrv/webpilot/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// EventWaiter is the subset of the connection's waiter used by the
// session. Registered before the triggering command is sent so events
// firing in between are retained.
type EventWaiter interface {
	Wait(ctx context.Context) (cdp.Event, error)
	Cancel()
}

// Commander abstracts the connection so session logic can be exercised
// against a scripted transport in tests.
type Commander interface {
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
	SendTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
	WaitFor(method string) EventWaiter
	Close() error
}

type connCommander struct {
	conn *cdp.Conn
}

func (c connCommander) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.conn.Send(ctx, method, params)
}

func (c connCommander) SendTimeout(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	return c.conn.SendTimeout(ctx, method, params, timeout)
}

func (c connCommander) WaitFor(method string) EventWaiter { return c.conn.WaitFor(method) }
func (c connCommander) Close() error                      { return c.conn.Close() }

// Session owns one attached page target. Not safe for concurrent use;
// the orchestrator serializes all calls.
type Session struct {
	conn   Commander
	cfg    config.NetworkConfig
	logger *zap.Logger

	mu         sync.Mutex
	currentURL string
}

// Attach enables the protocol domains the session depends on and
// returns a ready session. The connection is adopted: closing the
// session closes it.
func Attach(ctx context.Context, conn *cdp.Conn, cfg config.NetworkConfig, logger *zap.Logger) (*Session, error) {
	return attach(ctx, connCommander{conn: conn}, cfg, logger)
}

func attach(ctx context.Context, conn Commander, cfg config.NetworkConfig, logger *zap.Logger) (*Session, error) {
	s := &Session{conn: conn, cfg: cfg, logger: logger.Named("session")}
	for _, domain := range []string{"Page.enable", "Runtime.enable", "DOM.enable"} {
		if _, err := conn.Send(ctx, domain, nil); err != nil {
			return nil, fmt.Errorf("enabling %s: %w", domain, err)
		}
	}
	return s, nil
}

// CurrentURL returns the last URL a successful Navigate committed to.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

func (s *Session) setCurrentURL(u string) {
	s.mu.Lock()
	s.currentURL = u
	s.mu.Unlock()
}

// Navigate loads url and blocks until the page's load event fires or
// the navigation timeout elapses. A timeout is logged and tolerated:
// heavy pages are frequently usable before load, and the settle delay
// that follows gives late scripts room to run.
func (s *Session) Navigate(ctx context.Context, url string) error {
	waiter := s.conn.WaitFor("Page.loadEventFired")
	defer waiter.Cancel()

	res, err := s.conn.Send(ctx, "Page.navigate", map[string]any{"url": url})
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	var nav struct {
		ErrorText string `json:"errorText"`
	}
	if err := jsonAPI.Unmarshal(res, &nav); err == nil && nav.ErrorText != "" {
		return fmt.Errorf("navigating to %s: %s", url, nav.ErrorText)
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	if _, err := waiter.Wait(loadCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Load event did not fire before deadline, continuing.",
			zap.String("url", url), zap.Duration("timeout", s.cfg.NavigationTimeout))
	}
	s.setCurrentURL(url)
	return s.Settle(ctx)
}

// Settle sleeps the configured settle delay, honoring ctx.
func (s *Session) Settle(ctx context.Context) error {
	if s.cfg.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Value is the outcome of a script evaluation. Null and undefined
// results are values, not errors.
type Value struct {
	raw  json.RawMessage
	desc string
}

// IsNull reports whether the script produced null or undefined.
func (v Value) IsNull() bool {
	return len(v.raw) == 0 || string(v.raw) == "null"
}

// String returns the result as a string. Non-string primitives come
// back via their description, objects via their JSON form.
func (v Value) String() string {
	if v.IsNull() {
		return ""
	}
	var str string
	if err := jsonAPI.Unmarshal(v.raw, &str); err == nil {
		return str
	}
	if v.desc != "" {
		return v.desc
	}
	return string(v.raw)
}

// Bool returns the result as a boolean, false when it is anything else.
func (v Value) Bool() bool {
	var b bool
	if err := jsonAPI.Unmarshal(v.raw, &b); err == nil {
		return b
	}
	return false
}

// Decode unmarshals an object result into out.
func (v Value) Decode(out any) error {
	if v.IsNull() {
		return fmt.Errorf("session: cannot decode null result")
	}
	return jsonAPI.Unmarshal(v.raw, out)
}

// Evaluate runs expr in the page, awaiting promises and serializing the
// result by value. A thrown exception returns a ScriptError.
func (s *Session) Evaluate(ctx context.Context, expr string) (Value, error) {
	res, err := s.conn.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return Value{}, err
	}
	var eval struct {
		Result struct {
			Type        string          `json:"type"`
			Value       json.RawMessage `json:"value"`
			Description string          `json:"description"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := jsonAPI.Unmarshal(res, &eval); err != nil {
		return Value{}, fmt.Errorf("decoding evaluate result: %w", err)
	}
	if eval.ExceptionDetails != nil {
		text := eval.ExceptionDetails.Text
		if ex := eval.ExceptionDetails.Exception; ex != nil && ex.Description != "" {
			text = ex.Description
		}
		return Value{}, &ScriptError{Text: text}
	}
	return Value{raw: eval.Result.Value, desc: eval.Result.Description}, nil
}

// HTML returns the page's current outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	v, err := s.Evaluate(ctx, "document.documentElement.outerHTML")
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// jsString renders s as a quoted JavaScript string literal.
func jsString(s string) string {
	b, err := jsonAPI.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return string(b)
}

// jsStringArray renders list as a JavaScript array literal of strings.
func jsStringArray(list []string) string {
	b, err := jsonAPI.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}
