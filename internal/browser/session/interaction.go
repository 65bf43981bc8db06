package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knrv/webpilot/api/schemas"
)

// WaitVisible polls until selector matches a visible element, failing
// with a WaitTimeoutError once the budget runs out.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(s.cfg.WaitPollInterval)
	defer ticker.Stop()
	for {
		path, err := s.firstVisible(ctx, []string{selector})
		if err != nil {
			return err
		}
		if path != "" {
			return nil
		}
		if time.Now().After(deadline) {
			return &WaitTimeoutError{Selector: selector, Timeout: timeout}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Click resolves target and clicks it, first by dispatching the full
// pointer event sequence in the page, then through synthesized input at
// the element's box center when the page swallows scripted events.
func (s *Session) Click(ctx context.Context, target schemas.ElementTarget) error {
	el, err := s.Resolve(ctx, target)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return 'missing';
  el.scrollIntoView({block: 'center', inline: 'center'});
  const r = el.getBoundingClientRect();
  const opts = {bubbles: true, cancelable: true, view: window,
    clientX: r.left + r.width / 2, clientY: r.top + r.height / 2};
  for (const type of ['pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click']) {
    el.dispatchEvent(new MouseEvent(type, opts));
  }
  return 'clicked';
})()`, jsString(el.Selector))

	v, err := s.Evaluate(ctx, script)
	if err == nil && v.String() == "clicked" {
		return s.Settle(ctx)
	}
	var scriptErr *ScriptError
	if err != nil && !errors.As(err, &scriptErr) {
		return err
	}
	s.logger.Debug("Scripted click failed, falling back to synthesized input.",
		zap.String("selector", el.Selector), zap.Error(err))

	if err := s.clickByInput(ctx, el.Selector); err != nil {
		return err
	}
	return s.Settle(ctx)
}

// clickByInput locates the element through the DOM domain and fires a
// left press/release pair at its content box center.
func (s *Session) clickByInput(ctx context.Context, selector string) error {
	res, err := s.conn.Send(ctx, "DOM.getDocument", map[string]any{"depth": 0})
	if err != nil {
		return err
	}
	var doc struct {
		Root struct {
			NodeID int64 `json:"nodeId"`
		} `json:"root"`
	}
	if err := jsonAPI.Unmarshal(res, &doc); err != nil {
		return fmt.Errorf("decoding document root: %w", err)
	}

	res, err = s.conn.Send(ctx, "DOM.querySelector", map[string]any{
		"nodeId":   doc.Root.NodeID,
		"selector": selector,
	})
	if err != nil {
		return err
	}
	var node struct {
		NodeID int64 `json:"nodeId"`
	}
	if err := jsonAPI.Unmarshal(res, &node); err != nil {
		return fmt.Errorf("decoding query result: %w", err)
	}
	if node.NodeID == 0 {
		return &ElementNotFoundError{Attempted: []string{selector}}
	}

	res, err = s.conn.Send(ctx, "DOM.getBoxModel", map[string]any{"nodeId": node.NodeID})
	if err != nil {
		return err
	}
	var box struct {
		Model struct {
			Content []float64 `json:"content"`
		} `json:"model"`
	}
	if err := jsonAPI.Unmarshal(res, &box); err != nil {
		return fmt.Errorf("decoding box model: %w", err)
	}
	if len(box.Model.Content) < 8 {
		return fmt.Errorf("session: element %q has no box model", selector)
	}
	// Content quad is four x,y corner pairs.
	x := (box.Model.Content[0] + box.Model.Content[2] + box.Model.Content[4] + box.Model.Content[6]) / 4
	y := (box.Model.Content[1] + box.Model.Content[3] + box.Model.Content[5] + box.Model.Content[7]) / 4

	for _, kind := range []string{"mousePressed", "mouseReleased"} {
		if _, err := s.conn.Send(ctx, "Input.dispatchMouseEvent", map[string]any{
			"type":       kind,
			"x":          x,
			"y":          y,
			"button":     "left",
			"clickCount": 1,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Type resolves target, focuses and clears it, then inserts text one
// character at a time through the input domain with a human-ish delay.
// The field's value is read back afterwards; a mismatch triggers one
// direct-assignment fallback before failing.
func (s *Session) Type(ctx context.Context, target schemas.ElementTarget, text string) error {
	el, err := s.Resolve(ctx, target)
	if err != nil {
		return err
	}

	focus := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return 'missing';
  el.scrollIntoView({block: 'center'});
  el.focus();
  if ('value' in el) el.value = '';
  else if (el.isContentEditable) el.textContent = '';
  return 'focused';
})()`, jsString(el.Selector))
	v, err := s.Evaluate(ctx, focus)
	if err != nil {
		return err
	}
	if v.String() != "focused" {
		return &ElementNotFoundError{Attempted: []string{el.Selector}}
	}

	for _, ch := range text {
		if _, err := s.conn.Send(ctx, "Input.insertText", map[string]any{"text": string(ch)}); err != nil {
			return err
		}
		if s.cfg.TypeCharDelay > 0 {
			timer := time.NewTimer(s.cfg.TypeCharDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	notify := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
})()`, jsString(el.Selector))
	if _, err := s.Evaluate(ctx, notify); err != nil {
		return err
	}

	got, err := s.fieldValue(ctx, el.Selector)
	if err != nil {
		return err
	}
	if got == text {
		return nil
	}
	s.logger.Debug("Typed value mismatch, retrying with direct assignment.",
		zap.String("selector", el.Selector), zap.String("got", got))

	assign := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return 'missing';
  el.focus();
  if ('value' in el) el.value = %s;
  else if (el.isContentEditable) el.textContent = %s;
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return 'assigned';
})()`, jsString(el.Selector), jsString(text), jsString(text))
	if _, err := s.Evaluate(ctx, assign); err != nil {
		return err
	}
	got, err = s.fieldValue(ctx, el.Selector)
	if err != nil {
		return err
	}
	if got != text {
		return &TypeVerificationError{Selector: el.Selector, Want: text, Got: got}
	}
	return nil
}

func (s *Session) fieldValue(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return null;
  if ('value' in el) return el.value;
  return el.textContent;
})()`, jsString(selector))
	v, err := s.Evaluate(ctx, script)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// PressEnter sends an Enter key press to target, or to whatever element
// currently holds focus when target is empty. When the key events do
// not submit anything, the enclosing form is submitted directly.
func (s *Session) PressEnter(ctx context.Context, target schemas.ElementTarget) error {
	selector := ""
	if len(target.Selectors) > 0 || target.Role != "" {
		el, err := s.Resolve(ctx, target)
		if err != nil {
			return err
		}
		selector = el.Selector
		focus := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (el) el.focus();
})()`, jsString(selector))
		if _, err := s.Evaluate(ctx, focus); err != nil {
			return err
		}
	}

	for _, kind := range []string{"keyDown", "keyUp"} {
		params := map[string]any{
			"type":                  kind,
			"key":                   "Enter",
			"code":                  "Enter",
			"windowsVirtualKeyCode": 13,
			"nativeVirtualKeyCode":  13,
		}
		if kind == "keyDown" {
			params["text"] = "\r"
		}
		if _, err := s.conn.Send(ctx, "Input.dispatchKeyEvent", params); err != nil {
			return err
		}
	}

	if selector != "" {
		submit := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (el && el.form && typeof el.form.requestSubmit === 'function') {
    el.form.requestSubmit();
    return 'submitted';
  }
  return 'none';
})()`, jsString(selector))
		if _, err := s.Evaluate(ctx, submit); err != nil {
			var scriptErr *ScriptError
			if !errors.As(err, &scriptErr) {
				return err
			}
			s.logger.Debug("Form submit fallback threw, relying on key events.", zap.Error(err))
		}
	}
	return s.Settle(ctx)
}

// ExtractText resolves target and returns its trimmed visible text.
func (s *Session) ExtractText(ctx context.Context, target schemas.ElementTarget) (string, error) {
	el, err := s.Resolve(ctx, target)
	if err != nil {
		return "", err
	}
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return null;
  return (el.innerText || el.textContent || '').trim();
})()`, jsString(el.Selector))
	v, err := s.Evaluate(ctx, script)
	if err != nil {
		return "", err
	}
	if v.IsNull() {
		return "", &ElementNotFoundError{Attempted: []string{el.Selector}}
	}
	return v.String(), nil
}
