package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/knrv/webpilot/api/schemas"
)

// Element is a resolved page element, addressed by a structural
// nth-child path that stays stable until the DOM mutates.
type Element struct {
	Selector string
	Tier     int
}

// jsHelpers defines visible() and path() for the resolver scripts.
// path() produces an nth-child chain from the document root so later
// interactions address the exact node that was matched.
const jsHelpers = `
  const visible = (el) => {
    if (!el) return false;
    const st = window.getComputedStyle(el);
    if (st.display === 'none' || st.visibility === 'hidden' || st.opacity === '0') return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  };
  const path = (el) => {
    const parts = [];
    while (el && el.nodeType === Node.ELEMENT_NODE && el !== document.documentElement) {
      let idx = 1, sib = el;
      while ((sib = sib.previousElementSibling) !== null) idx++;
      parts.unshift(el.tagName.toLowerCase() + ':nth-child(' + idx + ')');
      el = el.parentElement;
    }
    return 'html > ' + parts.join(' > ');
  };`

// Resolve locates a visible element for target, trying the planner's
// candidate selectors first, then a role-driven scan of the live DOM,
// then the per-site override table for the current host.
func (s *Session) Resolve(ctx context.Context, target schemas.ElementTarget) (Element, error) {
	attempted := append([]string(nil), target.Selectors...)

	if len(target.Selectors) > 0 {
		path, err := s.firstVisible(ctx, target.Selectors)
		if err != nil {
			return Element{}, err
		}
		if path != "" {
			return Element{Selector: path, Tier: 1}, nil
		}
	}

	path, err := s.scanByRole(ctx, target.Role)
	if err != nil {
		return Element{}, err
	}
	if path != "" {
		s.logger.Debug("Resolved element by role scan.",
			zap.String("role", string(target.Role)), zap.String("path", path))
		return Element{Selector: path, Tier: 2}, nil
	}

	for _, sel := range overridesFor(s.CurrentURL(), target.Role) {
		attempted = append(attempted, sel)
		path, err := s.firstVisible(ctx, []string{sel})
		if err != nil {
			return Element{}, err
		}
		if path != "" {
			s.logger.Debug("Resolved element by site override.", zap.String("selector", sel))
			return Element{Selector: path, Tier: 3}, nil
		}
	}

	return Element{}, &ElementNotFoundError{Attempted: attempted}
}

// firstVisible returns the structural path of the first visible match
// across the candidate selectors, or "" when none match. Selectors the
// page rejects as malformed are skipped rather than failing the tier.
func (s *Session) firstVisible(ctx context.Context, selectors []string) (string, error) {
	script := fmt.Sprintf(`(() => {%s
  const candidates = %s;
  for (const sel of candidates) {
    let found;
    try { found = document.querySelectorAll(sel); } catch (e) { continue; }
    for (const el of found) {
      if (visible(el)) return path(el);
    }
  }
  return null;
})()`, jsHelpers, jsStringArray(selectors))

	v, err := s.Evaluate(ctx, script)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// scanByRole walks the live DOM for elements that plausibly fill the
// target's role. The first visible match in DOM order wins; the role
// filter is the only ranking applied.
func (s *Session) scanByRole(ctx context.Context, role schemas.TargetRole) (string, error) {
	var scan string
	switch role {
	case schemas.RoleType:
		scan = `
  const pool = document.querySelectorAll('input:not([type=hidden]), textarea, [contenteditable=true]');
  const ok = (el) => {
    if (el.tagName === 'INPUT') {
      const t = (el.type || 'text').toLowerCase();
      if (!['text', 'search', 'email', 'password', 'url', 'tel', 'number'].includes(t)) return false;
    }
    return visible(el);
  };`
	case schemas.RoleClick:
		scan = `
  const pool = document.querySelectorAll('button, a[href], [role=button], input[type=submit], input[type=button]');
  const ok = visible;`
	case schemas.RoleHeadline:
		scan = `
  const pool = document.querySelectorAll('h1, h2, h3, article a, [role=heading]');
  const ok = (el) => visible(el) && (el.textContent || '').trim().length > 10;`
	case schemas.RolePrice:
		scan = `
  const pool = document.querySelectorAll('[class*=price], [id*=price], [itemprop=price], span, strong');
  const ok = (el) => visible(el) && /[$€£¥]\s*\d|\d+[.,]\d{2}/.test((el.textContent || '').trim());`
	default:
		return "", nil
	}

	script := fmt.Sprintf(`(() => {%s%s
  for (const el of pool) {
    if (ok(el)) return path(el);
  }
  return null;
})()`, jsHelpers, scan)

	v, err := s.Evaluate(ctx, script)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
