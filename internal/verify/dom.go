package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/obikwelu/resulthawk/internal/browser"
)

// fieldKind selects the fallback heuristic when every named selector misses:
// grab the first plausible empty control of the right kind on the page.
// Tolerating unannounced markup changes is the point, not an edge case.
type fieldKind string

const (
	kindSelect fieldKind = "select"
	kindText   fieldKind = "text"
	kindSecret fieldKind = "secret"
)

var fallbackFillJS = map[fieldKind]string{
	kindSelect: `(() => {
		const els = Array.from(document.querySelectorAll('select'))
			.filter(e => e.offsetParent !== null && !e.dataset.rhFilled);
		if (els.length === 0) return false;
		const el = els[0];
		el.value = %q;
		el.dataset.rhFilled = '1';
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`,
	kindText: `(() => {
		const els = Array.from(document.querySelectorAll("input[type='text'], input:not([type])"))
			.filter(e => e.offsetParent !== null && e.value === '');
		if (els.length === 0) return false;
		const el = els[0];
		el.value = %q;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	})()`,
	kindSecret: `(() => {
		const els = Array.from(document.querySelectorAll("input[type='password'], input[type='text'], input:not([type])"))
			.filter(e => e.offsetParent !== null && e.value === '');
		if (els.length === 0) return false;
		const el = els[0];
		el.value = %q;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	})()`,
}

// fillField writes value into the first matching selector candidate, falling
// back to the positional heuristic for kind when every candidate misses.
// Text and secret inputs are typed key by key so the portals' keystroke
// validators fire; selects get their value set directly.
func fillField(ctx context.Context, sess browser.Session, name string, candidates []string, kind fieldKind, value string) error {
	for _, sel := range candidates {
		found, err := sess.Exists(ctx, sel)
		if err != nil {
			return fmt.Errorf("probe %s selector %q: %w", name, sel, err)
		}
		if !found {
			continue
		}
		fill := sess.SetValue
		if kind != kindSelect {
			fill = sess.SendKeys
		}
		if err := fill(ctx, sel, value); err != nil {
			return fmt.Errorf("fill %s via %q: %w", name, sel, err)
		}
		return nil
	}

	var filled bool
	if err := sess.Evaluate(ctx, fmt.Sprintf(fallbackFillJS[kind], value), &filled); err != nil {
		return fmt.Errorf("fallback fill %s: %w", name, err)
	}
	if !filled {
		return fmt.Errorf("no element found for field %s", name)
	}
	return nil
}

// clickFirst clicks the first selector candidate present on the page.
func clickFirst(ctx context.Context, sess browser.Session, name string, candidates []string) error {
	for _, sel := range candidates {
		found, err := sess.Exists(ctx, sel)
		if err != nil {
			return fmt.Errorf("probe %s selector %q: %w", name, sel, err)
		}
		if !found {
			continue
		}
		if err := sess.Click(ctx, sel); err != nil {
			return fmt.Errorf("click %s via %q: %w", name, sel, err)
		}
		return nil
	}
	return fmt.Errorf("no element found for %s", name)
}

// Overlay dismissal candidates: visible dialog-role containers and the close
// or accept affordances portals commonly put in them.
var (
	overlaySelectors = []string{
		"[role='dialog']",
		".modal.show",
		".modal.in",
		".swal2-container",
	}
	overlayCloseSelectors = []string{
		"[role='dialog'] button.close",
		"[role='dialog'] [aria-label='Close']",
		".modal.show button.close",
		".modal.in button.close",
		".swal2-confirm",
		".swal2-close",
		"[role='dialog'] button",
	}
)

// dismissOverlays is a best-effort, provider-agnostic sweep of modal
// overlays. Portals frequently show a privacy or instructions modal on first
// load, and failing to dismiss it silently blocks all later field
// interaction. Failures here are swallowed; an escape keypress is the last
// resort.
func dismissOverlays(ctx context.Context, sess browser.Session) {
	var present bool
	for _, sel := range overlaySelectors {
		found, err := sess.Exists(ctx, sel)
		if err == nil && found {
			present = true
			break
		}
	}
	if !present {
		return
	}

	for _, sel := range overlayCloseSelectors {
		found, err := sess.Exists(ctx, sel)
		if err != nil || !found {
			continue
		}
		if err := sess.Click(ctx, sel); err == nil {
			return
		}
	}

	_ = sess.KeyPress(ctx, "Escape")
}

// Confirmation sub-dialogs some portals raise between the submit click and
// the actual submission.
var confirmSelectors = []string{
	".swal2-confirm",
	"button.confirm",
	"[role='dialog'] button.btn-primary",
}

// acceptConfirmation clicks through a post-submit confirmation dialog when
// one appears. Absence of a dialog is the normal case, not an error.
func acceptConfirmation(ctx context.Context, sess browser.Session) {
	for _, sel := range confirmSelectors {
		found, err := sess.Exists(ctx, sel)
		if err != nil || !found {
			continue
		}
		_ = sess.Click(ctx, sel)
		return
	}
}

// Form-level error/validation message candidates, scanned when the submit
// appears not to have been accepted.
var formErrorSelectors = []string{
	".validation-summary-errors",
	".alert-danger",
	".error-message",
	"[id$='lblError']",
	".error",
}

// samePage reports whether two addresses point at the same page, ignoring
// query, fragment, and a trailing slash. Used to detect a submit that never
// navigated away from the form.
func samePage(a, b string) bool {
	trim := func(s string) string {
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
		return strings.TrimRight(s, "/")
	}
	a, b = trim(a), trim(b)
	return a != "" && strings.EqualFold(a, b)
}

// formError returns the first non-empty error/validation message on the
// page, or "".
func formError(ctx context.Context, sess browser.Session) string {
	for _, sel := range formErrorSelectors {
		found, err := sess.Exists(ctx, sel)
		if err != nil || !found {
			continue
		}
		text, err := sess.Text(ctx, sel)
		if err != nil {
			continue
		}
		if msg := strings.TrimSpace(text); msg != "" {
			return msg
		}
	}
	return ""
}
