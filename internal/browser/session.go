package browser

import (
	"context"
)

// Session is one live headless-browser automation session with a single
// active document view. Implementations are not safe for concurrent use; the
// pool guarantees at most one holder at a time.
type Session interface {
	// Navigate loads url in the session's document view.
	Navigate(ctx context.Context, url string) error
	// Reset returns the session to a neutral blank page so no page state
	// leaks into the next job.
	Reset(ctx context.Context) error

	Click(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, value string) error
	SetValue(ctx context.Context, selector, value string) error
	KeyPress(ctx context.Context, key string) error

	Exists(ctx context.Context, selector string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	Location(ctx context.Context) (string, error)
	// Evaluate runs a JavaScript expression in the page and unmarshals the
	// result into out.
	Evaluate(ctx context.Context, expr string, out any) error

	// AdoptNewTarget switches the session's document view to a newly opened
	// window or tab, if one exists. Returns false when there is none.
	AdoptNewTarget(ctx context.Context) (bool, error)

	Screenshot(ctx context.Context) ([]byte, error)
	PrintPDF(ctx context.Context) ([]byte, error)

	Close() error
}

// Factory creates a ready-to-use Session. The pool calls it during warm-up
// and for on-demand growth.
type Factory func(ctx context.Context) (Session, error)
