package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/obikwelu/resulthawk/internal/config"
)

// ChromeSession implements Session on top of a dedicated headless Chrome
// process driven over the DevTools protocol.
type ChromeSession struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewChromeFactory returns a Factory that launches one Chrome process per
// session with the usual container-safe flags.
func NewChromeFactory(cfg config.BrowserConfig) Factory {
	return func(ctx context.Context) (Session, error) {
		allocCtx, allocCancel := chromedp.NewExecAllocator(
			context.Background(),
			append(
				chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", cfg.Headless),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
				chromedp.Flag("disable-dev-shm-usage", true),
				chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"),
			)...,
		)

		tabCtx, tabCancel := chromedp.NewContext(allocCtx)

		// Force the browser process to start now so a broken Chrome install
		// fails at pool warm-up, not mid-job.
		startCtx := tabCtx
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			startCtx, cancel = context.WithDeadline(tabCtx, deadline)
			defer cancel()
		}
		if err := chromedp.Run(startCtx); err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("start chrome: %w", err)
		}

		return &ChromeSession{
			allocCtx:    allocCtx,
			allocCancel: allocCancel,
			tabCtx:      tabCtx,
			tabCancel:   tabCancel,
		}, nil
	}
}

// run executes actions in the tab context, bounded by the caller's ctx.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := mergeDeadline(s.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func mergeDeadline(parent, bound context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := bound.Deadline(); ok {
		return context.WithDeadline(parent, deadline)
	}
	return context.WithCancel(parent)
}

func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (s *ChromeSession) Reset(ctx context.Context) error {
	return s.run(ctx, chromedp.Navigate("about:blank"))
}

func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (s *ChromeSession) SendKeys(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (s *ChromeSession) SetValue(ctx context.Context, selector, value string) error {
	return s.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (s *ChromeSession) KeyPress(ctx context.Context, key string) error {
	return s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchKeyEvent(input.KeyDown).WithKey(key).Do(ctx)
	}))
}

func (s *ChromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := s.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, err
	}
	return found, nil
}

func (s *ChromeSession) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

func (s *ChromeSession) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (s *ChromeSession) Evaluate(ctx context.Context, expr string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// AdoptNewTarget looks for a page target other than the current one (a
// result window some portals open on submit) and moves the session's view
// to it.
func (s *ChromeSession) AdoptNewTarget(ctx context.Context) (bool, error) {
	current := chromedp.FromContext(s.tabCtx)
	if current == nil || current.Target == nil {
		return false, fmt.Errorf("no current target")
	}

	var infos []*target.Info
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		infos, err = target.GetTargets().Do(ctx)
		return err
	}))
	if err != nil {
		return false, fmt.Errorf("list targets: %w", err)
	}

	for _, info := range infos {
		if info.Type != "page" || info.TargetID == current.Target.TargetID {
			continue
		}

		newCtx, newCancel := chromedp.NewContext(s.allocCtx, chromedp.WithTargetID(info.TargetID))
		if err := chromedp.Run(newCtx); err != nil {
			newCancel()
			return false, fmt.Errorf("attach to new target: %w", err)
		}

		s.tabCancel()
		s.tabCtx = newCtx
		s.tabCancel = newCancel
		return true, nil
	}
	return false, nil
}

func (s *ChromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 80)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *ChromeSession) PrintPDF(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *ChromeSession) Close() error {
	s.tabCancel()
	s.allocCancel()
	return nil
}
