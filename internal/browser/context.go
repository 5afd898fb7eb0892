package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/probo/internal/interfaces"
)

// execContext is one isolated browsing context. It is created per test and
// disposed after, including on error.
type execContext struct {
	browserCtx  context.Context
	cancel      context.CancelFunc
	limiter     *rate.Limiter
	baseURL     string
	loginPath   string
	evidenceDir string
	logger      arbor.ILogger
	last        *interfaces.PageVisit
}

// Navigate loads the target path and waits for the document to be ready,
// recording the final URL, title, rendered HTML and load time
func (e *execContext) Navigate(ctx context.Context, path string) (*interfaces.PageVisit, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("navigation pacing interrupted: %w", err)
		}
	}

	target := joinURL(e.baseURL, path)

	runCtx, cancel := mergeDeadline(e.browserCtx, ctx)
	defer cancel()

	var finalURL, title, html string
	start := time.Now()
	err := chromedp.Run(runCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	loadTime := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("navigation to %s failed: %w", target, err)
	}

	if err := chromedp.Run(runCtx,
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to capture page state for %s: %w", target, err)
	}

	visit := &interfaces.PageVisit{
		URL:      finalURL,
		Title:    title,
		HTML:     html,
		LoadTime: loadTime,
	}
	e.last = visit

	e.logger.Debug().
		Str("url", finalURL).
		Str("title", title).
		Dur("load_time", loadTime).
		Msg("Page loaded")

	return visit, nil
}

// EmulateViewport applies viewport emulation to the context
func (e *execContext) EmulateViewport(ctx context.Context, width, height int64) error {
	runCtx, cancel := mergeDeadline(e.browserCtx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.EmulateViewport(width, height)); err != nil {
		return fmt.Errorf("viewport emulation failed: %w", err)
	}
	return nil
}

// IsAuthenticated probes the last loaded page for an authenticated surface.
// Requires a prior Navigate call.
func (e *execContext) IsAuthenticated(ctx context.Context) (bool, error) {
	if e.last == nil {
		return false, fmt.Errorf("no page loaded yet")
	}
	return PageIndicatesAuthenticated(e.last.HTML, e.last.URL, e.loginPath), nil
}

// Screenshot captures the current page as an evidence artifact
func (e *execContext) Screenshot(ctx context.Context, name string) (string, error) {
	runCtx, cancel := mergeDeadline(e.browserCtx, ctx)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("screenshot capture failed: %w", err)
	}

	if err := os.MkdirAll(e.evidenceDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create evidence directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.png", sanitizeFilename(name), time.Now().Format("20060102-150405"))
	path := filepath.Join(e.evidenceDir, filename)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	return path, nil
}

// Close disposes the browsing context
func (e *execContext) Close() {
	e.cancel()
}

// mergeDeadline runs browser actions on the chromedp context while honoring
// the caller's deadline and cancellation
func mergeDeadline(browserCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := callerCtx.Deadline(); ok {
		return context.WithDeadline(browserCtx, deadline)
	}
	return context.WithCancel(browserCtx)
}

// joinURL joins a base URL and a path fragment. Absolute URLs pass through.
func joinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base = strings.TrimSuffix(base, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// sanitizeFilename strips characters unsafe for filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "?", "-", "&", "-", " ", "_")
	return replacer.Replace(name)
}
