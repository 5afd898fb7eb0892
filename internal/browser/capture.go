package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/models"
)

// captureProbeInterval is how often the capture loop checks whether the
// operator has finished logging in
const captureProbeInterval = 2 * time.Second

// CaptureSession opens a headful browser at the target's login surface,
// waits for the operator to authenticate, then serializes cookies and
// storage as a new immutable AuthSession.
func (d *Driver) CaptureSession(ctx context.Context) (*models.AuthSession, error) {
	loginURL := joinURL(d.cfg.Target.BaseURL, d.cfg.Target.LoginPath)

	// A dedicated headful allocator: capture needs a visible window
	// regardless of the headless setting used for test execution
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions(false)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	captureCtx, cancel := context.WithTimeout(browserCtx, d.cfg.Session.CaptureTimeout.Duration)
	defer cancel()

	d.logger.Info().
		Str("login_url", loginURL).
		Dur("timeout", d.cfg.Session.CaptureTimeout.Duration).
		Msg("Opening browser for interactive session capture - complete the login to continue")

	if err := chromedp.Run(captureCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to open login surface: %w", err)
	}

	if err := d.waitForLogin(captureCtx, ctx); err != nil {
		return nil, err
	}

	session, err := d.serializeSession(captureCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize captured session: %w", err)
	}

	d.logger.Info().
		Str("session_id", session.ID).
		Int("cookie_count", len(session.Cookies)).
		Msg("Auth session captured")

	return session, nil
}

// waitForLogin polls the page until it indicates an authenticated state
func (d *Driver) waitForLogin(captureCtx, callerCtx context.Context) error {
	ticker := time.NewTicker(captureProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-captureCtx.Done():
			return fmt.Errorf("interactive capture timed out: %w", captureCtx.Err())
		case <-callerCtx.Done():
			return fmt.Errorf("interactive capture cancelled: %w", callerCtx.Err())
		case <-ticker.C:
		}

		var currentURL, html string
		if err := chromedp.Run(captureCtx,
			chromedp.Location(&currentURL),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		); err != nil {
			// Page may be mid-navigation while the operator logs in
			d.logger.Debug().Err(err).Msg("Capture probe failed, retrying")
			continue
		}

		if PageIndicatesAuthenticated(html, currentURL, d.cfg.Target.LoginPath) {
			d.logger.Debug().Str("url", currentURL).Msg("Authenticated surface detected")
			return nil
		}
	}
}

// serializeSession reads cookies, storage and the user agent out of the
// authenticated browser and builds a new AuthSession
func (d *Driver) serializeSession(browserCtx context.Context) (*models.AuthSession, error) {
	var (
		rawCookies  []*network.Cookie
		localJSON   map[string]string
		sessionJSON map[string]string
		userAgent   string
	)

	err := chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().WithURLs([]string{d.cfg.Target.BaseURL}).Do(ctx)
			if err != nil {
				return err
			}
			rawCookies = cookies
			return nil
		}),
		chromedp.Evaluate(`Object.assign({}, localStorage)`, &localJSON),
		chromedp.Evaluate(`Object.assign({}, sessionStorage)`, &sessionJSON),
		chromedp.Evaluate(`navigator.userAgent`, &userAgent),
	)
	if err != nil {
		return nil, err
	}

	cookies := make([]*models.SessionCookie, 0, len(rawCookies))
	for _, c := range rawCookies {
		cookies = append(cookies, &models.SessionCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  int64(c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}

	return &models.AuthSession{
		ID:                 common.NewSessionID(),
		CapturedAt:         time.Now().UTC(),
		StalenessThreshold: d.cfg.Session.StalenessThreshold.Duration,
		Cookies:            cookies,
		LocalStorage:       localJSON,
		SessionStorage:     sessionJSON,
		UserAgent:          userAgent,
		BaseURL:            d.cfg.Target.BaseURL,
		Validation:         models.SessionValidationValid,
	}, nil
}
