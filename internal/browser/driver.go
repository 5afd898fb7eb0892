package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// Driver implements the BrowserDriver boundary on top of chromedp. One
// shared headless allocator backs all execution contexts; each context is an
// isolated chromedp browser context disposed after a single test.
type Driver struct {
	cfg         *common.Config
	logger      arbor.ILogger
	limiter     *rate.Limiter
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	initialized bool
}

// NewDriver creates a chromedp-backed browser driver. The allocator is
// started lazily on first use.
func NewDriver(cfg *common.Config, logger arbor.ILogger) *Driver {
	var limiter *rate.Limiter
	if cfg.Target.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Target.RequestsPerSecond), 1)
	}

	return &Driver{
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
	}
}

// allocatorOptions builds the Chrome launch flags from configuration
func (d *Driver) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", d.cfg.Browser.DisableGPU),
		chromedp.Flag("no-sandbox", d.cfg.Browser.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if d.cfg.Session.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.cfg.Session.UserAgent))
	}
	return opts
}

// ensureAllocator starts the shared headless allocator and verifies it with
// a startup navigation
func (d *Driver) ensureAllocator() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	start := time.Now()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions(d.cfg.Browser.Headless)...)

	// Startup test: a browser that cannot reach about:blank is unusable
	testCtx, testCancel := chromedp.NewContext(allocCtx)
	runCtx, runCancel := context.WithTimeout(testCtx, 30*time.Second)
	err := chromedp.Run(runCtx, chromedp.Navigate("about:blank"))
	runCancel()
	testCancel()
	if err != nil {
		allocCancel()
		return fmt.Errorf("browser allocator failed startup test: %w", err)
	}

	d.allocCtx = allocCtx
	d.allocCancel = allocCancel
	d.initialized = true

	d.logger.Info().
		Bool("headless", d.cfg.Browser.Headless).
		Dur("startup_time", time.Since(start)).
		Msg("Browser allocator initialized")

	return nil
}

// NewExecutionContext launches an isolated browser context seeded with the
// given session's cookies and storage snapshot
func (d *Driver) NewExecutionContext(ctx context.Context, session *models.AuthSession) (interfaces.ExecutionContext, error) {
	if session == nil {
		return nil, fmt.Errorf("auth session is required")
	}
	if err := d.ensureAllocator(); err != nil {
		return nil, err
	}

	browserCtx, cancel := chromedp.NewContext(d.allocCtx)

	if err := d.seedSession(ctx, browserCtx, session); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to seed session into browser context: %w", err)
	}

	baseURL := session.BaseURL
	if baseURL == "" {
		baseURL = d.cfg.Target.BaseURL
	}

	return &execContext{
		browserCtx:  browserCtx,
		cancel:      cancel,
		limiter:     d.limiter,
		baseURL:     baseURL,
		loginPath:   d.cfg.Target.LoginPath,
		evidenceDir: d.cfg.Runner.EvidenceDir,
		logger:      d.logger,
	}, nil
}

// seedSession injects the session's cookies and installs a script that
// restores local/session storage before any page script runs
func (d *Driver) seedSession(ctx context.Context, browserCtx context.Context, session *models.AuthSession) error {
	seedCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	cookies := toCookieParams(session)
	storageScript := storageSeedScript(session)

	err := chromedp.Run(seedCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, cookie := range cookies {
				if err := network.SetCookie(cookie.Name, cookie.Value).
					WithDomain(cookie.Domain).
					WithPath(cookie.Path).
					WithSecure(cookie.Secure).
					WithHTTPOnly(cookie.HTTPOnly).
					WithSameSite(cookie.SameSite).
					WithExpires(cookie.Expires).
					Do(ctx); err != nil {
					// Continue with remaining cookies, one bad cookie must
					// not sink the whole context
					d.logger.Warn().
						Err(err).
						Str("cookie_name", cookie.Name).
						Str("domain", cookie.Domain).
						Msg("Failed to inject cookie")
				}
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if storageScript == "" {
				return nil
			}
			_, err := page.AddScriptToEvaluateOnNewDocument(storageScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return err
	}

	d.logger.Debug().
		Str("session_id", session.ID).
		Int("cookie_count", len(cookies)).
		Msg("Execution context seeded with auth session")

	return nil
}

// toCookieParams converts session cookies to CDP cookie parameters
func toCookieParams(session *models.AuthSession) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(session.Cookies))
	for _, c := range session.Cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}

		if c.Expires > 0 {
			expiresTime := time.Unix(c.Expires, 0)
			if expiresTime.After(time.Now()) {
				timestamp := cdp.TimeSinceEpoch(expiresTime)
				param.Expires = &timestamp
			}
		}

		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none":
			param.SameSite = network.CookieSameSiteNone
		}

		params = append(params, param)
	}
	return params
}

// storageSeedScript builds a script that restores the captured storage
// snapshot on every new document, before page scripts observe storage
func storageSeedScript(session *models.AuthSession) string {
	if len(session.LocalStorage) == 0 && len(session.SessionStorage) == 0 {
		return ""
	}

	local, _ := json.Marshal(session.LocalStorage)
	sess, _ := json.Marshal(session.SessionStorage)

	return fmt.Sprintf(`(function() {
	try {
		var local = %s;
		for (var k in local) { localStorage.setItem(k, local[k]); }
		var sess = %s;
		for (var k in sess) { sessionStorage.setItem(k, sess[k]); }
	} catch (e) {}
})();`, local, sess)
}

// Shutdown releases the shared allocator and all remaining browser resources
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}

	d.allocCancel()
	d.allocCtx = nil
	d.allocCancel = nil
	d.initialized = false

	d.logger.Info().Msg("Browser allocator shut down")
	return nil
}
