package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/mixelka/docsbot/internal/config"
	"github.com/mixelka/docsbot/internal/mailbox"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// visitGap spaces out consecutive visits
const visitGap = 5 * time.Second

// Notifier reports a failed visit. The Telegram notifier implements
// this; a nil Notifier disables reporting.
type Notifier interface {
	VisitFailed(ctx context.Context, url string, visitErr error)
}

// Visitor runs the keep-alive batch: one isolated browser context and
// mailbox session per target URL, failures logged and reported but
// never aborting the rest of the batch.
type Visitor struct {
	cfg      *config.Keepalive
	ledger   mailbox.Ledger
	notifier Notifier
	logger   *slog.Logger
	http     *http.Client
}

// NewVisitor creates a Visitor. ledger and notifier may be nil.
func NewVisitor(cfg *config.Keepalive, ledger mailbox.Ledger, notifier Notifier, logger *slog.Logger) *Visitor {
	return &Visitor{
		cfg:      cfg,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.With("component", "visitor"),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// VisitAll visits every configured URL in order. It returns an error
// only when every visit failed; partial failure is a logged, notified
// non-error so one broken app does not fail the whole cron run.
func (v *Visitor) VisitAll(ctx context.Context) error {
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	defer func() {
		if err := pw.Stop(); err != nil {
			v.logger.Warn("failed to stop playwright", "error", err)
		}
	}()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(v.cfg.Headless),
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			v.logger.Warn("failed to close browser", "error", err)
		}
	}()

	failed := 0
	for i, target := range v.cfg.TargetURLs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(visitGap):
			}
		}

		v.logger.Info("visiting target", "url", target)
		if err := v.visit(ctx, browser, target); err != nil {
			failed++
			v.logger.Error("visit failed", "url", target, "error", err)
			if v.notifier != nil {
				v.notifier.VisitFailed(ctx, target, err)
			}
			continue
		}
		v.logger.Info("visit succeeded", "url", target)
	}

	if failed == len(v.cfg.TargetURLs) {
		return fmt.Errorf("all %d visits failed", failed)
	}
	return nil
}

// visit drives one target through the login sequence with its own
// browser context and mailbox session, both torn down unconditionally.
func (v *Visitor) visit(ctx context.Context, browser playwright.Browser, target string) error {
	v.preflight(ctx, target)

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:  &playwright.Size{Width: 1280, Height: 720},
		UserAgent: playwright.String(userAgent),
	})
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	defer func() {
		if err := browserCtx.Close(); err != nil {
			v.logger.Warn("failed to close browser context", "error", err)
		}
	}()

	page, err := browserCtx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}

	codes := newLazyCodes(v.cfg, v.ledger, v.logger)
	defer codes.Close()

	seq := NewSequencer(newPlaywrightDriver(page), codes, SequencerOptions{
		Email: v.cfg.EmailAddress,
		Github: GithubAccount{
			Username: v.cfg.GithubUsername,
			Password: v.cfg.GithubPassword,
		},
		Selectors: DefaultSelectors(),
		Timeouts: Timeouts{
			Probe:    v.cfg.ProbeTimeout,
			Step:     v.cfg.StepTimeout,
			Redirect: v.cfg.RedirectTimeout,
			Final:    v.cfg.FinalTimeout,
		},
		CodeWait:      v.cfg.CodeWait,
		CodeInterval:  v.cfg.CodePollInterval,
		ScreenshotDir: v.cfg.ScreenshotDir,
	}, v.logger)

	return seq.Run(ctx, target)
}

// preflight logs whether the target answers plain HTTP at all, which
// separates "app asleep" from "app gone" in postmortems.
func (v *Visitor) preflight(ctx context.Context, target string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		v.logger.Warn("preflight request invalid", "url", target, "error", err)
		return
	}
	resp, err := v.http.Do(req)
	if err != nil {
		v.logger.Warn("preflight request failed", "url", target, "error", err)
		return
	}
	resp.Body.Close()
	v.logger.Info("preflight status", "url", target, "status", resp.StatusCode)
}

// lazyCodes defers the IMAP connection until a code is actually
// needed, so visits without a login challenge never touch the mailbox.
type lazyCodes struct {
	cfg     *config.Keepalive
	ledger  mailbox.Ledger
	logger  *slog.Logger
	client  *mailbox.Client
	scanner *mailbox.Scanner
}

func newLazyCodes(cfg *config.Keepalive, ledger mailbox.Ledger, logger *slog.Logger) *lazyCodes {
	return &lazyCodes{cfg: cfg, ledger: ledger, logger: logger}
}

func (l *lazyCodes) WaitForCode(ctx context.Context, req mailbox.CodeRequest) (string, error) {
	if l.scanner == nil {
		server := l.cfg.IMAPServer()
		if server == "" {
			resolved, err := mailbox.ResolveServer(l.cfg.EmailAddress)
			if err != nil {
				return "", err
			}
			server = resolved
		}

		client := mailbox.NewClient(mailbox.Config{
			Address:     l.cfg.EmailAddress,
			Password:    l.cfg.EmailPassword,
			Server:      server,
			LoginName:   l.cfg.IMAPLogin,
			DialTimeout: l.cfg.IMAPDialTimeout,
		}, l.logger)
		if err := client.Connect(ctx); err != nil {
			return "", err
		}

		l.client = client
		l.scanner = mailbox.NewScanner(l.cfg.EmailAddress, client, l.ledger, l.logger)
	}
	return l.scanner.WaitForCode(ctx, req)
}

// Close releases the mailbox session if one was opened
func (l *lazyCodes) Close() {
	if l.client != nil {
		l.client.Close()
		l.client = nil
		l.scanner = nil
	}
}
