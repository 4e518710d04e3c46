package keepalive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mixelka/docsbot/internal/mailbox"
	"github.com/mixelka/docsbot/internal/parser"
	"github.com/mixelka/docsbot/internal/poll"
)

// ErrStepTimeout means a required login step did not render in time.
var ErrStepTimeout = errors.New("keepalive: required step timed out")

const passcodeLength = 6

// CodeFetcher obtains an emailed verification code. Satisfied by
// *mailbox.Scanner.
type CodeFetcher interface {
	WaitForCode(ctx context.Context, req mailbox.CodeRequest) (string, error)
}

// Selectors identify the login UI elements. They track a third
// party's markup, so they are configuration rather than constants.
type Selectors struct {
	SignInButton string
	EmailInput   string
	EmailSubmit  string
	// PasscodeInput is a template receiving the 1-based box index.
	PasscodeInput string
	// PasscodeSubmit is clicked after the last digit when set; left
	// empty for forms that auto-submit on the final box.
	PasscodeSubmit string

	GithubLoginInput    string
	GithubPasswordInput string
	GithubSubmit        string
	GithubOTPInput      string
	GithubOTPSubmit     string
}

// DefaultSelectors matches the hosted app's login flow as last
// observed.
func DefaultSelectors() Selectors {
	return Selectors{
		SignInButton:        `button:has-text("Sign in")`,
		EmailInput:          `input[type="email"]`,
		EmailSubmit:         `button[type="submit"]`,
		PasscodeInput:       `input[aria-label="Digit %d"]`,
		GithubLoginInput:    `input[name="login"]`,
		GithubPasswordInput: `input[name="password"]`,
		GithubSubmit:        `input[type="submit"]`,
		GithubOTPInput:      `input[name="otp"]`,
		GithubOTPSubmit:     `button[type="submit"]`,
	}
}

// Timeouts for the individual protocol steps. Optional steps use the
// short Probe/Redirect values so their absence is distinguishable
// from a slow required step.
type Timeouts struct {
	Probe    time.Duration // optional-step probes
	Step     time.Duration // required element appearance
	Redirect time.Duration // secondary-provider redirect probe
	Final    time.Duration // authenticated landing confirmation
}

// GithubAccount holds the secondary identity provider credentials
type GithubAccount struct {
	Username string
	Password string
}

// Sequencer drives one target application through its login protocol:
// sign-in affordance, email identity, emailed passcode, optional
// GitHub redirect with an optional device-verification challenge.
type Sequencer struct {
	drv           driver
	codes         CodeFetcher
	email         string
	github        GithubAccount
	sel           Selectors
	timeouts      Timeouts
	codeWait      time.Duration
	codeInterval  time.Duration
	screenshotDir string
	logger        *slog.Logger
}

// SequencerOptions configures a Sequencer
type SequencerOptions struct {
	Email         string
	Github        GithubAccount
	Selectors     Selectors
	Timeouts      Timeouts
	CodeWait      time.Duration
	CodeInterval  time.Duration
	ScreenshotDir string
}

// NewSequencer creates a sequencer over a driver and code fetcher
func NewSequencer(drv driver, codes CodeFetcher, opts SequencerOptions, logger *slog.Logger) *Sequencer {
	if opts.Timeouts.Probe == 0 {
		opts.Timeouts.Probe = 5 * time.Second
	}
	if opts.Timeouts.Step == 0 {
		opts.Timeouts.Step = 10 * time.Second
	}
	if opts.Timeouts.Redirect == 0 {
		opts.Timeouts.Redirect = 4 * time.Second
	}
	if opts.Timeouts.Final == 0 {
		opts.Timeouts.Final = 60 * time.Second
	}
	if opts.CodeWait == 0 {
		opts.CodeWait = 90 * time.Second
	}
	if opts.CodeInterval == 0 {
		opts.CodeInterval = 7 * time.Second
	}
	return &Sequencer{
		drv:           drv,
		codes:         codes,
		email:         opts.Email,
		github:        opts.Github,
		sel:           opts.Selectors,
		timeouts:      opts.Timeouts,
		codeWait:      opts.CodeWait,
		codeInterval:  opts.CodeInterval,
		screenshotDir: opts.ScreenshotDir,
		logger:        logger.With("component", "sequencer"),
	}
}

// primaryCodeRequest matches the hosted app's own verification email.
var primaryBodyPattern = regexp.MustCompile(`(?i)verification code|sign.?in code|one.?time code`)

func (s *Sequencer) primaryCodeRequest() mailbox.CodeRequest {
	return mailbox.CodeRequest{
		Matcher: parser.Matcher{
			SenderContains: "streamlit.io",
			BodyPattern:    primaryBodyPattern,
		},
		Kind:     "primary",
		Digits:   passcodeLength,
		Wait:     s.codeWait,
		Interval: s.codeInterval,
	}
}

func (s *Sequencer) githubCodeRequest() mailbox.CodeRequest {
	return mailbox.CodeRequest{
		Matcher: parser.Matcher{
			SenderContains: "github.com",
			BodyContains:   "verification code",
		},
		Kind:     "github",
		Digits:   passcodeLength,
		Wait:     s.codeWait,
		Interval: s.codeInterval,
	}
}

// Run executes the login protocol against targetURL. It returns nil
// both on full authentication and when no login challenge appears.
// Failures capture a screenshot before returning.
func (s *Sequencer) Run(ctx context.Context, targetURL string) (err error) {
	host, err := hostOf(targetURL)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			s.capture(host, "error")
		}
	}()

	if err := s.drv.Goto(targetURL); err != nil {
		return err
	}
	s.capture(host, "initial")

	// Optional: a public or already-woken app shows no sign-in
	// affordance at all.
	if probeErr := s.drv.WaitVisible(s.sel.SignInButton, s.timeouts.Probe); probeErr != nil {
		s.logger.Info("no login challenge, visit complete", "url", targetURL)
		s.capture(host, "final")
		return nil
	}

	s.logger.Info("login challenge detected", "url", targetURL)
	if err := s.drv.Click(s.sel.SignInButton); err != nil {
		return fmt.Errorf("failed to open sign-in form: %w", err)
	}

	if err := s.requireVisible(s.sel.EmailInput, "email input"); err != nil {
		return err
	}
	if err := s.drv.Fill(s.sel.EmailInput, s.email); err != nil {
		return fmt.Errorf("failed to enter email: %w", err)
	}
	if err := s.drv.Click(s.sel.EmailSubmit); err != nil {
		return fmt.Errorf("failed to submit email: %w", err)
	}

	code, err := s.fetchPrimaryCode(ctx)
	if err != nil {
		return err
	}

	if err := s.enterPasscode(code); err != nil {
		return err
	}

	if err := s.maybeGithubLogin(ctx); err != nil {
		return err
	}

	if err := s.awaitTarget(ctx, host); err != nil {
		return err
	}

	s.logger.Info("authenticated", "url", targetURL)
	s.capture(host, "after_login")
	return nil
}

// fetchPrimaryCode waits for the emailed passcode. If none arrives,
// the submit click is retried exactly once (the first send can get
// lost) before giving up.
func (s *Sequencer) fetchPrimaryCode(ctx context.Context) (string, error) {
	code, err := s.codes.WaitForCode(ctx, s.primaryCodeRequest())
	if errors.Is(err, mailbox.ErrCodeNotReceived) {
		s.logger.Warn("passcode email not received, re-triggering send")
		if clickErr := s.drv.Click(s.sel.EmailSubmit); clickErr != nil {
			return "", fmt.Errorf("failed to re-trigger passcode send: %w", clickErr)
		}
		code, err = s.codes.WaitForCode(ctx, s.primaryCodeRequest())
	}
	if err != nil {
		return "", fmt.Errorf("failed to obtain passcode: %w", err)
	}
	return code, nil
}

// enterPasscode types each digit into its single-character box.
func (s *Sequencer) enterPasscode(code string) error {
	if len(code) != passcodeLength {
		return fmt.Errorf("passcode must be %d digits, got %q", passcodeLength, code)
	}

	first := fmt.Sprintf(s.sel.PasscodeInput, 1)
	if err := s.requireVisible(first, "passcode boxes"); err != nil {
		return err
	}

	for i, digit := range code {
		selector := fmt.Sprintf(s.sel.PasscodeInput, i+1)
		if err := s.drv.Fill(selector, string(digit)); err != nil {
			return fmt.Errorf("failed to enter passcode digit %d: %w", i+1, err)
		}
	}

	if s.sel.PasscodeSubmit != "" {
		if err := s.drv.Click(s.sel.PasscodeSubmit); err != nil {
			return fmt.Errorf("failed to submit passcode: %w", err)
		}
	}
	return nil
}

// maybeGithubLogin handles the optional redirect to the secondary
// identity provider. Its absence within the redirect timeout means
// the step is not required this run.
func (s *Sequencer) maybeGithubLogin(ctx context.Context) error {
	redirected := s.awaitURLContains(ctx, "github.com", s.timeouts.Redirect)
	if !redirected {
		s.logger.Debug("no secondary provider redirect")
		return nil
	}

	s.logger.Info("secondary provider login required")
	if err := s.requireVisible(s.sel.GithubLoginInput, "github login input"); err != nil {
		return err
	}
	if err := s.drv.Fill(s.sel.GithubLoginInput, s.github.Username); err != nil {
		return fmt.Errorf("failed to enter github username: %w", err)
	}
	if err := s.drv.Fill(s.sel.GithubPasswordInput, s.github.Password); err != nil {
		return fmt.Errorf("failed to enter github password: %w", err)
	}
	if err := s.drv.Click(s.sel.GithubSubmit); err != nil {
		return fmt.Errorf("failed to submit github credentials: %w", err)
	}

	// Optional nested step: device verification challenge.
	if probeErr := s.drv.WaitVisible(s.sel.GithubOTPInput, s.timeouts.Probe); probeErr != nil {
		s.logger.Debug("no device verification challenge")
		return nil
	}

	s.logger.Info("device verification challenge detected")
	otp, err := s.codes.WaitForCode(ctx, s.githubCodeRequest())
	if err != nil {
		return fmt.Errorf("failed to obtain device verification code: %w", err)
	}
	if err := s.drv.Fill(s.sel.GithubOTPInput, otp); err != nil {
		return fmt.Errorf("failed to enter device verification code: %w", err)
	}
	if err := s.drv.Click(s.sel.GithubOTPSubmit); err != nil {
		return fmt.Errorf("failed to submit device verification code: %w", err)
	}
	return nil
}

// awaitTarget confirms the browser landed back on the target
// application within the final timeout.
func (s *Sequencer) awaitTarget(ctx context.Context, host string) error {
	if s.awaitURLContains(ctx, host, s.timeouts.Final) {
		return nil
	}
	return fmt.Errorf("%w: never returned to %s (at %s)", ErrStepTimeout, host, s.drv.URL())
}

func (s *Sequencer) awaitURLContains(ctx context.Context, fragment string, timeout time.Duration) bool {
	err := poll.Until(ctx, timeout, 500*time.Millisecond, func(context.Context) (bool, error) {
		return strings.Contains(s.drv.URL(), fragment), nil
	})
	return err == nil
}

func (s *Sequencer) requireVisible(selector, what string) error {
	if err := s.drv.WaitVisible(selector, s.timeouts.Step); err != nil {
		return fmt.Errorf("%w: %s (%s) did not appear: %v", ErrStepTimeout, what, selector, err)
	}
	return nil
}

// capture writes a named checkpoint screenshot. Best effort: a failed
// screenshot never fails the run.
func (s *Sequencer) capture(host, checkpoint string) {
	name := fmt.Sprintf("screenshot_%s_%s.png", sanitizeHost(host), checkpoint)
	path := filepath.Join(s.screenshotDir, name)
	if err := s.drv.Screenshot(path); err != nil {
		s.logger.Warn("failed to capture screenshot", "checkpoint", checkpoint, "error", err)
		return
	}
	s.logger.Debug("screenshot captured", "path", path)
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid target URL %q", rawURL)
	}
	return u.Host, nil
}

func sanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, host)
}
