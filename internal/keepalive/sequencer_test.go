package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/docsbot/internal/mailbox"
)

const testTarget = "https://demo-app.example.app/"

// fakeDriver scripts the page: which selectors render, what the
// current location is, and how clicks and fills move it.
type fakeDriver struct {
	visible           map[string]bool
	url               string
	redirectAfterFill string // fill on this selector relocates to GitHub
	returnOnClick     string // click on this selector relocates back to the target
	clicks            []string
	fills             []string // "selector=value"
	screenshots       []string
}

func (d *fakeDriver) Goto(url string) error {
	d.url = url
	return nil
}

func (d *fakeDriver) URL() string { return d.url }

func (d *fakeDriver) Click(selector string) error {
	d.clicks = append(d.clicks, selector)
	if selector == d.returnOnClick {
		d.url = testTarget
	}
	return nil
}

func (d *fakeDriver) Fill(selector, value string) error {
	d.fills = append(d.fills, selector+"="+value)
	if selector == d.redirectAfterFill {
		d.url = "https://github.com/login"
	}
	return nil
}

func (d *fakeDriver) WaitVisible(selector string, _ time.Duration) error {
	if d.visible[selector] {
		return nil
	}
	return fmt.Errorf("selector %s not visible", selector)
}

func (d *fakeDriver) Screenshot(path string) error {
	d.screenshots = append(d.screenshots, path)
	return nil
}

func (d *fakeDriver) clickCount(selector string) int {
	n := 0
	for _, c := range d.clicks {
		if c == selector {
			n++
		}
	}
	return n
}

// fakeCodes pops canned results per request kind
type fakeCodes struct {
	results  map[string][]codeResult
	requests []mailbox.CodeRequest
}

type codeResult struct {
	code string
	err  error
}

func (f *fakeCodes) WaitForCode(_ context.Context, req mailbox.CodeRequest) (string, error) {
	f.requests = append(f.requests, req)
	queue := f.results[req.Kind]
	if len(queue) == 0 {
		return "", mailbox.ErrCodeNotReceived
	}
	next := queue[0]
	f.results[req.Kind] = queue[1:]
	return next.code, next.err
}

func newTestSequencer(t *testing.T, drv driver, codes CodeFetcher) *Sequencer {
	t.Helper()
	return NewSequencer(drv, codes, SequencerOptions{
		Email:     "user@example.com",
		Github:    GithubAccount{Username: "octocat", Password: "hunter2"},
		Selectors: DefaultSelectors(),
		Timeouts: Timeouts{
			Probe:    20 * time.Millisecond,
			Step:     20 * time.Millisecond,
			Redirect: 50 * time.Millisecond,
			Final:    time.Second,
		},
		CodeWait:      time.Second,
		CodeInterval:  10 * time.Millisecond,
		ScreenshotDir: t.TempDir(),
	}, slog.New(slog.DiscardHandler))
}

func happyVisible(sel Selectors) map[string]bool {
	return map[string]bool{
		sel.SignInButton:                  true,
		sel.EmailInput:                    true,
		fmt.Sprintf(sel.PasscodeInput, 1): true,
	}
}

func TestRunSkipsLoginWhenNoChallenge(t *testing.T) {
	drv := &fakeDriver{visible: map[string]bool{}}
	codes := &fakeCodes{}
	seq := newTestSequencer(t, drv, codes)

	err := seq.Run(context.Background(), testTarget)
	require.NoError(t, err)

	assert.Empty(t, drv.clicks, "no login affordance means nothing to click")
	assert.Empty(t, drv.fills)
	assert.Empty(t, codes.requests, "mailbox must not be scanned")
}

func TestRunFatalWhenEmailInputNeverAppears(t *testing.T) {
	sel := DefaultSelectors()
	drv := &fakeDriver{visible: map[string]bool{sel.SignInButton: true}}
	seq := newTestSequencer(t, drv, &fakeCodes{})

	err := seq.Run(context.Background(), testTarget)
	require.ErrorIs(t, err, ErrStepTimeout)

	// A diagnostic screenshot is captured at the moment of failure.
	require.NotEmpty(t, drv.screenshots)
	assert.Contains(t, drv.screenshots[len(drv.screenshots)-1], "error")
}

func TestRunFullPrimaryFlow(t *testing.T) {
	sel := DefaultSelectors()
	drv := &fakeDriver{visible: happyVisible(sel)}
	codes := &fakeCodes{results: map[string][]codeResult{
		"primary": {{code: "123456"}},
	}}
	seq := newTestSequencer(t, drv, codes)

	err := seq.Run(context.Background(), testTarget)
	require.NoError(t, err)

	// Email entered first, then each digit in its own box, in order.
	require.Len(t, drv.fills, 7)
	assert.Equal(t, sel.EmailInput+"=user@example.com", drv.fills[0])
	for i, digit := range "123456" {
		assert.Equal(t,
			fmt.Sprintf(sel.PasscodeInput, i+1)+"="+string(digit),
			drv.fills[i+1])
	}

	last := drv.screenshots[len(drv.screenshots)-1]
	assert.Contains(t, last, "after_login")
}

func TestRunRetriesSubmitOnceWhenCodeNotReceived(t *testing.T) {
	sel := DefaultSelectors()
	drv := &fakeDriver{visible: happyVisible(sel)}
	codes := &fakeCodes{results: map[string][]codeResult{
		"primary": {{err: mailbox.ErrCodeNotReceived}, {code: "654321"}},
	}}
	seq := newTestSequencer(t, drv, codes)

	err := seq.Run(context.Background(), testTarget)
	require.NoError(t, err)

	// The submit click triggers the code email: one initial click
	// plus exactly one retry.
	assert.Equal(t, 2, drv.clickCount(sel.EmailSubmit))
	assert.Len(t, codes.requests, 2)
}

func TestRunGivesUpAfterSingleRetry(t *testing.T) {
	sel := DefaultSelectors()
	drv := &fakeDriver{visible: happyVisible(sel)}
	codes := &fakeCodes{results: map[string][]codeResult{
		"primary": {{err: mailbox.ErrCodeNotReceived}, {err: mailbox.ErrCodeNotReceived}},
	}}
	seq := newTestSequencer(t, drv, codes)

	err := seq.Run(context.Background(), testTarget)
	require.ErrorIs(t, err, mailbox.ErrCodeNotReceived)
	assert.Equal(t, 2, drv.clickCount(sel.EmailSubmit))
}

func TestRunGithubRedirectWithDeviceVerification(t *testing.T) {
	sel := DefaultSelectors()
	visible := happyVisible(sel)
	visible[sel.GithubLoginInput] = true
	visible[sel.GithubOTPInput] = true

	drv := &fakeDriver{
		visible:           visible,
		redirectAfterFill: fmt.Sprintf(sel.PasscodeInput, 6),
		returnOnClick:     sel.GithubOTPSubmit,
	}
	codes := &fakeCodes{results: map[string][]codeResult{
		"primary": {{code: "123456"}},
		"github":  {{code: "987654"}},
	}}
	seq := newTestSequencer(t, drv, codes)

	err := seq.Run(context.Background(), testTarget)
	require.NoError(t, err)

	assert.Contains(t, drv.fills, sel.GithubLoginInput+"=octocat")
	assert.Contains(t, drv.fills, sel.GithubPasswordInput+"=hunter2")
	assert.Contains(t, drv.fills, sel.GithubOTPInput+"=987654")
	require.Len(t, codes.requests, 2)
	assert.Equal(t, "github", codes.requests[1].Kind)
}

func TestRunSkipsGithubWhenNoRedirect(t *testing.T) {
	sel := DefaultSelectors()
	drv := &fakeDriver{visible: happyVisible(sel)}
	codes := &fakeCodes{results: map[string][]codeResult{
		"primary": {{code: "123456"}},
	}}
	seq := newTestSequencer(t, drv, codes)

	err := seq.Run(context.Background(), testTarget)
	require.NoError(t, err)

	// Only the primary code was requested and no secondary
	// credentials were typed anywhere.
	require.Len(t, codes.requests, 1)
	for _, fill := range drv.fills {
		assert.False(t, strings.Contains(fill, "octocat"))
		assert.False(t, strings.Contains(fill, "hunter2"))
	}
}
