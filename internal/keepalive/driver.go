package keepalive

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// driver is the slice of browser behavior the sequencer needs. The
// production implementation wraps a playwright page; tests substitute
// a scripted fake.
type driver interface {
	Goto(url string) error
	URL() string
	Click(selector string) error
	Fill(selector, value string) error
	// WaitVisible blocks until the selector renders or the timeout
	// elapses, in which case it returns an error.
	WaitVisible(selector string, timeout time.Duration) error
	Screenshot(path string) error
}

type playwrightDriver struct {
	page playwright.Page
}

func newPlaywrightDriver(page playwright.Page) *playwrightDriver {
	return &playwrightDriver{page: page}
}

func (d *playwrightDriver) Goto(url string) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *playwrightDriver) URL() string {
	return d.page.URL()
}

func (d *playwrightDriver) Click(selector string) error {
	return d.page.Click(selector)
}

func (d *playwrightDriver) Fill(selector, value string) error {
	return d.page.Fill(selector, value)
}

func (d *playwrightDriver) WaitVisible(selector string, timeout time.Duration) error {
	_, err := d.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (d *playwrightDriver) Screenshot(path string) error {
	_, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}
