package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pricewatch/price-tracker/internal/browser"
	"github.com/pricewatch/price-tracker/internal/models"
)

// Fetcher loads a vendor page in the batch's browser session and returns
// rendered text suitable for extraction. Each call opens one tab and closes
// it on every exit path.
type Fetcher struct {
	session          *browser.Session
	settleDelay      time.Duration
	maxContentLength int
	logger           *slog.Logger
}

func New(session *browser.Session, settleDelay time.Duration, maxContentLength int) *Fetcher {
	return &Fetcher{
		session:          session,
		settleDelay:      settleDelay,
		maxContentLength: maxContentLength,
		logger:           slog.Default().With("component", "fetcher"),
	}
}

// Fetch navigates to url, waits for the page to settle, and returns text
// scoped to hint when one is supplied and matches, otherwise the full
// document text truncated to the configured bound.
func (f *Fetcher) Fetch(ctx context.Context, url, hint string) (string, error) {
	page, err := f.session.NewPage()
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeNavFailed, "failed to open page", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			f.logger.Warn("failed to close page", "url", url, "error", err)
		}
	}()

	_, err = page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(f.session.Timeout().Milliseconds())),
	})
	if err != nil {
		return "", classifyNavigationError(url, err)
	}

	// Client-rendered prices often paint after network idle.
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(f.settleDelay):
	}

	html, err := page.Content()
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeNavFailed, "failed to read page content", err)
	}

	text := ExtractText(html, hint, f.maxContentLength)
	if text == "" {
		return "", models.NewScrapeError(models.ErrCodeEmptyContent,
			fmt.Sprintf("no content could be extracted from %s", url), nil)
	}

	f.logger.Debug("fetched page", "url", url, "content_length", len(text), "hint", hint)

	return text, nil
}

func classifyNavigationError(url string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") {
		return models.NewScrapeError(models.ErrCodeNavTimeout,
			fmt.Sprintf("page took too long to load (%s)", url), err)
	}
	return models.NewScrapeError(models.ErrCodeNavFailed,
		fmt.Sprintf("could not reach %s", url), err)
}
