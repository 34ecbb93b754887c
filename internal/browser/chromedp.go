package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"txkit/internal/logging"
)

// DefaultChromeTimeout bounds each chromedp operation when no timeout is set.
const DefaultChromeTimeout = 30 * time.Second

// ChromeFactory opens Chrome drivers through chromedp. KindChromeHeadless is
// always headless; KindChrome is headless only when ForceHeadless is set.
type ChromeFactory struct {
	ForceHeadless bool
	Timeout       time.Duration
	ExecPath      string
	Logger        *slog.Logger
}

// Open implements DriverFactory.
func (f ChromeFactory) Open(ctx context.Context, kind Kind) (Driver, error) {
	var headless bool
	switch kind {
	case KindChromeHeadless:
		headless = true
	case KindChrome:
		headless = f.ForceHeadless
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBrowser, kind)
	}
	logger := f.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultChromeTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 800),
	)
	if f.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.ExecPath))
	}

	// The browser outlives the call that opened it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...))
		}),
	)
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start %s: %w", kind, err)
	}
	return &ChromeDriver{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		timeout:     timeout,
	}, nil
}

// ChromeDriver drives one Chrome tab.
type ChromeDriver struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(d.tabCtx, d.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(opCtx, actions...)
}

// Navigate implements Driver.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

// CurrentURL implements Driver.
func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

// Title implements Driver.
func (d *ChromeDriver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, chromedp.Title(&title))
	return title, err
}

func (d *ChromeDriver) node(ctx context.Context, selector string) ([]cdp.NodeID, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return []cdp.NodeID{nodes[0].NodeID}, nil
}

// Find implements Driver.
func (d *ChromeDriver) Find(ctx context.Context, selector string) (Element, error) {
	ids, err := d.node(ctx, selector)
	if err != nil {
		return Element{}, err
	}
	el := Element{Selector: selector}
	err = d.run(ctx,
		chromedp.Text(ids, &el.Text, chromedp.ByNodeID),
		chromedp.OuterHTML(ids, &el.HTML, chromedp.ByNodeID),
	)
	return el, err
}

// Click implements Driver.
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	ids, err := d.node(ctx, selector)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.Click(ids, chromedp.ByNodeID))
}

// Text implements Driver.
func (d *ChromeDriver) Text(ctx context.Context, selector string) (string, error) {
	ids, err := d.node(ctx, selector)
	if err != nil {
		return "", err
	}
	var text string
	err = d.run(ctx, chromedp.Text(ids, &text, chromedp.ByNodeID))
	return text, err
}

// Close shuts the tab and the browser process.
func (d *ChromeDriver) Close() error {
	err := chromedp.Cancel(d.tabCtx)
	d.tabCancel()
	d.allocCancel()
	return err
}
