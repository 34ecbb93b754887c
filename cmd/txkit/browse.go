package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"txkit/internal/browser"
	"txkit/internal/browser/memory"
)

var (
	flagBrowseKind     string
	flagBrowseSelector string
)

func init() {
	browseCmd.Flags().StringVar(&flagBrowseKind, "kind", "", "browser kind (default: first configured kind)")
	browseCmd.Flags().StringVar(&flagBrowseSelector, "text", "", "also print the text of the element matching this selector")
	rootCmd.AddCommand(browseCmd)
}

var browseCmd = &cobra.Command{
	Use:   "browse <url>",
	Short: "Open a browser session, load a page and print its title and URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := browser.ParseKinds(cfg.Browser.Kinds)
		if err != nil {
			return err
		}
		kind := browser.KindChromeHeadless
		if len(kinds) > 0 {
			kind = kinds[0]
		}
		if flagBrowseKind != "" {
			kind = browser.Kind(flagBrowseKind)
		}

		ctx := cmd.Context()
		fixture := browser.Fixture{Factory: browserFactories(args[0]), Logger: logger}
		s, err := fixture.Open(ctx, kind)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil {
				logger.Warn("close browser session", "error", err)
			}
		}()

		if err := s.Navigate(ctx, args[0]); err != nil {
			return err
		}
		title, err := s.Title(ctx)
		if err != nil {
			return err
		}
		url, err := s.CurrentURL(ctx)
		if err != nil {
			return err
		}
		out := map[string]string{"kind": string(kind), "session": s.ID(), "title": title, "url": url}
		if flagBrowseSelector != "" {
			text, err := s.Text(ctx, flagBrowseSelector)
			if err != nil {
				return err
			}
			out["text"] = text
		}
		return writeYAML(cmd.OutOrStdout(), out)
	},
}

// browserFactories routes the chrome kinds to chromedp. The memory kind
// serves a single placeholder page at url, which is enough to exercise the
// session plumbing without a browser installed.
func browserFactories(url string) browser.Factories {
	chrome := browser.ChromeFactory{
		ForceHeadless: cfg.Browser.Headless,
		Timeout:       cfg.Browser.Timeout,
		Logger:        logger,
	}
	site := memory.Site{url: {
		Title:    fmt.Sprintf("txkit memory page for %s", url),
		Elements: map[string]memory.Element{"body": {Text: url}},
	}}
	return browser.Factories{
		browser.KindChrome:         chrome,
		browser.KindChromeHeadless: chrome,
		browser.KindMemory:         memory.NewFactory(site),
	}
}
