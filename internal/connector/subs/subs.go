// internal/connector/subs/subs.go

// Package subs is the built-in subscriptions connector. It walks the
// account's subscription listing page by page and exports the rows,
// gating on the operator when the session is not signed in.
package subs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/gantryhq/gantry/internal/connector"
)

// DefaultStartURL is where the export begins unless overridden.
const DefaultStartURL = "https://deals.example/account/subscriptions"

const (
	defaultPageLimit = 50
	// One page turn every two seconds unless configured otherwise.
	defaultPageRate = rate.Limit(0.5)
)

// probeSignedInJS reports whether the page shows a signed-in session.
const probeSignedInJS = `(() => {
	return !!document.querySelector('[data-signed-in="true"], .account-menu, a[href*="logout"]');
})()`

// captureDocumentJS snapshots the rendered document for parsing.
const captureDocumentJS = `document.documentElement.outerHTML`

// Subscription is one exported row.
type Subscription struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Frequency string `json:"frequency,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Options tune the export walk. Zero values fall back to defaults.
type Options struct {
	StartURL     string
	PageLimit    int
	PageRate     rate.Limit
	PollInterval time.Duration
}

// Connector implements connector.Connector for subscription exports.
type Connector struct {
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ connector.Connector = (*Connector)(nil)

// New builds the connector.
func New(logger *zap.Logger, opts Options) *Connector {
	if opts.StartURL == "" {
		opts.StartURL = DefaultStartURL
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	if opts.PageRate == 0 {
		opts.PageRate = defaultPageRate
	}

	return &Connector{
		opts:    opts,
		limiter: rate.NewLimiter(opts.PageRate, 1),
		logger:  logger.Named("subs"),
	}
}

func (c *Connector) Name() string { return "subscriptions" }

func (c *Connector) Summary() string {
	return "Exports the signed-in account's subscription list to JSON."
}

// Run walks the listing and emits the export as the run result.
func (c *Connector) Run(ctx context.Context, rt connector.Runtime) (*connector.Completion, error) {
	if err := rt.Goto(ctx, c.opts.StartURL); err != nil {
		return nil, fmt.Errorf("opening subscriptions page: %w", err)
	}

	signedIn := func(ctx context.Context) (bool, error) {
		var ok bool
		if err := rt.Evaluate(ctx, probeSignedInJS, &ok); err != nil {
			return false, err
		}
		return ok, nil
	}
	if err := rt.AwaitCondition(ctx, "sign in to your account to continue the export", signedIn, c.opts.PollInterval); err != nil {
		return nil, fmt.Errorf("waiting for sign-in: %w", err)
	}

	// Login may have redirected the session; land on page one again.
	if err := rt.Goto(ctx, c.opts.StartURL); err != nil {
		return nil, fmt.Errorf("returning to subscriptions page: %w", err)
	}

	var rows []Subscription
	pageURL := c.opts.StartURL
	pages := 0

	for page := 1; ; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var pageHTML string
		if err := rt.Evaluate(ctx, captureDocumentJS, &pageHTML); err != nil {
			return nil, fmt.Errorf("capturing page %d: %w", page, err)
		}

		pageRows, next, err := parsePage(pageURL, pageHTML)
		if err != nil {
			return nil, fmt.Errorf("parsing page %d: %w", page, err)
		}
		rows = append(rows, pageRows...)
		pages = page

		count := len(rows)
		rt.SetProgress(connector.ProgressEvent{
			Phase:   &connector.PhaseInfo{Step: page, Label: "export"},
			Message: fmt.Sprintf("collected page %d", page),
			Count:   &count,
		})
		c.logger.Debug("page collected",
			zap.Int("page", page),
			zap.Int("rows", len(pageRows)),
			zap.String("next", next),
		)

		if next == "" || next == pageURL || page >= c.opts.PageLimit {
			break
		}
		if err := rt.Goto(ctx, next); err != nil {
			return nil, fmt.Errorf("turning to page %d: %w", page+1, err)
		}
		pageURL = next
	}

	if rows == nil {
		rows = []Subscription{}
	}
	data := map[string]any{
		"exportSummary": map[string]any{
			"subscriptions": len(rows),
			"pages":         pages,
		},
		"subscriptions": rows,
	}

	rt.SetData(connector.ResultKey, map[string]any{"success": true, "data": data})
	return &connector.Completion{Success: true, Data: data}, nil
}

// parsePage extracts subscription rows and the next-page link from one
// listing document. Relative hrefs resolve against pageURL.
func parsePage(pageURL, pageHTML string) ([]Subscription, string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("parsing page url: %w", err)
	}

	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, "", fmt.Errorf("parsing listing html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	var rows []Subscription
	doc.Find(".subscription-row").Each(func(i int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find(".subscription-name").First().Text())
		if name == "" {
			return
		}

		row := Subscription{
			Name:      name,
			Frequency: strings.TrimSpace(s.Find(".subscription-frequency").First().Text()),
		}
		if id, ok := s.Attr("data-subscription-id"); ok {
			row.ID = strings.TrimSpace(id)
		}
		if href, ok := s.Find("a[href]").First().Attr("href"); ok {
			if resolved, err := base.Parse(strings.TrimSpace(href)); err == nil {
				row.URL = resolved.String()
			}
		}
		rows = append(rows, row)
	})

	next := ""
	if href, ok := doc.Find("a.pagination-next[href]").First().Attr("href"); ok {
		if resolved, err := base.Parse(strings.TrimSpace(href)); err == nil {
			next = resolved.String()
		}
	}

	return rows, next, nil
}
