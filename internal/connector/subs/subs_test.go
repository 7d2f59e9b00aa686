// internal/connector/subs/subs_test.go
package subs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/gantryhq/gantry/internal/connector"
)

// fakeRuntime serves canned documents keyed by URL.
type fakeRuntime struct {
	mu          sync.Mutex
	pages       map[string]string
	current     string
	signedIn    bool
	gotoErr     error
	evalErr     error
	navigated   []string
	progress    []connector.ProgressEvent
	gatePrompts []string
	data        map[string]any
}

func newFakeRuntime(pages map[string]string) *fakeRuntime {
	return &fakeRuntime{
		pages:    pages,
		signedIn: true,
		data:     map[string]any{},
	}
}

func (r *fakeRuntime) Goto(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gotoErr != nil {
		return r.gotoErr
	}
	if _, ok := r.pages[url]; !ok {
		return fmt.Errorf("%w: no page at %s", connector.ErrNavigation, url)
	}
	r.current = url
	r.navigated = append(r.navigated, url)
	return nil
}

func (r *fakeRuntime) Evaluate(ctx context.Context, script string, out any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch script {
	case probeSignedInJS:
		*(out.(*bool)) = r.signedIn
	case captureDocumentJS:
		if r.evalErr != nil {
			return r.evalErr
		}
		*(out.(*string)) = r.pages[r.current]
	default:
		return fmt.Errorf("%w: unexpected script %q", connector.ErrEvaluation, script)
	}
	return nil
}

func (r *fakeRuntime) Sleep(ctx context.Context, d time.Duration) error { return nil }

func (r *fakeRuntime) SetData(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.data[key]; !dup {
		r.data[key] = value
	}
}

func (r *fakeRuntime) SetProgress(ev connector.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, ev)
}

func (r *fakeRuntime) ShowBrowser(ctx context.Context, url string) error { return nil }
func (r *fakeRuntime) GoHeadless(ctx context.Context) error              { return nil }

func (r *fakeRuntime) AwaitCondition(ctx context.Context, message string, pred connector.Predicate, pollInterval time.Duration) error {
	r.mu.Lock()
	r.gatePrompts = append(r.gatePrompts, message)
	r.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ok, err := pred(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return context.DeadlineExceeded
}

func (r *fakeRuntime) setSignedIn(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signedIn = v
}

func (r *fakeRuntime) result() (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[connector.ResultKey]
	if !ok {
		return nil, false
	}
	return v.(map[string]any), true
}

// listingPage renders a subscriptions document with the given row
// names and an optional next-page href.
func listingPage(names []string, nextHref string) string {
	var b strings.Builder
	b.WriteString(`<html><body><a href="/logout">Log out</a><ul>`)
	for i, name := range names {
		fmt.Fprintf(&b,
			`<li class="subscription-row" data-subscription-id="sub-%d">`+
				`<span class="subscription-name">%s</span>`+
				`<span class="subscription-frequency">daily</span>`+
				`<a href="/deals/%d">view</a></li>`,
			i+1, name, i+1)
	}
	b.WriteString(`</ul>`)
	if nextHref != "" {
		fmt.Fprintf(&b, `<a class="pagination-next" href="%s">Next</a>`, nextHref)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func testOptions() Options {
	return Options{
		StartURL:     DefaultStartURL,
		PageRate:     rate.Inf,
		PollInterval: time.Millisecond,
	}
}

func TestRun_ExportsAcrossPages(t *testing.T) {
	page2 := "https://deals.example/account/subscriptions?page=2"
	page3 := "https://deals.example/account/subscriptions?page=3"
	rt := newFakeRuntime(map[string]string{
		DefaultStartURL: listingPage([]string{"4K TVs", "Mechanical Keyboards", "Espresso", "Camping", "Board Games"}, "?page=2"),
		page2:           listingPage([]string{"Laptops", "Monitors", "Desk Chairs", "Headphones", "Routers"}, "?page=3"),
		page3:           listingPage([]string{"Air Fryers", "Robot Vacuums"}, ""),
	})

	c := New(zaptest.NewLogger(t), testOptions())
	completion, err := c.Run(context.Background(), rt)
	require.NoError(t, err)
	require.NotNil(t, completion)
	assert.True(t, completion.Usable())

	payload, ok := rt.result()
	require.True(t, ok, "connector must emit an explicit result")
	assert.Equal(t, true, payload["success"])

	data := payload["data"].(map[string]any)
	summary := data["exportSummary"].(map[string]any)
	assert.Equal(t, 12, summary["subscriptions"])
	assert.Equal(t, 3, summary["pages"])

	rows := data["subscriptions"].([]Subscription)
	require.Len(t, rows, 12)
	assert.Equal(t, "sub-1", rows[0].ID)
	assert.Equal(t, "4K TVs", rows[0].Name)
	assert.Equal(t, "daily", rows[0].Frequency)
	assert.Equal(t, "https://deals.example/deals/1", rows[0].URL)
	assert.Equal(t, "Robot Vacuums", rows[11].Name)

	// Initial landing, post-gate landing, then two page turns.
	assert.Equal(t, []string{DefaultStartURL, DefaultStartURL, page2, page3}, rt.navigated)

	require.Len(t, rt.progress, 3)
	assert.Equal(t, 1, rt.progress[0].Phase.Step)
	require.NotNil(t, rt.progress[2].Count)
	assert.Equal(t, 12, *rt.progress[2].Count)
}

func TestRun_GatesUntilSignedIn(t *testing.T) {
	rt := newFakeRuntime(map[string]string{
		DefaultStartURL: listingPage([]string{"Espresso"}, ""),
	})
	rt.setSignedIn(false)

	go func() {
		time.Sleep(20 * time.Millisecond)
		rt.setSignedIn(true)
	}()

	c := New(zaptest.NewLogger(t), testOptions())
	completion, err := c.Run(context.Background(), rt)
	require.NoError(t, err)
	assert.True(t, completion.Usable())

	require.Len(t, rt.gatePrompts, 1)
	assert.Contains(t, rt.gatePrompts[0], "sign in")
}

func TestRun_EmptyListing(t *testing.T) {
	rt := newFakeRuntime(map[string]string{
		DefaultStartURL: listingPage(nil, ""),
	})

	c := New(zaptest.NewLogger(t), testOptions())
	completion, err := c.Run(context.Background(), rt)
	require.NoError(t, err)
	require.True(t, completion.Usable(), "an empty account is still a successful export")

	payload, ok := rt.result()
	require.True(t, ok)
	data := payload["data"].(map[string]any)
	summary := data["exportSummary"].(map[string]any)
	assert.Equal(t, 0, summary["subscriptions"])
	assert.Empty(t, data["subscriptions"])
}

func TestRun_PageLimitStopsTheWalk(t *testing.T) {
	page2 := "https://deals.example/account/subscriptions?page=2"
	page3 := "https://deals.example/account/subscriptions?page=3"
	rt := newFakeRuntime(map[string]string{
		DefaultStartURL: listingPage([]string{"A", "B"}, "?page=2"),
		page2:           listingPage([]string{"C", "D"}, "?page=3"),
		page3:           listingPage([]string{"E"}, ""),
	})

	opts := testOptions()
	opts.PageLimit = 2
	c := New(zaptest.NewLogger(t), opts)

	completion, err := c.Run(context.Background(), rt)
	require.NoError(t, err)

	summary := completion.Data["exportSummary"].(map[string]any)
	assert.Equal(t, 4, summary["subscriptions"])
	assert.Equal(t, 2, summary["pages"])
	assert.NotContains(t, rt.navigated, page3)
}

func TestRun_SelfLinkingPaginationStops(t *testing.T) {
	rt := newFakeRuntime(map[string]string{
		DefaultStartURL: listingPage([]string{"A"}, DefaultStartURL),
	})

	c := New(zaptest.NewLogger(t), testOptions())
	completion, err := c.Run(context.Background(), rt)
	require.NoError(t, err)

	summary := completion.Data["exportSummary"].(map[string]any)
	assert.Equal(t, 1, summary["pages"])
}

func TestRun_NavigationFailureSurfaced(t *testing.T) {
	rt := newFakeRuntime(map[string]string{})

	c := New(zaptest.NewLogger(t), testOptions())
	_, err := c.Run(context.Background(), rt)

	require.Error(t, err)
	assert.ErrorIs(t, err, connector.ErrNavigation)
	assert.Contains(t, err.Error(), "opening subscriptions page")
	_, ok := rt.result()
	assert.False(t, ok)
}

func TestRun_CaptureFailureSurfaced(t *testing.T) {
	rt := newFakeRuntime(map[string]string{
		DefaultStartURL: listingPage([]string{"A"}, ""),
	})
	rt.evalErr = fmt.Errorf("%w: execution context destroyed", connector.ErrEvaluation)

	c := New(zaptest.NewLogger(t), testOptions())
	_, err := c.Run(context.Background(), rt)

	require.Error(t, err)
	assert.ErrorIs(t, err, connector.ErrEvaluation)
	assert.Contains(t, err.Error(), "capturing page 1")
}

func TestParsePage(t *testing.T) {
	t.Run("skips rows without a name", func(t *testing.T) {
		doc := `<ul>
			<li class="subscription-row"><span class="subscription-name">Kept</span></li>
			<li class="subscription-row"><span class="subscription-frequency">weekly</span></li>
		</ul>`

		rows, _, err := parsePage(DefaultStartURL, doc)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Kept", rows[0].Name)
	})

	t.Run("resolves relative links against the page url", func(t *testing.T) {
		doc := `<li class="subscription-row">
			<span class="subscription-name">Espresso</span><a href="../deals/9">view</a>
		</li><a class="pagination-next" href="?page=4">next</a>`

		rows, next, err := parsePage("https://deals.example/account/subscriptions", doc)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "https://deals.example/deals/9", rows[0].URL)
		assert.Equal(t, "https://deals.example/account/subscriptions?page=4", next)
	})

	t.Run("no pagination link means the walk is done", func(t *testing.T) {
		rows, next, err := parsePage(DefaultStartURL, listingPage([]string{"A"}, ""))
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Empty(t, next)
	})
}
