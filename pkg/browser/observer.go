package browser

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagemem/pkg/memory"
)

// primeScriptTemplate tags trackable elements with stable identity
// attributes and refreshes the hidden markers. The %s placeholder receives
// a JSON array of tracked tag names. The id counter and seed live on
// window, so re-priming the same page never re-tags an element, while a
// navigation starts a fresh seed and the old page's ids are never reused.
const primeScriptTemplate = `(() => {
	const tags = new Set(%s);
	if (!window.__pagememSeed) {
		window.__pagememSeed = Date.now().toString(36);
		window.__pagememNext = 1;
	}
	const all = document.body ? document.body.querySelectorAll('*') : [];
	let tagged = 0;
	for (const el of all) {
		const tag = el.tagName.toLowerCase();
		const hasId = el.hasAttribute('data-pagemem-id');
		if (!tags.has(tag) && !hasId) continue;
		if (!hasId) {
			el.setAttribute('data-pagemem-id', 'pm-' + window.__pagememSeed + '-' + window.__pagememNext++);
			tagged++;
		}
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const hidden = style.display === 'none' || style.visibility === 'hidden' ||
			rect.width === 0 || rect.height === 0;
		if (hidden) {
			el.setAttribute('data-pagemem-hidden', 'true');
		} else if (el.hasAttribute('data-pagemem-hidden')) {
			el.removeAttribute('data-pagemem-hidden');
		}
	}
	return tagged;
})()`

// captureScript reads everything one capture needs in a single round trip.
const captureScript = `(() => ({
	html: document.body ? document.body.innerHTML : '',
	url: window.location.href,
	scrollX: Math.round(window.scrollX),
	scrollY: Math.round(window.scrollY),
	viewportWidth: window.innerWidth,
	viewportHeight: window.innerHeight
}))()`

// Observer binds one browser page to a content memory. It primes the page
// with identity attributes, captures snapshots, and folds them into the
// memory around the actions it performs.
//
// An Observer drives a single page and is not safe for concurrent use. The
// usage metadata is guarded separately because the manager's idle cleanup
// reads it from another goroutine.
type Observer struct {
	name        string
	browser     playwright.Browser
	context     playwright.BrowserContext
	page        playwright.Page
	memory      *memory.ContentMemory
	primeScript string
	last        *memory.ContentSnapshot
	createdAt   time.Time

	infoMu     sync.Mutex
	lastUsedAt time.Time
	currentURL string
}

// buildPrimeScript renders the tagging script for the given tracked tags.
func buildPrimeScript(trackedTags []string) string {
	tags, err := json.Marshal(trackedTags)
	if err != nil || len(trackedTags) == 0 {
		tags = []byte("[]")
	}
	return fmt.Sprintf(primeScriptTemplate, string(tags))
}

// Name returns the observer's session name.
func (o *Observer) Name() string {
	return o.name
}

// Memory returns the content memory this observer feeds.
func (o *Observer) Memory() *memory.ContentMemory {
	return o.memory
}

// Page exposes the underlying page for operations the observer does not
// wrap.
func (o *Observer) Page() playwright.Page {
	return o.page
}

// URL returns the page's current URL.
func (o *Observer) URL() string {
	return o.page.URL()
}

// CreatedAt returns when the observer session was started.
func (o *Observer) CreatedAt() time.Time {
	return o.createdAt
}

// LastUsedAt returns when the observer last performed a page operation.
func (o *Observer) LastUsedAt() time.Time {
	o.infoMu.Lock()
	defer o.infoMu.Unlock()
	return o.lastUsedAt
}

// touch records a page operation for idle tracking.
func (o *Observer) touch() {
	o.infoMu.Lock()
	o.lastUsedAt = time.Now()
	o.infoMu.Unlock()
}

// info snapshots the observer metadata for listing.
func (o *Observer) info() ObserverInfo {
	o.infoMu.Lock()
	defer o.infoMu.Unlock()
	return ObserverInfo{
		Name:       o.name,
		CurrentURL: o.currentURL,
		CreatedAt:  o.createdAt,
		LastUsedAt: o.lastUsedAt,
	}
}

// Prime tags trackable elements with identity attributes and refreshes the
// hidden markers. It is idempotent on an unchanged page and returns the
// number of newly tagged elements.
func (o *Observer) Prime() (int, error) {
	o.touch()
	result, err := o.page.Evaluate(o.primeScript)
	if err != nil {
		return 0, fmt.Errorf("prime script failed: %w", err)
	}
	return jsInt(result), nil
}

// Capture reads the page state and parses it into a snapshot. The label
// becomes the snapshot's action context.
func (o *Observer) Capture(label string) (*memory.ContentSnapshot, error) {
	o.touch()
	result, err := o.page.Evaluate(captureScript)
	if err != nil {
		return nil, fmt.Errorf("capture script failed: %w", err)
	}
	fields, ok := result.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected capture result type %T", result)
	}

	input := memory.CaptureInput{
		BodyHTML:      jsString(fields["html"]),
		URL:           jsString(fields["url"]),
		ActionContext: label,
		Scroll: memory.ScrollPosition{
			X: jsInt(fields["scrollX"]),
			Y: jsInt(fields["scrollY"]),
		},
		Viewport: memory.ViewportSize{
			Width:  jsInt(fields["viewportWidth"]),
			Height: jsInt(fields["viewportHeight"]),
		},
	}
	return o.memory.CaptureSnapshot(input), nil
}

// snapshot primes the page and captures it, so content inserted since the
// last observation is tagged before it is parsed.
func (o *Observer) snapshot(label string) (*memory.ContentSnapshot, error) {
	if _, err := o.Prime(); err != nil {
		return nil, err
	}
	return o.Capture(label)
}

// TrackAction captures around an action and merges the difference into the
// memory. The first call on a page also seeds the memory with a baseline
// snapshot before running the action. A nil action just observes.
func (o *Observer) TrackAction(label string, action func() error) (*memory.MergeResult, error) {
	if o.last == nil {
		baseline, err := o.snapshot("baseline")
		if err != nil {
			return nil, err
		}
		result := o.memory.MergeSnapshots(nil, baseline)
		o.last = baseline
		if action == nil {
			return result, nil
		}
	}

	if action != nil {
		if err := action(); err != nil {
			return nil, fmt.Errorf("action %s failed: %w", label, err)
		}
	}

	after, err := o.snapshot(label)
	if err != nil {
		return nil, err
	}
	result := o.memory.MergeSnapshots(o.last, after)
	o.last = after
	browserDebugLog.Debugf("observer %q tracked %q: %s", o.name, label, result.Summary())
	return result, nil
}

// Observe captures the current page state and merges it against the last
// observation, without performing an action.
func (o *Observer) Observe(label string) (*memory.MergeResult, error) {
	return o.TrackAction(label, nil)
}

// TrackNavigate navigates inside a tracked action, so the outgoing page's
// content is marked removed and the incoming page's content is recorded in
// one merge.
func (o *Observer) TrackNavigate(url string, opts NavigateOptions) (*memory.MergeResult, error) {
	return o.TrackAction(fmt.Sprintf("navigate to %s", url), func() error {
		return o.Navigate(url, opts)
	})
}

// TrackClick clicks the element matching the selector inside a tracked
// action.
func (o *Observer) TrackClick(selector string) (*memory.MergeResult, error) {
	return o.TrackAction(fmt.Sprintf("click %s", selector), func() error {
		return o.Click(selector)
	})
}

// TrackScroll scrolls by the given deltas inside a tracked action.
func (o *Observer) TrackScroll(dx, dy int) (*memory.MergeResult, error) {
	return o.TrackAction(fmt.Sprintf("scroll by %d,%d", dx, dy), func() error {
		return o.ScrollBy(dx, dy)
	})
}

// Navigate navigates the page. The last observation stays in place as the
// merge baseline, so the previous page's content counts as removed on the
// next observation.
func (o *Observer) Navigate(url string, opts NavigateOptions) error {
	o.touch()
	playwrightOpts := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if _, err := o.page.Goto(url, playwrightOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	o.infoMu.Lock()
	o.currentURL = url
	o.infoMu.Unlock()
	browserDebugLog.Debugf("observer %q navigated to %s", o.name, url)
	return nil
}

// Click clicks the element matching the selector.
func (o *Observer) Click(selector string) error {
	o.touch()
	if err := o.page.Click(selector, playwright.PageClickOptions{}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// ScrollBy scrolls the page by the given deltas in pixels.
func (o *Observer) ScrollBy(dx, dy int) error {
	o.touch()
	if _, err := o.page.Evaluate(fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy)); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// close releases the page, context, and browser. Errors are ignored so one
// failed close never blocks the rest of the cleanup.
func (o *Observer) close() {
	_ = o.page.Close()
	_ = o.context.Close()
	_ = o.browser.Close()
}

// jsInt converts a number returned from page JavaScript. The driver may
// deliver integers as int or float64 depending on the value.
func jsInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// jsString converts a string returned from page JavaScript.
func jsString(v interface{}) string {
	s, _ := v.(string)
	return s
}
