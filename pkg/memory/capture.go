package memory

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/entrhq/pagemem/pkg/config"
)

const (
	// IdentityAttr is the attribute the upstream DOM indexer attaches to
	// give elements a stable identity across re-renders.
	IdentityAttr = "data-pagemem-id"

	// HiddenAttr marks elements the driver observed as occluded at capture
	// time (zero-size box, display:none computed style, covered by overlay).
	HiddenAttr = "data-pagemem-hidden"
)

// hashAttrs is the fixed attribute subset participating in fallback
// identity. Order matters: the hash walks this list, never the parsed
// attribute order, so identical content always hashes identically.
var hashAttrs = []string{"id", "class", "name", "type", "href", "src", "alt", "role", "aria-label"}

// skippedTags are noise elements whose entire subtree is ignored during
// capture.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"embed":    true,
	"object":   true,
	"svg":      true,
	"template": true,
}

// Capturer parses raw body markup into ContentSnapshots. It is a pure
// transform: it never touches the cumulative store, and a malformed page
// degrades to an empty snapshot instead of failing the action sequence.
type Capturer struct {
	tracked  map[string]bool
	excludes []glob.Glob
	policy   *bluemonday.Policy
}

// NewCapturer creates a capturer from the given settings. Nil settings use
// the defaults. Exclusion patterns are compiled eagerly so an invalid
// pattern surfaces at construction, not mid-session.
func NewCapturer(settings *config.Settings) (*Capturer, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	c := &Capturer{
		tracked: make(map[string]bool, len(settings.TrackedTags)),
	}
	for _, tag := range settings.TrackedTags {
		c.tracked[strings.ToLower(strings.TrimSpace(tag))] = true
	}

	for _, pattern := range settings.ExcludePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		c.excludes = append(c.excludes, g)
	}

	if settings.Sanitize {
		c.policy = capturePolicy()
	}

	return c, nil
}

// capturePolicy builds the sanitization policy applied to incoming markup.
// It starts from the UGC baseline and re-admits the form controls and
// targeting attributes automation cares about, plus the data-pagemem-*
// markers attached by the driver.
func capturePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements(
		"div", "span", "button", "input", "select", "option", "textarea",
		"label", "form", "nav", "header", "footer", "main", "section",
		"article", "aside", "figure", "figcaption", "details", "summary",
	)
	p.AllowAttrs(
		"id", "class", "role", "aria-label", "aria-hidden", "style",
		"name", "type", "placeholder", "value", "title", "alt", "hidden",
	).Globally()
	p.AllowDataAttributes()
	return p
}

// CaptureSnapshot parses the supplied markup into an immutable snapshot of
// tracked elements. Malformed or empty markup yields a snapshot with zero
// elements rather than an error, so a degraded capture never aborts the
// calling action sequence.
func (c *Capturer) CaptureSnapshot(input CaptureInput) *ContentSnapshot {
	ts := input.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	snap := &ContentSnapshot{
		Timestamp:     ts,
		Elements:      make(map[string]*ElementData),
		Scroll:        input.Scroll,
		Viewport:      input.Viewport,
		ActionContext: input.ActionContext,
		URL:           input.URL,
	}

	markup := input.BodyHTML
	if strings.TrimSpace(markup) == "" {
		return snap
	}
	if c.policy != nil {
		markup = c.policy.Sanitize(markup)
	}

	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		// Degraded capture: proceed with zero elements.
		return snap
	}

	c.collect(doc, snap, ts)
	return snap
}

// collect walks the parsed tree recording every candidate element. Nested
// candidates are recorded independently: a list item and the link inside it
// are both tracked, since automation may target either.
func (c *Capturer) collect(n *html.Node, snap *ContentSnapshot, ts time.Time) {
	if n.Type == html.ElementNode {
		tag := strings.ToLower(n.Data)
		if skippedTags[tag] {
			return
		}
		if c.isCandidate(tag, n) && !c.isExcluded(tag, n) {
			c.record(n, tag, snap, ts)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.collect(child, snap, ts)
	}
}

// isCandidate reports whether an element belongs in the snapshot: any
// element carrying the identity attribute, or whose tag is tracked.
func (c *Capturer) isCandidate(tag string, n *html.Node) bool {
	if attrValue(n, IdentityAttr) != "" {
		return true
	}
	return c.tracked[tag]
}

// isExcluded matches the element against the configured exclusion globs.
// Patterns are tested against "tag", "tag#id", and "tag.class" forms, so
// "div.ad-*" or "*#cookie-banner" drop the usual noise.
func (c *Capturer) isExcluded(tag string, n *html.Node) bool {
	if len(c.excludes) == 0 {
		return false
	}

	keys := []string{tag}
	if id := attrValue(n, "id"); id != "" {
		keys = append(keys, tag+"#"+id)
	}
	for _, class := range strings.Fields(attrValue(n, "class")) {
		keys = append(keys, tag+"."+class)
	}

	for _, g := range c.excludes {
		for _, key := range keys {
			if g.Match(key) {
				return true
			}
		}
	}
	return false
}

// record resolves the element's identity and adds it to the snapshot. A
// duplicate id within one snapshot means content-indistinguishable elements;
// they collapse into the first occurrence.
func (c *Capturer) record(n *html.Node, tag string, snap *ContentSnapshot, ts time.Time) {
	text := normalizeText(n)
	id := resolveIdentity(n, tag, text)
	if _, exists := snap.Elements[id]; exists {
		return
	}

	state := StateVisible
	if isHidden(n) {
		state = StateHidden
	}

	snap.Elements[id] = &ElementData{
		ID:              id,
		Tag:             tag,
		Text:            text,
		HTML:            renderFragment(n),
		VisibilityState: state,
		FirstSeen:       ts,
		LastSeen:        ts,
		ViewCount:       1,
	}
	snap.order = append(snap.order, id)
}

// resolveIdentity is the two-step identity resolver: the driver-attached
// attribute wins; otherwise identity falls back to a deterministic content
// hash. The hash is stable for identical content, so two genuinely
// indistinguishable elements share one logical identity.
func resolveIdentity(n *html.Node, tag, text string) string {
	if v := attrValue(n, IdentityAttr); v != "" {
		return v
	}
	return contentHash(tag, text, n.Attr)
}

// contentHash computes the fallback identity over tag, normalized text, and
// the fixed attribute subset.
func contentHash(tag, text string, attrs []html.Attribute) string {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write([]byte{0})
	h.Write([]byte(text))
	for _, key := range hashAttrs {
		for _, a := range attrs {
			if strings.ToLower(a.Key) == key {
				h.Write([]byte{0})
				h.Write([]byte(key))
				h.Write([]byte{'='})
				h.Write([]byte(a.Val))
			}
		}
	}
	return "sha-" + hex.EncodeToString(h.Sum(nil))[:16]
}

// normalizeText joins the element's descendant text nodes and collapses all
// whitespace runs to single spaces. Text inside noise subtrees does not
// count as content.
func normalizeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(m *html.Node) {
		if m.Type == html.TextNode {
			b.WriteString(m.Data)
			b.WriteByte(' ')
		}
		if m.Type == html.ElementNode && skippedTags[strings.ToLower(m.Data)] {
			return
		}
		for child := m.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// renderFragment serializes the element subtree back to markup.
func renderFragment(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// isHidden reports whether the element is present but occluded: the driver
// hidden marker, the hidden attribute, aria-hidden, or an inline style that
// suppresses rendering.
func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case HiddenAttr:
			if a.Val == "" || strings.EqualFold(a.Val, "true") {
				return true
			}
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(a.Val, "true") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// attrValue returns the value of the named attribute, or "" when absent.
func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}
