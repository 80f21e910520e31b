package memory

import (
	"strings"
	"testing"
	"time"

	"github.com/entrhq/pagemem/pkg/config"
)

func mustNewCapturer(t *testing.T, settings *config.Settings) *Capturer {
	t.Helper()
	c, err := NewCapturer(settings)
	if err != nil {
		t.Fatalf("NewCapturer() error = %v", err)
	}
	return c
}

func TestCaptureSnapshot(t *testing.T) {
	tests := []struct {
		name     string
		settings *config.Settings
		html     string
		wantIDs  []string
		wantLen  int
	}{
		{
			name:    "identity attribute wins over tag tracking",
			html:    `<p data-pagemem-id="intro">Hello</p>`,
			wantIDs: []string{"intro"},
			wantLen: 1,
		},
		{
			name:    "identity attribute on untracked tag",
			html:    `<em data-pagemem-id="em1">emphasized</em>`,
			wantIDs: []string{"em1"},
			wantLen: 1,
		},
		{
			name:    "untracked tag without identity is ignored",
			html:    `<em>just emphasis</em>`,
			wantLen: 0,
		},
		{
			name:    "noise subtrees are skipped",
			html:    `<p data-pagemem-id="keep">ok</p><script>var x = 1;</script><svg><circle/></svg>`,
			wantIDs: []string{"keep"},
			wantLen: 1,
		},
		{
			name:    "duplicate identity collapses to first occurrence",
			html:    `<p data-pagemem-id="dup">first</p><p data-pagemem-id="dup">second</p>`,
			wantIDs: []string{"dup"},
			wantLen: 1,
		},
		{
			name:    "nested candidates are tracked independently",
			html:    `<li data-pagemem-id="item1">Item <a data-pagemem-id="link1" href="/x">link</a></li>`,
			wantIDs: []string{"item1", "link1"},
			wantLen: 2,
		},
		{
			name:    "empty markup yields empty snapshot",
			html:    "",
			wantLen: 0,
		},
		{
			name:    "whitespace markup yields empty snapshot",
			html:    "  \n\t  ",
			wantLen: 0,
		},
		{
			name:    "garbage markup yields empty snapshot",
			html:    "<<<>>>",
			wantLen: 0,
		},
		{
			name: "exclusion globs drop matching elements",
			settings: func() *config.Settings {
				s := config.DefaultSettings()
				s.ExcludePatterns = []string{"div.ad-*", "*#cookie-banner"}
				return s
			}(),
			html: `<div class="ad-banner top" data-pagemem-id="ad1">buy now</div>` +
				`<p data-pagemem-id="keep">content</p>` +
				`<section id="cookie-banner" data-pagemem-id="cb">cookies</section>`,
			wantIDs: []string{"keep"},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustNewCapturer(t, tt.settings)
			snap := c.CaptureSnapshot(CaptureInput{BodyHTML: tt.html})

			if snap.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d (ids: %v)", snap.Len(), tt.wantLen, snap.IDs())
			}
			for _, id := range tt.wantIDs {
				if !snap.Contains(id) {
					t.Errorf("snapshot missing element %q (ids: %v)", id, snap.IDs())
				}
			}
		})
	}
}

func TestCaptureSnapshotDocumentOrder(t *testing.T) {
	c := mustNewCapturer(t, nil)
	snap := c.CaptureSnapshot(CaptureInput{
		BodyHTML: `<h1 data-pagemem-id="title">T</h1><p data-pagemem-id="p1">one</p><p data-pagemem-id="p2">two</p>`,
	})

	want := []string{"title", "p1", "p2"}
	got := snap.IDs()
	if len(got) != len(want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("IDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCaptureSnapshotHashFallback(t *testing.T) {
	c := mustNewCapturer(t, nil)

	first := c.CaptureSnapshot(CaptureInput{BodyHTML: `<p>Hello world</p>`})
	if first.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", first.Len())
	}
	id := first.IDs()[0]
	if !strings.HasPrefix(id, "sha-") {
		t.Errorf("fallback id = %q, want sha- prefix", id)
	}

	// Identical content hashes to the identical identity.
	second := c.CaptureSnapshot(CaptureInput{BodyHTML: `<p>Hello world</p>`})
	if !second.Contains(id) {
		t.Errorf("identical content produced different id: %v", second.IDs())
	}

	// Different text is a different identity.
	third := c.CaptureSnapshot(CaptureInput{BodyHTML: `<p>Goodbye world</p>`})
	if third.Contains(id) {
		t.Errorf("different content reused id %q", id)
	}

	// The attribute subset participates in identity.
	fourth := c.CaptureSnapshot(CaptureInput{BodyHTML: `<p class="lead">Hello world</p>`})
	if fourth.Contains(id) {
		t.Errorf("different class attribute reused id %q", id)
	}
}

func TestCaptureSnapshotVisibility(t *testing.T) {
	tests := []struct {
		name string
		html string
		want VisibilityState
	}{
		{
			name: "plain element is visible",
			html: `<p data-pagemem-id="x">hi</p>`,
			want: StateVisible,
		},
		{
			name: "driver hidden marker",
			html: `<p data-pagemem-id="x" data-pagemem-hidden="true">hi</p>`,
			want: StateHidden,
		},
		{
			name: "hidden attribute",
			html: `<p data-pagemem-id="x" hidden>hi</p>`,
			want: StateHidden,
		},
		{
			name: "aria-hidden",
			html: `<p data-pagemem-id="x" aria-hidden="true">hi</p>`,
			want: StateHidden,
		},
		{
			name: "display none style",
			html: `<p data-pagemem-id="x" style="display: none">hi</p>`,
			want: StateHidden,
		},
		{
			name: "visibility hidden style",
			html: `<p data-pagemem-id="x" style="visibility:hidden">hi</p>`,
			want: StateHidden,
		},
		{
			name: "aria-hidden false stays visible",
			html: `<p data-pagemem-id="x" aria-hidden="false">hi</p>`,
			want: StateVisible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustNewCapturer(t, nil)
			snap := c.CaptureSnapshot(CaptureInput{BodyHTML: tt.html})

			element, ok := snap.Element("x")
			if !ok {
				t.Fatalf("snapshot missing element x (ids: %v)", snap.IDs())
			}
			if element.VisibilityState != tt.want {
				t.Errorf("VisibilityState = %q, want %q", element.VisibilityState, tt.want)
			}
		})
	}
}

func TestCaptureSnapshotText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "whitespace collapses",
			html: "<p data-pagemem-id=\"x\">  Hello\n\t world  </p>",
			want: "Hello world",
		},
		{
			name: "nested inline text joins",
			html: `<li data-pagemem-id="x">Item <b>one</b> done</li>`,
			want: "Item one done",
		},
		{
			name: "empty element has empty text",
			html: `<input data-pagemem-id="x" type="text" name="q">`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustNewCapturer(t, nil)
			snap := c.CaptureSnapshot(CaptureInput{BodyHTML: tt.html})

			element, ok := snap.Element("x")
			if !ok {
				t.Fatalf("snapshot missing element x (ids: %v)", snap.IDs())
			}
			if element.Text != tt.want {
				t.Errorf("Text = %q, want %q", element.Text, tt.want)
			}
		})
	}
}

func TestCaptureSnapshotSanitize(t *testing.T) {
	input := CaptureInput{BodyHTML: `<p data-pagemem-id="x" onclick="steal()">hi</p>`}

	sanitized := mustNewCapturer(t, nil).CaptureSnapshot(input)
	element, ok := sanitized.Element("x")
	if !ok {
		t.Fatalf("sanitized snapshot missing element x")
	}
	if strings.Contains(element.HTML, "onclick") {
		t.Errorf("sanitized fragment kept onclick: %s", element.HTML)
	}

	raw := config.DefaultSettings()
	raw.Sanitize = false
	unsanitized := mustNewCapturer(t, raw).CaptureSnapshot(input)
	element, ok = unsanitized.Element("x")
	if !ok {
		t.Fatalf("unsanitized snapshot missing element x")
	}
	if !strings.Contains(element.HTML, "onclick") {
		t.Errorf("unsanitized fragment lost onclick: %s", element.HTML)
	}
}

func TestCaptureSnapshotMetadata(t *testing.T) {
	c := mustNewCapturer(t, nil)
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	snap := c.CaptureSnapshot(CaptureInput{
		BodyHTML:      `<p data-pagemem-id="x">hi</p>`,
		Scroll:        ScrollPosition{X: 3, Y: 140},
		Viewport:      ViewportSize{Width: 800, Height: 600},
		ActionContext: "scroll 1",
		URL:           "https://example.com/feed",
		Timestamp:     ts,
	})

	if !snap.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", snap.Timestamp, ts)
	}
	if snap.Scroll.X != 3 || snap.Scroll.Y != 140 {
		t.Errorf("Scroll = %+v, want {3 140}", snap.Scroll)
	}
	if snap.Viewport.Width != 800 || snap.Viewport.Height != 600 {
		t.Errorf("Viewport = %+v, want {800 600}", snap.Viewport)
	}
	if snap.ActionContext != "scroll 1" {
		t.Errorf("ActionContext = %q, want %q", snap.ActionContext, "scroll 1")
	}
	if snap.URL != "https://example.com/feed" {
		t.Errorf("URL = %q, want %q", snap.URL, "https://example.com/feed")
	}

	element, _ := snap.Element("x")
	if !element.FirstSeen.Equal(ts) || !element.LastSeen.Equal(ts) {
		t.Errorf("element timestamps = %v/%v, want %v", element.FirstSeen, element.LastSeen, ts)
	}
	if element.ViewCount != 1 {
		t.Errorf("ViewCount = %d, want 1", element.ViewCount)
	}
}

func TestCaptureSnapshotDefaultTimestamp(t *testing.T) {
	c := mustNewCapturer(t, nil)
	before := time.Now()

	snap := c.CaptureSnapshot(CaptureInput{BodyHTML: `<p data-pagemem-id="x">hi</p>`})

	if snap.Timestamp.Before(before) {
		t.Errorf("Timestamp = %v, want >= %v", snap.Timestamp, before)
	}
}

func TestNewCapturerInvalidPattern(t *testing.T) {
	settings := config.DefaultSettings()
	settings.ExcludePatterns = []string{"["}

	_, err := NewCapturer(settings)
	if err == nil {
		t.Fatal("NewCapturer() expected error for invalid pattern")
	}
	if !strings.Contains(err.Error(), "invalid exclude pattern") {
		t.Errorf("error = %q, want mention of invalid exclude pattern", err)
	}
}
