package memory

import "time"

// VisibilityState describes whether a tracked element is currently present
// on the page.
type VisibilityState string

const (
	// StateVisible marks an element present in the most recent snapshot.
	StateVisible VisibilityState = "visible"

	// StateRemoved marks an element seen earlier in the session but absent
	// from the most recent snapshot.
	StateRemoved VisibilityState = "removed"

	// StateHidden marks an element present in the markup but occluded:
	// flagged by the driver, carrying the hidden attribute, aria-hidden,
	// or an inline display:none / visibility:hidden style.
	StateHidden VisibilityState = "hidden"
)

// ScrollPosition is the page scroll offset at capture time.
type ScrollPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ViewportSize is the browser viewport dimensions at capture time.
type ViewportSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ElementData is one tracked element with its identity, content, and
// temporal metadata. Entries live in the cumulative store for the duration
// of a session and are updated by every merge that references their id.
type ElementData struct {
	// ID is the canonical element identity, unique within a session: the
	// value of the data-pagemem-id attribute when present, otherwise a
	// deterministic content hash.
	ID string `json:"id"`

	// Tag is the lowercase element type name.
	Tag string `json:"tag"`

	// Text is the normalized textual content (descendant text nodes joined,
	// whitespace collapsed).
	Text string `json:"text"`

	// HTML is the raw markup fragment as captured.
	HTML string `json:"html"`

	// VisibilityState reflects the element's status as of the most recent
	// merge.
	VisibilityState VisibilityState `json:"visibility_state"`

	// FirstSeen is the timestamp of the snapshot that first contained the
	// element. Never later than LastSeen.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is the timestamp of the latest snapshot that contained the
	// element.
	LastSeen time.Time `json:"last_seen"`

	// ViewCount is the number of snapshots the element has appeared in,
	// at least 1 once tracked.
	ViewCount int `json:"view_count"`
}

// Clone returns an independent copy of the element.
func (e *ElementData) Clone() *ElementData {
	c := *e
	return &c
}
