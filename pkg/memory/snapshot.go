package memory

import "time"

// CaptureInput is everything the upstream driver supplies for one capture.
type CaptureInput struct {
	// BodyHTML is the raw page body markup.
	BodyHTML string

	// Scroll is the page scroll offset at capture time.
	Scroll ScrollPosition

	// Viewport is the viewport size at capture time.
	Viewport ViewportSize

	// ActionContext is a free-form label describing the surrounding action,
	// e.g. "before_scroll" or "after_click".
	ActionContext string

	// URL is the page URL, when known.
	URL string

	// Timestamp overrides the capture time. Zero means time.Now().
	Timestamp time.Time
}

// ContentSnapshot is an immutable capture of every tracked element present
// at one instant, plus the scroll, viewport, and action context it was taken
// under. Snapshots are never mutated after capture; merging only reads them.
type ContentSnapshot struct {
	Timestamp     time.Time
	Elements      map[string]*ElementData
	Scroll        ScrollPosition
	Viewport      ViewportSize
	ActionContext string
	URL           string

	// order holds element ids in document order for deterministic iteration.
	order []string
}

// Len returns the number of elements in the snapshot.
func (s *ContentSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Elements)
}

// Contains reports whether the snapshot holds the given element id.
func (s *ContentSnapshot) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Elements[id]
	return ok
}

// Element returns the element with the given id, if present.
func (s *ContentSnapshot) Element(id string) (*ElementData, bool) {
	if s == nil {
		return nil, false
	}
	el, ok := s.Elements[id]
	return el, ok
}

// IDs returns the element ids in document order.
func (s *ContentSnapshot) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}
