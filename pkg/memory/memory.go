package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/entrhq/pagemem/pkg/config"
)

// ErrInvalidMaxAge is returned by PruneOldElements when the retention
// window is zero or negative.
var ErrInvalidMaxAge = errors.New("memory: max age must be positive")

// Logger receives engine diagnostics. Implementations must be safe for
// concurrent use. A nil logger silences the engine.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Tokenizer measures text against a token budget.
type Tokenizer interface {
	CountTokens(text string) int
}

// Statistics summarizes the cumulative store at a point in time.
type Statistics struct {
	// TotalElements is the number of distinct identities ever tracked.
	TotalElements int `json:"total_elements"`

	// VisibleElements counts entries currently in the visible state.
	VisibleElements int `json:"visible_elements"`

	// RemovedElements counts entries that have left the page.
	RemovedElements int `json:"removed_elements"`

	// HiddenElements counts entries present but occluded.
	HiddenElements int `json:"hidden_elements"`

	// SnapshotsTaken is the number of captures performed this session.
	SnapshotsTaken int `json:"snapshots_taken"`

	// SessionDuration is the time elapsed since the memory was created.
	SessionDuration time.Duration `json:"session_duration"`

	// EstimatedTokens is the token count of the visible view. Zero when no
	// tokenizer is configured.
	EstimatedTokens int `json:"estimated_tokens"`
}

// HTMLOptions controls cumulative view assembly. The zero value produces
// the complete cumulative view: removed content included, no annotation,
// the configured render budget.
type HTMLOptions struct {
	// ExcludeRemoved drops elements that have left the page, leaving
	// only visible and hidden content in the view.
	ExcludeRemoved bool

	// AnnotateVisibility wraps removed and hidden elements so consumers
	// can tell stale content apart.
	AnnotateVisibility bool

	// MaxTokens overrides the configured render budget for this view.
	// Zero falls back to the settings value.
	MaxTokens int
}

// ContentMemory accumulates page content across an automation session. It
// owns the cumulative store; snapshots and merge results handed out to
// callers are never mutated by it.
type ContentMemory struct {
	mu           sync.Mutex
	elements     map[string]*ElementData
	order        []string
	snapshots    int
	sessionStart time.Time

	settings  *config.Settings
	capturer  *Capturer
	merger    *Merger
	generator *Generator
	markdown  *converter.Converter
	logger    Logger
	tokenizer Tokenizer
}

// Option configures a ContentMemory.
type Option func(*ContentMemory)

// WithSettings sets the engine configuration. Nil falls back to the
// defaults.
func WithSettings(settings *config.Settings) Option {
	return func(m *ContentMemory) {
		m.settings = settings
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(logger Logger) Option {
	return func(m *ContentMemory) {
		m.logger = logger
	}
}

// WithTokenizer sets the tokenizer used for statistics and render budgets.
// Without one, budgets fall back to a byte heuristic and statistics omit
// the token estimate.
func WithTokenizer(tokenizer Tokenizer) Option {
	return func(m *ContentMemory) {
		m.tokenizer = tokenizer
	}
}

// New creates a ContentMemory with the given options.
func New(opts ...Option) (*ContentMemory, error) {
	m := &ContentMemory{
		elements:     make(map[string]*ElementData),
		sessionStart: time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.settings == nil {
		m.settings = config.DefaultSettings()
	}

	capturer, err := NewCapturer(m.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create capturer: %w", err)
	}
	m.capturer = capturer
	m.merger = NewMerger()
	m.generator = NewGenerator()
	m.markdown = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)

	return m, nil
}

// CaptureSnapshot parses markup into an immutable snapshot and counts it
// toward the session. The cumulative store is not touched; call
// MergeSnapshots to fold the observation in.
func (m *ContentMemory) CaptureSnapshot(input CaptureInput) *ContentSnapshot {
	snap := m.capturer.CaptureSnapshot(input)

	m.mu.Lock()
	m.snapshots++
	taken := m.snapshots
	m.mu.Unlock()

	m.debugf("captured snapshot %d: %d elements (action: %s)", taken, snap.Len(), snap.ActionContext)
	return snap
}

// MergeSnapshots classifies the two snapshots and applies the result to the
// cumulative store. New elements are inserted, persistent elements get
// their timestamps, view counts, and content refreshed, and removed
// elements are marked removed but retained. An id the store already knows
// keeps its first-seen time and view count even when the snapshot pair
// classifies it as new. Nil snapshots are treated as empty.
func (m *ContentMemory) MergeSnapshots(before, after *ContentSnapshot) *MergeResult {
	result := m.merger.Merge(before, after)

	ts := time.Now()
	if after != nil {
		ts = after.Timestamp
	}

	m.mu.Lock()
	if after != nil {
		for _, id := range after.IDs() {
			element := after.Elements[id]
			if existing, ok := m.elements[id]; ok {
				existing.LastSeen = ts
				existing.ViewCount++
				existing.VisibilityState = element.VisibilityState
				existing.Text = element.Text
				existing.HTML = element.HTML
				continue
			}
			clone := element.Clone()
			clone.FirstSeen = ts
			clone.LastSeen = ts
			clone.ViewCount = 1
			m.elements[clone.ID] = clone
			m.order = append(m.order, clone.ID)
		}
	}
	if before != nil {
		for _, id := range before.IDs() {
			element, removed := result.RemovedElements[id]
			if !removed {
				continue
			}
			if existing, ok := m.elements[id]; ok {
				existing.VisibilityState = StateRemoved
				continue
			}
			clone := element.Clone()
			clone.VisibilityState = StateRemoved
			m.elements[clone.ID] = clone
			m.order = append(m.order, clone.ID)
		}
	}
	m.mu.Unlock()

	m.debugf("merged snapshots: %s", result.Summary())
	return result
}

// CumulativeHTML renders everything the session has accumulated, in the
// order elements were first seen.
func (m *ContentMemory) CumulativeHTML(opts HTMLOptions) RenderedView {
	selection := m.collectElements(func(e *ElementData) bool {
		return !opts.ExcludeRemoved || e.VisibilityState != StateRemoved
	})

	budget := opts.MaxTokens
	if budget == 0 {
		budget = m.settings.MaxRenderTokens
	}

	return m.generator.Render(selection, RenderOptions{
		AnnotateVisibility: opts.AnnotateVisibility,
		MaxTokens:          budget,
		CountTokens:        m.countFunc(),
	})
}

// VisibleHTML renders only the elements currently visible, unannotated and
// unbudgeted.
func (m *ContentMemory) VisibleHTML() string {
	selection := m.collectElements(func(e *ElementData) bool {
		return e.VisibilityState == StateVisible
	})
	return m.generator.Render(selection, RenderOptions{}).HTML
}

// CumulativeMarkdown renders the cumulative view and converts it to
// Markdown. Visibility annotation does not apply to Markdown output.
func (m *ContentMemory) CumulativeMarkdown(opts HTMLOptions) (string, error) {
	opts.AnnotateVisibility = false
	view := m.CumulativeHTML(opts)
	if view.HTML == "" {
		return "", nil
	}

	md, err := m.markdown.ConvertString(view.HTML)
	if err != nil {
		m.errorf("markdown conversion failed: %v", err)
		return "", fmt.Errorf("failed to convert cumulative view to markdown: %w", err)
	}
	return md, nil
}

// Statistics reports the current state of the store. The token estimate
// measures the visible view and is omitted when no tokenizer is set.
func (m *ContentMemory) Statistics() Statistics {
	m.mu.Lock()
	stats := Statistics{
		TotalElements:   len(m.elements),
		SnapshotsTaken:  m.snapshots,
		SessionDuration: time.Since(m.sessionStart),
	}
	for _, element := range m.elements {
		switch element.VisibilityState {
		case StateVisible:
			stats.VisibleElements++
		case StateRemoved:
			stats.RemovedElements++
		case StateHidden:
			stats.HiddenElements++
		}
	}
	m.mu.Unlock()

	if m.tokenizer != nil {
		stats.EstimatedTokens = m.tokenizer.CountTokens(m.VisibleHTML())
	}
	return stats
}

// Settings returns a copy of the engine configuration.
func (m *ContentMemory) Settings() *config.Settings {
	return m.settings.Clone()
}

// Element returns a copy of the stored entry for id.
func (m *ContentMemory) Element(id string) (*ElementData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	element, ok := m.elements[id]
	if !ok {
		return nil, false
	}
	return element.Clone(), true
}

// Elements returns copies of all stored entries in first-seen order.
func (m *ContentMemory) Elements() []*ElementData {
	return m.collectElements(func(*ElementData) bool { return true })
}

// Reset clears the store and the snapshot counter. Snapshots and merge
// results already handed out remain valid. The session start time is kept
// so statistics keep measuring the same session.
func (m *ContentMemory) Reset() {
	m.mu.Lock()
	m.elements = make(map[string]*ElementData)
	m.order = nil
	m.snapshots = 0
	m.mu.Unlock()

	m.infof("content memory reset")
}

// PruneOldElements deletes removed and hidden entries whose last sighting
// is older than maxAge. Visible entries are never pruned regardless of
// age. Returns the number of entries deleted.
func (m *ContentMemory) PruneOldElements(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, ErrInvalidMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	pruned := 0
	kept := m.order[:0]
	for _, id := range m.order {
		element := m.elements[id]
		if element.VisibilityState != StateVisible && element.LastSeen.Before(cutoff) {
			delete(m.elements, id)
			pruned++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	m.mu.Unlock()

	if pruned > 0 {
		m.debugf("pruned %d elements older than %s", pruned, maxAge)
	}
	return pruned, nil
}

// collectElements copies matching entries out of the store in first-seen
// order, so rendering happens without holding the lock.
func (m *ContentMemory) collectElements(match func(*ElementData) bool) []*ElementData {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ElementData, 0, len(m.order))
	for _, id := range m.order {
		element := m.elements[id]
		if match(element) {
			out = append(out, element.Clone())
		}
	}
	return out
}

// countFunc adapts the configured tokenizer for render budgets.
func (m *ContentMemory) countFunc() func(string) int {
	if m.tokenizer == nil {
		return nil
	}
	return m.tokenizer.CountTokens
}

func (m *ContentMemory) debugf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Debugf(format, args...)
	}
}

func (m *ContentMemory) infof(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Infof(format, args...)
	}
}

func (m *ContentMemory) errorf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Errorf(format, args...)
	}
}
