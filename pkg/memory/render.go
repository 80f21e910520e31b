package memory

import "strings"

// StateAttr is the attribute the renderer puts on annotation wrappers so
// consumers can tell stale content from live content.
const StateAttr = "data-pagemem-state"

// RenderOptions controls how a view is assembled.
type RenderOptions struct {
	// AnnotateVisibility wraps removed and hidden elements in a div
	// carrying StateAttr. Visible elements are never wrapped.
	AnnotateVisibility bool

	// MaxTokens caps the view at a token budget. Zero means unbounded.
	// Truncation happens at fragment boundaries only.
	MaxTokens int

	// CountTokens measures a fragment against the budget. Nil falls back
	// to a bytes/4 heuristic.
	CountTokens func(string) int
}

// RenderedView is the assembled output of a render pass.
type RenderedView struct {
	// HTML is the newline-joined element fragments.
	HTML string

	// Included is the number of elements present in HTML.
	Included int

	// Tokens is the budget consumed, measured with the configured counter.
	Tokens int

	// Truncated reports that the token budget cut the view short.
	Truncated bool
}

// Generator assembles element fragments into a single markup view. It is a
// pure function of its inputs: the store order is supplied by the caller
// and stored fragments are emitted verbatim.
type Generator struct{}

// NewGenerator creates a generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Render concatenates the given elements in the given order. Annotation
// wrappers never alter the inner fragment, so content captured from a
// rendered view resolves to the same identities it was stored under.
func (g *Generator) Render(elements []*ElementData, opts RenderOptions) RenderedView {
	count := opts.CountTokens
	if count == nil {
		count = estimateTokens
	}

	var view RenderedView
	parts := make([]string, 0, len(elements))
	for _, element := range elements {
		if element == nil || element.HTML == "" {
			continue
		}

		fragment := element.HTML
		if opts.AnnotateVisibility && element.VisibilityState != StateVisible {
			fragment = annotate(fragment, element.VisibilityState)
		}

		cost := count(fragment)
		if opts.MaxTokens > 0 && view.Tokens+cost > opts.MaxTokens {
			view.Truncated = true
			break
		}

		parts = append(parts, fragment)
		view.Tokens += cost
		view.Included++
	}

	view.HTML = strings.Join(parts, "\n")
	return view
}

// annotate wraps a fragment in a state-carrying div.
func annotate(fragment string, state VisibilityState) string {
	var b strings.Builder
	b.Grow(len(fragment) + len(StateAttr) + len(state) + 16)
	b.WriteString(`<div `)
	b.WriteString(StateAttr)
	b.WriteString(`="`)
	b.WriteString(string(state))
	b.WriteString(`">`)
	b.WriteString(fragment)
	b.WriteString(`</div>`)
	return b.String()
}

// estimateTokens is the fallback budget measure when no tokenizer is
// configured: roughly four bytes per token, rounded up.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
