package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderElement(id, html string, state VisibilityState) *ElementData {
	return &ElementData{ID: id, Tag: "p", HTML: html, VisibilityState: state}
}

func TestRenderOrder(t *testing.T) {
	g := NewGenerator()
	view := g.Render([]*ElementData{
		renderElement("a", `<p>first</p>`, StateVisible),
		renderElement("b", `<p>second</p>`, StateVisible),
		renderElement("c", `<p>third</p>`, StateVisible),
	}, RenderOptions{})

	assert.Equal(t, "<p>first</p>\n<p>second</p>\n<p>third</p>", view.HTML)
	assert.Equal(t, 3, view.Included)
	assert.False(t, view.Truncated)
}

func TestRenderAnnotation(t *testing.T) {
	g := NewGenerator()
	view := g.Render([]*ElementData{
		renderElement("a", `<p>live</p>`, StateVisible),
		renderElement("b", `<p>gone</p>`, StateRemoved),
		renderElement("c", `<p>veiled</p>`, StateHidden),
	}, RenderOptions{AnnotateVisibility: true})

	lines := strings.Split(view.HTML, "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, `<p>live</p>`, lines[0], "visible elements are never wrapped")
	assert.Equal(t, `<div data-pagemem-state="removed"><p>gone</p></div>`, lines[1])
	assert.Equal(t, `<div data-pagemem-state="hidden"><p>veiled</p></div>`, lines[2])
}

func TestRenderAnnotationOff(t *testing.T) {
	g := NewGenerator()
	view := g.Render([]*ElementData{
		renderElement("b", `<p>gone</p>`, StateRemoved),
	}, RenderOptions{})

	assert.Equal(t, `<p>gone</p>`, view.HTML)
	assert.NotContains(t, view.HTML, StateAttr)
}

func TestRenderTokenBudget(t *testing.T) {
	g := NewGenerator()
	elements := []*ElementData{
		renderElement("a", `<p>one</p>`, StateVisible),
		renderElement("b", `<p>two</p>`, StateVisible),
		renderElement("c", `<p>three</p>`, StateVisible),
	}
	constantCost := func(string) int { return 1 }

	view := g.Render(elements, RenderOptions{MaxTokens: 2, CountTokens: constantCost})
	assert.Equal(t, 2, view.Included)
	assert.Equal(t, 2, view.Tokens)
	assert.True(t, view.Truncated)
	assert.Equal(t, "<p>one</p>\n<p>two</p>", view.HTML, "truncation happens at fragment boundaries")

	unbounded := g.Render(elements, RenderOptions{CountTokens: constantCost})
	assert.Equal(t, 3, unbounded.Included)
	assert.False(t, unbounded.Truncated)
}

func TestRenderByteHeuristic(t *testing.T) {
	g := NewGenerator()
	view := g.Render([]*ElementData{
		renderElement("a", `<p>12345678</p>`, StateVisible),
	}, RenderOptions{})

	// 15 bytes at roughly four bytes per token, rounded up.
	assert.Equal(t, 4, view.Tokens)
}

func TestRenderSkipsEmptyElements(t *testing.T) {
	g := NewGenerator()
	view := g.Render([]*ElementData{
		nil,
		renderElement("a", "", StateVisible),
		renderElement("b", `<p>kept</p>`, StateVisible),
	}, RenderOptions{})

	assert.Equal(t, `<p>kept</p>`, view.HTML)
	assert.Equal(t, 1, view.Included)
}

func TestRenderEmptyInput(t *testing.T) {
	g := NewGenerator()
	view := g.Render(nil, RenderOptions{AnnotateVisibility: true, MaxTokens: 10})

	assert.Empty(t, view.HTML)
	assert.Zero(t, view.Included)
	assert.False(t, view.Truncated)
}
