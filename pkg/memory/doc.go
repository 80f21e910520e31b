// Package memory implements content memory for browser automation sessions.
//
// Dynamic pages constantly discard content: virtual scrollers recycle rows,
// lazy loaders swap placeholders, SPA navigation replaces whole subtrees.
// An agent driving such a page loses sight of everything that leaves the
// viewport or the DOM. This package preserves that knowledge by capturing
// immutable snapshots of tracked elements around each action, merging them
// into a cumulative store, and rendering the union back as markup the agent
// can reason over.
//
// # Architecture
//
// The package is built around five core pieces:
//
//  1. ElementData: one tracked element with identity, content, and
//     visibility metadata
//  2. ContentSnapshot: an immutable capture of every element visible at one
//     instant, plus scroll/viewport/action context
//  3. Capturer: parses raw body markup into a snapshot, resolving element
//     identity via the data-pagemem-id attribute with a content-hash fallback
//  4. Merger: classifies elements between two snapshots as new, removed, or
//     persistent
//  5. Generator: renders element sets back into markup with optional
//     visibility annotation and token budgets
//
// ContentMemory orchestrates all of them and owns the cumulative store for
// one session.
//
// # Capture and Merge Flow
//
// Each page action produces a before/after snapshot pair:
//
//	before := mem.CaptureSnapshot(memory.CaptureInput{BodyHTML: html1, ActionContext: "before_scroll"})
//	// ... driver scrolls ...
//	after := mem.CaptureSnapshot(memory.CaptureInput{BodyHTML: html2, ActionContext: "after_scroll"})
//	result := mem.MergeSnapshots(before, after)
//	fmt.Println(result.Summary())
//
// Merging marks elements that disappeared as removed without deleting them,
// so the cumulative view keeps growing. Physical deletion happens only
// through PruneOldElements or Reset.
//
// # Identity
//
// Elements carrying the data-pagemem-id attribute (attached upstream by the
// driver's DOM indexer) keep a stable identity across re-renders. Elements
// without it fall back to a deterministic content hash of tag, normalized
// text, and a fixed attribute subset; two elements with indistinguishable
// content collapse into one logical element.
//
// # Concurrency
//
// The engine is designed for serial use within one automation session. The
// cumulative store is nevertheless guarded by a single mutex, so concurrent
// callers are safe: merges, prunes, and resets serialize, while capture is a
// pure transform that never touches the store.
package memory
