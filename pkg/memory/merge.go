package memory

import "fmt"

// Merger classifies the elements of two snapshots by identity. It is a pure
// set computation: classification is by element id only, and content
// differences between two elements with the same id never affect it.
type Merger struct{}

// NewMerger creates a merger.
func NewMerger() *Merger {
	return &Merger{}
}

// MergeResult holds the classification of a snapshot pair. The maps alias
// the snapshot elements they were computed from; callers that mutate
// entries must clone them first.
type MergeResult struct {
	// NewElements appeared in the after snapshot but not the before one.
	NewElements map[string]*ElementData

	// RemovedElements were present before but are absent after.
	RemovedElements map[string]*ElementData

	// PersistentElements are present in both snapshots. Entries carry the
	// after snapshot's content, which is the most recent observation.
	PersistentElements map[string]*ElementData
}

// Merge computes the new, removed, and persistent sets between two
// snapshots. A nil snapshot is treated as empty, so the first capture of a
// session merges cleanly against nothing.
func (m *Merger) Merge(before, after *ContentSnapshot) *MergeResult {
	result := &MergeResult{
		NewElements:        make(map[string]*ElementData),
		RemovedElements:    make(map[string]*ElementData),
		PersistentElements: make(map[string]*ElementData),
	}

	for id, element := range afterElements(after) {
		if before != nil && before.Contains(id) {
			result.PersistentElements[id] = element
		} else {
			result.NewElements[id] = element
		}
	}

	if before != nil {
		for id, element := range before.Elements {
			if after == nil || !after.Contains(id) {
				result.RemovedElements[id] = element
			}
		}
	}

	return result
}

// afterElements returns the element map of a possibly nil snapshot.
func afterElements(snap *ContentSnapshot) map[string]*ElementData {
	if snap == nil {
		return nil
	}
	return snap.Elements
}

// HasChanges reports whether the merge found any appearance or
// disappearance. Persistent-only merges return false.
func (r *MergeResult) HasChanges() bool {
	return len(r.NewElements) > 0 || len(r.RemovedElements) > 0
}

// Summary returns a one-line description suitable for action logs.
func (r *MergeResult) Summary() string {
	return fmt.Sprintf("%d new, %d removed, %d persistent",
		len(r.NewElements), len(r.RemovedElements), len(r.PersistentElements))
}
