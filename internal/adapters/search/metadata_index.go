package search

import (
	"sort"
	"strings"
	"sync"

	"github.com/kzhara/lathemind/backend/internal/domain/entities"
)

// Filter is a conjunction over sample metadata fields. Zero values mean
// "no constraint"; Tags matches any-of.
type Filter struct {
	Material      string
	MachiningType entities.MachiningType
	Tags          []string
}

// IsEmpty reports whether the filter constrains nothing.
func (f Filter) IsEmpty() bool {
	return f.Material == "" && f.MachiningType == "" && len(f.Tags) == 0
}

type indexEntry struct {
	material      string
	machiningType entities.MachiningType
	tags          []string
}

// MetadataIndex is the in-process, rebuildable lookup structure over sample
// metadata. It is a cache over the sample store, never a source of truth:
// after a crash mid-update the sole recovery path is Rebuild from a full
// store scan. Readers run concurrently; writers are exclusive.
type MetadataIndex struct {
	mu         sync.RWMutex
	entries    map[string]indexEntry
	byMaterial map[string]map[string]struct{}
	byType     map[entities.MachiningType]map[string]struct{}
	byTag      map[string]map[string]struct{}
}

// NewMetadataIndex creates an empty index.
func NewMetadataIndex() *MetadataIndex {
	idx := &MetadataIndex{}
	idx.reset()
	return idx
}

func (idx *MetadataIndex) reset() {
	idx.entries = make(map[string]indexEntry)
	idx.byMaterial = make(map[string]map[string]struct{})
	idx.byType = make(map[entities.MachiningType]map[string]struct{})
	idx.byTag = make(map[string]map[string]struct{})
}

// Upsert indexes one sample, replacing any previous entry for the same id.
func (idx *MetadataIndex) Upsert(sample *entities.Sample) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(sample.ID)
	idx.upsertLocked(sample)
}

// Remove drops a sample from all postings. Removing an unknown id is a no-op.
func (idx *MetadataIndex) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(id)
}

// Rebuild discards the index and recomputes it from a full store scan.
func (idx *MetadataIndex) Rebuild(samples []*entities.Sample) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.reset()
	for _, sample := range samples {
		idx.upsertLocked(sample)
	}
}

// Query returns the identifiers matching the filter conjunction, sorted for
// determinism. An empty filter returns every indexed identifier.
func (idx *MetadataIndex) Query(filter Filter) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if filter.IsEmpty() {
		result := make([]string, 0, len(idx.entries))
		for id := range idx.entries {
			result = append(result, id)
		}
		sort.Strings(result)
		return result
	}

	// Intersect posting lists so the cost tracks the matching subset, not
	// the corpus size.
	var candidates map[string]struct{}

	if material := strings.ToUpper(strings.TrimSpace(filter.Material)); material != "" {
		candidates = intersect(candidates, idx.byMaterial[material])
	}
	if filter.MachiningType != "" {
		candidates = intersect(candidates, idx.byType[filter.MachiningType])
	}
	if len(filter.Tags) > 0 {
		tagged := make(map[string]struct{})
		for _, tag := range filter.Tags {
			for id := range idx.byTag[strings.ToLower(strings.TrimSpace(tag))] {
				tagged[id] = struct{}{}
			}
		}
		candidates = intersect(candidates, tagged)
	}

	result := make([]string, 0, len(candidates))
	for id := range candidates {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// intersect narrows acc by next; a nil acc means "unconstrained so far".
func intersect(acc map[string]struct{}, next map[string]struct{}) map[string]struct{} {
	if acc == nil {
		out := make(map[string]struct{}, len(next))
		for id := range next {
			out[id] = struct{}{}
		}
		return out
	}
	out := make(map[string]struct{})
	for id := range acc {
		if _, ok := next[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Len returns the number of indexed samples.
func (idx *MetadataIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

func (idx *MetadataIndex) upsertLocked(sample *entities.Sample) {
	entry := indexEntry{
		material:      strings.ToUpper(sample.Metadata.Material),
		machiningType: sample.Metadata.MachiningType,
		tags:          append([]string(nil), sample.Metadata.Tags...),
	}
	idx.entries[sample.ID] = entry

	addPosting(idx.byMaterial, entry.material, sample.ID)
	addTypePosting(idx.byType, entry.machiningType, sample.ID)
	for _, tag := range entry.tags {
		addPosting(idx.byTag, tag, sample.ID)
	}
}

func (idx *MetadataIndex) removeLocked(id string) {
	entry, ok := idx.entries[id]
	if !ok {
		return
	}
	delete(idx.entries, id)

	dropPosting(idx.byMaterial, entry.material, id)
	dropTypePosting(idx.byType, entry.machiningType, id)
	for _, tag := range entry.tags {
		dropPosting(idx.byTag, tag, id)
	}
}

func addPosting(m map[string]map[string]struct{}, key, id string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][id] = struct{}{}
}

func dropPosting(m map[string]map[string]struct{}, key, id string) {
	if set, ok := m[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

func addTypePosting(m map[entities.MachiningType]map[string]struct{}, key entities.MachiningType, id string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][id] = struct{}{}
}

func dropTypePosting(m map[entities.MachiningType]map[string]struct{}, key entities.MachiningType, id string) {
	if set, ok := m[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}
