package search

import (
	"slices"
	"sync"

	"github.com/azyu/folioseek/pkg/types"
)

// ResultSet holds the sections found by the current query. It is the only
// state shared between a running search and its consumers. Every mutation
// carries the epoch of the query that produced it and is dropped when the
// set has moved on to a newer query.
//
// Sections appended during a batch stay pending until the batch settles,
// so readers only ever see whole batches in chapter order.
type ResultSet struct {
	mu       sync.Mutex
	epoch    uint64
	sections []types.SectionResult
	count    int
	next     int

	pending []types.SectionResult
}

// Snapshot is a consistent copy of a ResultSet.
type Snapshot struct {
	Epoch    uint64
	Sections []types.SectionResult
	// Count is the number of results across all sections.
	Count int
	// Next is the plan position where the next batch starts.
	Next int
}

// NewResultSet returns an empty result set at epoch 0.
func NewResultSet() *ResultSet {
	return &ResultSet{}
}

// Reset empties the set and moves it to epoch.
func (r *ResultSet) Reset(epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.epoch = epoch
	r.sections = nil
	r.pending = nil
	r.count = 0
	r.next = 0
}

// Epoch returns the epoch the set currently accepts.
func (r *ResultSet) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// AppendSection queues all results of one chapter at once for the next
// Settle. It returns false, queueing nothing, when epoch is stale or the
// section is empty.
func (r *ResultSet) AppendSection(epoch uint64, section types.SectionResult) bool {
	if len(section.Results) == 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if epoch != r.epoch {
		return false
	}
	r.pending = append(r.pending, section)
	return true
}

// Settle publishes the pending sections ordered by chapter index and records
// where the next batch starts. Sections for the same chapter keep their
// append order.
func (r *ResultSet) Settle(epoch uint64, next int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if epoch != r.epoch {
		return false
	}
	for _, sec := range r.pending {
		r.count += len(sec.Results)
	}
	r.sections = append(r.sections, r.pending...)
	r.pending = nil
	slices.SortStableFunc(r.sections, func(a, b types.SectionResult) int {
		return a.ChapterIndex - b.ChapterIndex
	})
	r.next = next
	return true
}

// Count returns the number of results across all settled sections.
func (r *ResultSet) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Snapshot returns a copy that is safe to read while the search continues.
func (r *ResultSet) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		Epoch:    r.epoch,
		Sections: slices.Clone(r.sections),
		Count:    r.count,
		Next:     r.next,
	}
}
