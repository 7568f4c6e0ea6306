package search

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/azyu/folioseek/pkg/types"
)

// Planning modes reported to metrics.
const (
	planModeScan  = "scan"
	planModeIndex = "index"
)

// Update is delivered to the change handler after every state change of a
// session. Consumers should ignore updates whose Epoch is older than the
// last one they have seen.
type Update struct {
	Epoch    uint64
	Query    string
	State    State
	Sections []types.SectionResult
	Count    int
	// Next is the number of planned chapters already processed.
	Next int
	// Total is the number of planned chapters.
	Total int
	// Indexed is true when the full-text index narrowed the plan.
	Indexed bool
	Err     error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithIndex narrows each query to the chapters returned by idx.
func WithIndex(idx IndexLookup) SessionOption {
	return func(s *Session) {
		s.index = idx
	}
}

// WithChangeHandler sets the function called after every state change.
// It is called from the search goroutine; it must not block for long.
func WithChangeHandler(fn func(Update)) SessionOption {
	return func(s *Session) {
		s.onChange = fn
	}
}

// Session is the consumer-facing search of one book. All methods return
// immediately; the search runs on its own goroutine and at most one run is
// active at a time.
type Session struct {
	sched    *Scheduler
	results  *ResultSet
	source   ChapterSource
	index    IndexLookup
	onChange func(Update)

	mu      sync.Mutex
	epoch   uint64
	query   string
	state   State
	err     error
	matcher *Matcher
	plan    Plan
	next    int
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

// NewSession creates an idle session driving sched.
func NewSession(sched *Scheduler, options ...SessionOption) *Session {
	s := &Session{
		sched:   sched,
		results: sched.results,
		source:  sched.source,
		state:   StateIdle,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Submit starts a search for query. Surrounding whitespace is ignored.
// Submitting the active query again does nothing; an empty query clears the
// session. Any run for a previous query is cancelled and none of its results
// become visible afterwards.
func (s *Session) Submit(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		s.Clear()
		return
	}

	s.mu.Lock()
	if s.closed || query == s.query {
		s.mu.Unlock()
		return
	}
	epoch := s.restartLocked(query, StateRunning)
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.notify(epoch)
	go s.run(ctx, epoch, query, done)
}

// Clear cancels any run and empties the results.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	epoch := s.restartLocked("", StateIdle)
	s.mu.Unlock()

	s.notify(epoch)
}

// LoadMore continues a paused search with the next batch. It reports whether
// a continuation was started.
func (s *Session) LoadMore() bool {
	s.mu.Lock()
	if s.closed || s.state != StatePaused {
		s.mu.Unlock()
		return false
	}
	s.state = StateRunning
	epoch, ctx, m, plan, next := s.epoch, s.ctx, s.matcher, s.plan, s.next
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.notify(epoch)
	go func() {
		defer close(done)
		s.loop(ctx, epoch, m, plan, next)
	}()
	return true
}

// Wait blocks until the current run stops running or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any run. The session accepts no further queries.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Query returns the active query.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the current run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Results returns the visible sections in chapter order.
func (s *Session) Results() []types.SectionResult {
	return s.results.Snapshot().Sections
}

// Count returns the number of visible results.
func (s *Session) Count() int {
	return s.results.Count()
}

// Snapshot returns the current update without waiting for a change.
func (s *Session) Snapshot() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked()
}

// restartLocked cancels the active run and moves the session to a new epoch.
func (s *Session) restartLocked(query string, state State) uint64 {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.epoch++
	s.results.Reset(s.epoch)
	s.query = query
	s.state = state
	s.err = nil
	s.matcher = nil
	s.plan = Plan{}
	s.next = 0
	s.ctx = nil
	return s.epoch
}

func (s *Session) run(ctx context.Context, epoch uint64, query string, done chan struct{}) {
	defer close(done)

	m, err := NewMatcher(query)
	if err != nil {
		s.fail(epoch, err)
		return
	}

	plan := s.planFor(ctx, query)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.matcher = m
	s.plan = plan
	s.mu.Unlock()

	s.sched.log.Debug().
		Str("term", m.Term()).
		Bool("indexed", plan.Indexed).
		Int("chapters", plan.Total()).
		Msg("search planned")
	s.loop(ctx, epoch, m, plan, 0)
}

// loop runs batches from start until the threshold is met or the plan is
// exhausted.
func (s *Session) loop(ctx context.Context, epoch uint64, m *Matcher, plan Plan, start int) {
	for {
		out := s.sched.RunBatch(ctx, epoch, m, plan, start)
		if out.Cancelled {
			return
		}
		more := s.advance(epoch, plan, out)
		s.notify(epoch)
		if !more {
			return
		}
		start = out.End
	}
}

// advance records a finished batch and reports whether to continue.
func (s *Session) advance(epoch uint64, plan Plan, out BatchOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return false
	}
	s.next = out.End
	switch {
	case out.Done(plan):
		s.state = StateCompleted
		return false
	case out.Count >= s.sched.opts.MinResults:
		s.state = StatePaused
		return false
	default:
		return true
	}
}

func (s *Session) fail(epoch uint64, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.state = StateCompleted
	s.mu.Unlock()

	s.sched.log.Error().Err(err).Msg("search failed")
	s.notify(epoch)
}

// planFor returns the chapters to scan for query. Index hits are used when
// an index is configured and answers; otherwise every chapter is scanned.
func (s *Session) planFor(ctx context.Context, query string) Plan {
	chapters := s.source.Chapters()
	if s.index == nil {
		s.sched.metrics.Search(planModeScan)
		return Plan{Chapters: chapters}
	}

	hits, err := s.index.QueryIndex(ctx, query)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrIndexUnavailable) {
			s.sched.log.Warn().Err(err).Msg("index lookup failed, scanning all chapters")
		}
		s.sched.metrics.Search(planModeScan)
		return Plan{Chapters: chapters}
	}

	byHref := make(map[string]types.Chapter, len(chapters))
	for _, ch := range chapters {
		byHref[ch.Href] = ch
	}
	seen := make(map[int]struct{}, len(hits))
	picked := make([]types.Chapter, 0, len(hits))
	for _, h := range hits {
		ch, ok := byHref[h.Href]
		if !ok {
			continue
		}
		if _, dup := seen[ch.Index]; dup {
			continue
		}
		seen[ch.Index] = struct{}{}
		picked = append(picked, ch)
	}
	if len(picked) == 0 {
		// The index only knows word prefixes; an in-word match can still exist.
		s.sched.metrics.Search(planModeScan)
		return Plan{Chapters: chapters}
	}
	slices.SortFunc(picked, func(a, b types.Chapter) int {
		return a.Index - b.Index
	})

	s.sched.metrics.Search(planModeIndex)
	s.sched.log.Debug().Int("hits", len(hits)).Int("chapters", len(picked)).Msg("planned from index")
	return Plan{Chapters: picked, Indexed: true}
}

func (s *Session) notify(epoch uint64) {
	if s.onChange == nil {
		return
	}
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	u := s.updateLocked()
	s.mu.Unlock()

	s.onChange(u)
}

func (s *Session) updateLocked() Update {
	snap := s.results.Snapshot()
	return Update{
		Epoch:    s.epoch,
		Query:    s.query,
		State:    s.state,
		Sections: snap.Sections,
		Count:    snap.Count,
		Next:     s.next,
		Total:    s.plan.Total(),
		Indexed:  s.plan.Indexed,
		Err:      s.err,
	}
}
