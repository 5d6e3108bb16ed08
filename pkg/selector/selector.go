// Package selector implements a find-and-pick control over either a fixed
// in-memory list or a debounced remote search.
//
// In local mode every keystroke filters the items synchronously by a
// case-insensitive substring match on the display text. In remote mode a
// keystroke restarts a debounce timer and only the last term typed within the
// delay window reaches the search function. Each dispatched search is tagged
// with a generation number; a response is applied only if nothing newer
// (keystroke, selection, clear) happened while it was in flight.
package selector

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay is the debounce window used when Options.Delay is zero.
const DefaultDelay = 300 * time.Millisecond

// ErrNotInResults is returned by SelectKey when no candidate has the key.
var ErrNotInResults = errors.New("selector: item is not among the current results")

// SearchFunc queries a remote source for candidates matching term.
type SearchFunc[T any] func(ctx context.Context, term string) ([]T, error)

// Outcome classifies how a dispatched search ended.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeStale   Outcome = "stale"
	OutcomeFailed  Outcome = "failed"
)

// Options configures a Selector. Display and Key are required. Exactly one of
// Items or Search decides the mode; a nil Search means local mode.
type Options[T any] struct {
	Display func(T) string
	Key     func(T) string

	Items  []T
	Search SearchFunc[T]
	Delay  time.Duration

	OnSelect func(item *T)
	OnSearch func(term string, outcome Outcome, elapsed time.Duration)

	Logger *zap.Logger
}

// State is a point-in-time copy of the selector.
type State[T any] struct {
	Term     string `json:"term"`
	Open     bool   `json:"open"`
	Loading  bool   `json:"loading"`
	Results  []T    `json:"results"`
	Selected *T     `json:"selected"`
}

// Selector is safe for concurrent use.
type Selector[T any] struct {
	opts   Options[T]
	logger *zap.Logger

	root     context.Context
	shutdown context.CancelFunc

	mu       sync.Mutex
	term     string
	open     bool
	loading  bool
	results  []T
	selected *T
	items    []T
	gen      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
	closed   bool
}

// New builds a Selector. It panics if Display or Key is nil.
func New[T any](opts Options[T]) *Selector[T] {
	if opts.Display == nil || opts.Key == nil {
		panic("selector: Display and Key accessors are required")
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	root, shutdown := context.WithCancel(context.Background())
	s := &Selector[T]{
		opts:     opts,
		logger:   logger.Named("selector"),
		root:     root,
		shutdown: shutdown,
		items:    append([]T(nil), opts.Items...),
	}
	if !s.Remote() {
		s.results = s.filter("")
	}
	return s
}

// Remote reports whether the selector searches a remote source.
func (s *Selector[T]) Remote() bool {
	return s.opts.Search != nil
}

// SetItems replaces the local item list and refilters the candidates.
func (s *Selector[T]) SetItems(items []T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append([]T(nil), items...)
	if !s.Remote() {
		s.results = s.filter(s.term)
	}
}

// Open shows the candidate list and pre-fills the term with the display text
// of the current selection.
func (s *Selector[T]) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.open = true
	term := ""
	if s.selected != nil {
		term = s.opts.Display(*s.selected)
	}
	s.setTermLocked(term)
}

// Hide closes the candidate list without touching the selection.
func (s *Selector[T]) Hide() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
}

// Type records a new search term.
func (s *Selector[T]) Type(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.setTermLocked(term)
}

func (s *Selector[T]) setTermLocked(term string) {
	s.term = term

	if !s.Remote() {
		s.results = s.filter(term)
		return
	}

	s.invalidateLocked()
	gen := s.gen
	s.timer = time.AfterFunc(s.opts.Delay, func() {
		s.dispatch(gen, term)
	})
}

// invalidateLocked makes every pending or in-flight search stale.
func (s *Selector[T]) invalidateLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.loading = false
}

func (s *Selector[T]) dispatch(gen uint64, term string) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.root)
	s.cancel = cancel
	s.loading = true
	s.mu.Unlock()

	start := time.Now()
	items, err := s.opts.Search(ctx, term)
	elapsed := time.Since(start)
	cancel()

	outcome := s.apply(gen, term, items, err)
	if s.opts.OnSearch != nil {
		s.opts.OnSearch(term, outcome, elapsed)
	}
}

func (s *Selector[T]) apply(gen uint64, term string, items []T, err error) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("discarding stale search response",
			zap.String("term", term),
			zap.Uint64("generation", gen),
			zap.Uint64("latest", s.gen),
		)
		return OutcomeStale
	}

	s.cancel = nil
	s.loading = false
	if err != nil {
		s.logger.Warn("search failed", zap.String("term", term), zap.Error(err))
		s.results = nil
		return OutcomeFailed
	}
	s.results = append([]T(nil), items...)
	return OutcomeApplied
}

func (s *Selector[T]) filter(term string) []T {
	needle := strings.ToLower(term)
	out := make([]T, 0, len(s.items))
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(s.opts.Display(item)), needle) {
			out = append(out, item)
		}
	}
	return out
}

// Select picks item, closes the list and clears the term.
func (s *Selector[T]) Select(item T) {
	s.mu.Lock()
	picked := item
	s.selected = &picked
	s.open = false
	s.term = ""
	if s.Remote() {
		s.invalidateLocked()
	} else {
		s.results = s.filter("")
	}
	s.mu.Unlock()

	if s.opts.OnSelect != nil {
		cb := item
		s.opts.OnSelect(&cb)
	}
}

// SelectKey picks the current candidate whose key equals key.
func (s *Selector[T]) SelectKey(key string) (T, error) {
	s.mu.Lock()
	var (
		found T
		ok    bool
	)
	for _, item := range s.results {
		if s.opts.Key(item) == key {
			found, ok = item, true
			break
		}
	}
	s.mu.Unlock()

	if !ok {
		var zero T
		return zero, ErrNotInResults
	}
	s.Select(found)
	return found, nil
}

// Clear drops the selection and the term. Remote candidates are dropped too;
// local mode goes back to the full list. Calling it twice leaves the same
// state as calling it once.
func (s *Selector[T]) Clear() {
	s.mu.Lock()
	s.selected = nil
	s.term = ""
	if s.Remote() {
		s.results = nil
		s.invalidateLocked()
	} else {
		s.results = s.filter("")
	}
	s.mu.Unlock()

	if s.opts.OnSelect != nil {
		s.opts.OnSelect(nil)
	}
}

// Selected returns a copy of the current selection, or nil.
func (s *Selector[T]) Selected() *T {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return nil
	}
	v := *s.selected
	return &v
}

// Snapshot returns a copy of the current state.
func (s *Selector[T]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State[T]{
		Term:    s.term,
		Open:    s.open,
		Loading: s.loading,
		Results: append(make([]T, 0, len(s.results)), s.results...),
	}
	if s.selected != nil {
		v := *s.selected
		st.Selected = &v
	}
	return st
}

// Close stops pending timers and cancels any in-flight search. The selector
// ignores input afterwards.
func (s *Selector[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.invalidateLocked()
	s.closed = true
	s.open = false
	s.shutdown()
}
