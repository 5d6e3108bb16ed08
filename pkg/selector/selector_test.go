package selector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type product struct {
	ID   string
	Name string
}

func productOptions() Options[product] {
	return Options[product]{
		Display: func(p product) string { return p.Name },
		Key:     func(p product) string { return p.ID },
	}
}

// recorder is a fake remote search that remembers every term it was asked for.
type recorder struct {
	mu    sync.Mutex
	terms []string
	fn    func(ctx context.Context, term string) ([]product, error)
}

func (r *recorder) search(ctx context.Context, term string) ([]product, error) {
	r.mu.Lock()
	r.terms = append(r.terms, term)
	fn := r.fn
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, term)
	}
	return []product{{ID: "1", Name: "Paracetamol 500mg"}}, nil
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.terms...)
}

func TestLocalMode(t *testing.T) {
	opts := productOptions()
	opts.Items = []product{
		{ID: "1", Name: "Paracetamol"},
		{ID: "2", Name: "Amoxicillin"},
		{ID: "3", Name: "PARAFFIN oil"},
	}
	s := New(opts)
	defer s.Close()

	t.Run("filters case-insensitively without delay", func(t *testing.T) {
		s.Type("para")

		st := s.Snapshot()
		assert.False(t, st.Loading)
		require.Len(t, st.Results, 2)
		assert.Equal(t, "1", st.Results[0].ID)
		assert.Equal(t, "3", st.Results[1].ID)
	})

	t.Run("select closes and clears term", func(t *testing.T) {
		var got *product
		opts := opts
		opts.OnSelect = func(p *product) { got = p }
		s := New(opts)
		defer s.Close()

		s.Open()
		s.Type("amox")
		picked, err := s.SelectKey("2")
		require.NoError(t, err)

		assert.Equal(t, "Amoxicillin", picked.Name)
		require.NotNil(t, got)
		assert.Equal(t, "2", got.ID)
		st := s.Snapshot()
		assert.False(t, st.Open)
		assert.Empty(t, st.Term)
		require.NotNil(t, st.Selected)
		assert.Equal(t, "2", st.Selected.ID)
	})

	t.Run("open pre-fills term with the selection", func(t *testing.T) {
		s.Select(product{ID: "2", Name: "Amoxicillin"})
		s.Open()

		st := s.Snapshot()
		assert.True(t, st.Open)
		assert.Equal(t, "Amoxicillin", st.Term)
		require.Len(t, st.Results, 1)
	})

	t.Run("unknown key", func(t *testing.T) {
		s.Type("zzz")
		_, err := s.SelectKey("1")
		assert.ErrorIs(t, err, ErrNotInResults)
	})
}

func TestRemoteMode_DebounceIssuesOneSearch(t *testing.T) {
	rec := &recorder{}
	opts := productOptions()
	opts.Search = rec.search
	opts.Delay = 80 * time.Millisecond
	s := New(opts)
	defer s.Close()

	for _, term := range []string{"p", "pa", "par", "para"} {
		s.Type(term)
		time.Sleep(15 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return len(s.Snapshot().Results) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{"para"}, rec.calls())
	assert.False(t, s.Snapshot().Loading)
}

func TestRemoteMode_LoadingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	rec := &recorder{fn: func(ctx context.Context, term string) ([]product, error) {
		started <- struct{}{}
		<-release
		return []product{{ID: "9", Name: "Ibuprofen"}}, nil
	}}
	opts := productOptions()
	opts.Search = rec.search
	opts.Delay = 10 * time.Millisecond
	s := New(opts)
	defer s.Close()

	s.Type("ibu")
	<-started
	assert.True(t, s.Snapshot().Loading)

	close(release)
	assert.Eventually(t, func() bool {
		st := s.Snapshot()
		return !st.Loading && len(st.Results) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRemoteMode_StaleResponseIsDiscarded(t *testing.T) {
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	rec := &recorder{fn: func(ctx context.Context, term string) ([]product, error) {
		if term == "a" {
			close(slowStarted)
			<-releaseSlow
			// The server ignored cancellation and answered anyway.
			return []product{{ID: "old", Name: "Aspirin"}}, nil
		}
		return []product{{ID: "new", Name: "Abacavir"}}, nil
	}}

	var mu sync.Mutex
	outcomes := map[string]Outcome{}
	opts := productOptions()
	opts.Search = rec.search
	opts.Delay = 10 * time.Millisecond
	opts.OnSearch = func(term string, outcome Outcome, _ time.Duration) {
		mu.Lock()
		outcomes[term] = outcome
		mu.Unlock()
	}
	s := New(opts)
	defer s.Close()

	s.Type("a")
	<-slowStarted
	s.Type("ab")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return outcomes["ab"] == OutcomeApplied
	}, time.Second, 5*time.Millisecond)

	close(releaseSlow)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return outcomes["a"] == OutcomeStale
	}, time.Second, 5*time.Millisecond)

	st := s.Snapshot()
	require.Len(t, st.Results, 1)
	assert.Equal(t, "new", st.Results[0].ID)
}

func TestRemoteMode_SearchFailureYieldsEmptyResults(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recorder{fn: func(ctx context.Context, term string) ([]product, error) {
		if term == "fail" {
			return nil, errors.New("upstream 503")
		}
		return []product{{ID: "1", Name: "Cetirizine"}}, nil
	}}
	opts := productOptions()
	opts.Search = rec.search
	opts.Delay = 10 * time.Millisecond
	opts.Logger = zap.New(core)
	s := New(opts)
	defer s.Close()

	s.Type("cet")
	require.Eventually(t, func() bool { return len(s.Snapshot().Results) == 1 }, time.Second, 5*time.Millisecond)

	s.Type("fail")
	assert.Eventually(t, func() bool {
		st := s.Snapshot()
		return len(st.Results) == 0 && !st.Loading && logs.Len() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "search failed", logs.All()[0].Message)
}

func TestClear_IsIdempotent(t *testing.T) {
	var calls []*product
	rec := &recorder{}
	opts := productOptions()
	opts.Search = rec.search
	opts.Delay = 10 * time.Millisecond
	opts.OnSelect = func(p *product) { calls = append(calls, p) }
	s := New(opts)
	defer s.Close()

	s.Type("para")
	require.Eventually(t, func() bool { return len(s.Snapshot().Results) == 1 }, time.Second, 5*time.Millisecond)
	s.Select(s.Snapshot().Results[0])

	s.Clear()
	first := s.Snapshot()
	s.Clear()
	second := s.Snapshot()

	assert.Equal(t, first, second)
	assert.Nil(t, second.Selected)
	assert.Empty(t, second.Term)
	assert.Empty(t, second.Results)
	require.Len(t, calls, 3)
	assert.NotNil(t, calls[0])
	assert.Nil(t, calls[1])
	assert.Nil(t, calls[2])
}

func TestClear_LocalModeRestoresFullList(t *testing.T) {
	opts := productOptions()
	opts.Items = []product{
		{ID: "1", Name: "Paracetamol"},
		{ID: "2", Name: "Amoxicillin"},
	}
	s := New(opts)
	defer s.Close()

	s.Type("amox")
	_, err := s.SelectKey("2")
	require.NoError(t, err)
	s.Type("zzz")
	require.Empty(t, s.Snapshot().Results)

	s.Clear()

	st := s.Snapshot()
	assert.Nil(t, st.Selected)
	assert.Empty(t, st.Term)
	assert.Len(t, st.Results, 2)
}

func TestClear_DiscardsPendingSearch(t *testing.T) {
	rec := &recorder{}
	opts := productOptions()
	opts.Search = rec.search
	opts.Delay = 40 * time.Millisecond
	s := New(opts)
	defer s.Close()

	s.Type("para")
	s.Clear()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.calls())
	assert.Empty(t, s.Snapshot().Results)
}

func TestClose_StopsTimers(t *testing.T) {
	rec := &recorder{}
	opts := productOptions()
	opts.Search = rec.search
	opts.Delay = 30 * time.Millisecond
	s := New(opts)

	s.Type("para")
	s.Close()
	s.Type("again")

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.calls())
}

func TestNew_DefaultDelay(t *testing.T) {
	s := New(productOptions())
	defer s.Close()

	assert.Equal(t, DefaultDelay, s.opts.Delay)
	assert.False(t, s.Remote())
}
