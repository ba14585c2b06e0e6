package selector

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbot/internal/format"
	"github.com/deusflow/newsbot/internal/metrics"
	"github.com/deusflow/newsbot/internal/news"
	"github.com/deusflow/newsbot/internal/publish"
	"github.com/deusflow/newsbot/internal/rotation"
	"github.com/deusflow/newsbot/internal/shorten"
	"github.com/deusflow/newsbot/internal/storage"
)

type fakeSource struct {
	mu    sync.Mutex
	pages map[rotation.Pair][]news.Article
	calls []rotation.Pair
}

func (f *fakeSource) Fetch(_ context.Context, region, category string) []news.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := rotation.Pair{Region: region, Category: category}
	f.calls = append(f.calls, p)
	return f.pages[p]
}

type fakeTarget struct {
	id  string
	err error
	n   int
}

func (f *fakeTarget) Publish(context.Context, string) (string, error) {
	f.n++
	return f.id, f.err
}

type fakeEnricher struct{ title string }

func (f fakeEnricher) Enrich(_ context.Context, a news.Article) (news.Article, error) {
	a.Title = f.title
	return a, nil
}

type fixture struct {
	src     *fakeSource
	store   storage.TitleStore
	a, b    *fakeTarget
	metrics *metrics.Metrics
	posted  []string
}

func newSelector(t *testing.T, pages map[rotation.Pair][]news.Article, opts ...Option) (*Selector, *fixture) {
	t.Helper()
	cur, err := rotation.NewCursor(rotation.Default())
	require.NoError(t, err)

	f := &fixture{
		src:     &fakeSource{pages: pages},
		store:   storage.NewMemoryStore(0),
		a:       &fakeTarget{id: "a1"},
		b:       &fakeTarget{id: "b1"},
		metrics: metrics.New(),
	}
	t.Cleanup(func() { _ = f.store.Close() })

	fitter := shorten.NewFitter(format.New(format.DefaultSuffix), nil, format.MaxWeight)
	pub := publish.NewDual(f.a, f.b, f.metrics)
	opts = append([]Option{
		WithMetrics(f.metrics),
		OnPosted(func(_ context.Context, id string) { f.posted = append(f.posted, id) }),
	}, opts...)
	s := New(cur, f.src, f.store, fitter, pub, opts...)
	pub.Policy = s.policy
	return s, f
}

// failingStore records nothing.
type failingStore struct {
	storage.TitleStore
	err error
}

func (s failingStore) Add(context.Context, storage.Record) error { return s.err }

var (
	usTop      = rotation.Pair{Region: "us", Category: "top"}
	usBusiness = rotation.Pair{Region: "us", Category: "business"}
	usScience  = rotation.Pair{Region: "us", Category: "science"}
)

func TestSelectNext_PostsFirstFreshArticle(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {
			{Title: "Storm Hits Coast", Link: "https://x/1", SourceID: "wx1", Category: "science"},
			{Title: "Second Story", Link: "https://x/2"},
		},
	})

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Posted)
	assert.Equal(t, usTop, res.Pair)
	assert.Equal(t, "#StormHits Coast\n#ScienceNews #wx1\n\nREAD HERE: https://x/1 cashapp:$KBKNY", res.Text)
	assert.Equal(t, "a1", res.PostID())
	assert.Equal(t, []string{"a1"}, f.posted)

	ok, err := f.store.Contains(context.Background(), "Storm Hits Coast")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Position())
}

func TestSelectNext_NeverRepostsTitle(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop:      {{Title: "Same", Link: "https://x/1"}},
		usBusiness: {{Title: "Same", Link: "https://x/2"}},
	})

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	require.True(t, res.Posted)

	// one full rotation: us/business and, after the wrap, us/top both
	// repeat the title
	res, err = s.SelectNext(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.False(t, res.Posted)
	assert.Equal(t, 1, f.a.n, "nothing published the second time")
	assert.Equal(t, int64(2), f.metrics.DuplicatesSkipped)
}

func TestSelectNext_TitleTrimmedBeforeDedup(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop:      {{Title: "  Same\n", Link: "https://x/1"}},
		usBusiness: {{Title: "Same", Link: "https://x/2"}},
	})

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	require.True(t, res.Posted)
	assert.Equal(t, "Same", res.Article.Title)

	ok, err := f.store.Contains(context.Background(), "Same")
	require.NoError(t, err)
	assert.True(t, ok)

	res, err = s.SelectNext(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Posted)
	assert.Equal(t, 1, f.a.n)
}

func TestSelectNext_EmptyRotationVisitsEachPairOnce(t *testing.T) {
	s, f := newSelector(t, nil)

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, rotation.Default(), f.src.calls)
	assert.Equal(t, 0, s.Position(), "cursor back at its start")
	assert.Zero(t, f.a.n)
}

func TestSelectNext_CursorAdvancesPerCall(t *testing.T) {
	fresh := func(title string) []news.Article {
		return []news.Article{{Title: title, Link: "https://x/" + title}}
	}
	s, _ := newSelector(t, map[rotation.Pair][]news.Article{
		usTop:      fresh("one"),
		usBusiness: fresh("two"),
		{Region: "us", Category: "entertainment"}: fresh("three"),
	})

	for i := 0; i < 3; i++ {
		res, err := s.SelectNext(context.Background())
		require.NoError(t, err)
		require.True(t, res.Posted)
	}
	assert.Equal(t, 3, s.Position())
}

func TestSelectNext_SkipsToLaterPair(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usScience: {{Title: "Deep Sea Find", Link: "https://x/9"}},
	})

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	require.True(t, res.Posted)
	assert.Equal(t, usScience, res.Pair)
	assert.Len(t, f.src.calls, 5)
	assert.Equal(t, 5, s.Position())
}

func TestSelectNext_PartialFailureStillPosted(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {{Title: "Storm Hits Coast", Link: "https://x/1"}},
	})
	f.b.id, f.b.err = "", errors.New("forbidden")

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, publish.PartialFailure, res.Outcome.Kind)
	assert.True(t, res.Posted)
	assert.Equal(t, []string{"a1"}, f.posted)

	n, err := f.store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSelectNext_PrimaryFailedNotRecorded(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {{Title: "Storm Hits Coast", Link: "https://x/1"}},
	})
	f.a.id, f.a.err = "", errors.New("rate limited")

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Posted)
	assert.Empty(t, f.posted)

	ok, err := f.store.Contains(context.Background(), "Storm Hits Coast")
	require.NoError(t, err)
	assert.False(t, ok, "a failed selection is not marked")
	assert.Zero(t, f.b.n, "account2 is not tried after account1 failed")
}

func TestSelectNext_PrimaryDownNeverRepostsToSecondary(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {{Title: "Storm Hits Coast", Link: "https://x/1"}},
	})
	f.a.id, f.a.err = "", errors.New("rate limited")

	for i := 0; i < 10; i++ {
		res, err := s.SelectNext(context.Background())
		require.NoError(t, err)
		require.True(t, res.Found)
		assert.False(t, res.Posted)
	}
	assert.Equal(t, 10, f.a.n)
	assert.Zero(t, f.b.n)
}

func TestSelectNext_AnyPolicyPostsSecondaryOnce(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {{Title: "Storm Hits Coast", Link: "https://x/1"}},
	}, WithPolicy(publish.AnyAccount))
	f.a.id, f.a.err = "", errors.New("rate limited")

	for i := 0; i < 10; i++ {
		_, err := s.SelectNext(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.b.n, "the title is recorded after account2 posted it")
}

func TestSelectNext_StoreFailureStillSchedulesFollowUp(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {{Title: "Storm Hits Coast", Link: "https://x/1"}},
	})
	s.store = failingStore{TitleStore: f.store, err: errors.New("disk full")}

	res, err := s.SelectNext(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, res.Posted)
	assert.Equal(t, "a1", res.PostID())
	assert.Equal(t, []string{"a1"}, f.posted)
}

func TestSelectNext_AnyPolicy(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {{Title: "Storm Hits Coast", Link: "https://x/1"}},
	}, WithPolicy(publish.AnyAccount))
	f.a.id, f.a.err = "", errors.New("down")

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Posted)
	assert.Equal(t, []string{"b1"}, f.posted, "follow-up uses the first successful post")
}

func TestSelectNext_SkipsUnusable(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {
			{Title: "", Link: "https://x/0"},
			{Title: "No Link"},
			{Title: "Good One", Link: "https://x/1"},
		},
	})

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	require.True(t, res.Posted)
	assert.Equal(t, "Good One", res.Article.Title)
	assert.Equal(t, int64(2), f.metrics.ArticlesSkipped)
}

func TestSelectNext_RecoversTitle(t *testing.T) {
	s, _ := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {{Link: "https://x/0"}},
	}, WithEnricher(fakeEnricher{title: "Recovered Headline"}))

	res, err := s.SelectNext(context.Background())
	require.NoError(t, err)
	require.True(t, res.Posted)
	assert.Equal(t, "Recovered Headline", res.Article.Title)
}

func TestSelectNext_Cancelled(t *testing.T) {
	s, f := newSelector(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SelectNext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.src.calls)
}

func TestSelectNext_Serialized(t *testing.T) {
	s, f := newSelector(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.SelectNext(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, f.src.calls, 4*len(rotation.Default()))
	assert.Equal(t, 0, s.Position())
}

func TestPreview(t *testing.T) {
	s, f := newSelector(t, map[rotation.Pair][]news.Article{
		usTop: {
			{Title: "Old News", Link: "https://x/1"},
			{Title: "Fresh News", Link: "https://x/2"},
			{Title: "", Link: ""},
		},
	})
	require.NoError(t, f.store.Add(context.Background(), storage.Record{Title: "Old News"}))

	pair, drafts, err := s.Preview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, usTop, pair)
	require.Len(t, drafts, 3)
	assert.True(t, drafts[0].Duplicate)
	assert.False(t, drafts[1].Duplicate)
	assert.Contains(t, drafts[1].Text, "#FreshNews")
	assert.ErrorIs(t, drafts[2].Err, format.ErrUnusable)
	assert.Zero(t, f.a.n, "preview never publishes")
}
